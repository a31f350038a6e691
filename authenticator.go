package dirauth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// TokenTypeBearer is the token type reported by Login.
const TokenTypeBearer = "bearer"

// Auther orchestrates registration, login and identity lookups across the
// directory, the profile store and the token service.
type Auther struct {
	directory     Directory
	profiles      ProfileStore
	tokens        TokenIssuer
	rules         RegistrationRules
	tokenTTL      time.Duration
	reportGroups  []string
	activityLimit int
	now           func() time.Time
	logger        Logger
	metrics       MetricsRecorder
}

// NewAuther returns a new Auther
func NewAuther(cfg *Config, directory Directory, profiles ProfileStore, tokens TokenIssuer) *Auther {
	limit := cfg.Profiles.ActivityLimit
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	return &Auther{
		directory:     directory,
		profiles:      profiles,
		tokens:        tokens,
		rules:         RegistrationRules{AllowedGroups: cfg.Gates.AllowedGroups},
		tokenTTL:      cfg.Token.TTL(),
		reportGroups:  cfg.Gates.AllowedGroups,
		activityLimit: limit,
		now:           time.Now,
		logger:        DefaultLogger("auther"),
		metrics:       noopMetrics{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger, "auther")
	return s
}

// WithMetrics configures the recorder for login and registration outcomes.
func (s *Auther) WithMetrics(m MetricsRecorder) *Auther {
	s.metrics = normalizeMetrics(m)
	return s
}

// WithClock replaces the wall clock, used for profile timestamps and the
// active session window.
func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
	}
	return s
}

// Register provisions the identity in the directory, then mirrors a profile
// document and an activity record. The mirror writes are advisory and never
// undo the directory write.
func (s *Auther) Register(ctx context.Context, reg Registration) (*RegistrationResult, error) {
	reg = reg.Normalize()
	if err := s.rules.Validate(reg); err != nil {
		s.metrics.RecordRegistration(OutcomeRejected)
		return nil, err
	}

	entry, err := s.directory.Provision(ctx, reg)
	if err != nil {
		switch {
		case IsDuplicateIdentity(err):
			s.metrics.RecordRegistration(OutcomeRejected)
			s.logger.Info("registration rejected, username taken", "username", reg.Username)
		default:
			s.metrics.RecordRegistration(OutcomeError)
			s.logger.Error("registration failed", "username", reg.Username, "error", err)
		}
		return nil, err
	}

	profile := Profile{
		Username:  reg.Username,
		Email:     reg.Email,
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
		CreatedAt: s.now().UTC(),
		IsActive:  true,
	}
	if ok := s.profiles.CreateProfile(ctx, profile); !ok {
		s.logger.Warn("profile mirror skipped", "username", reg.Username)
	}
	s.recordActivity(ctx, reg.Username, ActivityAccountCreated)

	s.metrics.RecordRegistration(OutcomeSuccess)
	s.logger.Info("identity registered", "username", entry.Username, "uid_number", entry.UIDNumber)

	return &RegistrationResult{
		Message:   "User registered successfully",
		Username:  entry.Username,
		UIDNumber: entry.UIDNumber,
	}, nil
}

// Login checks the credentials against the directory and issues a token
// carrying the live group snapshot.
func (s *Auther) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" || !s.directory.Authenticate(ctx, username, password) {
		s.metrics.RecordLogin(OutcomeFailure)
		s.logger.Info("login rejected", "username", username)
		return nil, ErrInvalidCredentials
	}

	groups, err := s.directory.GroupsOf(ctx, username)
	if err != nil {
		s.metrics.RecordLogin(OutcomeError)
		s.logger.Error("login could not read groups", "username", username, "error", err)
		return nil, err
	}

	if ok := s.profiles.RecordLogin(ctx, username); !ok {
		s.logger.Warn("login metadata not recorded", "username", username)
	}
	s.recordActivity(ctx, username, ActivityLoggedIn)

	view := s.identityView(ctx, username, groups)

	token, expiresAt, err := s.tokens.Issue(username, groups, s.tokenTTL)
	if err != nil {
		s.metrics.RecordLogin(OutcomeError)
		s.logger.Error("login could not issue token", "username", username, "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to issue token")
	}

	s.metrics.RecordLogin(OutcomeSuccess)

	return &LoginResult{
		AccessToken: token,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int(s.tokenTTL / time.Second),
		ExpiresAt:   expiresAt,
		User:        view,
	}, nil
}

// identityView prefers the profile document and falls back to the directory
// entry, then to the bare username.
func (s *Auther) identityView(ctx context.Context, username string, groups []string) IdentityView {
	if profile, ok := s.profiles.GetProfile(ctx, username); ok && profile != nil {
		view := mergeProfile(profile, groups)
		s.completeView(ctx, &view)
		return view
	}

	entry, err := s.directory.Lookup(ctx, username)
	if err != nil {
		s.logger.Warn("directory entry lookup failed", "username", username, "error", err)
	}
	if entry != nil {
		return mergeEntry(entry, groups)
	}

	return IdentityView{
		Username: username,
		Groups:   groupsOrEmpty(groups),
		IsActive: true,
	}
}

// completeView fills attributes the profile store has not captured from the
// directory entry. Lookup failures leave the view as it is.
func (s *Auther) completeView(ctx context.Context, view *IdentityView) {
	if !missingAttributes(view) {
		return
	}
	entry, err := s.directory.Lookup(ctx, view.Username)
	if err != nil {
		s.logger.Warn("directory entry lookup failed", "username", view.Username, "error", err)
		return
	}
	fillFromEntry(view, entry)
}

// WhoAmI merges live groups with the profile document.
func (s *Auther) WhoAmI(ctx context.Context, username string) (*IdentityView, error) {
	groups, err := s.directory.GroupsOf(ctx, username)
	if err != nil {
		return nil, err
	}

	profile, ok := s.profiles.GetProfile(ctx, username)
	if !ok || profile == nil {
		return nil, ErrProfileNotFound
	}

	view := mergeProfile(profile, groups)
	s.completeView(ctx, &view)
	return &view, nil
}

// Profile returns the extended self-service view.
func (s *Auther) Profile(ctx context.Context, username string) (*ProfileView, error) {
	groups, err := s.directory.GroupsOf(ctx, username)
	if err != nil {
		return nil, err
	}

	profile, ok := s.profiles.GetProfile(ctx, username)
	if !ok || profile == nil {
		return nil, ErrProfileNotFound
	}

	view := mergeProfileView(profile, groups)
	s.completeView(ctx, &view.IdentityView)
	return &view, nil
}

// ListAllIdentities merges every profile with its live groups. Profiles whose
// group lookup fails are skipped.
func (s *Auther) ListAllIdentities(ctx context.Context) ([]IdentityView, error) {
	profiles := s.profiles.ListProfiles(ctx)
	views := make([]IdentityView, 0, len(profiles))

	for i := range profiles {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CategoryOperation, "context cancelled while listing identities")
		}

		groups, err := s.directory.GroupsOf(ctx, profiles[i].Username)
		if err != nil {
			s.logger.Warn("skipping identity, group lookup failed", "username", profiles[i].Username, "error", err)
			continue
		}
		view := mergeProfile(&profiles[i], groups)
		s.completeView(ctx, &view)
		views = append(views, view)
	}

	return views, nil
}

// ComputeStats counts profiles, members of each reported group and the
// identities that logged in during the current UTC day.
func (s *Auther) ComputeStats(ctx context.Context) (*Stats, error) {
	counts := s.profiles.Counts(ctx)

	stats := &Stats{
		TotalUsers:     counts.Total,
		GroupCounts:    make(map[string]int, len(s.reportGroups)),
		ActiveSessions: counts.ActiveSessions,
	}
	for _, group := range s.reportGroups {
		stats.GroupCounts[group] = 0
	}

	for _, profile := range s.profiles.ListProfiles(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CategoryOperation, "context cancelled while computing stats")
		}

		groups, err := s.directory.GroupsOf(ctx, profile.Username)
		if err != nil {
			s.logger.Warn("skipping identity in stats, group lookup failed", "username", profile.Username, "error", err)
			continue
		}
		for _, group := range s.reportGroups {
			if containsGroup(groups, group) {
				stats.GroupCounts[group]++
			}
		}
	}

	return stats, nil
}

// ListActivities returns the newest activity records for the user.
func (s *Auther) ListActivities(ctx context.Context, username string) []ActivityRecord {
	return s.profiles.ListActivities(ctx, username, s.activityLimit)
}

// RecordLogout appends a logout record. Tokens are stateless so nothing is
// revoked.
func (s *Auther) RecordLogout(ctx context.Context, username string) {
	s.recordActivity(ctx, username, ActivityLoggedOut)
}

// Health probes both stores.
func (s *Auther) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status: HealthHealthy,
		Services: map[string]string{
			"ldap":     ServiceConnected,
			"profiles": ServiceConnected,
		},
		Timestamp: s.now().UTC(),
	}

	if err := s.directory.Ping(ctx); err != nil {
		s.logger.Error("directory health probe failed", "error", err)
		status.Services["ldap"] = ServiceUnavailable
		status.Status = HealthUnhealthy
	}

	if !s.profiles.Ping(ctx) {
		status.Services["profiles"] = ServiceUnavailable
		status.Status = HealthUnhealthy
	}

	return status
}
