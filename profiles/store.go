package profiles

import (
	"context"
	"time"

	dirauth "github.com/goliatone/go-dirauth"
)

// Store implements dirauth.ProfileStore on top of a Backend.
type Store struct {
	backend Backend
	timeout time.Duration
	now     func() time.Time
	logger  dirauth.Logger
}

var _ dirauth.ProfileStore = (*Store)(nil)

// Option customizes a Store
type Option func(*Store)

// WithTimeout bounds every backend call.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger dirauth.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore wraps backend.
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		timeout: 10 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = dirauth.DefaultLogger("profiles")
	}
	return s
}

func (s *Store) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) fault(op string, err error, args ...any) {
	s.logger.Warn("profile store fault", append([]any{"operation", op, "error", err}, args...)...)
}

// CreateProfile stamps the creation time, marks the profile active and
// resets the login counter.
func (s *Store) CreateProfile(ctx context.Context, profile dirauth.Profile) bool {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = s.now().UTC()
	}
	profile.IsActive = true
	profile.LoginCount = 0
	profile.LastLogin = nil

	if err := s.backend.InsertProfile(ctx, profile); err != nil {
		s.fault("create_profile", err, "username", profile.Username)
		return false
	}
	return true
}

func (s *Store) GetProfile(ctx context.Context, username string) (*dirauth.Profile, bool) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	profile, err := s.backend.FindProfile(ctx, username)
	if err != nil {
		s.fault("get_profile", err, "username", username)
		return nil, false
	}
	if profile == nil {
		return nil, false
	}
	return profile, true
}

func (s *Store) RecordLogin(ctx context.Context, username string) bool {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	updated, err := s.backend.TouchLogin(ctx, username, s.now().UTC())
	if err != nil {
		s.fault("record_login", err, "username", username)
		return false
	}
	return updated
}

func (s *Store) ListProfiles(ctx context.Context) []dirauth.Profile {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	profiles, err := s.backend.AllProfiles(ctx)
	if err != nil {
		s.fault("list_profiles", err)
		return []dirauth.Profile{}
	}
	if profiles == nil {
		return []dirauth.Profile{}
	}
	return profiles
}

// ListActivities returns at most limit records, newest first.
func (s *Store) ListActivities(ctx context.Context, username string, limit int) []dirauth.ActivityRecord {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if limit <= 0 {
		limit = dirauth.DefaultActivityLimit
	}

	records, err := s.backend.RecentActivities(ctx, username, limit)
	if err != nil {
		s.fault("list_activities", err, "username", username)
		return []dirauth.ActivityRecord{}
	}
	if records == nil {
		return []dirauth.ActivityRecord{}
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records
}

func (s *Store) AppendActivity(ctx context.Context, username, description string) bool {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	record := dirauth.ActivityRecord{
		Username:    username,
		Description: description,
		Timestamp:   s.now().UTC(),
	}
	if err := s.backend.InsertActivity(ctx, record); err != nil {
		s.fault("append_activity", err, "username", username)
		return false
	}
	return true
}

// Counts reports total profiles and profiles with a login since the start
// of the current UTC day.
func (s *Store) Counts(ctx context.Context) dirauth.ProfileCounts {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	total, err := s.backend.CountProfiles(ctx)
	if err != nil {
		s.fault("count_profiles", err)
		return dirauth.ProfileCounts{}
	}

	active, err := s.backend.CountLoggedInSince(ctx, StartOfDay(s.now()))
	if err != nil {
		s.fault("count_active", err)
		return dirauth.ProfileCounts{}
	}

	return dirauth.ProfileCounts{Total: total, ActiveSessions: active}
}

func (s *Store) Ping(ctx context.Context) bool {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.backend.Ping(ctx); err != nil {
		s.fault("ping", err)
		return false
	}
	return true
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
