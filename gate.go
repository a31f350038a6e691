package dirauth

import (
	"context"
)

// Principal is the identity a gate admitted. Groups are the live directory
// groups read while authorizing, not the token snapshot.
type Principal struct {
	Username string
	Groups   []string
	Claims   *Claims
}

// HasGroup reports whether the live group set lists the group.
func (p *Principal) HasGroup(group string) bool {
	if p == nil {
		return false
	}
	return containsGroup(p.Groups, group)
}

// Gate admits requests carrying a valid token whose subject still exists in
// the directory and, for group gates, currently belongs to the group.
type Gate struct {
	verifier  TokenVerifier
	directory Directory
	group     string
	metrics   MetricsRecorder
	logger    Logger
}

// GateOption customizes a Gate
type GateOption func(*Gate)

// WithGateLogger sets the logger
func WithGateLogger(logger Logger) GateOption {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithGateMetrics sets the decision recorder
func WithGateMetrics(m MetricsRecorder) GateOption {
	return func(g *Gate) {
		g.metrics = m
	}
}

// NewGroupGate returns a gate requiring live membership of group.
func NewGroupGate(verifier TokenVerifier, directory Directory, group string, opts ...GateOption) *Gate {
	g := &Gate{
		verifier:  verifier,
		directory: directory,
		group:     group,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	g.logger = normalizeLogger(g.logger, "gate")
	g.metrics = normalizeMetrics(g.metrics)
	return g
}

// NewSessionGate returns a gate that only requires a valid token for an
// identity that still exists.
func NewSessionGate(verifier TokenVerifier, directory Directory, opts ...GateOption) *Gate {
	return NewGroupGate(verifier, directory, "", opts...)
}

// Group returns the required group, empty for session gates.
func (g *Gate) Group() string {
	return g.group
}

func (g *Gate) label() string {
	if g.group == "" {
		return "session"
	}
	return g.group
}

// Authorize verifies the token, confirms the subject exists and checks the
// required group against a fresh directory lookup.
func (g *Gate) Authorize(ctx context.Context, rawToken string) (*Principal, error) {
	claims, err := g.verifier.Verify(rawToken)
	if err != nil {
		g.metrics.RecordGateDecision(g.label(), OutcomeRejected)
		if !IsInvalidToken(err) {
			err = InvalidToken(err)
		}
		return nil, err
	}

	username := claims.Username()

	exists, err := g.directory.Exists(ctx, username)
	if err != nil {
		g.metrics.RecordGateDecision(g.label(), OutcomeError)
		g.logger.Error("gate could not confirm identity", "username", username, "error", err)
		return nil, err
	}
	if !exists {
		g.metrics.RecordGateDecision(g.label(), OutcomeRejected)
		g.logger.Info("token subject no longer exists", "username", username)
		return nil, ErrIdentityGone
	}

	groups, err := g.directory.GroupsOf(ctx, username)
	if err != nil {
		g.metrics.RecordGateDecision(g.label(), OutcomeError)
		g.logger.Error("gate could not read live groups", "username", username, "error", err)
		return nil, err
	}

	if g.group != "" && !containsGroup(groups, g.group) {
		g.metrics.RecordGateDecision(g.label(), OutcomeRejected)
		g.logger.Info("access denied", "username", username, "group", g.group)
		return nil, Forbidden(g.group)
	}

	g.metrics.RecordGateDecision(g.label(), OutcomeSuccess)

	return &Principal{
		Username: username,
		Groups:   groups,
		Claims:   claims,
	}, nil
}
