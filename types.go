package dirauth

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger is satisfied by *slog.Logger. Args are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Directory is the authoritative identity store.
type Directory interface {
	// Authenticate binds as the candidate entry on a fresh connection. It
	// never returns an error: any failure is a negative answer.
	Authenticate(ctx context.Context, username, password string) bool
	// GroupsOf returns the names of the groups listing the user as member.
	GroupsOf(ctx context.Context, username string) ([]string, error)
	// Exists reports (false, nil) when the entry is absent and only errors
	// when the directory could not be reached.
	Exists(ctx context.Context, username string) (bool, error)
	// Lookup returns the entry attributes, or nil when the entry is absent.
	Lookup(ctx context.Context, username string) (*DirectoryEntry, error)
	// Provision creates the entry and joins the requested group.
	Provision(ctx context.Context, reg Registration) (*DirectoryEntry, error)
	// Ping opens and releases a privileged connection.
	Ping(ctx context.Context) error
}

// ProfileStore keeps profile documents and the activity log. Implementations
// must not return errors: faults are logged and surface as neutral values.
type ProfileStore interface {
	CreateProfile(ctx context.Context, profile Profile) bool
	GetProfile(ctx context.Context, username string) (*Profile, bool)
	RecordLogin(ctx context.Context, username string) bool
	ListProfiles(ctx context.Context) []Profile
	ListActivities(ctx context.Context, username string, limit int) []ActivityRecord
	AppendActivity(ctx context.Context, username, description string) bool
	Counts(ctx context.Context) ProfileCounts
	Ping(ctx context.Context) bool
}

// TokenIssuer mints signed session tokens.
type TokenIssuer interface {
	Issue(subject string, groups []string, ttl time.Duration) (string, time.Time, error)
}

// TokenVerifier validates a signed token and returns its claims.
type TokenVerifier interface {
	Verify(raw string) (*Claims, error)
}

// TokenVerifierFunc adapts a function into a TokenVerifier.
type TokenVerifierFunc func(raw string) (*Claims, error)

// Verify satisfies the TokenVerifier interface.
func (f TokenVerifierFunc) Verify(raw string) (*Claims, error) {
	if f == nil {
		return nil, ErrInvalidToken
	}
	return f(raw)
}

// MetricsRecorder receives counters for the operations the core performs.
type MetricsRecorder interface {
	RecordLogin(outcome string)
	RecordRegistration(outcome string)
	RecordGateDecision(group, outcome string)
}

const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

type noopMetrics struct{}

func (noopMetrics) RecordLogin(string)                {}
func (noopMetrics) RecordRegistration(string)         {}
func (noopMetrics) RecordGateDecision(string, string) {}

func normalizeMetrics(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}

// DefaultLogger returns a text slog logger tagged with the component name.
func DefaultLogger(component string) Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("component", component)
}

func normalizeLogger(logger Logger, component string) Logger {
	if logger == nil {
		return DefaultLogger(component)
	}
	return logger
}
