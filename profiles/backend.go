// Package profiles holds the profile store. Backends report every fault;
// Store swallows them so profile data never decides an authentication
// outcome.
package profiles

import (
	"context"
	"time"

	dirauth "github.com/goliatone/go-dirauth"
)

// Backend is a strict profile persistence layer.
type Backend interface {
	// InsertProfile fails when the username already has a profile.
	InsertProfile(ctx context.Context, profile dirauth.Profile) error
	// FindProfile returns nil, nil when no profile exists.
	FindProfile(ctx context.Context, username string) (*dirauth.Profile, error)
	// TouchLogin stamps last login and increments the counter. It reports
	// whether a profile was updated.
	TouchLogin(ctx context.Context, username string, at time.Time) (bool, error)
	AllProfiles(ctx context.Context) ([]dirauth.Profile, error)
	// RecentActivities returns records newest first.
	RecentActivities(ctx context.Context, username string, limit int) ([]dirauth.ActivityRecord, error)
	InsertActivity(ctx context.Context, record dirauth.ActivityRecord) error
	CountProfiles(ctx context.Context) (int, error)
	CountLoggedInSince(ctx context.Context, since time.Time) (int, error)
	Ping(ctx context.Context) error
}
