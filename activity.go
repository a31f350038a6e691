package dirauth

import (
	"context"
)

// Activity descriptions written to the profile store activity log.
const (
	ActivityAccountCreated = "User account created"
	ActivityLoggedIn       = "User logged in"
	ActivityLoggedOut      = "User logged out"
)

// DefaultActivityLimit bounds activity log listings.
const DefaultActivityLimit = 10

// recordActivity appends to the activity log. The store swallows its own
// faults so a false result is only logged.
func (s *Auther) recordActivity(ctx context.Context, username, description string) {
	if ok := s.profiles.AppendActivity(ctx, username, description); !ok {
		s.logger.Warn("activity log append skipped", "username", username, "description", description)
	}
}
