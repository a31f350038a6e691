package dirauth

import (
	"time"
)

// Registration is the payload used to provision a new identity.
type Registration struct {
	Username  string `json:"username" form:"username"`
	Password  string `json:"password" form:"password"`
	Email     string `json:"email" form:"email"`
	FirstName string `json:"first_name" form:"first_name"`
	LastName  string `json:"last_name" form:"last_name"`
	Group     string `json:"group" form:"group"`
}

// DisplayName is the derived display attribute stored in the directory.
func (r Registration) DisplayName() string {
	return r.FirstName + " " + r.LastName
}

// DirectoryEntry is the view of an identity entry as stored in the directory.
type DirectoryEntry struct {
	DN            string `json:"dn"`
	Username      string `json:"username"`
	UIDNumber     int    `json:"uid_number"`
	GIDNumber     int    `json:"gid_number"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	DisplayName   string `json:"display_name"`
	Email         string `json:"email"`
	HomeDirectory string `json:"home_directory"`
	LoginShell    string `json:"login_shell"`
}

// Profile is the secondary document mirrored at registration time.
type Profile struct {
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	LoginCount   int        `json:"login_count"`
	IsActive     bool       `json:"is_active"`
	DaysActive   int        `json:"days_active"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// ActivityRecord is an append-only activity log entry.
type ActivityRecord struct {
	Username    string    `json:"user_id"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// ProfileCounts aggregates profile store counters.
type ProfileCounts struct {
	Total          int `json:"total_users"`
	ActiveSessions int `json:"active_sessions"`
}

// IdentityView merges live directory groups with descriptive profile fields.
type IdentityView struct {
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Groups    []string   `json:"groups"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	IsActive  bool       `json:"is_active"`
}

// HasGroup reports whether the view lists the group.
func (v IdentityView) HasGroup(group string) bool {
	return containsGroup(v.Groups, group)
}

// ProfileView is the extended self-service view.
type ProfileView struct {
	IdentityView
	LoginCount   int        `json:"login_count"`
	DaysActive   int        `json:"days_active"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        IdentityView `json:"user"`
}

// RegistrationResult is returned by a successful registration.
type RegistrationResult struct {
	Message   string `json:"message"`
	Username  string `json:"username"`
	UIDNumber int    `json:"uid_number"`
}

// Stats is the admin summary.
type Stats struct {
	TotalUsers     int            `json:"total_users"`
	GroupCounts    map[string]int `json:"group_counts"`
	ActiveSessions int            `json:"active_sessions"`
}

// HealthStatus reports the connectivity of both stores.
type HealthStatus struct {
	Status    string            `json:"status"`
	Services  map[string]string `json:"services"`
	Timestamp time.Time         `json:"timestamp"`
}

const (
	HealthHealthy      = "healthy"
	HealthUnhealthy    = "unhealthy"
	ServiceConnected   = "connected"
	ServiceUnavailable = "disconnected"
)

func containsGroup(groups []string, group string) bool {
	for _, g := range groups {
		if g == group {
			return true
		}
	}
	return false
}
