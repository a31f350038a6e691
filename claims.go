package dirauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of a session token. Groups is a snapshot taken at
// login and is never used for authorization decisions.
type Claims struct {
	jwt.RegisteredClaims
	Groups []string `json:"groups,omitempty"`
}

// Username returns the subject claim
func (c *Claims) Username() string {
	return c.RegisteredClaims.Subject
}

// HasGroup reports whether the login time snapshot listed the group
func (c *Claims) HasGroup(group string) bool {
	return containsGroup(c.Groups, group)
}

// Expires returns the expiration time
func (c *Claims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *Claims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
