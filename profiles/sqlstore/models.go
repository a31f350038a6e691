package sqlstore

import (
	"time"

	dirauth "github.com/goliatone/go-dirauth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProfileModel is the Bun model for profile documents.
type ProfileModel struct {
	bun.BaseModel `bun:"table:users,alias:prf"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid"`
	Username     string     `bun:"username,notnull,unique"`
	Email        string     `bun:"email"`
	FirstName    string     `bun:"first_name"`
	LastName     string     `bun:"last_name"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	LastLogin    *time.Time `bun:"last_login"`
	LoginCount   int        `bun:"login_count,notnull"`
	IsActive     bool       `bun:"is_active,notnull"`
	DaysActive   int        `bun:"days_active,notnull"`
	LastActivity *time.Time `bun:"last_activity"`
}

// ActivityModel is the Bun model for the append-only activity log.
type ActivityModel struct {
	bun.BaseModel `bun:"table:user_activities,alias:act"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	UserID      string    `bun:"user_id,notnull"`
	Description string    `bun:"description,notnull"`
	Timestamp   time.Time `bun:"timestamp,notnull"`
}

func fromProfile(p dirauth.Profile) *ProfileModel {
	return &ProfileModel{
		Username:     p.Username,
		Email:        p.Email,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		CreatedAt:    p.CreatedAt.UTC(),
		LastLogin:    p.LastLogin,
		LoginCount:   p.LoginCount,
		IsActive:     p.IsActive,
		DaysActive:   p.DaysActive,
		LastActivity: p.LastActivity,
	}
}

func (m *ProfileModel) toProfile() dirauth.Profile {
	return dirauth.Profile{
		Username:     m.Username,
		Email:        m.Email,
		FirstName:    m.FirstName,
		LastName:     m.LastName,
		CreatedAt:    m.CreatedAt,
		LastLogin:    m.LastLogin,
		LoginCount:   m.LoginCount,
		IsActive:     m.IsActive,
		DaysActive:   m.DaysActive,
		LastActivity: m.LastActivity,
	}
}
