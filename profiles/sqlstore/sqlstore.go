// Package sqlstore is a relational profiles backend built on bun, used for
// single node deployments.
package sqlstore

import (
	"context"
	"database/sql"
	"time"

	dirauth "github.com/goliatone/go-dirauth"
	"github.com/goliatone/go-dirauth/profiles"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Backend implements profiles.Backend on a bun database.
type Backend struct {
	db       *bun.DB
	profiles repository.Repository[*ProfileModel]
}

var _ profiles.Backend = (*Backend)(nil)

// NewProfilesRepository returns the generic repository keyed by username.
func NewProfilesRepository(db *bun.DB) repository.Repository[*ProfileModel] {
	handlers := repository.ModelHandlers[*ProfileModel]{
		NewRecord: func() *ProfileModel {
			return &ProfileModel{}
		},
		GetID: func(record *ProfileModel) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ProfileModel, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "username"
		},
	}
	return repository.NewRepository(db, handlers)
}

// New returns a Backend over db. Call Migrate before use.
func New(db *bun.DB) *Backend {
	return &Backend{
		db:       db,
		profiles: NewProfilesRepository(db),
	}
}

// Open connects to a sqlite database through the persistence client.
func Open(cfg Config) (*Backend, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.GetServer())
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1)

	persistence.RegisterModel((*ProfileModel)(nil))
	persistence.RegisterModel((*ActivityModel)(nil))

	client, err := persistence.New(cfg, sqldb, sqlitedialect.New())
	if err != nil {
		return nil, err
	}

	return New(client.DB()), nil
}

// Config adapts the profile settings to the persistence client.
type Config struct {
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (c Config) GetDebug() bool                { return c.Debug }
func (c Config) GetDriver() string             { return sqliteshim.ShimName }
func (c Config) GetServer() string             { return c.DSN }
func (c Config) GetPingTimeout() time.Duration { return c.PingTimeout }
func (c Config) GetOtelIdentifier() string     { return "" }

// Migrate creates the tables and indexes when missing.
func (b *Backend) Migrate(ctx context.Context) error {
	models := []any{(*ProfileModel)(nil), (*ActivityModel)(nil)}
	for _, model := range models {
		if _, err := b.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}

	if _, err := b.db.NewCreateIndex().
		Model((*ProfileModel)(nil)).
		Index("idx_users_created_at").
		Column("created_at").
		IfNotExists().
		Exec(ctx); err != nil {
		return err
	}

	_, err := b.db.NewCreateIndex().
		Model((*ActivityModel)(nil)).
		Index("idx_user_activities_user_ts").
		Column("user_id", "timestamp").
		IfNotExists().
		Exec(ctx)
	return err
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// InsertProfile stores the profile under an ID derived from the username.
func (b *Backend) InsertProfile(ctx context.Context, profile dirauth.Profile) error {
	record := fromProfile(profile)
	if id, err := hashid.NewUUID(profile.Username); err == nil {
		record.ID = id
	} else {
		record.ID = uuid.New()
	}

	_, err := b.profiles.Create(ctx, record)
	return err
}

func (b *Backend) FindProfile(ctx context.Context, username string) (*dirauth.Profile, error) {
	record, err := b.profiles.GetByIdentifier(ctx, username)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	profile := record.toProfile()
	return &profile, nil
}

func (b *Backend) TouchLogin(ctx context.Context, username string, at time.Time) (bool, error) {
	res, err := b.db.NewUpdate().
		Model((*ProfileModel)(nil)).
		Set("last_login = ?", at.UTC()).
		Set("login_count = login_count + 1").
		Where("username = ?", username).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *Backend) AllProfiles(ctx context.Context) ([]dirauth.Profile, error) {
	var records []ProfileModel
	if err := b.db.NewSelect().
		Model(&records).
		Order("created_at ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]dirauth.Profile, 0, len(records))
	for i := range records {
		out = append(out, records[i].toProfile())
	}
	return out, nil
}

func (b *Backend) RecentActivities(ctx context.Context, username string, limit int) ([]dirauth.ActivityRecord, error) {
	var records []ActivityModel
	if err := b.db.NewSelect().
		Model(&records).
		Where("user_id = ?", username).
		Order("timestamp DESC").
		Limit(limit).
		Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]dirauth.ActivityRecord, 0, len(records))
	for _, r := range records {
		out = append(out, dirauth.ActivityRecord{
			Username:    r.UserID,
			Description: r.Description,
			Timestamp:   r.Timestamp,
		})
	}
	return out, nil
}

func (b *Backend) InsertActivity(ctx context.Context, record dirauth.ActivityRecord) error {
	_, err := b.db.NewInsert().
		Model(&ActivityModel{
			ID:          uuid.New(),
			UserID:      record.Username,
			Description: record.Description,
			Timestamp:   record.Timestamp.UTC(),
		}).
		Exec(ctx)
	return err
}

func (b *Backend) CountProfiles(ctx context.Context) (int, error) {
	return b.db.NewSelect().Model((*ProfileModel)(nil)).Count(ctx)
}

func (b *Backend) CountLoggedInSince(ctx context.Context, since time.Time) (int, error) {
	return b.db.NewSelect().
		Model((*ProfileModel)(nil)).
		Where("last_login >= ?", since.UTC()).
		Count(ctx)
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}
