// Package mongostore is the MongoDB profiles backend.
package mongostore

import (
	"context"
	"errors"
	"time"

	dirauth "github.com/goliatone/go-dirauth"
	"github.com/goliatone/go-dirauth/profiles"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	UsersCollection      = "users"
	ActivitiesCollection = "user_activities"
)

// ErrProfileExists is returned when inserting a profile for a taken username.
var ErrProfileExists = errors.New("profile already exists")

type profileDocument struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email"`
	FirstName    string             `bson:"first_name"`
	LastName     string             `bson:"last_name"`
	CreatedAt    time.Time          `bson:"created_at"`
	LastLogin    *time.Time         `bson:"last_login,omitempty"`
	LoginCount   int                `bson:"login_count"`
	IsActive     bool               `bson:"is_active"`
	DaysActive   int                `bson:"days_active,omitempty"`
	LastActivity *time.Time         `bson:"last_activity,omitempty"`
}

type activityDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      string             `bson:"user_id"`
	Description string             `bson:"description"`
	Timestamp   time.Time          `bson:"timestamp"`
}

// Backend stores profiles and activities in two collections.
type Backend struct {
	client     *mongo.Client
	users      *mongo.Collection
	activities *mongo.Collection
}

var _ profiles.Backend = (*Backend)(nil)

// Connect dials uri. The driver connects lazily, so an unreachable server
// only surfaces on the first operation.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*Backend, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return New(client, database), nil
}

// New returns a Backend over an existing client.
func New(client *mongo.Client, database string) *Backend {
	db := client.Database(database)
	return &Backend{
		client:     client,
		users:      db.Collection(UsersCollection),
		activities: db.Collection(ActivitiesCollection),
	}
}

// EnsureIndexes creates the username, creation time and activity indexes.
func (b *Backend) EnsureIndexes(ctx context.Context) error {
	_, err := b.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "created_at", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = b.activities.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
	})
	return err
}

// Close disconnects the client.
func (b *Backend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

func (b *Backend) InsertProfile(ctx context.Context, profile dirauth.Profile) error {
	_, err := b.users.InsertOne(ctx, toDocument(profile))
	if mongo.IsDuplicateKeyError(err) {
		return ErrProfileExists
	}
	return err
}

func (b *Backend) FindProfile(ctx context.Context, username string) (*dirauth.Profile, error) {
	var doc profileDocument
	err := b.users.FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	profile := fromDocument(doc)
	return &profile, nil
}

func (b *Backend) TouchLogin(ctx context.Context, username string, at time.Time) (bool, error) {
	res, err := b.users.UpdateOne(ctx,
		bson.M{"username": username},
		bson.M{
			"$set": bson.M{"last_login": at},
			"$inc": bson.M{"login_count": 1},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (b *Backend) AllProfiles(ctx context.Context) ([]dirauth.Profile, error) {
	cursor, err := b.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}

	var docs []profileDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]dirauth.Profile, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc))
	}
	return out, nil
}

func (b *Backend) RecentActivities(ctx context.Context, username string, limit int) ([]dirauth.ActivityRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := b.activities.Find(ctx, bson.M{"user_id": username}, opts)
	if err != nil {
		return nil, err
	}

	var docs []activityDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]dirauth.ActivityRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, dirauth.ActivityRecord{
			Username:    doc.UserID,
			Description: doc.Description,
			Timestamp:   doc.Timestamp,
		})
	}
	return out, nil
}

func (b *Backend) InsertActivity(ctx context.Context, record dirauth.ActivityRecord) error {
	_, err := b.activities.InsertOne(ctx, activityDocument{
		UserID:      record.Username,
		Description: record.Description,
		Timestamp:   record.Timestamp,
	})
	return err
}

func (b *Backend) CountProfiles(ctx context.Context) (int, error) {
	n, err := b.users.CountDocuments(ctx, bson.M{})
	return int(n), err
}

func (b *Backend) CountLoggedInSince(ctx context.Context, since time.Time) (int, error) {
	n, err := b.users.CountDocuments(ctx, bson.M{"last_login": bson.M{"$gte": since}})
	return int(n), err
}

func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx, readpref.Primary())
}

func toDocument(p dirauth.Profile) profileDocument {
	return profileDocument{
		Username:     p.Username,
		Email:        p.Email,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		CreatedAt:    p.CreatedAt,
		LastLogin:    p.LastLogin,
		LoginCount:   p.LoginCount,
		IsActive:     p.IsActive,
		DaysActive:   p.DaysActive,
		LastActivity: p.LastActivity,
	}
}

func fromDocument(doc profileDocument) dirauth.Profile {
	return dirauth.Profile{
		Username:     doc.Username,
		Email:        doc.Email,
		FirstName:    doc.FirstName,
		LastName:     doc.LastName,
		CreatedAt:    doc.CreatedAt,
		LastLogin:    doc.LastLogin,
		LoginCount:   doc.LoginCount,
		IsActive:     doc.IsActive,
		DaysActive:   doc.DaysActive,
		LastActivity: doc.LastActivity,
	}
}
