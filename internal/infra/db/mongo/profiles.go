package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainprofile "campustrade/internal/domain/profile"
)

// ProfileRepository keeps one document per user in user_profiles. The
// last-active stamp lives on the same document.
type ProfileRepository struct {
	col *mongo.Collection
}

func NewProfileRepository(db *mongo.Database) *ProfileRepository {
	return &ProfileRepository{col: db.Collection("user_profiles")}
}

func (r *ProfileRepository) Get(ctx context.Context, userID string) (domainprofile.Profile, error) {
	var doc profileDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": strings.TrimSpace(userID)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domainprofile.Profile{}, domainprofile.ErrNotFound
		}
		return domainprofile.Profile{}, err
	}
	return doc.toDomain(), nil
}

func (r *ProfileRepository) UpsertName(ctx context.Context, userID, name string, now time.Time) error {
	return r.upsert(ctx, userID, bson.M{
		"$set": bson.M{"display_name": strings.TrimSpace(name), "updated_at": now.UTC()},
	})
}

func (r *ProfileRepository) SetAvatar(ctx context.Context, userID, url string, now time.Time) error {
	return r.upsert(ctx, userID, bson.M{
		"$set": bson.M{"avatar_url": url, "updated_at": now.UTC()},
	})
}

// Touch never moves last_active_at backwards.
func (r *ProfileRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	return r.upsert(ctx, userID, bson.M{
		"$max": bson.M{"last_active_at": at.UTC()},
		"$set": bson.M{"updated_at": at.UTC()},
	})
}

func (r *ProfileRepository) LastActive(ctx context.Context, userID string) (time.Time, error) {
	var doc struct {
		LastActiveAt time.Time `bson:"last_active_at"`
	}
	opts := options.FindOne().SetProjection(bson.M{"last_active_at": 1})
	if err := r.col.FindOne(ctx, bson.M{"_id": strings.TrimSpace(userID)}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return doc.LastActiveAt.UTC(), nil
}

func (r *ProfileRepository) upsert(ctx context.Context, userID string, update bson.M) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domainprofile.ErrUserRequired
	}
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	return err
}

type profileDocument struct {
	ID           string    `bson:"_id"`
	DisplayName  string    `bson:"display_name,omitempty"`
	AvatarURL    string    `bson:"avatar_url,omitempty"`
	LastActiveAt time.Time `bson:"last_active_at,omitempty"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d profileDocument) toDomain() domainprofile.Profile {
	p := domainprofile.Profile{
		UserID:      d.ID,
		DisplayName: d.DisplayName,
		AvatarURL:   d.AvatarURL,
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if !d.LastActiveAt.IsZero() {
		p.LastActiveAt = d.LastActiveAt.UTC()
	}
	return p
}
