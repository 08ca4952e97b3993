package profile

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrUserRequired = errors.New("profile: user id is required")
	ErrNotFound     = errors.New("profile: not found")
)

type Profile struct {
	UserID       string
	DisplayName  string
	AvatarURL    string
	LastActiveAt time.Time
	UpdatedAt    time.Time
}

// Repository stores user profiles. Implementations also satisfy activity.Store
// since last-active lives on the profile record.
type Repository interface {
	Get(ctx context.Context, userID string) (Profile, error)
	// UpsertName creates the profile if needed and sets its display name.
	UpsertName(ctx context.Context, userID, name string, now time.Time) error
	SetAvatar(ctx context.Context, userID, url string, now time.Time) error
}

// Display falls back to the user id when no name was set.
func (p Profile) Display() string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return p.UserID
}
