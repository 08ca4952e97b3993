package profile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	domainactivity "campustrade/internal/domain/activity"
	domainprofile "campustrade/internal/domain/profile"
)

// MaxAvatarBytes bounds an uploaded profile picture.
const MaxAvatarBytes = 5 << 20

var (
	ErrAvatarTooLarge  = errors.New("profile: avatar exceeds 5 MiB")
	ErrAvatarType      = errors.New("profile: avatar must be an image")
	ErrAvatarsDisabled = errors.New("profile: avatar storage is not configured")
)

// AvatarStorage puts an image in object storage and returns its public URL.
type AvatarStorage interface {
	PutAvatar(ctx context.Context, userID string, body io.Reader, size int64, contentType string) (string, error)
}

type Service struct {
	Profiles domainprofile.Repository
	Activity domainactivity.Store
	Avatars  AvatarStorage
	Now      func() time.Time
	Logger   *slog.Logger
}

// ActivityView is a last-active timestamp with its rendered label.
type ActivityView struct {
	LastActiveAt time.Time
	Label        string
}

// Touch marks the user as active now.
func (s *Service) Touch(ctx context.Context, userID string) error {
	if s.Activity == nil {
		return errors.New("profile: activity store required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domainactivity.ErrUserRequired
	}
	return s.Activity.Touch(ctx, userID, s.now())
}

func (s *Service) LastActive(ctx context.Context, userID string) (ActivityView, error) {
	if s.Activity == nil {
		return ActivityView{}, errors.New("profile: activity store required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ActivityView{}, domainactivity.ErrUserRequired
	}
	at, err := s.Activity.LastActive(ctx, userID)
	if err != nil {
		return ActivityView{}, err
	}
	return ActivityView{LastActiveAt: at, Label: domainactivity.Label(at, s.now())}, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (domainprofile.Profile, error) {
	if s.Profiles == nil {
		return domainprofile.Profile{}, errors.New("profile: repository required")
	}
	return s.Profiles.Get(ctx, strings.TrimSpace(userID))
}

// EnsureName records the display name a user signed in with.
func (s *Service) EnsureName(ctx context.Context, userID, name string) error {
	if s.Profiles == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return s.Profiles.UpsertName(ctx, userID, name, s.now())
}

// UploadAvatar stores an image and points the user's profile at it.
func (s *Service) UploadAvatar(ctx context.Context, userID string, body io.Reader, size int64, contentType string) (string, error) {
	if s.Avatars == nil {
		return "", ErrAvatarsDisabled
	}
	if s.Profiles == nil {
		return "", errors.New("profile: repository required")
	}
	if size > MaxAvatarBytes {
		return "", ErrAvatarTooLarge
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/") {
		return "", ErrAvatarType
	}
	url, err := s.Avatars.PutAvatar(ctx, userID, body, size, contentType)
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	if err := s.Profiles.SetAvatar(ctx, userID, url, s.now()); err != nil {
		return "", err
	}
	if s.Logger != nil {
		s.Logger.Info("avatar updated", "user_id", userID, "size", size)
	}
	return url, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
