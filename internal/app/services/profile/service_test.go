package profile

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campustrade/internal/infra/storage/memory"
)

type fakeAvatars struct {
	uploads int
}

func (f *fakeAvatars) PutAvatar(_ context.Context, userID string, body io.Reader, _ int64, _ string) (string, error) {
	f.uploads++
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	return "http://cdn.local/avatars/" + userID + ".png", nil
}

func TestService_TouchAndLabel(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := memory.NewProfileRepository()
	svc := &Service{Profiles: repo, Activity: repo, Now: func() time.Time { return now }}
	ctx := context.Background()

	view, err := svc.LastActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "offline", view.Label)

	require.NoError(t, svc.Touch(ctx, "u1"))
	now = now.Add(30 * time.Second)
	view, err = svc.LastActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "active now", view.Label)

	now = now.Add(10 * time.Minute)
	view, err = svc.LastActive(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "10m ago", view.Label)

	assert.Error(t, svc.Touch(ctx, " "))
}

func TestService_UploadAvatar(t *testing.T) {
	repo := memory.NewProfileRepository()
	avatars := &fakeAvatars{}
	svc := &Service{Profiles: repo, Activity: repo, Avatars: avatars}
	ctx := context.Background()

	url, err := svc.UploadAvatar(ctx, "u1", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	p, err := svc.Profile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, url, p.AvatarURL)

	_, err = svc.UploadAvatar(ctx, "u1", strings.NewReader("x"), MaxAvatarBytes+1, "image/png")
	assert.ErrorIs(t, err, ErrAvatarTooLarge)
	_, err = svc.UploadAvatar(ctx, "u1", strings.NewReader("x"), 1, "text/plain")
	assert.ErrorIs(t, err, ErrAvatarType)
	assert.Equal(t, 1, avatars.uploads)

	disabled := &Service{Profiles: repo}
	_, err = disabled.UploadAvatar(ctx, "u1", strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, ErrAvatarsDisabled)
}
