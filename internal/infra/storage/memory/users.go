package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domainprofile "campustrade/internal/domain/profile"
)

// ProfileRepository stores profiles and last-active stamps in memory.
type ProfileRepository struct {
	mu    sync.RWMutex
	items map[string]domainprofile.Profile
}

func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{items: make(map[string]domainprofile.Profile)}
}

func (r *ProfileRepository) Get(ctx context.Context, userID string) (domainprofile.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[userID]
	if !ok {
		return domainprofile.Profile{}, domainprofile.ErrNotFound
	}
	return p, nil
}

func (r *ProfileRepository) UpsertName(ctx context.Context, userID, name string, now time.Time) error {
	return r.update(userID, now, func(p *domainprofile.Profile) {
		p.DisplayName = strings.TrimSpace(name)
	})
}

func (r *ProfileRepository) SetAvatar(ctx context.Context, userID, url string, now time.Time) error {
	return r.update(userID, now, func(p *domainprofile.Profile) {
		p.AvatarURL = url
	})
}

func (r *ProfileRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	return r.update(userID, at, func(p *domainprofile.Profile) {
		if at.After(p.LastActiveAt) {
			p.LastActiveAt = at.UTC()
		}
	})
}

func (r *ProfileRepository) LastActive(ctx context.Context, userID string) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.items[userID].LastActiveAt, nil
}

func (r *ProfileRepository) update(userID string, now time.Time, fn func(*domainprofile.Profile)) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domainprofile.ErrUserRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.items[userID]
	p.UserID = userID
	fn(&p)
	p.UpdatedAt = now.UTC()
	r.items[userID] = p
	return nil
}
