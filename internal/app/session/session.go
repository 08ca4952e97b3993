// Package session carries the signed-in user explicitly instead of through
// ambient lookups, and owns everything that lives as long as the sign-in.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"campustrade/internal/app/chatsync"
	"campustrade/internal/app/liveness"
	"campustrade/internal/domain/chat"
)

var (
	ErrEnded           = errors.New("session: ended")
	ErrIdentityMissing = errors.New("session: user id is required")
)

type Identity struct {
	UserID chat.UserID
	Name   string
}

type Deps struct {
	Platform chatsync.Platform
	// Activity is optional; without it peers' last-active is not shown.
	Activity chatsync.ActivityReader
	// Toucher is optional; without it the liveness refresher is not started.
	Toucher         liveness.Toucher
	Logger          *slog.Logger
	Clock           chatsync.Clock
	QuietPeriod     time.Duration
	RefreshInterval time.Duration
}

// Session is one signed-in user.
type Session struct {
	deps      Deps
	identity  Identity
	refresher *liveness.Refresher

	mu      sync.Mutex
	ended   bool
	handles map[*chatsync.Handle]struct{}
}

// Begin starts a session for identity and its liveness refresher.
func Begin(ctx context.Context, deps Deps, identity Identity) (*Session, error) {
	if identity.UserID == "" {
		return nil, ErrIdentityMissing
	}
	if deps.Platform == nil {
		return nil, errors.New("session: platform is required")
	}
	s := &Session{
		deps:     deps,
		identity: identity,
		handles:  make(map[*chatsync.Handle]struct{}),
	}
	if deps.Toucher != nil {
		s.refresher = &liveness.Refresher{
			Toucher:  deps.Toucher,
			Interval: deps.RefreshInterval,
			Logger:   deps.Logger,
		}
		// Detached from ctx: the refresher lives until End, not until the caller's request.
		s.refresher.Start(context.WithoutCancel(ctx))
	}
	if deps.Logger != nil {
		deps.Logger.Info("session started", "user_id", string(identity.UserID))
	}
	return s, nil
}

func (s *Session) Identity() Identity { return s.identity }

// OpenConversation opens a conversation as the session's user. The handle is
// closed by End if the caller has not closed it before.
func (s *Session) OpenConversation(ctx context.Context, conversationID string) (*chatsync.Handle, error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil, ErrEnded
	}
	s.mu.Unlock()

	h, err := chatsync.Open(ctx, s.deps.Platform, conversationID, s.identity.UserID, chatsync.Options{
		Logger:      s.deps.Logger,
		Clock:       s.deps.Clock,
		QuietPeriod: s.deps.QuietPeriod,
		Activity:    s.deps.Activity,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		_ = h.Close(ctx)
		return nil, ErrEnded
	}
	s.handles[h] = struct{}{}
	s.mu.Unlock()
	return h, nil
}

// CloseConversation closes h and forgets it.
func (s *Session) CloseConversation(ctx context.Context, h *chatsync.Handle) error {
	if h == nil {
		return nil
	}
	s.mu.Lock()
	delete(s.handles, h)
	s.mu.Unlock()
	return h.Close(ctx)
}

// OpenCount reports how many conversations the session still holds open.
func (s *Session) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// End closes every open conversation and stops the refresher. Later calls are no-ops.
func (s *Session) End(ctx context.Context) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.ended = true
	handles := make([]*chatsync.Handle, 0, len(s.handles))
	for h := range s.handles {
		handles = append(handles, h)
	}
	s.handles = make(map[*chatsync.Handle]struct{})
	s.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close conversation %s: %w", h.Conversation().ID, err))
		}
	}
	if s.refresher != nil {
		s.refresher.Stop()
	}
	if s.deps.Logger != nil {
		s.deps.Logger.Info("session ended", "user_id", string(s.identity.UserID), "closed_conversations", len(handles))
	}
	return errors.Join(errs...)
}
