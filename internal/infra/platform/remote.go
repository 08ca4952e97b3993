package platform

import (
	"context"
	"sync"

	"campustrade/internal/app/chatsync"
	"campustrade/internal/app/inbox"
	"campustrade/internal/app/liveness"
	"campustrade/internal/domain/chat"
)

// Remote is the hosted platform as seen by one signed-in user. A lost socket
// stays lost for the handles opened on it; the next subscribe or join dials a
// fresh one, so reopening a conversation restores live updates.
type Remote struct {
	*Client

	mu     sync.Mutex
	rt     *Realtime
	closed bool
}

// Connect opens the realtime socket for the client's current token.
func Connect(ctx context.Context, client *Client) (*Remote, error) {
	if client.Token() == "" {
		return nil, ErrUnauthenticated
	}
	r := &Remote{Client: client}
	if _, err := r.live(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// live returns the open socket, redialing when the previous one is gone.
func (r *Remote) live(ctx context.Context) (*Realtime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrDisconnected
	}
	if r.rt != nil && !r.rt.closed() {
		return r.rt, nil
	}
	rt, err := Dial(ctx, r.BaseURL(), r.Token(), r.logger)
	if err != nil {
		return nil, err
	}
	if r.rt != nil && r.logger != nil {
		r.logger.Info("realtime reconnected")
	}
	r.rt = rt
	return rt, nil
}

func (r *Remote) current() *Realtime {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rt
}

func (r *Remote) SubscribeInserts(ctx context.Context, conversationID string, fn func(chat.Message)) (chatsync.Subscription, error) {
	rt, err := r.live(ctx)
	if err != nil {
		return nil, err
	}
	return rt.SubscribeInserts(ctx, conversationID, fn)
}

func (r *Remote) JoinPresence(ctx context.Context, channelID string, self chat.UserID, onSync func([]chatsync.PresenceEntry)) (chatsync.PresenceChannel, error) {
	rt, err := r.live(ctx)
	if err != nil {
		return nil, err
	}
	return rt.JoinPresence(ctx, channelID, self, onSync)
}

// Done is closed once the current socket is gone.
func (r *Remote) Done() <-chan struct{} { return r.current().Done() }

// Err reports why the current socket closed, or nil while it is open.
func (r *Remote) Err() error { return r.current().Err() }

// Close drops the socket for good; later subscribes fail with ErrDisconnected.
func (r *Remote) Close() error {
	r.mu.Lock()
	r.closed = true
	rt := r.rt
	r.mu.Unlock()
	return rt.Close()
}

var (
	_ chatsync.Platform       = (*Remote)(nil)
	_ chatsync.ActivityReader = (*Client)(nil)
	_ liveness.Toucher        = (*Client)(nil)
	_ inbox.Lister            = (*Client)(nil)
)
