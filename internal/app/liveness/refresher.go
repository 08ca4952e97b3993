package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval matches how often peers expect a fresh last-active stamp.
const DefaultInterval = 60 * time.Second

// Toucher records that a user is active right now.
type Toucher interface {
	TouchActivity(ctx context.Context) error
}

// Refresher keeps the session owner's last-active timestamp fresh while a
// session is open, whether or not any conversation is open.
type Refresher struct {
	Toucher  Toucher
	Interval time.Duration
	Logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	touches int
}

// Start touches once immediately and then every Interval until Stop or ctx ends.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, interval, r.done)
}

func (r *Refresher) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.touch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.touch(ctx)
		}
	}
}

func (r *Refresher) touch(ctx context.Context) {
	if r.Toucher == nil {
		return
	}
	err := r.Toucher.TouchActivity(ctx)
	r.mu.Lock()
	r.touches++
	r.mu.Unlock()
	if err != nil && ctx.Err() == nil && r.Logger != nil {
		r.Logger.Warn("last-active refresh failed", "error", err)
	}
}

// Touches reports how many refresh attempts ran.
func (r *Refresher) Touches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.touches
}

// Stop ends the loop and waits for it. Safe to call more than once.
func (r *Refresher) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
