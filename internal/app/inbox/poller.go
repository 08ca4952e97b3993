// Package inbox refreshes the conversation list by polling. It is the degraded
// substitute for push updates on the list screen.
package inbox

import (
	"context"
	"log/slog"
	"time"

	"campustrade/internal/domain/chat"
)

const DefaultInterval = 15 * time.Second

type Lister interface {
	ListConversations(ctx context.Context) ([]chat.Conversation, error)
}

type Poller struct {
	Lister   Lister
	Interval time.Duration
	Logger   *slog.Logger
	// OnChange receives the list, most recent activity first, whenever it differs from the previous poll.
	OnChange func([]chat.Conversation)
}

// Run polls until ctx is done. Fetch errors are logged and the previous list is kept.
func (p *Poller) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last []chat.Conversation
	first := true
	for {
		convs, err := p.Lister.ListConversations(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if p.Logger != nil {
				p.Logger.Warn("conversation list poll failed", "error", err)
			}
		case first || changed(last, convs):
			first = false
			last = convs
			if p.OnChange != nil {
				p.OnChange(convs)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func changed(prev, next []chat.Conversation) bool {
	if len(prev) != len(next) {
		return true
	}
	for i := range prev {
		if prev[i].ID != next[i].ID || !prev[i].LastActivity().Equal(next[i].LastActivity()) {
			return true
		}
	}
	return false
}
