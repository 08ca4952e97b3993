package realtime

import (
	"context"
	"sort"
	"sync"
	"time"
)

// PresenceRecord is one connection's tracked state on a channel.
type PresenceRecord struct {
	ConnID   string    `json:"conn_id"`
	UserID   string    `json:"user_id"`
	Typing   bool      `json:"typing"`
	OnlineAt time.Time `json:"online_at"`
}

// PresenceStore holds ephemeral presence for every channel and tells every
// gateway instance when a channel changed.
type PresenceStore interface {
	Track(ctx context.Context, channel string, rec PresenceRecord, now time.Time) error
	Untrack(ctx context.Context, channel, connID string) error
	// Heartbeat refreshes a record's last-seen time without changing it.
	Heartbeat(ctx context.Context, channel, connID string, now time.Time) error
	List(ctx context.Context, channel string) ([]PresenceRecord, error)
	// Sweep drops records not seen since cutoff and returns the channels it changed.
	Sweep(ctx context.Context, cutoff time.Time) ([]string, error)
	Announce(ctx context.Context, channel string) error
	// Listen calls fn for every announced channel until ctx is done.
	Listen(ctx context.Context, fn func(channel string)) error
}

type memoryEntry struct {
	rec  PresenceRecord
	seen time.Time
}

// MemoryPresence is a single-instance PresenceStore.
type MemoryPresence struct {
	mu        sync.Mutex
	channels  map[string]map[string]memoryEntry
	listeners map[int]func(string)
	nextID    int
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{
		channels:  make(map[string]map[string]memoryEntry),
		listeners: make(map[int]func(string)),
	}
}

func (m *MemoryPresence) Track(ctx context.Context, channel string, rec PresenceRecord, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.channels[channel]
	if entries == nil {
		entries = make(map[string]memoryEntry)
		m.channels[channel] = entries
	}
	entries[rec.ConnID] = memoryEntry{rec: rec, seen: now}
	return nil
}

func (m *MemoryPresence) Untrack(ctx context.Context, channel, connID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.channels[channel]
	delete(entries, connID)
	if len(entries) == 0 {
		delete(m.channels, channel)
	}
	return nil
}

func (m *MemoryPresence) Heartbeat(ctx context.Context, channel, connID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.channels[channel][connID]; ok {
		e.seen = now
		m.channels[channel][connID] = e
	}
	return nil
}

func (m *MemoryPresence) List(ctx context.Context, channel string) ([]PresenceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PresenceRecord, 0, len(m.channels[channel]))
	for _, e := range m.channels[channel] {
		out = append(out, e.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnID < out[j].ConnID })
	return out, nil
}

func (m *MemoryPresence) Sweep(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var changed []string
	for channel, entries := range m.channels {
		dropped := false
		for id, e := range entries {
			if e.seen.Before(cutoff) {
				delete(entries, id)
				dropped = true
			}
		}
		if len(entries) == 0 {
			delete(m.channels, channel)
		}
		if dropped {
			changed = append(changed, channel)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func (m *MemoryPresence) Announce(ctx context.Context, channel string) error {
	m.mu.Lock()
	fns := make([]func(string), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(channel)
	}
	return nil
}

func (m *MemoryPresence) Listen(ctx context.Context, fn func(channel string)) error {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.listeners, id)
	m.mu.Unlock()
	return ctx.Err()
}

func (m *MemoryPresence) listenerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}
