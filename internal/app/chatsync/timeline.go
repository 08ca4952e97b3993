package chatsync

import (
	"slices"

	"campustrade/internal/domain/chat"
)

// timeline is the deduplicated, ordered message list of one conversation.
type timeline struct {
	msgs []chat.Message
	ids  map[string]struct{}
}

func newTimeline() *timeline {
	return &timeline{ids: make(map[string]struct{})}
}

// merge inserts m at its sorted position unless a message with the same id is
// already present. It reports whether the list changed.
func (t *timeline) merge(m chat.Message) bool {
	if m.ID == "" {
		return false
	}
	if _, ok := t.ids[m.ID]; ok {
		return false
	}
	i, _ := slices.BinarySearchFunc(t.msgs, m, func(existing, target chat.Message) int {
		switch {
		case existing.Before(target):
			return -1
		case target.Before(existing):
			return 1
		default:
			return 0
		}
	})
	t.msgs = slices.Insert(t.msgs, i, m)
	t.ids[m.ID] = struct{}{}
	return true
}

func (t *timeline) mergeAll(msgs []chat.Message) bool {
	changed := false
	for _, m := range msgs {
		if t.merge(m) {
			changed = true
		}
	}
	return changed
}

func (t *timeline) snapshot() []chat.Message {
	return slices.Clone(t.msgs)
}

func (t *timeline) size() int { return len(t.msgs) }
