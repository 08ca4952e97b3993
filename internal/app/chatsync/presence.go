package chatsync

import "campustrade/internal/domain/chat"

// othersTyping reports whether any entry not belonging to self is typing.
func othersTyping(entries []PresenceEntry, self chat.UserID) bool {
	for _, e := range entries {
		if e.UserID == self {
			continue
		}
		if e.Typing {
			return true
		}
	}
	return false
}
