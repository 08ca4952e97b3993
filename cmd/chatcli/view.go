package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"campustrade/internal/domain/activity"
	"campustrade/internal/domain/chat"
)

// state is what the view reads from an open conversation after each change.
type state interface {
	Messages() []chat.Message
	OtherTyping() bool
	PeerLastActive() time.Time
	LiveUpdates() bool
	PresenceAvailable() bool
}

// view prints a conversation incrementally: each message once, and status
// lines only when they change.
type view struct {
	self chat.UserID
	peer chat.UserID

	mu          sync.Mutex
	printed     map[string]struct{}
	typing      bool
	peerLabel   string
	liveLost    bool
	presenceOff bool
}

func newView(self chat.UserID, conv chat.Conversation) *view {
	return &view{
		self:    self,
		peer:    conv.Peer(self),
		printed: make(map[string]struct{}),
	}
}

// update returns the lines to print for whatever changed since the last call.
func (v *view) update(s state, now time.Time) []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var lines []string
	for _, m := range s.Messages() {
		if _, ok := v.printed[m.ID]; ok {
			continue
		}
		v.printed[m.ID] = struct{}{}
		lines = append(lines, v.formatMessage(m))
	}

	if label := activity.Label(s.PeerLastActive(), now); label != v.peerLabel {
		v.peerLabel = label
		lines = append(lines, fmt.Sprintf("-- %s is %s", v.peer, label))
	}
	if typing := s.OtherTyping(); typing != v.typing {
		v.typing = typing
		if typing {
			lines = append(lines, fmt.Sprintf("-- %s is typing...", v.peer))
		} else {
			lines = append(lines, fmt.Sprintf("-- %s stopped typing", v.peer))
		}
	}
	if !s.LiveUpdates() && !v.liveLost {
		v.liveLost = true
		lines = append(lines, "-- live updates unavailable, reopen the conversation to refresh")
	}
	if !s.PresenceAvailable() && !v.presenceOff {
		v.presenceOff = true
		lines = append(lines, "-- typing indicator unavailable")
	}
	return lines
}

// header names the other participant and the listing the conversation is about.
func header(conv chat.Conversation, self chat.UserID, peerName string) string {
	peer := string(conv.Peer(self))
	if peerName != "" && peerName != peer {
		peer = fmt.Sprintf("%s (%s)", peerName, peer)
	}
	role := "buying"
	if conv.SellerID == self {
		role = "selling"
	}
	return fmt.Sprintf("== %s, %s listing %s", peer, role, conv.ListingID)
}

func (v *view) formatMessage(m chat.Message) string {
	who := string(m.SenderID)
	if m.SenderID == v.self {
		who = "you"
	}
	return fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("15:04"), who, m.Body)
}

func (v *view) print(out io.Writer, lines []string) {
	for _, l := range lines {
		_, _ = fmt.Fprintln(out, l)
	}
}
