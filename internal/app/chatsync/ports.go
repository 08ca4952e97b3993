// Package chatsync keeps one conversation's message history, live inserts and
// typing presence consistent on the client side of the platform.
package chatsync

import (
	"context"
	"time"

	"campustrade/internal/domain/chat"
)

// MessageStore is the persistence half of the platform.
type MessageStore interface {
	GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error)
	// ListMessages returns all messages of a conversation ordered by creation time.
	ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error)
	// InsertMessage stores a draft and returns the acknowledged message.
	InsertMessage(ctx context.Context, draft chat.Draft) (chat.Message, error)
}

// Subscription is a live platform stream. Done is closed when the transport
// drops it without an Unsubscribe call.
type Subscription interface {
	Unsubscribe(ctx context.Context) error
	Done() <-chan struct{}
}

type InsertSubscriber interface {
	// SubscribeInserts calls fn for every message inserted into the conversation
	// until the subscription is released. fn may be called concurrently with
	// the return of SubscribeInserts.
	SubscribeInserts(ctx context.Context, conversationID string, fn func(chat.Message)) (Subscription, error)
}

// PresenceState is what a participant announces on a presence channel.
type PresenceState struct {
	Typing bool
}

// PresenceEntry is one tracked record in a full-state presence sync. A user
// connected twice appears twice.
type PresenceEntry struct {
	UserID   chat.UserID
	Typing   bool
	OnlineAt time.Time
}

// PresenceChannel is a joined presence scope.
type PresenceChannel interface {
	Track(ctx context.Context, state PresenceState) error
	Untrack(ctx context.Context) error
	Leave(ctx context.Context) error
	Done() <-chan struct{}
}

type PresenceJoiner interface {
	// JoinPresence joins channelID as self. onSync receives the complete
	// channel state after every change.
	JoinPresence(ctx context.Context, channelID string, self chat.UserID, onSync func([]PresenceEntry)) (PresenceChannel, error)
}

// ActivityReader reads last-active timestamps. The zero time means never seen.
type ActivityReader interface {
	LastActive(ctx context.Context, userID chat.UserID) (time.Time, error)
}

// Platform is everything Open needs from the hosted backend.
type Platform interface {
	MessageStore
	InsertSubscriber
	PresenceJoiner
}
