package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxBodyRunes bounds a single message body.
const MaxBodyRunes = 4000

var (
	ErrEmptyBody          = errors.New("chat: message body is empty")
	ErrBodyTooLong        = errors.New("chat: message body is too long")
	ErrConversationID     = errors.New("chat: conversation id is required")
	ErrSenderRequired     = errors.New("chat: sender is required")
	ErrListingRequired    = errors.New("chat: listing id is required")
	ErrParticipants       = errors.New("chat: buyer and seller are required")
	ErrSelfConversation   = errors.New("chat: cannot start a conversation with yourself")
	ErrNotFound           = errors.New("chat: not found")
	ErrForbidden          = errors.New("chat: not a conversation participant")
	ErrConversationExists = errors.New("chat: conversation already exists")
)

type UserID string

// Conversation is a two-party thread scoped to one listing.
type Conversation struct {
	ID            string
	ListingID     string
	BuyerID       UserID
	SellerID      UserID
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// HasParticipant reports whether user is the buyer or the seller.
func (c Conversation) HasParticipant(user UserID) bool {
	return user != "" && (c.BuyerID == user || c.SellerID == user)
}

// Peer returns the other participant for user, or "" if user is not a participant.
func (c Conversation) Peer(user UserID) UserID {
	switch user {
	case c.BuyerID:
		return c.SellerID
	case c.SellerID:
		return c.BuyerID
	default:
		return ""
	}
}

// LastActivity is the timestamp used to order conversation lists.
func (c Conversation) LastActivity() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

type Message struct {
	ID             string
	ConversationID string
	SenderID       UserID
	Body           string
	CreatedAt      time.Time
}

// Before reports whether m sorts before other in display order:
// creation time ascending, id as the tie-break.
func (m Message) Before(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// Draft is a message that has not been stored yet. The store assigns id and timestamp.
type Draft struct {
	ConversationID string
	SenderID       UserID
	Body           string
}

// NewDraft trims and validates the body.
func NewDraft(conversationID string, sender UserID, body string) (Draft, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return Draft{}, ErrConversationID
	}
	if strings.TrimSpace(string(sender)) == "" {
		return Draft{}, ErrSenderRequired
	}
	body, err := NormalizeBody(body)
	if err != nil {
		return Draft{}, err
	}
	return Draft{ConversationID: conversationID, SenderID: sender, Body: body}, nil
}

// NormalizeBody trims whitespace and rejects empty or oversized bodies.
func NormalizeBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyBody
	}
	if utf8.RuneCountInString(body) > MaxBodyRunes {
		return "", ErrBodyTooLong
	}
	return body, nil
}

// ListingKey identifies the unique conversation a buyer can have about a listing.
type ListingKey struct {
	ListingID string
	BuyerID   UserID
}

// NewConversationParams validates a lookup-or-create request.
type NewConversationParams struct {
	ListingID string
	BuyerID   UserID
	SellerID  UserID
}

func (p NewConversationParams) Validate() error {
	if strings.TrimSpace(p.ListingID) == "" {
		return ErrListingRequired
	}
	if p.BuyerID == "" || p.SellerID == "" {
		return ErrParticipants
	}
	if p.BuyerID == p.SellerID {
		return ErrSelfConversation
	}
	return nil
}

func (p NewConversationParams) Key() ListingKey {
	return ListingKey{ListingID: strings.TrimSpace(p.ListingID), BuyerID: p.BuyerID}
}

// Repository persists conversations and messages.
type Repository interface {
	// GetOrCreate returns the conversation for params.Key(), creating it when absent.
	// created is true only for the call that inserted it.
	GetOrCreate(ctx context.Context, params NewConversationParams, now time.Time) (conv Conversation, created bool, err error)
	Conversation(ctx context.Context, id string) (Conversation, error)
	ConversationsFor(ctx context.Context, user UserID) ([]Conversation, error)
	// Messages returns every message of the conversation in display order.
	Messages(ctx context.Context, conversationID string) ([]Message, error)
	AppendMessage(ctx context.Context, draft Draft, now time.Time) (Message, error)
}
