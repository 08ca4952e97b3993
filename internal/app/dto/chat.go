package dto

import (
	"time"

	domainchat "campustrade/internal/domain/chat"
)

// Conversation describes chat metadata.
type Conversation struct {
	ID            string     `json:"id"`
	ListingID     string     `json:"listing_id"`
	BuyerID       string     `json:"buyer_id"`
	SellerID      string     `json:"seller_id"`
	Participants  []string   `json:"participants"`
	CreatedAt     time.Time  `json:"created_at"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// ConversationList is the caller's inbox.
type ConversationList struct {
	Items []Conversation `json:"items"`
}

// ChatMessage contains a single message payload.
type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatMessageList is a conversation's full history, oldest first.
type ChatMessageList struct {
	Items []ChatMessage `json:"items"`
}

func FromConversation(c domainchat.Conversation) Conversation {
	out := Conversation{
		ID:           c.ID,
		ListingID:    c.ListingID,
		BuyerID:      string(c.BuyerID),
		SellerID:     string(c.SellerID),
		Participants: []string{string(c.BuyerID), string(c.SellerID)},
		CreatedAt:    c.CreatedAt,
	}
	if !c.LastMessageAt.IsZero() {
		at := c.LastMessageAt
		out.LastMessageAt = &at
	}
	return out
}

func (c Conversation) Domain() domainchat.Conversation {
	out := domainchat.Conversation{
		ID:        c.ID,
		ListingID: c.ListingID,
		BuyerID:   domainchat.UserID(c.BuyerID),
		SellerID:  domainchat.UserID(c.SellerID),
		CreatedAt: c.CreatedAt,
	}
	if c.LastMessageAt != nil {
		out.LastMessageAt = *c.LastMessageAt
	}
	return out
}

func FromMessage(m domainchat.Message) ChatMessage {
	return ChatMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       string(m.SenderID),
		Text:           m.Body,
		CreatedAt:      m.CreatedAt,
	}
}

func (m ChatMessage) Domain() domainchat.Message {
	return domainchat.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       domainchat.UserID(m.SenderID),
		Body:           m.Text,
		CreatedAt:      m.CreatedAt,
	}
}
