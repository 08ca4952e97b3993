package scylla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gocql/gocql"

	domainchat "campustrade/internal/domain/chat"
)

const conversationColumns = `id, listing_id, buyer_id, seller_id, created_at, last_message_at`

// ChatStore persists conversations and messages in Scylla.
type ChatStore struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewChatStore(session *gocql.Session, logger *slog.Logger) *ChatStore {
	return &ChatStore{session: session, logger: logger}
}

// GetOrCreate claims the (listing, buyer) slot with a lightweight transaction,
// so concurrent callers agree on a single conversation id.
func (s *ChatStore) GetOrCreate(ctx context.Context, params domainchat.NewConversationParams, now time.Time) (domainchat.Conversation, bool, error) {
	if err := params.Validate(); err != nil {
		return domainchat.Conversation{}, false, err
	}
	if s.session == nil {
		return domainchat.Conversation{}, false, errors.New("scylla session not initialized")
	}
	key := params.Key()
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	id := gocql.TimeUUID()

	existing := make(map[string]interface{})
	applied, err := s.session.
		Query(`INSERT INTO conversations_by_listing (listing_id, buyer_id, conversation_id, seller_id, created_at) VALUES (?, ?, ?, ?, ?) IF NOT EXISTS`,
			key.ListingID, string(key.BuyerID), id, string(params.SellerID), now).
		WithContext(ctx).
		SerialConsistency(gocql.LocalSerial).
		MapScanCAS(existing)
	if err != nil {
		return domainchat.Conversation{}, false, fmt.Errorf("claim listing conversation: %w", err)
	}

	if !applied {
		return s.existingConversation(ctx, key, existing)
	}

	conv := domainchat.Conversation{
		ID:        id.String(),
		ListingID: key.ListingID,
		BuyerID:   params.BuyerID,
		SellerID:  params.SellerID,
		CreatedAt: now,
	}
	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO conversations (id, listing_id, buyer_id, seller_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, conv.ListingID, string(conv.BuyerID), string(conv.SellerID), now)
	batch.Query(`INSERT INTO conversations_by_user (user_id, conversation_id) VALUES (?, ?)`, string(conv.BuyerID), id)
	batch.Query(`INSERT INTO conversations_by_user (user_id, conversation_id) VALUES (?, ?)`, string(conv.SellerID), id)
	if err := s.session.ExecuteBatch(batch); err != nil {
		return domainchat.Conversation{}, false, fmt.Errorf("create conversation: %w", err)
	}
	return conv, true, nil
}

// existingConversation resolves a lost claim. The winner may not have written
// the conversation row yet, in which case the claim row itself is enough.
func (s *ChatStore) existingConversation(ctx context.Context, key domainchat.ListingKey, row map[string]interface{}) (domainchat.Conversation, bool, error) {
	id, ok := row["conversation_id"].(gocql.UUID)
	if !ok {
		return domainchat.Conversation{}, false, fmt.Errorf("claim listing conversation: unexpected row %v", row)
	}
	conv, err := s.Conversation(ctx, id.String())
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, domainchat.ErrNotFound) {
		return domainchat.Conversation{}, false, err
	}
	seller, _ := row["seller_id"].(string)
	created, _ := row["created_at"].(time.Time)
	return domainchat.Conversation{
		ID:        id.String(),
		ListingID: key.ListingID,
		BuyerID:   key.BuyerID,
		SellerID:  domainchat.UserID(seller),
		CreatedAt: created.UTC(),
	}, false, nil
}

func (s *ChatStore) Conversation(ctx context.Context, id string) (domainchat.Conversation, error) {
	if s.session == nil {
		return domainchat.Conversation{}, errors.New("scylla session not initialized")
	}
	uuid, err := gocql.ParseUUID(strings.TrimSpace(id))
	if err != nil {
		return domainchat.Conversation{}, domainchat.ErrNotFound
	}
	var row conversationRow
	if err := s.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE id = ? LIMIT 1`, uuid).
		WithContext(ctx).
		Consistency(gocql.One).
		Scan(row.dest()...); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return domainchat.Conversation{}, domainchat.ErrNotFound
		}
		return domainchat.Conversation{}, err
	}
	return row.domain(), nil
}

// ConversationsFor lists the user's conversations, most recent activity first.
func (s *ChatStore) ConversationsFor(ctx context.Context, user domainchat.UserID) ([]domainchat.Conversation, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	var (
		ids []gocql.UUID
		id  gocql.UUID
	)
	iter := s.session.
		Query(`SELECT conversation_id FROM conversations_by_user WHERE user_id = ?`, string(user)).
		WithContext(ctx).
		Iter()
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domainchat.Conversation{}, nil
	}

	var row conversationRow
	conversations := make([]domainchat.Conversation, 0, len(ids))
	iter = s.session.
		Query(`SELECT `+conversationColumns+` FROM conversations WHERE id IN ?`, ids).
		WithContext(ctx).
		Iter()
	for iter.Scan(row.dest()...) {
		conversations = append(conversations, row.domain())
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	slices.SortFunc(conversations, func(a, b domainchat.Conversation) int {
		return b.LastActivity().Compare(a.LastActivity())
	})
	return conversations, nil
}

func (s *ChatStore) Messages(ctx context.Context, conversationID string) ([]domainchat.Message, error) {
	if s.session == nil {
		return nil, errors.New("scylla session not initialized")
	}
	uuid, err := gocql.ParseUUID(strings.TrimSpace(conversationID))
	if err != nil {
		return nil, domainchat.ErrNotFound
	}
	var (
		messageID gocql.UUID
		senderID  string
		text      string
		createdAt time.Time
	)
	messages := make([]domainchat.Message, 0)
	iter := s.session.
		Query(`SELECT message_id, sender_id, text, created_at FROM messages WHERE conversation_id = ?`, uuid).
		WithContext(ctx).
		Iter()
	for iter.Scan(&messageID, &senderID, &text, &createdAt) {
		messages = append(messages, domainchat.Message{
			ID:             messageID.String(),
			ConversationID: uuid.String(),
			SenderID:       domainchat.UserID(senderID),
			Body:           text,
			CreatedAt:      createdAt.UTC(),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	// timeuuid clustering follows write time; display order is created_at.
	slices.SortStableFunc(messages, func(a, b domainchat.Message) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})
	return messages, nil
}

// AppendMessage stores the message and bumps the conversation's activity
// timestamp. A failed bump is logged; the message is already durable.
func (s *ChatStore) AppendMessage(ctx context.Context, draft domainchat.Draft, now time.Time) (domainchat.Message, error) {
	if s.session == nil {
		return domainchat.Message{}, errors.New("scylla session not initialized")
	}
	convID, err := gocql.ParseUUID(strings.TrimSpace(draft.ConversationID))
	if err != nil {
		return domainchat.Message{}, domainchat.ErrNotFound
	}
	if now.IsZero() {
		now = time.Now()
	}
	// Scylla stores timestamps with millisecond precision.
	now = now.UTC().Truncate(time.Millisecond)
	messageID := gocql.UUIDFromTime(now)
	if err := s.session.
		Query(`INSERT INTO messages (conversation_id, message_id, sender_id, text, created_at) VALUES (?, ?, ?, ?, ?)`,
			convID, messageID, string(draft.SenderID), draft.Body, now).
		WithContext(ctx).
		Consistency(gocql.Quorum).
		Exec(); err != nil {
		return domainchat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if err := s.session.
		Query(`UPDATE conversations SET last_message_at = ? WHERE id = ?`, now, convID).
		WithContext(ctx).
		Consistency(gocql.One).
		Exec(); err != nil && s.logger != nil {
		s.logger.Warn("failed to update last message time", "error", err, "conversation_id", convID.String())
	}
	return domainchat.Message{
		ID:             messageID.String(),
		ConversationID: convID.String(),
		SenderID:       draft.SenderID,
		Body:           draft.Body,
		CreatedAt:      now,
	}, nil
}

type conversationRow struct {
	ID            gocql.UUID
	ListingID     string
	BuyerID       string
	SellerID      string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

func (r *conversationRow) dest() []interface{} {
	return []interface{}{&r.ID, &r.ListingID, &r.BuyerID, &r.SellerID, &r.CreatedAt, &r.LastMessageAt}
}

func (r conversationRow) domain() domainchat.Conversation {
	conv := domainchat.Conversation{
		ID:        r.ID.String(),
		ListingID: r.ListingID,
		BuyerID:   domainchat.UserID(r.BuyerID),
		SellerID:  domainchat.UserID(r.SellerID),
		CreatedAt: r.CreatedAt.UTC(),
	}
	if !r.LastMessageAt.IsZero() {
		conv.LastMessageAt = r.LastMessageAt.UTC()
	}
	return conv
}

var _ domainchat.Repository = (*ChatStore)(nil)
