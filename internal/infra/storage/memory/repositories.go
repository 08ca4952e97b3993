package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainchat "campustrade/internal/domain/chat"
	domainlisting "campustrade/internal/domain/listing"
)

// ChatRepository keeps conversations and messages in memory. Not suitable for production.
type ChatRepository struct {
	mu        sync.RWMutex
	convs     map[string]*domainchat.Conversation
	byListing map[domainchat.ListingKey]string
	messages  map[string][]domainchat.Message
	lastStamp time.Time
}

func NewChatRepository() *ChatRepository {
	return &ChatRepository{
		convs:     make(map[string]*domainchat.Conversation),
		byListing: make(map[domainchat.ListingKey]string),
		messages:  make(map[string][]domainchat.Message),
	}
}

// GetOrCreate is atomic under the repository lock, so concurrent first
// contacts for the same listing and buyer share one conversation.
func (r *ChatRepository) GetOrCreate(ctx context.Context, params domainchat.NewConversationParams, now time.Time) (domainchat.Conversation, bool, error) {
	if err := params.Validate(); err != nil {
		return domainchat.Conversation{}, false, err
	}
	key := params.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byListing[key]; ok {
		return *r.convs[id], false, nil
	}
	conv := &domainchat.Conversation{
		ID:        uuid.NewString(),
		ListingID: key.ListingID,
		BuyerID:   params.BuyerID,
		SellerID:  params.SellerID,
		CreatedAt: now.UTC(),
	}
	r.convs[conv.ID] = conv
	r.byListing[key] = conv.ID
	return *conv, true, nil
}

func (r *ChatRepository) Conversation(ctx context.Context, id string) (domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.convs[id]
	if !ok {
		return domainchat.Conversation{}, domainchat.ErrNotFound
	}
	return *conv, nil
}

func (r *ChatRepository) ConversationsFor(ctx context.Context, user domainchat.UserID) ([]domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]domainchat.Conversation, 0)
	for _, conv := range r.convs {
		if conv.HasParticipant(user) {
			result = append(result, *conv)
		}
	}
	return result, nil
}

func (r *ChatRepository) Messages(ctx context.Context, conversationID string) ([]domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.convs[conversationID]; !ok {
		return nil, domainchat.ErrNotFound
	}
	return slices.Clone(r.messages[conversationID]), nil
}

// AppendMessage assigns the id and a strictly increasing timestamp.
func (r *ChatRepository) AppendMessage(ctx context.Context, draft domainchat.Draft, now time.Time) (domainchat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.convs[draft.ConversationID]
	if !ok {
		return domainchat.Message{}, domainchat.ErrNotFound
	}
	now = now.UTC()
	if !now.After(r.lastStamp) {
		now = r.lastStamp.Add(time.Microsecond)
	}
	r.lastStamp = now
	msg := domainchat.Message{
		ID:             uuid.NewString(),
		ConversationID: draft.ConversationID,
		SenderID:       draft.SenderID,
		Body:           draft.Body,
		CreatedAt:      now,
	}
	r.messages[conv.ID] = append(r.messages[conv.ID], msg)
	conv.LastMessageAt = now
	return msg, nil
}

// ListingDirectory is an in-memory listing lookup used when Mongo is not configured.
type ListingDirectory struct {
	mu    sync.RWMutex
	items map[string]domainlisting.Listing
}

func NewListingDirectory(seed ...domainlisting.Listing) *ListingDirectory {
	d := &ListingDirectory{items: make(map[string]domainlisting.Listing)}
	for _, l := range seed {
		d.Put(l)
	}
	return d
}

func (d *ListingDirectory) Put(l domainlisting.Listing) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[strings.TrimSpace(l.ID)] = l
}

func (d *ListingDirectory) Listing(ctx context.Context, id string) (domainlisting.Listing, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	l, ok := d.items[strings.TrimSpace(id)]
	if !ok {
		return domainlisting.Listing{}, domainlisting.ErrNotFound
	}
	return l, nil
}
