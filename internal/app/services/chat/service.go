package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	domainchat "campustrade/internal/domain/chat"
	domainlisting "campustrade/internal/domain/listing"
)

// InsertPublisher fans a stored message out to realtime subscribers.
type InsertPublisher interface {
	PublishInsert(ctx context.Context, msg domainchat.Message) error
}

type Service struct {
	Repo      domainchat.Repository
	Listings  domainlisting.Directory
	Publisher InsertPublisher
	Now       func() time.Time
	Logger    *slog.Logger
}

// GetOrCreateForListing returns the caller's conversation about a listing,
// creating it on first contact. The seller comes from the listing directory.
func (s *Service) GetOrCreateForListing(ctx context.Context, user domainchat.UserID, listingID string) (domainchat.Conversation, bool, error) {
	if err := s.ensureDependencies(); err != nil {
		return domainchat.Conversation{}, false, err
	}
	if s.Listings == nil {
		return domainchat.Conversation{}, false, errors.New("chat: listing directory required")
	}
	listingID = strings.TrimSpace(listingID)
	if listingID == "" {
		return domainchat.Conversation{}, false, domainchat.ErrListingRequired
	}
	item, err := s.Listings.Listing(ctx, listingID)
	if err != nil {
		return domainchat.Conversation{}, false, err
	}
	params := domainchat.NewConversationParams{
		ListingID: item.ID,
		BuyerID:   user,
		SellerID:  domainchat.UserID(item.SellerID),
	}
	if err := params.Validate(); err != nil {
		return domainchat.Conversation{}, false, err
	}
	conv, created, err := s.Repo.GetOrCreate(ctx, params, s.now())
	if err != nil {
		return domainchat.Conversation{}, false, fmt.Errorf("get or create conversation: %w", err)
	}
	if created && s.Logger != nil {
		s.Logger.Info("conversation created", "conversation_id", conv.ID, "listing_id", conv.ListingID, "buyer_id", conv.BuyerID, "seller_id", conv.SellerID)
	}
	return conv, created, nil
}

// ListConversations returns the user's conversations, most recent activity first.
func (s *Service) ListConversations(ctx context.Context, user domainchat.UserID) ([]domainchat.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	convs, err := s.Repo.ConversationsFor(ctx, user)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastActivity().After(convs[j].LastActivity())
	})
	return convs, nil
}

// GetConversation loads a conversation the user participates in.
func (s *Service) GetConversation(ctx context.Context, user domainchat.UserID, id string) (domainchat.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return domainchat.Conversation{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domainchat.Conversation{}, domainchat.ErrConversationID
	}
	conv, err := s.Repo.Conversation(ctx, id)
	if err != nil {
		return domainchat.Conversation{}, err
	}
	if !conv.HasParticipant(user) {
		return domainchat.Conversation{}, domainchat.ErrForbidden
	}
	return conv, nil
}

// Authorize reports whether user may read and subscribe to the conversation.
func (s *Service) Authorize(ctx context.Context, user domainchat.UserID, conversationID string) error {
	_, err := s.GetConversation(ctx, user, conversationID)
	return err
}

func (s *Service) ListMessages(ctx context.Context, user domainchat.UserID, conversationID string) ([]domainchat.Message, error) {
	conv, err := s.GetConversation(ctx, user, conversationID)
	if err != nil {
		return nil, err
	}
	return s.Repo.Messages(ctx, conv.ID)
}

// SendMessage stores a message from user and publishes it to live subscribers.
// A publish failure is logged; the message is already stored.
func (s *Service) SendMessage(ctx context.Context, user domainchat.UserID, conversationID, body string) (domainchat.Message, error) {
	draft, err := domainchat.NewDraft(conversationID, user, body)
	if err != nil {
		return domainchat.Message{}, err
	}
	if _, err := s.GetConversation(ctx, user, draft.ConversationID); err != nil {
		return domainchat.Message{}, err
	}
	msg, err := s.Repo.AppendMessage(ctx, draft, s.now())
	if err != nil {
		return domainchat.Message{}, fmt.Errorf("append message: %w", err)
	}
	if s.Publisher != nil {
		if err := s.Publisher.PublishInsert(ctx, msg); err != nil && s.Logger != nil {
			s.Logger.Error("publish message insert failed", "error", err, "conversation_id", msg.ConversationID, "message_id", msg.ID)
		}
	}
	return msg, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) ensureDependencies() error {
	if s.Repo == nil {
		return errors.New("chat: repository required")
	}
	return nil
}
