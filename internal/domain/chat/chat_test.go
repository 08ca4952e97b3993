package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDraft(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{name: "trims", body: "  hi there \n", want: "hi there"},
		{name: "whitespace only", body: "   ", wantErr: ErrEmptyBody},
		{name: "empty", body: "", wantErr: ErrEmptyBody},
		{name: "too long", body: strings.Repeat("a", MaxBodyRunes+1), wantErr: ErrBodyTooLong},
		{name: "limit", body: strings.Repeat("é", MaxBodyRunes), want: strings.Repeat("é", MaxBodyRunes)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			draft, err := NewDraft("c1", "u1", tt.body)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, draft.Body)
			assert.Equal(t, "c1", draft.ConversationID)
		})
	}
}

func TestNewDraft_RequiresIDs(t *testing.T) {
	_, err := NewDraft(" ", "u1", "hi")
	assert.ErrorIs(t, err, ErrConversationID)

	_, err = NewDraft("c1", "", "hi")
	assert.ErrorIs(t, err, ErrSenderRequired)
}

func TestMessage_Before(t *testing.T) {
	t1 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := Message{ID: "a", CreatedAt: t1}
	b := Message{ID: "b", CreatedAt: t1}
	c := Message{ID: "0", CreatedAt: t1.Add(time.Second)}

	assert.True(t, a.Before(b), "same timestamp falls back to id")
	assert.False(t, b.Before(a))
	assert.True(t, b.Before(c), "earlier timestamp wins over id")
	assert.False(t, a.Before(a))
}

func TestConversation_Participants(t *testing.T) {
	conv := Conversation{BuyerID: "buyer", SellerID: "seller"}

	assert.True(t, conv.HasParticipant("buyer"))
	assert.True(t, conv.HasParticipant("seller"))
	assert.False(t, conv.HasParticipant("other"))
	assert.False(t, conv.HasParticipant(""))

	assert.Equal(t, UserID("seller"), conv.Peer("buyer"))
	assert.Equal(t, UserID("buyer"), conv.Peer("seller"))
	assert.Equal(t, UserID(""), conv.Peer("other"))
}

func TestNewConversationParams_Validate(t *testing.T) {
	assert.NoError(t, NewConversationParams{ListingID: "l1", BuyerID: "b", SellerID: "s"}.Validate())
	assert.ErrorIs(t, NewConversationParams{BuyerID: "b", SellerID: "s"}.Validate(), ErrListingRequired)
	assert.ErrorIs(t, NewConversationParams{ListingID: "l1", BuyerID: "b"}.Validate(), ErrParticipants)
	assert.ErrorIs(t, NewConversationParams{ListingID: "l1", BuyerID: "b", SellerID: "b"}.Validate(), ErrSelfConversation)
}

func TestConversation_LastActivity(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	conv := Conversation{CreatedAt: created}
	assert.Equal(t, created, conv.LastActivity())

	conv.LastMessageAt = created.Add(time.Hour)
	assert.Equal(t, created.Add(time.Hour), conv.LastActivity())
}
