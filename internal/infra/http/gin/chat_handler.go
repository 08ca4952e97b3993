package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"campustrade/internal/app/dto"
	chatsvc "campustrade/internal/app/services/chat"
)

// ChatHandler exposes conversations and messages of the authenticated user.
type ChatHandler struct {
	Chat   *chatsvc.Service
	Logger *slog.Logger
}

// ListMyConversations returns the caller's conversations, most recent first.
func (h ChatHandler) ListMyConversations(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	conversations, err := h.Chat.ListConversations(c.Request.Context(), p.UserID())
	if err != nil {
		respondChatError(c, h.Logger, err, "list conversations", "user_id", p.ID)
		return
	}
	list := dto.ConversationList{Items: make([]dto.Conversation, 0, len(conversations))}
	for _, conv := range conversations {
		list.Items = append(list.Items, dto.FromConversation(conv))
	}
	c.JSON(http.StatusOK, list)
}

// CreateListingConversation gets or creates the caller's conversation with a listing's seller.
func (h ChatHandler) CreateListingConversation(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	listingID := strings.TrimSpace(c.Param("id"))
	conv, created, err := h.Chat.GetOrCreateForListing(c.Request.Context(), p.UserID(), listingID)
	if err != nil {
		respondChatError(c, h.Logger, err, "create conversation", "listing_id", listingID, "user_id", p.ID)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, dto.FromConversation(conv))
}

func (h ChatHandler) GetConversation(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	conv, err := h.Chat.GetConversation(c.Request.Context(), p.UserID(), conversationID)
	if err != nil {
		respondChatError(c, h.Logger, err, "load conversation", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.FromConversation(conv))
}

// ListMessages returns the full history, oldest first.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	messages, err := h.Chat.ListMessages(c.Request.Context(), p.UserID(), conversationID)
	if err != nil {
		respondChatError(c, h.Logger, err, "list messages", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	list := dto.ChatMessageList{Items: make([]dto.ChatMessage, 0, len(messages))}
	for _, msg := range messages {
		list.Items = append(list.Items, dto.FromMessage(msg))
	}
	c.JSON(http.StatusOK, list)
}

// SendMessage stores a message and fans it out to realtime subscribers.
func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	conversationID := c.Param("id")
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid payload", Code: dto.CodeInvalid})
		return
	}
	msg, err := h.Chat.SendMessage(c.Request.Context(), p.UserID(), conversationID, req.Text)
	if err != nil {
		respondChatError(c, h.Logger, err, "send message", "conversation_id", conversationID, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.FromMessage(msg))
}
