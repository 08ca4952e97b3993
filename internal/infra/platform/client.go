// Package platform talks to the campustrade server: REST calls through resty
// and the realtime websocket through gorilla. Together they implement the
// ports chatsync, liveness and inbox consume.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"

	"campustrade/internal/app/dto"
	"campustrade/internal/domain/chat"
)

const defaultTimeout = 10 * time.Second

// Client is the REST half of the platform. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *resty.Client
	logger  *slog.Logger

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	hc := resty.New().
		SetBaseURL(baseURL+"/api/v1").
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	return &Client{baseURL: baseURL, http: hc, logger: logger}
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = strings.TrimSpace(token)
	c.mu.Unlock()
}

// Login obtains a dev token for userID and uses it for later calls.
func (c *Client) Login(ctx context.Context, userID, name string) (dto.TokenResponse, error) {
	var out dto.TokenResponse
	body := map[string]string{"user_id": userID, "name": name}
	if err := c.do(ctx, http.MethodPost, "/auth/token", body, &out); err != nil {
		return dto.TokenResponse{}, err
	}
	c.SetToken(out.Token)
	return out, nil
}

func (c *Client) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	var out dto.ConversationList
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, err
	}
	convs := make([]chat.Conversation, 0, len(out.Items))
	for _, item := range out.Items {
		convs = append(convs, item.Domain())
	}
	return convs, nil
}

// OpenListingConversation returns the caller's conversation with a listing's seller.
func (c *Client) OpenListingConversation(ctx context.Context, listingID string) (chat.Conversation, error) {
	var out dto.Conversation
	if err := c.do(ctx, http.MethodPost, "/listings/"+url.PathEscape(listingID)+"/conversation", nil, &out); err != nil {
		return chat.Conversation{}, err
	}
	return out.Domain(), nil
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	var out dto.Conversation
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID), nil, &out); err != nil {
		return chat.Conversation{}, err
	}
	return out.Domain(), nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var out dto.ChatMessageList
	if err := c.do(ctx, http.MethodGet, conversationPath(conversationID)+"/messages", nil, &out); err != nil {
		return nil, err
	}
	msgs := make([]chat.Message, 0, len(out.Items))
	for _, item := range out.Items {
		msgs = append(msgs, item.Domain())
	}
	return msgs, nil
}

// InsertMessage posts the draft body; the server takes the sender from the token.
func (c *Client) InsertMessage(ctx context.Context, draft chat.Draft) (chat.Message, error) {
	var out dto.ChatMessage
	body := map[string]string{"text": draft.Body}
	if err := c.do(ctx, http.MethodPost, conversationPath(draft.ConversationID)+"/messages", body, &out); err != nil {
		return chat.Message{}, err
	}
	return out.Domain(), nil
}

func (c *Client) TouchActivity(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/me/activity", nil, nil)
}

func (c *Client) LastActive(ctx context.Context, userID chat.UserID) (time.Time, error) {
	var out dto.Activity
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(string(userID))+"/activity", nil, &out); err != nil {
		return time.Time{}, err
	}
	if out.LastActiveAt == nil {
		return time.Time{}, nil
	}
	return out.LastActiveAt.UTC(), nil
}

func (c *Client) Profile(ctx context.Context, userID chat.UserID) (dto.Profile, error) {
	var out dto.Profile
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(string(userID))+"/profile", nil, &out); err != nil {
		return dto.Profile{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var apiErr dto.ErrorResponse
	req := c.http.R().SetContext(ctx).SetError(&apiErr)
	if token := c.Token(); token != "" {
		req.SetAuthToken(token)
	}
	if body != nil {
		req.SetBody(body)
	}
	if out != nil {
		req.SetResult(out)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("platform: %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		serr := &StatusError{Status: resp.StatusCode(), Code: apiErr.Code, Message: apiErr.Error}
		if c.logger != nil && resp.StatusCode() >= http.StatusInternalServerError {
			c.logger.Warn("platform request failed", "method", method, "path", path, "status", resp.StatusCode())
		}
		return serr
	}
	return nil
}

func conversationPath(id string) string {
	return "/conversations/" + url.PathEscape(strings.TrimSpace(id))
}
