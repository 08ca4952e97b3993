package dto

import "time"

type Activity struct {
	UserID       string     `json:"user_id"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
	Label        string     `json:"label"`
}

type Profile struct {
	UserID       string     `json:"user_id"`
	DisplayName  string     `json:"display_name"`
	AvatarURL    string     `json:"avatar_url,omitempty"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse carries a human message and, for domain errors, a stable code
// clients can map back to the error they represent.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Error codes.
const (
	CodeInvalid          = "invalid"
	CodeEmptyBody        = "empty_body"
	CodeBodyTooLong      = "body_too_long"
	CodeSelfConversation = "self_conversation"
	CodeUnauthenticated  = "unauthenticated"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal"
)
