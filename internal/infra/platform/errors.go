package platform

import (
	"errors"
	"fmt"
	"net/http"

	"campustrade/internal/app/dto"
	"campustrade/internal/domain/chat"
	"campustrade/internal/infra/realtime"
)

var (
	ErrUnauthenticated = errors.New("platform: not signed in")
	ErrBadRequest      = errors.New("platform: request rejected")
	ErrUnavailable     = errors.New("platform: backend unavailable")
	ErrDisconnected    = errors.New("platform: realtime connection closed")
)

// StatusError is a non-2xx API response. It unwraps to the matching chat
// sentinel so callers can use errors.Is across the network boundary.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform: http %d", e.Status)
	}
	return fmt.Sprintf("platform: http %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case dto.CodeEmptyBody:
		return chat.ErrEmptyBody
	case dto.CodeBodyTooLong:
		return chat.ErrBodyTooLong
	case dto.CodeSelfConversation:
		return chat.ErrSelfConversation
	case dto.CodeForbidden:
		return chat.ErrForbidden
	case dto.CodeNotFound:
		return chat.ErrNotFound
	case dto.CodeUnauthenticated:
		return ErrUnauthenticated
	}
	switch {
	case e.Status == http.StatusBadRequest:
		return ErrBadRequest
	case e.Status == http.StatusUnauthorized:
		return ErrUnauthenticated
	case e.Status == http.StatusForbidden:
		return chat.ErrForbidden
	case e.Status == http.StatusNotFound:
		return chat.ErrNotFound
	case e.Status >= http.StatusInternalServerError:
		return ErrUnavailable
	default:
		return nil
	}
}

// ReplyError is a realtime request the server refused.
type ReplyError struct {
	Type   string
	Topic  string
	Reason string
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("platform: %s %s refused: %s", e.Type, e.Topic, e.Reason)
}

func (e *ReplyError) Unwrap() error {
	switch e.Reason {
	case realtime.ReplyForbidden:
		return chat.ErrForbidden
	case realtime.ReplyNotFound:
		return chat.ErrNotFound
	case realtime.ReplyUnavailable:
		return ErrUnavailable
	default:
		return nil
	}
}
