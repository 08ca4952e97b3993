package auth

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrTokenRequired = errors.New("auth: token is required")
	ErrTokenInvalid  = errors.New("auth: token is invalid")
	ErrTokenExpired  = errors.New("auth: token expired")
	ErrUserRequired  = errors.New("auth: user is required")
	ErrTTLInvalid    = errors.New("auth: ttl must be positive")
)

// Claims is what a verified bearer token says about its holder.
type Claims struct {
	UserID    string
	Name      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type IssueParams struct {
	UserID string
	Name   string
	TTL    time.Duration
	Now    time.Time
}

func NewClaims(params IssueParams) (Claims, error) {
	userID := strings.TrimSpace(params.UserID)
	if userID == "" {
		return Claims{}, ErrUserRequired
	}
	if params.TTL <= 0 {
		return Claims{}, ErrTTLInvalid
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return Claims{
		UserID:    userID,
		Name:      strings.TrimSpace(params.Name),
		IssuedAt:  now,
		ExpiresAt: now.Add(params.TTL),
	}, nil
}

func (c Claims) Expired(at time.Time) bool {
	if at.IsZero() {
		at = time.Now()
	}
	return !c.ExpiresAt.After(at.UTC())
}
