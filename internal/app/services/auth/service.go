package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	domainauth "campustrade/internal/domain/auth"
)

var ErrDevLoginDisabled = errors.New("auth: dev login disabled")

type TokenCodec interface {
	Sign(claims domainauth.Claims) (string, error)
	Verify(token string) (domainauth.Claims, error)
}

// NameRecorder keeps the display name a user signed in with.
type NameRecorder interface {
	EnsureName(ctx context.Context, userID, name string) error
}

// Service issues and resolves bearer tokens. Identity itself is established
// elsewhere; DevLogin stands in for that provider in local setups.
type Service struct {
	Tokens     TokenCodec
	Names      NameRecorder
	SessionTTL time.Duration
	DevLogin   bool
	Logger     *slog.Logger
}

type IssueResult struct {
	Token  string
	Claims domainauth.Claims
}

func (s *Service) IssueDevToken(ctx context.Context, userID, name string) (*IssueResult, error) {
	if !s.DevLogin {
		return nil, ErrDevLoginDisabled
	}
	if s.Tokens == nil {
		return nil, errors.New("auth: token codec required")
	}
	claims, err := domainauth.NewClaims(domainauth.IssueParams{
		UserID: userID,
		Name:   name,
		TTL:    s.sessionTTL(),
		Now:    time.Now(),
	})
	if err != nil {
		return nil, err
	}
	token, err := s.Tokens.Sign(claims)
	if err != nil {
		return nil, err
	}
	if s.Names != nil {
		if err := s.Names.EnsureName(ctx, claims.UserID, claims.Name); err != nil && s.Logger != nil {
			s.Logger.Warn("profile name not recorded", "user_id", claims.UserID, "error", err)
		}
	}
	if s.Logger != nil {
		s.Logger.Info("dev token issued", "user_id", claims.UserID)
	}
	return &IssueResult{Token: token, Claims: claims}, nil
}

func (s *Service) ResolveToken(ctx context.Context, token string) (domainauth.Claims, error) {
	if s.Tokens == nil {
		return domainauth.Claims{}, errors.New("auth: token codec required")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return domainauth.Claims{}, domainauth.ErrTokenRequired
	}
	return s.Tokens.Verify(token)
}

func (s *Service) sessionTTL() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return 24 * time.Hour
}
