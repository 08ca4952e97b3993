package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"campustrade/internal/app/dto"
	domainauth "campustrade/internal/domain/auth"
	domainchat "campustrade/internal/domain/chat"
	"campustrade/internal/infra/obs"
)

const principalContextKey = "campustrade.principal"

type principal struct {
	ID        string
	Name      string
	Token     string
	ExpiresAt time.Time
}

func (p principal) UserID() domainchat.UserID { return domainchat.UserID(p.ID) }

// TokenResolver verifies a bearer token.
type TokenResolver interface {
	ResolveToken(ctx context.Context, token string) (domainauth.Claims, error)
}

// AuthMiddleware attaches the caller to the request when a valid bearer
// token is present. Routes decide themselves whether a caller is required.
type AuthMiddleware struct {
	Tokens TokenResolver
	Logger *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Tokens == nil {
		c.Next()
		return
	}
	claims, err := m.Tokens.ResolveToken(c.Request.Context(), token)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
		c.Next()
		return
	}
	setPrincipal(c, principal{
		ID:        claims.UserID,
		Name:      claims.Name,
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
	})
	c.Next()
}

func setPrincipal(c *gin.Context, p principal) {
	c.Set(principalContextKey, p)
	c.Set(obs.UserIDKey, p.ID)
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requireAuth(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "auth required", Code: dto.CodeUnauthenticated})
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

// isTokenError reports whether err means the presented token is unusable.
func isTokenError(err error) bool {
	return errors.Is(err, domainauth.ErrTokenRequired) ||
		errors.Is(err, domainauth.ErrTokenInvalid) ||
		errors.Is(err, domainauth.ErrTokenExpired)
}
