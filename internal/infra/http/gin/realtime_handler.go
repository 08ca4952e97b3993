package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"campustrade/internal/app/dto"
)

// RealtimeServer runs an upgraded websocket for an authenticated user.
type RealtimeServer interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
}

// RealtimeHandler authenticates the upgrade request. Browsers cannot set
// headers on websocket requests, so the token may also come as ?token=.
type RealtimeHandler struct {
	Tokens  TokenResolver
	Gateway RealtimeServer
	Logger  *slog.Logger
}

func (h RealtimeHandler) Connect(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = extractBearerToken(c.GetHeader("Authorization"))
	}
	claims, err := h.Tokens.ResolveToken(c.Request.Context(), token)
	if err != nil {
		if !isTokenError(err) && h.Logger != nil {
			h.Logger.Error("realtime token check failed", "error", err)
		}
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "auth required", Code: dto.CodeUnauthenticated})
		return
	}
	if err := h.Gateway.Serve(c.Writer, c.Request, claims.UserID); err != nil && h.Logger != nil {
		h.Logger.Warn("realtime upgrade failed", "user_id", claims.UserID, "error", err)
	}
}
