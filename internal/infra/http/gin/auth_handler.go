package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"campustrade/internal/app/dto"
	"campustrade/internal/app/services/auth"
	domainauth "campustrade/internal/domain/auth"
)

type AuthHandler struct {
	Service *auth.Service
	Logger  *slog.Logger
}

// Token issues a bearer token for a user id when dev login is enabled.
func (h AuthHandler) Token(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id"`
		Name   string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid payload", Code: dto.CodeInvalid})
		return
	}
	result, err := h.Service.IssueDevToken(c.Request.Context(), req.UserID, req.Name)
	switch {
	case errors.Is(err, auth.ErrDevLoginDisabled):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "dev login disabled", Code: dto.CodeNotFound})
		return
	case errors.Is(err, domainauth.ErrUserRequired):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "user_id is required", Code: dto.CodeInvalid})
		return
	case err != nil:
		respondChatError(c, h.Logger, err, "issue token")
		return
	}
	c.JSON(http.StatusOK, dto.TokenResponse{
		Token:     result.Token,
		UserID:    result.Claims.UserID,
		ExpiresAt: result.Claims.ExpiresAt,
	})
}

// Me echoes the authenticated caller.
func (h AuthHandler) Me(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": p.ID, "name": p.Name, "expires_at": p.ExpiresAt})
}
