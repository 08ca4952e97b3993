package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"campustrade/internal/app/dto"
	profilesvc "campustrade/internal/app/services/profile"
)

// UserHandler serves last-active stamps and profiles.
type UserHandler struct {
	Profiles *profilesvc.Service
	Logger   *slog.Logger
}

// TouchActivity marks the caller as active now.
func (h UserHandler) TouchActivity(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	if err := h.Profiles.Touch(c.Request.Context(), p.ID); err != nil {
		respondChatError(c, h.Logger, err, "touch activity", "user_id", p.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h UserHandler) Activity(c *gin.Context) {
	if _, ok := requireAuth(c); !ok {
		return
	}
	userID := strings.TrimSpace(c.Param("id"))
	view, err := h.Profiles.LastActive(c.Request.Context(), userID)
	if err != nil {
		respondChatError(c, h.Logger, err, "read activity", "target_id", userID)
		return
	}
	out := dto.Activity{UserID: userID, Label: view.Label}
	if !view.LastActiveAt.IsZero() {
		at := view.LastActiveAt
		out.LastActiveAt = &at
	}
	c.JSON(http.StatusOK, out)
}

func (h UserHandler) Profile(c *gin.Context) {
	if _, ok := requireAuth(c); !ok {
		return
	}
	userID := strings.TrimSpace(c.Param("id"))
	prof, err := h.Profiles.Profile(c.Request.Context(), userID)
	if err != nil {
		respondChatError(c, h.Logger, err, "read profile", "target_id", userID)
		return
	}
	out := dto.Profile{UserID: prof.UserID, DisplayName: prof.Display(), AvatarURL: prof.AvatarURL}
	if !prof.LastActiveAt.IsZero() {
		at := prof.LastActiveAt
		out.LastActiveAt = &at
	}
	c.JSON(http.StatusOK, out)
}

// UploadAvatar accepts a multipart "file" field holding an image.
func (h UserHandler) UploadAvatar(c *gin.Context) {
	p, ok := requireAuth(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, profilesvc.MaxAvatarBytes+64<<10)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondChatError(c, h.Logger, profilesvc.ErrAvatarTooLarge, "upload avatar", "user_id", p.ID)
			return
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "file is required", Code: dto.CodeInvalid})
		return
	}
	file, err := header.Open()
	if err != nil {
		respondChatError(c, h.Logger, err, "open avatar", "user_id", p.ID)
		return
	}
	defer file.Close()

	url, err := h.Profiles.UploadAvatar(c.Request.Context(), p.ID, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		respondChatError(c, h.Logger, err, "upload avatar", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatar_url": url})
}
