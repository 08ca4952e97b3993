package ginserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"campustrade/internal/app/dto"
	profilesvc "campustrade/internal/app/services/profile"
	domainactivity "campustrade/internal/domain/activity"
	domainchat "campustrade/internal/domain/chat"
	domainlisting "campustrade/internal/domain/listing"
	domainprofile "campustrade/internal/domain/profile"
)

// respondChatError maps domain errors to HTTP statuses in one place.
// Unexpected errors are logged and reported without detail.
func respondChatError(c *gin.Context, logger *slog.Logger, err error, action string, attrs ...any) {
	status, body := classify(err)
	if status >= http.StatusInternalServerError && logger != nil {
		logger.Error("request failed", append([]any{"action", action, "error", err}, attrs...)...)
	}
	_ = c.Error(err)
	c.JSON(status, body)
}

func classify(err error) (int, dto.ErrorResponse) {
	switch {
	case errors.Is(err, domainchat.ErrEmptyBody):
		return http.StatusBadRequest, dto.ErrorResponse{Error: "text is required", Code: dto.CodeEmptyBody}
	case errors.Is(err, domainchat.ErrBodyTooLong):
		return http.StatusBadRequest, dto.ErrorResponse{Error: "text is too long", Code: dto.CodeBodyTooLong}
	case errors.Is(err, domainchat.ErrSelfConversation):
		return http.StatusBadRequest, dto.ErrorResponse{Error: "cannot start chat with yourself", Code: dto.CodeSelfConversation}
	case errors.Is(err, domainchat.ErrListingRequired),
		errors.Is(err, domainchat.ErrParticipants),
		errors.Is(err, domainchat.ErrConversationID),
		errors.Is(err, domainchat.ErrSenderRequired),
		errors.Is(err, domainprofile.ErrUserRequired),
		errors.Is(err, domainactivity.ErrUserRequired),
		errors.Is(err, profilesvc.ErrAvatarType):
		return http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: dto.CodeInvalid}
	case errors.Is(err, profilesvc.ErrAvatarTooLarge):
		return http.StatusRequestEntityTooLarge, dto.ErrorResponse{Error: err.Error(), Code: dto.CodeInvalid}
	case errors.Is(err, domainchat.ErrForbidden):
		return http.StatusForbidden, dto.ErrorResponse{Error: "not a chat participant", Code: dto.CodeForbidden}
	case errors.Is(err, domainchat.ErrNotFound):
		return http.StatusNotFound, dto.ErrorResponse{Error: "conversation not found", Code: dto.CodeNotFound}
	case errors.Is(err, domainlisting.ErrNotFound):
		return http.StatusNotFound, dto.ErrorResponse{Error: "listing not found", Code: dto.CodeNotFound}
	case errors.Is(err, domainprofile.ErrNotFound):
		return http.StatusNotFound, dto.ErrorResponse{Error: "profile not found", Code: dto.CodeNotFound}
	case errors.Is(err, profilesvc.ErrAvatarsDisabled):
		return http.StatusServiceUnavailable, dto.ErrorResponse{Error: "avatar upload unavailable", Code: dto.CodeUnavailable}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, dto.ErrorResponse{Error: "backend unavailable", Code: dto.CodeUnavailable}
	default:
		return http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error", Code: dto.CodeInternal}
	}
}
