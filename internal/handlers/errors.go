package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"promptfinder/internal/service"
	"promptfinder/internal/storage"
)

// respondError maps service errors to status codes. Unknown errors are logged and hidden.
func (h HandlerSet) respondError(c *gin.Context, err error) {
	var (
		inputErr    *service.InputError
		rejectedErr *service.RejectedError
		upstreamErr *storage.UpstreamError
	)

	switch {
	case errors.As(err, &inputErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": inputErr.Message})
	case errors.As(err, &rejectedErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      rejectedErr.Error(),
			"categories": rejectedErr.Categories,
			"severity":   rejectedErr.Severity,
		})
	case errors.Is(err, service.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Weekly upload limit reached. Try again later."})
	case errors.Is(err, service.ErrSessionExpired):
		c.JSON(http.StatusGone, gin.H{"error": "Upload session expired. Please upload the file again."})
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No active upload session."})
	case errors.Is(err, service.ErrAlreadyExtended):
		c.JSON(http.StatusConflict, gin.H{"error": "Upload session was already extended."})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found."})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have permission to do that."})
	case errors.Is(err, service.ErrModerationUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Content moderation is temporarily unavailable. Please try again shortly."})
	case errors.Is(err, service.ErrTranscoderUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Video processing is temporarily unavailable. Please try again shortly."})
	case errors.As(err, &upstreamErr):
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("storage upstream error")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Storage service error. Please try again."})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error."})
	}
	_ = c.Error(err)
}
