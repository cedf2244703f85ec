package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"gate-access-backend/internal/evidence"
	"gate-access-backend/internal/gate"
	"gate-access-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	engine  *gate.Engine
	store   store.Store
	webpush *webpush.Options
	log     *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(e *gate.Engine, s store.Store, webpushOptions *webpush.Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:  e,
		store:   s,
		webpush: webpushOptions,
		log:     logger.With("component", "api"),
	}
}

// fail maps engine errors to HTTP responses.
func (h *Handler) fail(c *gin.Context, err error) {
	if ie, ok := gate.IsInputError(err); ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ie.Message, "code": ie.Code})
		return
	}
	switch {
	case errors.Is(err, evidence.ErrInvalidImage):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "INVALID_IMAGE"})
	case errors.Is(err, gate.ErrClassificationUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "plate directory unavailable, retry", "retryable": true})
	case errors.Is(err, gate.ErrFaceEncoderUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, gate.ErrResidentNotFound), errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
