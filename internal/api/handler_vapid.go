package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetVAPIDPublicKey returns the VAPID public key operator browsers subscribe with.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "operator push alerts are not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"public_key":    h.webpush.VAPIDPublicKey,
		"severities":    []string{"info", "warning", "danger"},
		"default_level": "warning",
	})
}
