package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-backend/internal/notification"
)

type alertsKeyResponse struct {
	VAPIDPublicKey string                   `json:"vapid_public_key"`
	Alerts         []notification.AlertKind `json:"alerts"`
}

// GetVAPIDPublicKey handles GET /api/vapid_public_key. Operator consoles need
// the key to register for expiry and capacity alerts.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "operator alerts are disabled"})
		return
	}

	c.JSON(http.StatusOK, alertsKeyResponse{
		VAPIDPublicKey: h.webpush.VAPIDPublicKey,
		Alerts:         []notification.AlertKind{notification.AlertExpiry, notification.AlertCapacity},
	})
}
