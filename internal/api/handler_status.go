package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetStatus handles GET /api/status. The optional search parameter filters by
// tag or cubicle name. Charges are live, so the response is never cached.
func (h *Handler) GetStatus(c *gin.Context) {
	views, err := h.store.Snapshot(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, views)
}
