package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// GetReport handles GET /api/report?from=YYYY-MM-DD&to=YYYY-MM-DD. Both bounds
// are optional and inclusive; dates are UTC calendar days.
func (h *Handler) GetReport(c *gin.Context) {
	from, ok := dateParam(c, "from")
	if !ok {
		return
	}
	to, ok := dateParam(c, "to")
	if !ok {
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "'to' must not be before 'from'"})
		return
	}

	report, err := h.store.Report(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func dateParam(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.ParseInLocation(dateLayout, raw, time.UTC)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid '" + key + "' date, use YYYY-MM-DD"})
		return nil, false
	}
	return &t, true
}
