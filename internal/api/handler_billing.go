package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type finalizeRequest struct {
	RecordID int64 `json:"record_id" binding:"required,gt=0"`
}

type settlementResponse struct {
	RecordID     int64     `json:"record_id"`
	Cubicle      string    `json:"cubicle"`
	Tag          string    `json:"tag"`
	VehicleClass string    `json:"vehicle_class"`
	Minutes      int64     `json:"minutes"`
	Amount       int64     `json:"amount"`
	ExitAt       time.Time `json:"exit_at"`
}

// FinalizeBilling handles POST /api/billing/finalize.
func (h *Handler) FinalizeBilling(c *gin.Context) {
	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.store.FinalizeBilling(c.Request.Context(), req.RecordID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settlementResponse{
		RecordID:     s.RecordID,
		Cubicle:      s.CubicleName,
		Tag:          s.Tag,
		VehicleClass: s.VehicleClass,
		Minutes:      s.Minutes,
		Amount:       s.Amount,
		ExitAt:       s.ExitAt,
	})
}

type editTagRequest struct {
	RecordID int64  `json:"record_id" binding:"required,gt=0"`
	Tag      string `json:"tag" binding:"required,max=64"`
}

// EditTag handles POST /api/records/tag.
func (h *Handler) EditTag(c *gin.Context) {
	var req editTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tag := strings.ToUpper(strings.TrimSpace(req.Tag))
	if tag == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tag must not be blank"})
		return
	}

	if err := h.store.EditTag(c.Request.Context(), req.RecordID, tag); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record_id": req.RecordID, "tag": tag})
}

type cancelRequest struct {
	Cubicle string `json:"cubicle" binding:"required,max=32"`
}

// CancelReservation handles POST /api/reservations/cancel.
func (h *Handler) CancelReservation(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.store.CancelReservation(c.Request.Context(), strings.ToUpper(strings.TrimSpace(req.Cubicle)))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cubicle": res.CubicleName, "record_id": res.RecordID, "tag": res.Tag})
}
