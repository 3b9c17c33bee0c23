package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parking-backend/internal/model"
)

// ListTariffs handles GET /api/tariffs.
func (h *Handler) ListTariffs(c *gin.Context) {
	tariffs, err := h.tariffs.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tariffs)
}

type upsertTariffRequest struct {
	VehicleClass   string `json:"vehicle_class" binding:"required"`
	FirstHour      *int64 `json:"first_hour" binding:"required,min=0"`
	SubsequentHour *int64 `json:"subsequent_hour" binding:"required,min=0"`
}

// UpsertTariff handles POST /api/tariffs. The last write for a class wins.
func (h *Handler) UpsertTariff(c *gin.Context) {
	var req upsertTariffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.VehicleClass) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vehicle_class must not be blank"})
		return
	}

	t := model.Tariff{
		VehicleClass:   req.VehicleClass,
		FirstHour:      *req.FirstHour,
		SubsequentHour: *req.SubsequentHour,
	}
	if err := h.tariffs.Upsert(c.Request.Context(), t); err != nil {
		respondError(c, err)
		return
	}

	saved, err := h.tariffs.Get(c.Request.Context(), req.VehicleClass)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// GetCubicleTariff handles GET /api/tariffs/cubicle/:name.
func (h *Handler) GetCubicleTariff(c *gin.Context) {
	name := strings.ToUpper(strings.TrimSpace(c.Param("name")))
	t, err := h.store.TariffForCubicle(c.Request.Context(), name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
