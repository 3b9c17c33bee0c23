package api

import (
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"parking-backend/internal/store"
	"parking-backend/internal/tariff"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store   store.Store
	tariffs tariff.Store
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, tariffs tariff.Store, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		store:   s,
		tariffs: tariffs,
		webpush: webpushOptions,
	}
}

// respondError maps ledger outcomes to client errors. Anything else is a 500
// whose cause stays in the log.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"
	switch {
	case errors.IsAny(err, store.ErrRecordNotActive, store.ErrRecordNotFound,
		store.ErrNoActiveAssignment, store.ErrCubicleNotFound, tariff.ErrNotFound):
		status = http.StatusNotFound
		msg = err.Error()
	case errors.Is(err, store.ErrNoCapacity):
		status = http.StatusConflict
		msg = err.Error()
	case errors.Is(err, store.ErrStoreUnavailable):
		msg = "store unavailable"
	}

	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
