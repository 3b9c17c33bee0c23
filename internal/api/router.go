package api

import (
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"parking-backend/config"
	"parking-backend/internal/mw"
	"parking-backend/internal/store"
	"parking-backend/internal/tariff"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, s store.Store, tariffs tariff.Store, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.New()
	r.Use(mw.RequestLogger(), gin.Recovery(), newCORS(cfg.CORSOrigins))

	handler := NewHandler(s, tariffs, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter, mw.FlushOnWrite(cacheStore))
	{
		api.GET("/status", handler.GetStatus)

		api.POST("/billing/finalize", handler.FinalizeBilling)
		api.POST("/records/tag", handler.EditTag)
		api.POST("/reservations/cancel", handler.CancelReservation)

		api.GET("/tariffs", caching, handler.ListTariffs)
		api.POST("/tariffs", handler.UpsertTariff)
		api.GET("/tariffs/cubicle/:name", caching, handler.GetCubicleTariff)

		api.GET("/report", caching, handler.GetReport)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func newCORS(origins []string) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Origin", "Content-Type", mw.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	return cors.New(corsCfg)
}
