package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"gate-access-backend/config"
	"gate-access-backend/internal/metrics"
	"gate-access-backend/internal/mw"
)

// limiterIdle is how long a quiet client keeps its rate limit buckets.
const limiterIdle = 10 * time.Minute

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, handler *Handler) *gin.Engine {
	registerValidators()
	r := gin.Default()

	rateLimiter := mw.RateLimiter(mw.NewClientLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, limiterIdle))
	ticketLimiter := mw.RateLimiter(mw.NewClientLimiter(rate.Limit(cfg.TicketRateLimitPerMin/60), cfg.TicketRateLimitBurst, limiterIdle))

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	r.GET("/healthz", handler.GetHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/gate/recognitions", ticketLimiter, handler.PostRecognition)
		api.POST("/gate/second-factor", ticketLimiter, handler.PostSecondFactor)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	admin := api.Group("/admin")
	admin.Use(mw.AdminToken(cfg.AdminToken))
	{
		admin.GET("/station-lock", handler.GetStationLock)
		admin.POST("/station-lock/unlock", handler.PostUnlock)
		admin.POST("/residents/:id/backup-code/reset", handler.PostResetBackupCode)
		admin.PUT("/residents/:id/face-reference", handler.PutFaceReference)
		admin.GET("/reports/daily", caching, handler.GetDailyReport)
		admin.GET("/audit-events", handler.GetAuditEvents)
		admin.GET("/guest-sessions", handler.GetGuestSessions)
		admin.GET("/active-vehicles", handler.GetActiveVehicles)

		admin.GET("/subscriptions", handler.GetSubscription)
		admin.PUT("/subscriptions", handler.PutSubscription)
		admin.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	return r
}
