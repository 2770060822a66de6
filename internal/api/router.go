package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"mentorbuddy-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(d Deps) *gin.Engine {
	handler := NewHandler(d)

	r := gin.New()
	if d.IPHeader != "" {
		r.TrustedPlatform = d.IPHeader
	}
	r.Use(mw.Logger(handler.logger), gin.Recovery(), corsMiddleware(d.AllowedOrigins))

	limit, burst := d.RateLimit, d.RateBurst
	if limit <= 0 {
		limit = 10
	}
	if burst <= 0 {
		burst = 20
	}
	rateLimiter := mw.RateLimiter(rate.Limit(limit), burst, handler.logger)

	// Mentor catalogue responses change rarely
	ttl := d.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/mentors/:mentor_id/slots", handler.GetSlots)
		api.GET("/mentors/:mentor_id/packages", caching, handler.GetMentorPackages)
		api.GET("/mentors/:mentor_id/group-sessions", handler.GetGroupSessions)

		api.GET("/packages", handler.GetUserPackages)

		api.GET("/flows", handler.ListFlows)
		api.POST("/flows", handler.OpenFlow)
		api.GET("/flows/:flow_id", handler.GetFlow)
		api.POST("/flows/:flow_id/toggle", handler.ToggleSlot)
		api.POST("/flows/:flow_id/commit", handler.CommitFlow)
		api.POST("/flows/:flow_id/retry", handler.RetryFlow)
		api.DELETE("/flows/:flow_id", handler.CancelFlow)

		api.POST("/bookings", handler.BookSingle)
		api.GET("/bookings", handler.ListBookings)
		api.POST("/group-sessions/:session_id/book", handler.BookGroup)

		api.GET("/timers", handler.ListTimers)
		api.POST("/timers", handler.StartTimer)
		api.GET("/timers/:timer_id", handler.GetTimer)
		api.DELETE("/timers/:timer_id", handler.CancelTimer)
		api.GET("/timers/:timer_id/ws", handler.WatchTimer)

		api.GET("/calls", handler.ListCalls)
		api.GET("/calls/:call_id/recording", handler.GetRecording)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length", "X-Cache"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
