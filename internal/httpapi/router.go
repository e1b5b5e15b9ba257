package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"classroll/internal/httpmiddleware"
)

// RouterConfig carries everything the router wires together.
type RouterConfig struct {
	Handler         *Handler
	Log             zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	// SubmitRateLimitPerMin is the per-client, per-session submission limit
	// applied on top of RateLimitPerMin.
	SubmitRateLimitPerMin int
	Checks                map[string]HealthCheck
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.AccessLog(cfg.Log, "/healthz", "/metrics"))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsConfig))

	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/healthz", Health(cfg.Checks))
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	h := cfg.Handler
	v1 := r.Group("/v1")
	{
		v1.POST("/sessions", h.CreateSession)
		v1.GET("/sessions", h.ListSessions)
		v1.GET("/sessions/current", h.CurrentSession)
		v1.GET("/sessions/:id", h.GetSession)
		v1.POST("/sessions/:id/close", h.CloseSession)
		submitLimit := httpmiddleware.NewSimpleTokenBucket(cfg.SubmitRateLimitPerMin, cfg.SubmitRateLimitPerMin).
			WithKey(httpmiddleware.ByClientAndParam("id"))
		v1.POST("/sessions/:id/submissions", submitLimit.GinMiddleware(), h.Submit)
		v1.GET("/sessions/:id/report", h.SessionReport)

		v1.GET("/reports/:class_code", h.ClassReport)

		v1.POST("/roster", h.AddRosterEntry)
		v1.GET("/roster", h.Roster)
	}
	return r
}
