package http

import (
	"context"
	"time"

	"github.com/EternisAI/keygate/internal/api/http/handler"
	"github.com/EternisAI/keygate/internal/api/http/middleware"
	"github.com/EternisAI/keygate/internal/auth"
	"github.com/EternisAI/keygate/internal/keys"
	"github.com/EternisAI/keygate/internal/metrics"
	"github.com/EternisAI/keygate/internal/sessions"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
)

const (
	readinessTimeout    = 2 * time.Second
	maxGoroutines       = 10000
	defaultOnlineWindow = 2 * time.Minute
)

type Services struct {
	Keys         *keys.Service
	Sessions     *sessions.Tracker
	Metrics      *metrics.Metrics
	Tokens       auth.Config
	OnlineWindow time.Duration

	// Limiter overrides the in-process per-IP limiter of public routes.
	Limiter middleware.Limiter
}

func SetupRoute(engine *gin.Engine, srvs *Services, cfg Config) {
	engine.Use(middleware.RequestLogger())
	if srvs.Metrics != nil {
		engine.Use(srvs.Metrics.Middleware())
		engine.GET("/metrics", gin.WrapH(srvs.Metrics.Handler()))
	}

	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = middleware.DefaultBodyLimit
	}
	engine.Use(middleware.BodySizeLimit(bodyLimit))

	onlineWindow := srvs.OnlineWindow
	if onlineWindow <= 0 {
		onlineWindow = defaultOnlineWindow
	}

	healthHandler := handler.NewHealthHandler(srvs.Keys)
	engine.GET("/health", healthHandler.Check)
	engine.GET("/api/health", healthHandler.Check)

	probes := healthcheck.NewHandler()
	probes.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	probes.AddReadinessCheck("key-store", healthcheck.Timeout(func() error {
		return srvs.Keys.Ping(context.Background())
	}, readinessTimeout))
	engine.GET("/live", gin.WrapF(probes.LiveEndpoint))
	engine.GET("/ready", gin.WrapF(probes.ReadyEndpoint))

	keyHandler := handler.NewKeyHandler(srvs.Keys, srvs.Tokens, srvs.Metrics, onlineWindow)
	public := engine.Group("/api/keys")
	if cfg.RateLimit.RequestsPerSecond > 0 {
		var limiter middleware.Limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		if srvs.Limiter != nil {
			limiter = srvs.Limiter
		}
		public.Use(middleware.RateLimit(limiter, func(route string) {
			if srvs.Metrics != nil {
				srvs.Metrics.RateLimitBlocks.WithLabelValues(route).Inc()
			}
		}))
	}
	public.POST("/validate", keyHandler.Validate)
	public.POST("/check-usage", keyHandler.CheckUsage)
	public.POST("/validate-and-register", keyHandler.ValidateAndRegister)
	public.POST("/heartbeat", middleware.OptionalSessionToken(srvs.Tokens), keyHandler.Heartbeat)

	adminHandler := handler.NewAdminHandler(srvs.Keys, srvs.Metrics, onlineWindow)
	admin := engine.Group("/api/admin", middleware.APIKeyAuth(cfg.AdminAPIKey))
	admin.POST("/keys", adminHandler.CreateKey)
	admin.GET("/keys", adminHandler.ListKeys)
	admin.GET("/keys/:key", adminHandler.GetKey)
	admin.PUT("/keys/:key", adminHandler.UpdateKey)
	admin.DELETE("/keys/:key", adminHandler.DeleteKey)
	admin.POST("/keys/:key/extend", adminHandler.ExtendKey)
	admin.PUT("/keys/:key/extend", adminHandler.ExtendKey)
	admin.GET("/stats", adminHandler.Stats)
	admin.GET("/online", adminHandler.Online)
	admin.POST("/cleanup", adminHandler.Cleanup)

	if srvs.Sessions != nil {
		sessionHandler := handler.NewSessionHandler(srvs.Sessions)
		admin.GET("/sessions/active", sessionHandler.ListActive)
	}
}
