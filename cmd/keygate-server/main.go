package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	internalhttp "github.com/EternisAI/keygate/internal/api/http"
	"github.com/EternisAI/keygate/internal/api/http/middleware"
	"github.com/EternisAI/keygate/internal/db"
	"github.com/EternisAI/keygate/internal/keys"
	"github.com/EternisAI/keygate/internal/metrics"
	"github.com/EternisAI/keygate/internal/sessions"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("Keygate Server", "version", AppVersion)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()

	store, err := openStore(rootCtx, config.Database)
	if err != nil {
		slog.Error("Failed to open key store", "driver", config.Database.Driver, "error", err)
		os.Exit(1)
	}
	slog.Info("Key store ready", "driver", config.Database.Driver)

	var limiter middleware.Limiter
	if rl := config.Http.RateLimit; rl.RequestsPerSecond > 0 && rl.Redis.Addr != "" {
		rdb, err := db.InitRedis(rootCtx, rl.Redis)
		if err != nil {
			slog.Error("Failed to connect rate limit store", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		limiter = middleware.NewRedisLimiter(rdb, rl.RequestsPerSecond, rl.Burst)
	}

	tracker := sessions.NewTracker(config.Sessions)
	svc := keys.NewService(store, tracker, keys.Config{
		StoreTimeout: config.Keys.StoreTimeout,
		OnlineWindow: config.Keys.OnlineWindow,
	})

	m := metrics.New()
	m.TrackSessions(tracker.Len)

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		tracker.Run(rootCtx)
	}()
	go func() {
		defer workers.Done()
		svc.RunExpiry(rootCtx, config.Keys.ExpiryInterval)
	}()

	if config.Http.AdminAPIKey == "" {
		slog.Warn("Admin API key not configured, admin endpoints are disabled")
	}

	services := &internalhttp.Services{
		Keys:         svc,
		Sessions:     tracker,
		Metrics:      m,
		Tokens:       config.Auth,
		OnlineWindow: config.Keys.OnlineWindow,
		Limiter:      limiter,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Admin-Key"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services, config.Http)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Http.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down...")

	shutdownTimeout := 10 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	stop()
	workers.Wait()

	if err := store.Close(ctx); err != nil {
		slog.Error("Key store close error", "error", err)
	}
	slog.Info("Shutdown complete")
}
