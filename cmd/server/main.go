package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinicnotify/internal/app"
	"clinicnotify/internal/auth"
	"clinicnotify/internal/config"
	"clinicnotify/internal/database"
	"clinicnotify/internal/handlers"
	"clinicnotify/internal/logger"
	"clinicnotify/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	zl, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	if err := cfg.Validate(); err != nil {
		zl.Fatal("invalid configuration", zap.Error(err))
	}
	tokens, err := auth.NewTokenValidator(cfg.JWTSecret)
	if err != nil {
		zl.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.CronSecret == "" {
		zl.Warn("CRON_SECRET not set, trigger endpoints are unauthenticated")
	}

	// Initialize database
	db, err := database.Open(cfg.DSN(), zl, database.DefaultOptions())
	if err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}

	a, err := app.New(cfg, db, zl)
	if err != nil {
		zl.Fatal("failed to wire reminder pipeline", zap.Error(err))
	}

	deps := handlers.Deps{
		Scanner:          a.Scanner,
		Drainer:          a.Drainer,
		Subscriptions:    a.Subscriptions,
		Notifications:    a.Notifications,
		RemindersEnabled: cfg.RemindersEnabled,
		VAPIDPublicKey:   cfg.VAPIDPublicKey,
		Log:              zl,
	}
	if a.Push != nil {
		deps.Pusher = a.Push
	}

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(zl.Named("access")))

	// Configure trusted proxies
	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		zl.Fatal("failed to set trusted proxies", zap.Error(err))
	}

	handlers.New(deps).RegisterRoutes(router, handlers.RouteOptions{
		Tokens:             tokens,
		CronSecret:         cfg.CronSecret,
		AllowedOrigins:     cfg.AllowedOrigins(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Metrics:            a.Metrics.Handler(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if worker := a.Worker(); worker != nil {
		worker.Start(ctx)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zl.Info("server starting", zap.String("port", cfg.AppPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}
