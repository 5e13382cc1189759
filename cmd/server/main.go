// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aetflow/aet-backend/internal/cache"
	"github.com/aetflow/aet-backend/internal/config"
	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/database"
	"github.com/aetflow/aet-backend/internal/i18n"
	"github.com/aetflow/aet-backend/internal/metrics"
	"github.com/aetflow/aet-backend/internal/notifier"
	"github.com/aetflow/aet-backend/internal/repository"
	"github.com/aetflow/aet-backend/internal/router"
	"github.com/aetflow/aet-backend/internal/services"
	"github.com/aetflow/aet-backend/internal/websocket"
)

func setupLogger(cfg *config.Config) *logrus.Entry {
	logger := logrus.StandardLogger()
	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logrus.NewEntry(logger).WithField("environment", cfg.Environment)
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	log := setupLogger(cfg)

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	// Initialize i18n
	if err := i18n.Initialize(cfg.I18n.DefaultLocale); err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("aet", registry)

	// Change notifications
	n := notifier.New(
		notifier.WithBufferSize(cfg.WebSocket.BufferSize),
		notifier.WithLogger(log),
		notifier.WithMetrics(m),
	)
	hub := websocket.NewHub(log, m)
	hub.Start()
	hub.Subscribe(n)

	// Issued license lookups, optionally through Redis
	var repo conflict.Repository = repository.NewIssuedLicenseRepository(db)
	var redisClient *redis.Client
	var invalidator services.CandidateInvalidator
	if cfg.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err = cache.Connect(ctx, cfg.Redis.URL)
		cancel()
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, candidate cache disabled")
		} else {
			candidates := cache.NewCandidateCache(redisClient, cfg.Redis.TTL, log)
			candidates.Subscribe(n)
			invalidator = candidates
			repo = repository.NewCachedIssuedLicenseRepository(repo, candidates, log, m)
			log.WithField("ttl", cfg.Redis.TTL).Info("Candidate cache enabled")
		}
	}

	resolver := conflict.NewResolver(repo,
		conflict.WithLogger(log.WithField("component", "conflict.resolver")),
		conflict.WithMetrics(m),
		conflict.WithConcurrency(cfg.Policy.MaxConcurrency),
	)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize router
	r, err := router.Initialize(db, cfg, router.Dependencies{
		Resolver: resolver,
		Notifier: n,
		Hub:      hub,
		Gatherer: registry,
		Logger:   log,

		Invalidator: invalidator,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize router")
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.WithFields(logrus.Fields{
			"port":     cfg.Server.Port,
			"strategy": cfg.Policy.Strategy,
			"window":   cfg.Policy.RenewalWindowDays,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	// Create a deadline for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown server
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	n.Close()
	hub.Stop()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Warn("Error closing Redis client")
		}
	}

	log.Info("Server exited")
}
