/**
 * @description
 * This is the main entry point for the buyer-service. It initializes and
 * wires together all the components of the application: configuration,
 * database connection, optional Redis rate limiter, RabbitMQ event
 * producer, repository, service, and the HTTP router. Finally, it starts
 * the HTTP server and handles graceful shutdown.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sokoyetu/buyer-service/internal/api"
	"github.com/sokoyetu/buyer-service/internal/app"
	"github.com/sokoyetu/buyer-service/internal/config"
	"github.com/sokoyetu/buyer-service/internal/store"
	"github.com/sokoyetu/buyer-service/pkg/rabbitmq"
)

func main() {
	// Load .env file if present (local development)
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Load application configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up channel to listen for OS signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Establish connection to the PostgreSQL database with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// IMPORTANT: Disable prepared statements to work with PgBouncer transaction pooling
	// Use simple protocol to avoid statement cache errors (SQLSTATE 42P05)
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Optional Redis-backed purchase rate limiter
	var limiter app.RateLimiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("unable to parse redis URL", "error", err)
			os.Exit(1)
		}
		limiter = app.NewRedisPurchaseRateLimiter(redis.NewClient(opts), "")
		logger.Info("purchase rate limiter enabled")
	}

	// RabbitMQ event producer with no-op fallback so a broker outage does
	// not block startup
	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("rabbitmq unavailable, using fallback publisher", "error", err)
		} else {
			publisher = producer
			defer producer.Close()
			logger.Info("rabbitmq producer connected")
		}
	}

	// Initialize application layers
	repository := store.NewRepository(dbpool)
	service := app.NewService(repository, publisher, limiter, logger, app.Limits{
		PurchaseRateLimit:  cfg.PurchaseRateLimit,
		PurchaseRateWindow: time.Duration(cfg.PurchaseRateWindowSeconds) * time.Second,
	})
	handler := api.NewHandler(service, logger)
	checker := api.NewAllowListChecker(cfg.SuperadminUIDList(), cfg.SuperadminEmailList())
	router := api.NewRouter(handler, logger, api.AuthConfig{
		JWKSURL:  cfg.AuthJWKSURL,
		Audience: cfg.JWTAudience,
		Issuer:   cfg.JWTIssuer,
	}, checker)

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	// Create a context with a timeout for shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Attempt to gracefully shut down the server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
