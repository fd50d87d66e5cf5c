package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/onboarding/onboarding-service/application/usecase"
	"github.com/onboarding/onboarding-service/infrastructure/config"
	"github.com/onboarding/onboarding-service/infrastructure/http/handler"
	"github.com/onboarding/onboarding-service/infrastructure/http/middleware"
	"github.com/onboarding/onboarding-service/infrastructure/http/router"
	"github.com/onboarding/onboarding-service/infrastructure/service/jwt"
	"github.com/onboarding/onboarding-service/infrastructure/service/logger"
	"github.com/onboarding/onboarding-service/infrastructure/service/notification"
	"github.com/onboarding/onboarding-service/infrastructure/service/ratelimit"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logger
	structuredLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "onboarding-service",
	})
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"version": "1.0.0",
		"env":     cfg.Environment,
	})

	// Initialize services
	tokenService, err := jwt.NewJWTService(cfg.Signing)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize JWT service", err, map[string]interface{}{
			"issuer":   cfg.Signing.Issuer,
			"audience": cfg.Signing.Audience,
		})
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}

	publisher, err := notification.NewKafkaPublisher(cfg.Kafka, structuredLogger)
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize notification publisher", err, map[string]interface{}{
			"bootstrap_servers": cfg.Kafka.BootstrapServers,
			"topic":             cfg.Kafka.Topic,
		})
		log.Fatalf("Failed to initialize notification publisher: %v", err)
	}
	structuredLogger.Info(ctx, "Notification publisher initialized", map[string]interface{}{
		"bootstrap_servers": cfg.Kafka.BootstrapServers,
		"topic":             cfg.Kafka.Topic,
		"max_in_flight":     cfg.Kafka.MaxInFlight,
		"max_retries":       cfg.Kafka.MaxRetries,
		"ledger":            cfg.Kafka.LedgerRedisURL != "",
	})

	rateLimitService, err := ratelimit.NewRateLimitService(ratelimit.RateLimitConfig{
		Enabled:  cfg.RateLimitEnabled,
		RedisURL: cfg.RateLimitRedisURL,
		Limit:    cfg.RateLimitRequests,
		Window:   cfg.RateLimitWindow,
	}, structuredLogger)
	if err != nil {
		// Sending still works without throttling.
		structuredLogger.Error(ctx, "Failed to initialize rate limit service", err, map[string]interface{}{
			"enabled": cfg.RateLimitEnabled,
		})
		rateLimitService = ratelimit.NewNoopRateLimitService()
	}
	defer rateLimitService.Close()

	// Initialize use cases and handlers
	emailUseCase := usecase.NewEmailNotificationUseCase(publisher, structuredLogger)

	routes := router.New(router.Handlers{
		Auth:         handler.NewAuthHandler(),
		Notification: handler.NewNotificationHandler(emailUseCase, structuredLogger),
		AuthMW:       middleware.NewAuthMiddleware(tokenService, structuredLogger),
		RateLimitMW:  middleware.NewRateLimitMiddleware(rateLimitService, structuredLogger),
	}, router.CORSConfig{
		Enabled:          cfg.CORSEnabled,
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowCredentials: cfg.CORSAllowCredentials,
	})

	// A send request may hold the connection for a whole publish.
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      routes,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15*time.Second + cfg.Kafka.PublishTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		structuredLogger.Info(ctx, "Starting server", map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			structuredLogger.Error(ctx, "Server failed to start", err, map[string]interface{}{
				"host": cfg.ServerHost,
				"port": cfg.ServerPort,
			})
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	structuredLogger.Info(ctx, "Shutting down server...", map[string]interface{}{})

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(ctx, "Server forced to shutdown", err, map[string]interface{}{})
	}

	// Requests are drained; flush what the publisher still holds.
	if err := publisher.Close(ctx); err != nil {
		structuredLogger.Error(ctx, "Notification publisher did not flush cleanly", err, map[string]interface{}{})
	}
	structuredLogger.Info(ctx, "Server exited", map[string]interface{}{})
}
