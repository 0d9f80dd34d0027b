package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sungwon/messaging/internal/api"
	"github.com/sungwon/messaging/internal/auth"
	"github.com/sungwon/messaging/internal/bootstrap"
	"github.com/sungwon/messaging/internal/config"
	"github.com/sungwon/messaging/internal/logger"
	"github.com/sungwon/messaging/internal/messaging"
	"github.com/sungwon/messaging/internal/secret"
	"github.com/sungwon/messaging/internal/storage"
	"github.com/sungwon/messaging/internal/transport"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewFromConfig(logger.Config(cfg.Logging))
	log.Info().Msg("starting messaging API")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Connect to database
	db, err := storage.NewDB(
		ctx,
		cfg.Database.URL,
		cfg.Database.PoolMin,
		cfg.Database.PoolMax,
		cfg.Database.ConnectTimeout,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	go db.SampleStats(ctx, 15*time.Second)

	log.Info().Msg("database connection established")

	box, err := secret.NewBox(cfg.Security.CredentialsKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid credentials key")
	}
	if cfg.Security.CredentialsKey == "" {
		log.Warn().Msg("credentials key is not set; transport passwords are stored in plain text")
	}
	store := storage.NewStore(db, box)

	if cfg.Bootstrap.SeedSystemTenant {
		if err := bootstrap.SeedSystemTenant(ctx, store, cfg.Messaging, cfg.Bootstrap.SystemTransport, log); err != nil {
			log.Fatal().Err(err).Msg("failed to seed system tenant")
		}
	}

	caches := messaging.NewCaches(cfg.Cache.ReferenceTTL, cfg.Cache.SSLModeTTL)
	resolver := messaging.NewResolver(store, caches, cfg.Messaging, log)
	messenger := messaging.NewMessenger(resolver, store, cfg.Messaging.MaxSearchPageSize, log)
	factory := transport.NewDefaultFactory(cfg.Delivery.Sink, cfg.Delivery.SinkDir)
	admin := messaging.NewAdmin(resolver, store, factory, cfg.Messaging.TestEventType, cfg.Delivery.SendTimeout, log)

	// Initialize JWT service
	jwtService := auth.NewJWTService(cfg.Auth)
	if cfg.Auth.SigningKey == "" || cfg.Auth.SigningKey == "change-me-in-production-use-a-strong-secret" {
		log.Warn().Msg("JWT signing key is not set or using default value; set MESSAGING_AUTH_SIGNING_KEY in production")
	}

	// Initialize rate limiter (nil Redis client skips rate limiting)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisClient.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("test send rate limiting enabled")
	}
	limiter := auth.NewRateLimiter(redisClient, auth.RateLimitConfig{
		TestSendLimit:  cfg.Redis.TestSendLimit,
		TestSendWindow: cfg.Redis.TestSendWindow,
	})

	router := api.NewRouter(api.Services{
		Messages:  messenger,
		Admin:     admin,
		JWT:       jwtService,
		Limiter:   limiter,
		DB:        db,
		CodeParam: cfg.Messaging.ReadCodeParam,
	}, log)

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down server")

	// Graceful shutdown with 30-second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
