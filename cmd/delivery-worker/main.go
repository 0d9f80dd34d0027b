package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sungwon/messaging/internal/config"
	"github.com/sungwon/messaging/internal/delivery"
	"github.com/sungwon/messaging/internal/logger"
	"github.com/sungwon/messaging/internal/messaging"
	"github.com/sungwon/messaging/internal/render"
	"github.com/sungwon/messaging/internal/secret"
	"github.com/sungwon/messaging/internal/storage"
	"github.com/sungwon/messaging/internal/transport"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(logger.Config(cfg.Logging))
	log.Info().Msg("starting delivery worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection pool.
	db, err := storage.NewDB(ctx, cfg.Database.URL, cfg.Database.PoolMin, cfg.Database.PoolMax, cfg.Database.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	go db.SampleStats(ctx, 15*time.Second)

	box, err := secret.NewBox(cfg.Security.CredentialsKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid credentials key")
	}
	store := storage.NewStore(db, box)

	caches := messaging.NewCaches(cfg.Cache.ReferenceTTL, cfg.Cache.SSLModeTTL)
	resolver := messaging.NewResolver(store, caches, cfg.Messaging, log)
	factory := transport.NewDefaultFactory(cfg.Delivery.Sink, cfg.Delivery.SinkDir)
	renderer := &render.Renderer{
		TrackingURL:  cfg.Messaging.ReadTrackingURL,
		CodeParam:    cfg.Messaging.ReadCodeParam,
		SystemTenant: cfg.Messaging.SystemTenant,
	}

	engine := delivery.NewEngine(store, resolver, factory, renderer, delivery.Options{
		MaxRetries:  cfg.Delivery.MaxRetries,
		Concurrency: cfg.Delivery.Concurrency,
		SendTimeout: cfg.Delivery.SendTimeout,
	}, log)

	interval := cfg.Delivery.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	scheduler := delivery.NewScheduler(engine, interval, log)

	// Metrics endpoint.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	log.Info().
		Dur("interval", interval).
		Int("max_retries", cfg.Delivery.MaxRetries).
		Int("concurrency", cfg.Delivery.Concurrency).
		Str("sink", cfg.Delivery.Sink).
		Msg("delivery worker started")

	// Run blocks until a signal arrives and the running pass has finished.
	scheduler.Run(ctx)

	log.Info().Msg("shutting down delivery worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server forced to shutdown")
	}

	log.Info().Msg("delivery worker stopped")
}
