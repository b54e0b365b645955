package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sungwon/notification-pipeline/internal/app"
	"github.com/sungwon/notification-pipeline/internal/config"
	"github.com/sungwon/notification-pipeline/internal/logger"
	"github.com/sungwon/notification-pipeline/internal/queue"
)

func main() {
	configDir := flag.String("config", "config", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.Logging.Logger())
	log.Info().Msg("starting notification worker")

	ctx := context.Background()

	pipeline, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build pipeline")
	}
	defer pipeline.Close()

	source, err := queue.NewSource(ctx, cfg.Queue, pipeline.Collector, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue source")
	}

	pipeline.Health.Start()
	defer pipeline.Health.Stop()

	var srv *http.Server
	if cfg.HTTP.Enabled {
		srv = &http.Server{
			Addr:         cfg.HTTP.Addr,
			Handler:      pipeline.Router(log),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}
		go func() {
			log.Info().Str("addr", srv.Addr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatal().Err(err).Msg("http server failed")
			}
		}()
	}

	poller := queue.NewPoller(source, pipeline.Processor, cfg.Queue, log)
	if err := poller.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start poller")
	}
	log.Info().
		Str("queue_type", cfg.Queue.Type).
		Int("workers", cfg.Queue.Workers).
		Int("max_receive_count", cfg.Queue.MaxReceiveCount).
		Msg("notification worker started")

	// Wait for interrupt signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down notification worker")

	shutdownTimeout := cfg.Queue.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := poller.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("poller did not stop cleanly")
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http server shutdown failed")
		}
	}

	h := pipeline.Collector.Health()
	log.Info().
		Str("status", h.Status).
		Int64("processed", h.ProcessedMessages).
		Int64("failed", h.FailedMessages).
		Msg("notification worker stopped")
}
