package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ai-labc/cropai/internal/adapter/backend"
	"github.com/ai-labc/cropai/internal/adapter/cache"
	httpadapter "github.com/ai-labc/cropai/internal/adapter/http"
	kafkaadapter "github.com/ai-labc/cropai/internal/adapter/kafka"
	"github.com/ai-labc/cropai/internal/config"
	"github.com/ai-labc/cropai/internal/maplayer"
	"github.com/ai-labc/cropai/internal/observability"
	"github.com/ai-labc/cropai/internal/orchestrator"
	"github.com/ai-labc/cropai/internal/state"
	"github.com/ai-labc/cropai/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	store, err := cache.Open(cache.Config{Path: cfg.CacheDir, InMemory: cfg.CacheDir == ""}, logger)
	if err != nil {
		logger.Error("failed to open response cache", "error", err)
		os.Exit(1)
	}

	// Gateway: real backend when configured, deterministic fixtures
	// otherwise.
	var gateway backend.Gateway
	if cfg.MockMode() {
		gateway = backend.NewMockGateway()
		logger.Info("mock gateway enabled, no backend configured")
	} else {
		gateway = backend.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, store, cfg.CacheTTL, logger, metrics)
		logger.Info("backend gateway configured", "base_url", cfg.APIBaseURL, "timeout", cfg.RequestTimeout)
	}

	// Refresh event export (feature-flagged via KAFKA_ENABLED / brokers).
	var events orchestrator.EventSink
	var eventWriter *kafkaadapter.EventWriter
	if cfg.KafkaEnabled {
		eventWriter = kafkaadapter.NewEventWriter(cfg, logger)
		events = eventWriter
		logger.Info("refresh event export enabled", "topic", cfg.KafkaEventsTopic)
	} else {
		logger.Info("refresh event export disabled")
	}

	st := state.NewStore(logger, metrics)
	orch := orchestrator.New(gateway, st, store, logger, metrics, events)
	overlays := maplayer.NewSynchronizer(st, orch, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, orch, st, orch, overlays, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start cache maintenance.
	sw := sweeper.New(store, logger, 0)
	go func() {
		if err := sw.Run(ctx); err != nil {
			logger.Error("cache sweeper error", "error", err)
		}
	}()

	// Load the reference lists. Failure is not fatal: the error state
	// carries a retry, and readiness stays down until it succeeds.
	if err := orch.Bootstrap(ctx); err != nil {
		logger.Warn("initial reference data load failed", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if eventWriter != nil {
		if err := eventWriter.Close(); err != nil {
			logger.Error("event writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("cache close error", "error", err)
	}

	logger.Info("shutdown complete")
}
