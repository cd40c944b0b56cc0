package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weftlabs/calbridge/internal/api"
	"github.com/weftlabs/calbridge/internal/bus"
	"github.com/weftlabs/calbridge/internal/config"
	"github.com/weftlabs/calbridge/internal/router"
	"github.com/weftlabs/calbridge/internal/store"
	"github.com/weftlabs/calbridge/internal/tabs"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("calbridged starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bus — the inter-tab messaging substrate.
	busClient, err := bus.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer busClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// History store (optional — the bridge works without it, just no
	// history endpoint).
	var history *store.Store
	if cfg.DatabaseURL != "" {
		history, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer history.Close()
		slog.Info("database connected")
	} else {
		slog.Warn("database not configured — running without sync history")
	}

	// Router — registry plus relay.
	dir := tabs.NewNATSDirectory(busClient, slog.Default())
	rt := newRouter(busClient, dir, history)
	if err := rt.Start(ctx); err != nil {
		slog.Error("failed to start router", "error", err)
		os.Exit(1)
	}

	// HTTP API — manual trigger, status, history.
	srv := api.NewServer(cfg.Port, rt, history, cfg.Strategy)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration.
	if err := busClient.Publish(bus.SubjectRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"agent":     "calbridged",
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("calbridged ready", "port", cfg.Port)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("calbridged stopped")
}

func newRouter(b *bus.Client, dir tabs.Directory, history *store.Store) *router.Router {
	// A nil *store.Store must become a nil interface, or the router would
	// call methods on it.
	if history == nil {
		return router.New(b, dir, nil, slog.Default())
	}
	return router.New(b, dir, history, slog.Default())
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
