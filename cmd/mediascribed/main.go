// Command mediascribed runs the transcription HTTP server: upload endpoint,
// job status and progress streaming, transcript downloads, health checks, and
// Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mediascribe/mediascribe/internal/app"
	"github.com/mediascribe/mediascribe/internal/config"
	"github.com/mediascribe/mediascribe/internal/media"
	"github.com/mediascribe/mediascribe/internal/observe"
	"github.com/mediascribe/mediascribe/internal/pipeline"
	"github.com/mediascribe/mediascribe/internal/server"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "mediascribed: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "mediascribed: %v\n", err)
		}
		return 1
	}

	logger := app.NewLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8595"
		cfg.Server.ListenAddr = addr
	}

	slog.Info("mediascribed starting",
		"version", version,
		"config", *configPath,
		"listen_addr", addr,
		"backend", cfg.ASR.Backend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers (metrics via Prometheus bridge, traces recorded
	// in-process).
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "mediascribed",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	if err := media.CheckFFmpeg(ctx); err != nil {
		slog.Warn("ffmpeg not available; video uploads will fail", "err", err)
	}

	provider, closeProvider, err := app.BuildProvider(cfg)
	if err != nil {
		slog.Error("failed to build recognition backend", "err", err)
		return 1
	}
	defer func() {
		if err := closeProvider(); err != nil {
			slog.Warn("backend close error", "err", err)
		}
	}()
	slog.Info("recognition backend ready", "provider", provider.Name())

	metrics := observe.DefaultMetrics()
	runner := pipeline.New(provider, metrics, logger)

	srv, err := server.New(cfg, runner, metrics, app.HealthCheckers(provider)...)
	if err != nil {
		slog.Error("failed to initialise server", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
