// Package app wires configuration into concrete runtime pieces shared by the
// CLI and server entry points: logger construction, recognition backend
// instantiation, and readiness checks.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mediascribe/mediascribe/internal/config"
	"github.com/mediascribe/mediascribe/internal/health"
	"github.com/mediascribe/mediascribe/internal/media"
	"github.com/mediascribe/mediascribe/internal/resilience"
	"github.com/mediascribe/mediascribe/pkg/provider/asr"
	"github.com/mediascribe/mediascribe/pkg/provider/asr/native"
	openaiasr "github.com/mediascribe/mediascribe/pkg/provider/asr/openai"
	"github.com/mediascribe/mediascribe/pkg/provider/asr/whispercpp"
)

// NewLogger builds a text slog logger writing to stderr at the given level.
func NewLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// BuildProvider instantiates the recognition backend selected in cfg. When
// fallback backends are configured, the result is a failover group that tries
// them in order behind per-backend circuit breakers. The returned close
// function releases backend resources; callers should invoke it once on
// shutdown.
func BuildProvider(cfg *config.Config) (asr.Provider, func() error, error) {
	primary, closePrimary, err := buildBackend(cfg, cfg.ASR.Backend)
	if err != nil {
		return nil, nil, err
	}
	if len(cfg.ASR.Fallbacks) == 0 {
		return primary, closePrimary, nil
	}

	group := resilience.NewASRFallback(primary, string(cfg.ASR.Backend), resilience.FallbackConfig{})
	closers := []func() error{closePrimary}
	for _, fb := range cfg.ASR.Fallbacks {
		p, closeFn, err := buildBackend(cfg, fb)
		if err != nil {
			closeAll(closers)
			return nil, nil, fmt.Errorf("app: build fallback backend %q: %w", fb, err)
		}
		group.AddFallback(string(fb), p)
		closers = append(closers, closeFn)
	}
	return group, func() error { return closeAll(closers) }, nil
}

// closeAll invokes every closer and joins their errors.
func closeAll(closers []func() error) error {
	var errs []error
	for _, fn := range closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildBackend instantiates a single backend from its config section.
func buildBackend(cfg *config.Config, backend config.Backend) (asr.Provider, func() error, error) {
	switch backend {
	case config.BackendOpenAI:
		var opts []openaiasr.Option
		if cfg.ASR.OpenAI.Model != "" {
			opts = append(opts, openaiasr.WithModel(cfg.ASR.OpenAI.Model))
		}
		if cfg.ASR.OpenAI.BaseURL != "" {
			opts = append(opts, openaiasr.WithBaseURL(cfg.ASR.OpenAI.BaseURL))
		}
		p, err := openaiasr.New(cfg.ASR.OpenAI.APIKey, opts...)
		if err != nil {
			return nil, nil, err
		}
		return p, func() error { return nil }, nil

	case config.BackendWhisperCPP:
		var opts []whispercpp.Option
		if cfg.ASR.WhisperCPP.Model != "" {
			opts = append(opts, whispercpp.WithModel(string(cfg.ASR.WhisperCPP.Model)))
		}
		p, err := whispercpp.New(cfg.ASR.WhisperCPP.ServerURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return p, func() error { return nil }, nil

	case config.BackendNative:
		var opts []native.Option
		if cfg.ASR.Language != "" {
			opts = append(opts, native.WithLanguage(cfg.ASR.Language))
		}
		p, err := native.New(cfg.ASR.Native.ModelPath, opts...)
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	}
	return nil, nil, fmt.Errorf("app: unknown backend %q", backend)
}

// HealthCheckers assembles the readiness checks for the configured setup:
// ffmpeg availability, plus a backend reachability probe when the backend
// exposes one.
func HealthCheckers(provider asr.Provider) []health.Checker {
	checkers := []health.Checker{
		{Name: "ffmpeg", Check: media.CheckFFmpeg},
	}
	if hc, ok := provider.(interface{ HealthCheck(context.Context) error }); ok {
		checkers = append(checkers, health.Checker{Name: "asr", Check: hc.HealthCheck})
	}
	return checkers
}
