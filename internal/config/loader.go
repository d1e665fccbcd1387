package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxConcurrentJobs < 0 {
		errs = append(errs, fmt.Errorf("server.max_concurrent_jobs %d must not be negative", cfg.Server.MaxConcurrentJobs))
	}

	// ASR
	switch {
	case cfg.ASR.Backend == "":
		errs = append(errs, errors.New("asr.backend is required; valid values: openai, whispercpp, native"))
	case !cfg.ASR.Backend.IsValid():
		errs = append(errs, fmt.Errorf("asr.backend %q is invalid; valid values: openai, whispercpp, native", cfg.ASR.Backend))
	}
	if cfg.ASR.Task != "" && !cfg.ASR.Task.IsValid() {
		errs = append(errs, fmt.Errorf("asr.task %q is invalid; valid values: transcribe, translate", cfg.ASR.Task))
	}
	if cfg.ASR.WordTimestamps {
		if cfg.ASR.MaxWords <= 0 {
			errs = append(errs, errors.New("asr.max_words must be > 0 when asr.word_timestamps is set"))
		}
		if cfg.ASR.Backend.IsValid() && !cfg.ASR.Backend.SupportsWordTimestamps() {
			errs = append(errs, fmt.Errorf("asr.word_timestamps is not supported by the %q backend", cfg.ASR.Backend))
		}
	} else if cfg.ASR.MaxWords > 0 {
		slog.Warn("asr.max_words is set but asr.word_timestamps is disabled; segments will not be re-chunked")
	}

	// Per-backend requirements for the primary and every fallback.
	if err := backendSettings(cfg, cfg.ASR.Backend); err != nil {
		errs = append(errs, err)
	}
	seen := map[Backend]bool{cfg.ASR.Backend: true}
	for i, fb := range cfg.ASR.Fallbacks {
		prefix := fmt.Sprintf("asr.fallbacks[%d]", i)
		if !fb.IsValid() {
			errs = append(errs, fmt.Errorf("%s %q is invalid; valid values: openai, whispercpp, native", prefix, fb))
			continue
		}
		if seen[fb] {
			errs = append(errs, fmt.Errorf("%s %q duplicates an earlier backend", prefix, fb))
			continue
		}
		seen[fb] = true
		if err := backendSettings(cfg, fb); err != nil {
			errs = append(errs, err)
		}
	}

	// Fallbacks cannot honour word timestamps on backends without support.
	if cfg.ASR.WordTimestamps {
		for i, fb := range cfg.ASR.Fallbacks {
			if fb.IsValid() && !fb.SupportsWordTimestamps() {
				errs = append(errs, fmt.Errorf("asr.fallbacks[%d]: asr.word_timestamps is not supported by the %q backend", i, fb))
			}
		}
	}

	// Output
	for i, f := range cfg.Output.Formats {
		if !f.IsValid() {
			errs = append(errs, fmt.Errorf("output.formats[%d] %q is invalid; valid values: json, srt", i, f))
		}
	}

	return errors.Join(errs...)
}

// backendSettings checks that the configuration section for backend b carries
// its required fields.
func backendSettings(cfg *Config, b Backend) error {
	switch b {
	case BackendOpenAI:
		if cfg.ASR.OpenAI.APIKey == "" {
			return errors.New("asr.openai.api_key is required when the openai backend is used")
		}
	case BackendWhisperCPP:
		if cfg.ASR.WhisperCPP.ServerURL == "" {
			return errors.New("asr.whispercpp.server_url is required when the whispercpp backend is used")
		}
		if m := cfg.ASR.WhisperCPP.Model; m != "" && !m.IsValid() {
			return fmt.Errorf("asr.whispercpp.model %q is invalid; valid values: tiny, base, small, medium, large", m)
		}
	case BackendNative:
		if cfg.ASR.Native.ModelPath == "" {
			return errors.New("asr.native.model_path is required when the native backend is used")
		}
	}
	return nil
}
