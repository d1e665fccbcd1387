// Package config provides the configuration schema and loader for the
// mediascribe transcription pipeline and server.
package config

import (
	"github.com/mediascribe/mediascribe/pkg/provider/asr"
	"github.com/mediascribe/mediascribe/pkg/transcript"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Backend selects the speech-recognition engine.
type Backend string

const (
	// BackendOpenAI uses the hosted OpenAI audio transcription API.
	BackendOpenAI Backend = "openai"

	// BackendWhisperCPP uses a running whisper-server instance over HTTP.
	BackendWhisperCPP Backend = "whispercpp"

	// BackendNative uses in-process whisper.cpp via CGO bindings.
	BackendNative Backend = "native"
)

// IsValid reports whether b is a recognised backend.
func (b Backend) IsValid() bool {
	switch b {
	case BackendOpenAI, BackendWhisperCPP, BackendNative:
		return true
	}
	return false
}

// SupportsWordTimestamps reports whether the backend can produce per-word
// timing. The whisper-server REST API has no word granularity.
func (b Backend) SupportsWordTimestamps() bool {
	return b == BackendOpenAI || b == BackendNative
}

// ModelSize names a Whisper model size for backends that load models by size
// alias rather than by file path or API model name.
type ModelSize string

const (
	ModelTiny   ModelSize = "tiny"
	ModelBase   ModelSize = "base"
	ModelSmall  ModelSize = "small"
	ModelMedium ModelSize = "medium"
	ModelLarge  ModelSize = "large"
)

// IsValid reports whether m is a recognised model size.
func (m ModelSize) IsValid() bool {
	switch m {
	case ModelTiny, ModelBase, ModelSmall, ModelMedium, ModelLarge:
		return true
	}
	return false
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server Server `yaml:"server"`
	ASR    ASR    `yaml:"asr"`
	Output Output `yaml:"output"`
}

// Server holds network and runtime settings for the HTTP server mode. The
// batch CLI ignores everything except LogLevel.
type Server struct {
	// ListenAddr is the TCP address the server listens on (e.g. ":8595").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// MaxConcurrentJobs caps how many transcriptions run at once. Further
	// uploads queue until a slot frees up. Zero means 2.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// WorkDir is where uploads and job outputs are stored. Empty means a
	// "mediascribe" directory under the system temp directory.
	WorkDir string `yaml:"work_dir"`
}

// ASR selects and configures the recognition backend.
type ASR struct {
	// Backend picks the engine. Required.
	Backend Backend `yaml:"backend"`

	// Language is an ISO 639-1 recognition hint; empty auto-detects.
	Language string `yaml:"language"`

	// Task is "transcribe" or "translate". Empty means transcribe.
	Task asr.Task `yaml:"task"`

	// WordTimestamps requests per-word timing. Only backends reporting
	// SupportsWordTimestamps can honour it.
	WordTimestamps bool `yaml:"word_timestamps"`

	// MaxWords re-chunks word-timestamped output into segments of at most
	// this many words. Required (> 0) when WordTimestamps is set.
	MaxWords int `yaml:"max_words"`

	// Fallbacks lists additional backends tried in order when the primary
	// fails. Each named backend is configured through its own section below.
	Fallbacks []Backend `yaml:"fallbacks"`

	OpenAI     OpenAI     `yaml:"openai"`
	WhisperCPP WhisperCPP `yaml:"whispercpp"`
	Native     Native     `yaml:"native"`
}

// OpenAI configures the hosted API backend.
type OpenAI struct {
	// APIKey authenticates against the API. Required when the openai
	// backend is selected.
	APIKey string `yaml:"api_key"`

	// Model is the transcription model, default "whisper-1".
	Model string `yaml:"model"`

	// BaseURL overrides the API endpoint for compatible servers.
	BaseURL string `yaml:"base_url"`
}

// WhisperCPP configures the whisper-server HTTP backend.
type WhisperCPP struct {
	// ServerURL is the whisper-server base URL. Required when the
	// whispercpp backend is selected.
	ServerURL string `yaml:"server_url"`

	// Model is the size alias forwarded to the server when set; otherwise
	// the server's startup model is used.
	Model ModelSize `yaml:"model"`
}

// Native configures the in-process whisper.cpp backend.
type Native struct {
	// ModelPath is the ggml model file. Required when the native backend
	// is selected.
	ModelPath string `yaml:"model_path"`
}

// Output controls where and how transcripts are written.
type Output struct {
	// Formats lists the encodings to write. Empty means both json and srt.
	Formats []transcript.Format `yaml:"formats"`

	// Dir is the output directory; empty means next to the input file.
	Dir string `yaml:"dir"`

	// KeepAudio retains the intermediate extracted WAV instead of deleting
	// it after the run.
	KeepAudio bool `yaml:"keep_audio"`
}
