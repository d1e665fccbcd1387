// Package asr defines the Provider interface for batch speech-recognition
// backends.
//
// A provider takes a path to an extracted audio file (mono 16 kHz WAV unless
// the backend documents otherwise) and returns a [Result]: the detected
// language plus ordered, non-overlapping segments already normalized into the
// transcript model. Normalization happens inside each provider, so callers
// never inspect backend-shaped responses. Implementations must be safe for
// concurrent use; one provider may serve many pipeline runs at once.
package asr

import (
	"context"
	"errors"

	"github.com/mediascribe/mediascribe/pkg/transcript"
)

// Task selects the recognition task. It is passed through to the backend
// untouched; translation always targets English per Whisper semantics.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// IsValid reports whether t is a recognised task.
func (t Task) IsValid() bool {
	return t == TaskTranscribe || t == TaskTranslate
}

// ErrWordTimestampsUnsupported is returned by Transcribe when
// [Options.WordTimestamps] is set but the backend cannot produce word-level
// timing. Callers needing word data must pick a capable backend instead of
// silently degrading.
var ErrWordTimestampsUnsupported = errors.New("asr: backend does not support word-level timestamps")

// Options carries optional recognition parameters. The zero value requests a
// plain transcription with automatic language detection.
type Options struct {
	// Language is an ISO 639-1 hint (e.g. "en", "es"). Empty lets the
	// backend auto-detect.
	Language string

	// Task selects transcription or translation. Empty means
	// [TaskTranscribe].
	Task Task

	// WordTimestamps requests per-word timing on every segment. Backends
	// without word support return [ErrWordTimestampsUnsupported].
	WordTimestamps bool

	// Prompt supplies context that can improve recognition of uncommon
	// vocabulary. Ignored by backends without prompt support.
	Prompt string
}

// Result is a normalized recognition result. Segments are in chronological
// order with Start <= End on every entity; providers are trusted to uphold
// this, the core model does not re-validate it.
type Result struct {
	// Language is the detected (or caller-forced) language code, nil when
	// the backend reported none.
	Language *string

	// Segments holds the recognized speech in playback order. Each segment
	// carries Words only when word timestamps were requested and supported.
	Segments []transcript.Segment
}

// Transcript assembles a [transcript.Transcript] from the result.
func (r *Result) Transcript() *transcript.Transcript {
	return &transcript.Transcript{Language: r.Language, Segments: r.Segments}
}

// Provider is the abstraction over any batch speech-recognition backend.
type Provider interface {
	// Transcribe recognizes speech in the audio file at audioPath. It blocks
	// until recognition completes, respecting ctx for cancellation. The
	// returned Result is owned by the caller.
	Transcribe(ctx context.Context, audioPath string, opts Options) (*Result, error)

	// Name returns the backend identifier used in logs and metrics (e.g.
	// "openai", "whispercpp", "whisper-native").
	Name() string
}
