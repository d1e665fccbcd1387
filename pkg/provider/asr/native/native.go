// Package native provides an ASR provider backed by the whisper.cpp CGO
// bindings, eliminating any server round trip. The whisper.cpp static
// library (libwhisper.a) and headers (whisper.h) must be available at link
// time via LIBRARY_PATH and C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across calls; each
// Transcribe creates its own whisper context, so the provider is safe for
// concurrent use. Word-level timestamps come from whisper.cpp token timing.
package native

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/mediascribe/mediascribe/pkg/provider/asr"
	"github.com/mediascribe/mediascribe/pkg/transcript"
)

// Compile-time assertion that Provider satisfies asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Provider implements asr.Provider using the whisper.cpp Go bindings.
type Provider struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default language code used when a Transcribe call
// does not force one. Defaults to "auto" (detection by the model).
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("native: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("native: load model %q: %w", modelPath, err)
	}

	p := &Provider{model: model, language: "auto"}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Name implements asr.Provider.
func (p *Provider) Name() string { return "whisper-native" }

// Transcribe implements asr.Provider. audioPath must point to a 16 kHz WAV
// file; multi-channel audio is down-mixed to mono before inference.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, opts asr.Options) (*asr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("native: context already cancelled: %w", err)
	}

	samples, err := readWAV(audioPath)
	if err != nil {
		return nil, err
	}

	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	// Each whisper context is single-use and not thread-safe; the model
	// itself can be shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("native: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("native: set language %q: %w", lang, err)
	}
	wctx.SetTranslate(opts.Task == asr.TaskTranslate)
	wctx.SetTokenTimestamps(opts.WordTimestamps)
	if opts.Prompt != "" {
		wctx.SetInitialPrompt(opts.Prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("native: process audio: %w", err)
	}

	res := &asr.Result{}
	if lang != "" && lang != "auto" {
		l := lang
		res.Language = &l
	} else if detected := wctx.DetectedLanguage(); detected != "" {
		l := detected
		res.Language = &l
	}

	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("native: read segment: %w", err)
		}

		seg := transcript.Segment{
			Start: segment.Start.Seconds(),
			End:   segment.End.Seconds(),
			Text:  strings.TrimSpace(segment.Text),
		}
		if opts.WordTimestamps {
			words := []transcript.Word{}
			for _, tok := range segment.Tokens {
				if isSpecialToken(tok.Text) || strings.TrimSpace(tok.Text) == "" {
					continue
				}
				words = append(words, transcript.Word{
					Start: tok.Start.Seconds(),
					End:   tok.End.Seconds(),
					Word:  tok.Text,
				})
			}
			seg.Words = words
		}
		res.Segments = append(res.Segments, seg)
	}

	return res, nil
}

// isSpecialToken reports whether text is a whisper.cpp marker token such as
// "[_BEG_]" or "<|endoftext|>" rather than recognized speech.
func isSpecialToken(text string) bool {
	return strings.HasPrefix(text, "[_") || strings.HasPrefix(text, "<|")
}
