// Package openai provides an ASR provider backed by the OpenAI audio
// transcription API.
//
// Recognition runs as a single batch request against the audio/transcriptions
// endpoint (or audio/translations when the translate task is selected) with
// response_format=verbose_json, which yields per-segment timing and, when
// requested, per-word timing. The verbose response shape is not modelled by
// the SDK's default return type, so it is captured with
// option.WithResponseBodyInto.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mediascribe/mediascribe/pkg/provider/asr"
	"github.com/mediascribe/mediascribe/pkg/transcript"
)

// defaultModel is the transcription model used when none is configured.
const defaultModel = "whisper-1"

// Provider implements asr.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// Compile-time interface assertion.
var _ asr.Provider = (*Provider)(nil)

// config holds optional configuration for the provider.
type config struct {
	model   string
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithModel selects the transcription model (e.g. "whisper-1"). Defaults to
// "whisper-1".
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithBaseURL overrides the default OpenAI API base URL. Useful for
// API-compatible self-hosted servers.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI ASR Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: cfg.model}, nil
}

// Name implements asr.Provider.
func (p *Provider) Name() string { return "openai" }

// verboseTranscription mirrors the verbose_json response body of the audio
// endpoints. Word entries appear only when the word timestamp granularity was
// requested.
type verboseTranscription struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Words []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Word  string  `json:"word"`
	} `json:"words"`
}

// Transcribe implements asr.Provider. The audio file is uploaded as
// multipart form data; opts.Task selects between the transcription and
// translation endpoints. Word timestamps are supported for transcription
// only; the translation endpoint does not offer timestamp granularities.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, opts asr.Options) (*asr.Result, error) {
	if opts.Task == asr.TaskTranslate && opts.WordTimestamps {
		return nil, fmt.Errorf("openai: translation: %w", asr.ErrWordTimestampsUnsupported)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("openai: open audio %q: %w", audioPath, err)
	}
	defer f.Close()

	var verbose verboseTranscription
	if opts.Task == asr.TaskTranslate {
		params := oai.AudioTranslationNewParams{
			File:           f,
			Model:          oai.AudioModel(p.model),
			ResponseFormat: oai.AudioTranslationNewParamsResponseFormatVerboseJSON,
		}
		if opts.Prompt != "" {
			params.Prompt = oai.String(opts.Prompt)
		}
		if _, err := p.client.Audio.Translations.New(ctx, params, option.WithResponseBodyInto(&verbose)); err != nil {
			return nil, fmt.Errorf("openai: translate %q: %w", audioPath, err)
		}
	} else {
		granularities := []string{"segment"}
		if opts.WordTimestamps {
			granularities = append(granularities, "word")
		}
		params := oai.AudioTranscriptionNewParams{
			File:                   f,
			Model:                  oai.AudioModel(p.model),
			ResponseFormat:         oai.AudioResponseFormatVerboseJSON,
			TimestampGranularities: granularities,
		}
		if opts.Language != "" {
			params.Language = oai.String(opts.Language)
		}
		if opts.Prompt != "" {
			params.Prompt = oai.String(opts.Prompt)
		}
		if _, err := p.client.Audio.Transcriptions.New(ctx, params, option.WithResponseBodyInto(&verbose)); err != nil {
			return nil, fmt.Errorf("openai: transcribe %q: %w", audioPath, err)
		}
	}

	return normalize(&verbose, opts.WordTimestamps), nil
}

// normalize converts the verbose response into the transcript model. The API
// reports words as one flat list across the whole file; they are re-attached
// to segments by start time, walking both lists once in order.
func normalize(v *verboseTranscription, wordTimestamps bool) *asr.Result {
	res := &asr.Result{}
	if v.Language != "" {
		lang := v.Language
		res.Language = &lang
	}

	wi := 0
	for _, s := range v.Segments {
		seg := transcript.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		}
		if wordTimestamps {
			words := []transcript.Word{}
			for wi < len(v.Words) && v.Words[wi].Start < s.End {
				w := v.Words[wi]
				wi++
				if strings.TrimSpace(w.Word) == "" {
					continue
				}
				words = append(words, transcript.Word{Start: w.Start, End: w.End, Word: w.Word})
			}
			seg.Words = words
		}
		res.Segments = append(res.Segments, seg)
	}
	return res
}
