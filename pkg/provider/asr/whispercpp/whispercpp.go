// Package whispercpp provides an ASR provider backed by a running
// whisper-server binary (whisper.cpp's example server, REST API at
// POST /inference).
//
// The audio file is submitted as multipart/form-data with
// response_format=verbose_json, which returns per-segment timing. The server
// does not expose word-level timestamps, so requesting them fails with
// asr.ErrWordTimestampsUnsupported.
//
// Usage:
//
//	p, err := whispercpp.New("http://localhost:8080",
//	    whispercpp.WithModel("base"),
//	)
//	res, err := p.Transcribe(ctx, "audio.wav", asr.Options{Language: "en"})
package whispercpp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mediascribe/mediascribe/pkg/provider/asr"
	"github.com/mediascribe/mediascribe/pkg/transcript"
)

// defaultTimeout bounds a single inference request. Batch transcription of
// long media can legitimately take minutes.
const defaultTimeout = 30 * time.Minute

// Compile-time assertion that Provider implements asr.Provider.
var _ asr.Provider = (*Provider)(nil)

// Provider implements asr.Provider against a whisper-server instance.
type Provider struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server (e.g.
// "base", "small"). When empty the server uses whichever model it was started
// with; this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithHTTPClient replaces the default HTTP client. Useful for tests and for
// callers that need custom transport settings.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// New creates a Provider that talks to the whisper-server at serverURL (e.g.
// "http://localhost:8080").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whispercpp: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements asr.Provider.
func (p *Provider) Name() string { return "whispercpp" }

// inferenceResponse mirrors the verbose_json body of POST /inference.
type inferenceResponse struct {
	Language string `json:"language"`
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
	Error string `json:"error"`
}

// Transcribe implements asr.Provider.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, opts asr.Options) (*asr.Result, error) {
	if opts.WordTimestamps {
		return nil, fmt.Errorf("whispercpp: %w", asr.ErrWordTimestampsUnsupported)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: open audio %q: %w", audioPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("whispercpp: create form file: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, fmt.Errorf("whispercpp: read audio: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	if opts.Prompt != "" {
		fields["prompt"] = opts.Prompt
	}
	if opts.Task == asr.TaskTranslate {
		fields["translate"] = "true"
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("whispercpp: write field %s: %w", k, err)
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("whispercpp: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whispercpp: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("whispercpp: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("whispercpp: decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("whispercpp: inference error: %s", parsed.Error)
	}

	res := &asr.Result{}
	if parsed.Language != "" {
		lang := parsed.Language
		res.Language = &lang
	}
	for _, s := range parsed.Segments {
		res.Segments = append(res.Segments, transcript.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
	}
	return res, nil
}

// HealthCheck probes the server's model-loaded endpoint. It reports true only
// when the server answers 200 within the context deadline.
func (p *Provider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("whispercpp: create health request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whispercpp: health request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whispercpp: server health returned %d", resp.StatusCode)
	}
	return nil
}
