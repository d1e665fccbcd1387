// Package mock provides a test double for the asr package interfaces.
//
// Use Provider to return canned recognition results and inspect which audio
// paths and options the caller passed:
//
//	p := &mock.Provider{Result: &asr.Result{Segments: segs}}
//	res, _ := p.Transcribe(ctx, "audio.wav", asr.Options{})
//	calls := p.Calls()
package mock

import (
	"context"
	"sync"

	"github.com/mediascribe/mediascribe/pkg/provider/asr"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// AudioPath is the path passed to Transcribe.
	AudioPath string
	// Opts is the Options value passed to Transcribe.
	Opts asr.Options
}

// Provider is a mock implementation of asr.Provider.
type Provider struct {
	mu    sync.Mutex
	calls []TranscribeCall

	// Result is returned by Transcribe when Err is nil. If both are nil,
	// Transcribe returns an empty Result.
	Result *asr.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string
}

// Compile-time interface assertion.
var _ asr.Provider = (*Provider)(nil)

// Transcribe records the call and returns Result, Err.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, opts asr.Options) (*asr.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, TranscribeCall{AudioPath: audioPath, Opts: opts})
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Result != nil {
		return p.Result, nil
	}
	return &asr.Result{}, nil
}

// Name returns ProviderName, or "mock" when unset.
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// Calls returns a copy of all recorded Transcribe calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.calls))
	copy(out, p.calls)
	return out
}
