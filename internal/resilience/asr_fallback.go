package resilience

import (
	"context"

	"github.com/mediascribe/mediascribe/pkg/provider/asr"
)

// ASRFallback implements [asr.Provider] with automatic failover across
// multiple recognition backends. Each backend has its own circuit breaker, so
// a flapping primary is bypassed until it recovers.
type ASRFallback struct {
	group *FallbackGroup[asr.Provider]
}

// Compile-time interface assertion.
var _ asr.Provider = (*ASRFallback)(nil)

// NewASRFallback creates an [ASRFallback] with primary as the preferred
// backend.
func NewASRFallback(primary asr.Provider, primaryName string, cfg FallbackConfig) *ASRFallback {
	return &ASRFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional recognition backend as a fallback.
func (f *ASRFallback) AddFallback(name string, provider asr.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe runs the request against the first healthy backend. If the
// primary fails or its breaker is open, subsequent fallbacks are tried in
// order.
func (f *ASRFallback) Transcribe(ctx context.Context, audioPath string, opts asr.Options) (*asr.Result, error) {
	return ExecuteWithResult(f.group, func(p asr.Provider) (*asr.Result, error) {
		return p.Transcribe(ctx, audioPath, opts)
	})
}

// Name identifies the group by its primary backend.
func (f *ASRFallback) Name() string {
	return f.group.entries[0].name
}
