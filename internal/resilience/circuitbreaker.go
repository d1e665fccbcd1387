// Package resilience keeps transcription jobs flowing when a recognition
// backend degrades.
//
// [CircuitBreaker] guards a single backend: once the backend fails often
// enough, further calls are rejected outright instead of each job waiting
// out a full API timeout against an endpoint that is known to be down.
// [FallbackGroup] chains several guarded backends so a rejected or failed
// call moves on to the next one, and [ASRFallback] presents such a chain as
// one ordinary recognition backend to the pipeline.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the backend while the breaker
// is open and its cooldown has not elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker's operating mode.
type State int

const (
	// StateClosed forwards every call to the backend.
	StateClosed State = iota

	// StateOpen rejects every call until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a few probe calls through to find out whether the
	// backend has recovered.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name is the backend label used in log messages, e.g. "whispercpp".
	Name string

	// MaxFailures is how many consecutive failures trip the breaker.
	// Default: 5.
	MaxFailures int

	// ResetTimeout is the cooldown before a tripped breaker starts probing
	// the backend again. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax caps the probe calls allowed while half-open. Default: 3.
	HalfOpenMax int
}

// CircuitBreaker tracks consecutive failures of one recognition backend and
// short-circuits calls while the backend is presumed down.
type CircuitBreaker struct {
	backend  string
	trip     int
	cooldown time.Duration
	probeMax int

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	probes     int
	probeFails int
}

// NewCircuitBreaker builds a breaker, filling zero config fields with
// defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 3
	}
	return &CircuitBreaker{
		backend:  cfg.Name,
		trip:     cfg.MaxFailures,
		cooldown: cfg.ResetTimeout,
		probeMax: cfg.HalfOpenMax,
	}
}

// Execute invokes fn unless the breaker is open, and folds fn's outcome back
// into the failure accounting. While half-open only [CircuitBreakerConfig.HalfOpenMax]
// concurrent probes are admitted.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.allow()
	if err != nil {
		return err
	}
	err = fn()
	cb.settle(err, probing)
	return err
}

// allow decides whether a call may proceed, handling the open-to-half-open
// transition. It reports whether the admitted call counts as a probe.
func (cb *CircuitBreaker) allow() (probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cooldown {
			return false, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.probeFails = 0
		slog.Info("probing backend after cooldown", "backend", cb.backend)

	case StateHalfOpen:
		if cb.probes >= cb.probeMax {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		cb.probes++
		return true, nil
	}
	return false, nil
}

// settle records the outcome of an admitted call.
func (cb *CircuitBreaker) settle(callErr error, probing bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if callErr == nil {
		if !probing {
			cb.failures = 0
			return
		}
		if cb.probes-cb.probeFails >= cb.probeMax {
			cb.state = StateClosed
			cb.failures = 0
			cb.probes = 0
			cb.probeFails = 0
			slog.Info("backend recovered, circuit closed", "backend", cb.backend)
		}
		return
	}

	cb.openedAt = time.Now()
	if probing {
		// One failed probe is enough evidence the backend is still down.
		cb.probeFails++
		cb.state = StateOpen
		cb.failures = cb.trip
		slog.Warn("backend still failing, circuit re-opened", "backend", cb.backend)
		return
	}

	cb.failures++
	if cb.failures >= cb.trip {
		cb.state = StateOpen
		slog.Warn("backend circuit opened",
			"backend", cb.backend,
			"consecutive_failures", cb.failures)
	}
}

// State reports the current mode. An open breaker whose cooldown has elapsed
// reports half-open; the stored state flips on the next Execute.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed, e.g. after an operator has fixed the
// backend and does not want to wait out the cooldown.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.probeFails = 0
	slog.Info("backend circuit manually reset", "backend", cb.backend)
}
