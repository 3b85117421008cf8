// Package resilience bounds the risk and latency of upstream calls with
// bounded retry, a circuit breaker, and a fixed fallback response. The
// pieces are explicit, composable objects owned by the composition root
// rather than interceptors or global registries.
package resilience

import (
	"sync"
	"time"

	"chatrelay/internal/core"
)

// State is the circuit breaker state for a protected call-site.
type State int

const (
	// StateClosed allows all calls through.
	StateClosed State = iota
	// StateOpen fails fast for the cool-down window.
	StateOpen
	// StateHalfOpen permits a limited number of trial calls.
	StateHalfOpen
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// WindowSize is the number of recent call outcomes tracked while closed.
	WindowSize int
	// FailureRateThreshold opens the circuit when the failure rate over the
	// window reaches it (0..1).
	FailureRateThreshold float64
	// MinimumCalls is the number of observed calls required before the
	// failure rate is evaluated.
	MinimumCalls int
	// OpenTimeout is how long the circuit stays open before trial calls.
	OpenTimeout time.Duration
	// HalfOpenMaxCalls is the number of trial calls permitted in half-open.
	HalfOpenMaxCalls int
	// OnStateChange, if set, is invoked after every state transition.
	// Called without the breaker lock held.
	OnStateChange func(name string, from, to State)
}

// DefaultBreakerConfig returns the production breaker settings: a sliding
// window of 10 outcomes, opening at a 50% failure rate once 5 calls were
// observed, a 5 second cool-down, and 3 half-open trial calls.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		WindowSize:           10,
		FailureRateThreshold: 0.5,
		MinimumCalls:         5,
		OpenTimeout:          5 * time.Second,
		HalfOpenMaxCalls:     3,
	}
}

// Breaker is a count-based sliding window circuit breaker. One instance
// guards one named call-site and is shared by all concurrent calls to it;
// all state transitions happen under a single mutex.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    State
	window   []bool // ring buffer of outcomes, true = failure
	head     int
	observed int
	openedAt time.Time

	// half-open trial accounting
	trialPermits  int
	trialDone     int
	trialFailures int
}

// NewBreaker creates a breaker for the named call-site.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultBreakerConfig().WindowSize
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = DefaultBreakerConfig().HalfOpenMaxCalls
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		state:  StateClosed,
		window: make([]bool, cfg.WindowSize),
	}
}

// Name returns the protected call-site name.
func (b *Breaker) Name() string { return b.name }

// Allow reports whether a call may proceed. It returns a CircuitOpenError
// when the breaker is open or all half-open trial permits are taken.
func (b *Breaker) Allow() error {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.mu.Unlock()
		return nil
	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.OpenTimeout {
			b.mu.Unlock()
			return core.NewCircuitOpenError(b.name)
		}
		notify := b.transition(StateHalfOpen)
		b.trialPermits = 1
		b.mu.Unlock()
		notify()
		return nil
	default: // StateHalfOpen
		if b.trialPermits >= b.cfg.HalfOpenMaxCalls {
			b.mu.Unlock()
			return core.NewCircuitOpenError(b.name)
		}
		b.trialPermits++
		b.mu.Unlock()
		return nil
	}
}

// RecordSuccess records a successful call outcome.
func (b *Breaker) RecordSuccess() { b.record(false) }

// RecordFailure records a failed call outcome.
func (b *Breaker) RecordFailure() { b.record(true) }

func (b *Breaker) record(failure bool) {
	b.mu.Lock()
	notify := func() {}

	switch b.state {
	case StateClosed:
		b.window[b.head] = failure
		b.head = (b.head + 1) % len(b.window)
		if b.observed < len(b.window) {
			b.observed++
		}
		if b.observed >= b.cfg.MinimumCalls && b.failureRate() >= b.cfg.FailureRateThreshold {
			notify = b.transition(StateOpen)
			b.openedAt = time.Now()
		}
	case StateHalfOpen:
		b.trialDone++
		if failure {
			b.trialFailures++
		}
		if b.trialDone >= b.cfg.HalfOpenMaxCalls {
			// Trial window complete: the failure ratio decides the next state.
			if float64(b.trialFailures)/float64(b.trialDone) >= b.cfg.FailureRateThreshold {
				notify = b.transition(StateOpen)
				b.openedAt = time.Now()
			} else {
				notify = b.transition(StateClosed)
				b.resetWindow()
			}
		}
	case StateOpen:
		// Late outcome from a call admitted before the circuit opened;
		// the open timer already governs recovery.
	}

	b.mu.Unlock()
	notify()
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition switches state and returns the notification callback to run
// once the lock is released. Must be called with b.mu held.
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	if to == StateHalfOpen || (from == StateHalfOpen && to == StateOpen) {
		b.trialPermits = 0
		b.trialDone = 0
		b.trialFailures = 0
	}
	if b.cfg.OnStateChange == nil || from == to {
		return func() {}
	}
	cb := b.cfg.OnStateChange
	name := b.name
	return func() { cb(name, from, to) }
}

// failureRate computes the failure rate over the observed window.
// Must be called with b.mu held.
func (b *Breaker) failureRate() float64 {
	if b.observed == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < b.observed; i++ {
		if b.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(b.observed)
}

// resetWindow clears the sliding window after the circuit closes.
// Must be called with b.mu held.
func (b *Breaker) resetWindow() {
	for i := range b.window {
		b.window[i] = false
	}
	b.head = 0
	b.observed = 0
}
