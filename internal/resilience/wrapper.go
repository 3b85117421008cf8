package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chatrelay/internal/core"
	"chatrelay/internal/observability"
)

// DefaultFallbackMessage is the user-safe response served when the upstream
// call cannot complete.
const DefaultFallbackMessage = "The assistant is temporarily unavailable. Please try again in a moment."

// Wrapper guards a Streamer with retry, circuit breaking and a fallback.
// ProtectedStream never returns an error: terminal failures are absorbed,
// logged, and replaced by a single-fragment fallback stream.
type Wrapper struct {
	upstream core.Streamer
	breaker  *Breaker
	policy   RetryPolicy
	fallback string
	metrics  *observability.Metrics
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithRetryPolicy overrides the default retry schedule.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(w *Wrapper) { w.policy = p }
}

// WithFallbackMessage overrides the default fallback text.
func WithFallbackMessage(msg string) Option {
	return func(w *Wrapper) { w.fallback = msg }
}

// WithMetrics attaches observability collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(w *Wrapper) { w.metrics = m }
}

// NewWrapper creates a resilience wrapper around upstream. The breaker is
// shared process-wide state for the named call-site; the caller owns it and
// may hand the same instance to several wrappers.
func NewWrapper(upstream core.Streamer, breaker *Breaker, opts ...Option) *Wrapper {
	w := &Wrapper{
		upstream: upstream,
		breaker:  breaker,
		policy:   DefaultRetryPolicy(),
		fallback: DefaultFallbackMessage,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ProtectedStream executes the upstream call under the retry policy and
// circuit breaker. On retry exhaustion, breaker-open, timeout, or a
// non-retryable error it returns the fallback stream instead of failing.
func (w *Wrapper) ProtectedStream(ctx context.Context, req core.GenerationRequest) core.TokenStream {
	stream, err := w.attempt(ctx, req)
	if err != nil {
		slog.Warn("serving fallback response",
			"request_id", core.GetRequestID(ctx),
			"fingerprint", core.GetFingerprint(ctx),
			"error_kind", core.KindOf(err),
			"error", err,
		)
		w.metrics.FallbackServed()
		return core.SingleFragment(w.fallback)
	}
	return stream
}

// attempt runs up to MaxAttempts upstream calls, sleeping the jittered
// backoff between them. The context deadline is shared across all attempts;
// once it passes the call fails with a timeout regardless of retries left.
func (w *Wrapper) attempt(ctx context.Context, req core.GenerationRequest) (core.TokenStream, error) {
	bo := w.policy.newBackOff()
	maxAttempts := w.policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				w.metrics.UpstreamAttempt(string(core.ErrorKindTimeout))
				return nil, core.NewTimeoutError(ctx.Err())
			case <-time.After(bo.NextBackOff()):
			}
		}

		if err := w.breaker.Allow(); err != nil {
			w.metrics.UpstreamAttempt(string(core.ErrorKindCircuitOpen))
			return nil, err
		}

		stream, err := w.upstream.StreamCompletion(ctx, req)
		if err == nil {
			w.breaker.RecordSuccess()
			w.metrics.UpstreamAttempt("success")
			return stream, nil
		}

		kind := core.KindOf(err)
		w.metrics.UpstreamAttempt(string(kind))
		if breakerFailure(err) {
			w.breaker.RecordFailure()
		} else {
			// The upstream answered; the circuit stays healthy. Every call
			// admitted by Allow must settle its outcome or a half-open trial
			// permit would leak and wedge the breaker.
			w.breaker.RecordSuccess()
		}

		slog.Warn("upstream attempt failed",
			"request_id", core.GetRequestID(ctx),
			"fingerprint", core.GetFingerprint(ctx),
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error_kind", kind,
		)

		if !core.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// breakerFailure reports whether the failure counts against the breaker.
// Availability problems count; client-side protocol mistakes (4xx other
// than 429) record as successes, so a bad request cannot open the circuit.
func breakerFailure(err error) bool {
	if core.IsRetryable(err) {
		return true
	}
	var ue *core.UpstreamError
	if errors.As(err, &ue) {
		switch ue.Kind {
		case core.ErrorKindTimeout:
			return true
		case core.ErrorKindProtocol:
			return ue.StatusCode >= 500
		}
	}
	return false
}
