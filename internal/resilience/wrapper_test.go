package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatrelay/internal/core"
)

// fakeStreamer returns scripted results and counts calls.
type fakeStreamer struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (core.TokenStream, error)
}

func (f *fakeStreamer) StreamCompletion(ctx context.Context, req core.GenerationRequest) (core.TokenStream, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call)
}

func (f *fakeStreamer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func fastRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:         3,
		InitialInterval:     time.Millisecond,
		Multiplier:          2.0,
		RandomizationFactor: 0.4,
		MaxInterval:         10 * time.Millisecond,
	}
}

func newTestWrapper(upstream core.Streamer) *Wrapper {
	breaker := NewBreaker("upstream", BreakerConfig{
		WindowSize:           10,
		FailureRateThreshold: 0.5,
		MinimumCalls:         5,
		OpenTimeout:          time.Minute,
		HalfOpenMaxCalls:     3,
	})
	return NewWrapper(upstream, breaker, WithRetryPolicy(fastRetryPolicy()))
}

func TestProtectedStreamSuccess(t *testing.T) {
	upstream := &fakeStreamer{fn: func(int) (core.TokenStream, error) {
		return core.SingleFragment("The capital of France is Paris."), nil
	}}

	w := newTestWrapper(upstream)
	full, err := core.Collect(w.ProtectedStream(context.Background(), core.GenerationRequest{Message: "capital of France?"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != "The capital of France is Paris." {
		t.Errorf("collected = %q", full)
	}
	if upstream.callCount() != 1 {
		t.Errorf("call count = %d, want 1", upstream.callCount())
	}
}

func TestProtectedStreamRetryBound(t *testing.T) {
	upstream := &fakeStreamer{fn: func(int) (core.TokenStream, error) {
		return nil, core.NewTransportError("connection reset", nil)
	}}

	w := newTestWrapper(upstream)
	full, err := core.Collect(w.ProtectedStream(context.Background(), core.GenerationRequest{Message: "hello there"}))
	if err != nil {
		t.Fatalf("ProtectedStream must never surface an error, got %v", err)
	}

	if upstream.callCount() != 3 {
		t.Errorf("call count = %d, want exactly 3 attempts", upstream.callCount())
	}
	if full != DefaultFallbackMessage {
		t.Errorf("collected = %q, want the fallback message", full)
	}
}

func TestProtectedStreamRetriesRateLimit(t *testing.T) {
	upstream := &fakeStreamer{fn: func(call int) (core.TokenStream, error) {
		if call < 3 {
			return nil, core.NewRateLimitError("throttled")
		}
		return core.SingleFragment("recovered response text"), nil
	}}

	w := newTestWrapper(upstream)
	full, err := core.Collect(w.ProtectedStream(context.Background(), core.GenerationRequest{Message: "hello there"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != "recovered response text" {
		t.Errorf("collected = %q, want the recovered text", full)
	}
	if upstream.callCount() != 3 {
		t.Errorf("call count = %d, want 3", upstream.callCount())
	}
}

func TestProtectedStreamNonRetryableShortCircuit(t *testing.T) {
	upstream := &fakeStreamer{fn: func(int) (core.TokenStream, error) {
		return nil, core.NewProtocolError(500, "malformed response", nil)
	}}

	w := newTestWrapper(upstream)
	full, err := core.Collect(w.ProtectedStream(context.Background(), core.GenerationRequest{Message: "hello there"}))
	if err != nil {
		t.Fatalf("ProtectedStream must never surface an error, got %v", err)
	}

	if upstream.callCount() != 1 {
		t.Errorf("call count = %d, want exactly 1 (no retry)", upstream.callCount())
	}
	if full != DefaultFallbackMessage {
		t.Errorf("collected = %q, want the fallback message", full)
	}
}

func TestProtectedStreamBreakerOpenFailsFast(t *testing.T) {
	upstream := &fakeStreamer{fn: func(int) (core.TokenStream, error) {
		return nil, core.NewTransportError("connection reset", nil)
	}}

	w := newTestWrapper(upstream)

	// Two requests of three failing attempts each trip the breaker
	// (6 failures in the window, minimum of 5 observed).
	for i := 0; i < 2; i++ {
		core.Collect(w.ProtectedStream(context.Background(), core.GenerationRequest{Message: "hello there"}))
	}
	if got := w.breaker.State(); got != StateOpen {
		t.Fatalf("breaker state = %v, want open", got)
	}

	before := upstream.callCount()
	full, _ := core.Collect(w.ProtectedStream(context.Background(), core.GenerationRequest{Message: "hello there"}))
	if upstream.callCount() != before {
		t.Errorf("open breaker still invoked upstream (%d -> %d calls)", before, upstream.callCount())
	}
	if full != DefaultFallbackMessage {
		t.Errorf("collected = %q, want the fallback message", full)
	}
}

func TestProtectedStreamHalfOpenSettlesClientErrors(t *testing.T) {
	// An outage trips the breaker; during the trial window a misconfigured
	// client keeps getting 404s. The upstream answered those calls, so they
	// must settle their trial permits and let the breaker close instead of
	// pinning it half-open until restart.
	mode := "down"
	upstream := &fakeStreamer{fn: func(int) (core.TokenStream, error) {
		switch mode {
		case "down":
			return nil, core.NewTransportError("connection reset", nil)
		case "bad request":
			return nil, core.NewProtocolError(404, "model not found", nil)
		default:
			return core.SingleFragment("a healthy answer once more"), nil
		}
	}}

	breaker := NewBreaker("upstream", BreakerConfig{
		WindowSize:           10,
		FailureRateThreshold: 0.5,
		MinimumCalls:         5,
		OpenTimeout:          50 * time.Millisecond,
		HalfOpenMaxCalls:     3,
	})
	w := NewWrapper(upstream, breaker, WithRetryPolicy(fastRetryPolicy()))

	for i := 0; i < 2; i++ {
		core.Collect(w.ProtectedStream(context.Background(), core.GenerationRequest{Message: "hello there"}))
	}
	if got := breaker.State(); got != StateOpen {
		t.Fatalf("breaker state = %v, want open after outage", got)
	}

	time.Sleep(60 * time.Millisecond)

	mode = "bad request"
	for i := 0; i < 3; i++ {
		core.Collect(w.ProtectedStream(context.Background(), core.GenerationRequest{Message: "hello there"}))
	}
	if got := breaker.State(); got != StateClosed {
		t.Fatalf("breaker state after trial window = %v, want closed", got)
	}

	mode = "healthy"
	before := upstream.callCount()
	full, err := core.Collect(w.ProtectedStream(context.Background(), core.GenerationRequest{Message: "hello there"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if full != "a healthy answer once more" {
		t.Errorf("collected = %q, want the healthy response", full)
	}
	if upstream.callCount() != before+1 {
		t.Errorf("healthy upstream not invoked (%d -> %d calls)", before, upstream.callCount())
	}
}

func TestProtectedStreamDeadlineBecomesFallback(t *testing.T) {
	slowPolicy := fastRetryPolicy()
	slowPolicy.InitialInterval = 200 * time.Millisecond

	upstream := &fakeStreamer{fn: func(int) (core.TokenStream, error) {
		return nil, core.NewTransportError("connection reset", nil)
	}}

	breaker := NewBreaker("upstream", DefaultBreakerConfig())
	w := NewWrapper(upstream, breaker, WithRetryPolicy(slowPolicy))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	full, err := core.Collect(w.ProtectedStream(ctx, core.GenerationRequest{Message: "hello there"}))
	if err != nil {
		t.Fatalf("ProtectedStream must never surface an error, got %v", err)
	}

	// Deadline hits during the first backoff sleep: one attempt, then the
	// fallback, well before the 200ms retry delay would elapse.
	if upstream.callCount() != 1 {
		t.Errorf("call count = %d, want 1", upstream.callCount())
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Errorf("took %v, deadline should cut the backoff short", elapsed)
	}
	if full != DefaultFallbackMessage {
		t.Errorf("collected = %q, want the fallback message", full)
	}
}

func TestProtectedStreamCustomFallback(t *testing.T) {
	upstream := &fakeStreamer{fn: func(int) (core.TokenStream, error) {
		return nil, core.NewProtocolError(500, "boom", nil)
	}}

	breaker := NewBreaker("upstream", DefaultBreakerConfig())
	w := NewWrapper(upstream, breaker,
		WithRetryPolicy(fastRetryPolicy()),
		WithFallbackMessage("custom outage text"),
	)

	full, _ := core.Collect(w.ProtectedStream(context.Background(), core.GenerationRequest{Message: "hello there"}))
	if full != "custom outage text" {
		t.Errorf("collected = %q, want custom fallback", full)
	}
}
