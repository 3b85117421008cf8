package resilience

import (
	"testing"
	"time"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	if p.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", p.MaxAttempts)
	}
	if p.InitialInterval != 2*time.Second {
		t.Errorf("InitialInterval = %v, want 2s", p.InitialInterval)
	}
	if p.Multiplier != 2.0 {
		t.Errorf("Multiplier = %v, want 2.0", p.Multiplier)
	}
	if p.RandomizationFactor != 0.4 {
		t.Errorf("RandomizationFactor = %v, want 0.4", p.RandomizationFactor)
	}
}

func TestBackOffJitterBounds(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:         3,
		InitialInterval:     100 * time.Millisecond,
		Multiplier:          2.0,
		RandomizationFactor: 0.4,
		MaxInterval:         time.Second,
	}

	// First delay is the initial interval jittered by ±40%, second is
	// doubled and jittered again. Sample repeatedly; jitter is random.
	for i := 0; i < 50; i++ {
		bo := p.newBackOff()

		first := bo.NextBackOff()
		if first < 60*time.Millisecond || first > 140*time.Millisecond {
			t.Fatalf("first delay %v outside [60ms, 140ms]", first)
		}

		second := bo.NextBackOff()
		if second < 120*time.Millisecond || second > 280*time.Millisecond {
			t.Fatalf("second delay %v outside [120ms, 280ms]", second)
		}
	}
}

func TestBackOffNeverStops(t *testing.T) {
	// Attempt counting lives in the wrapper; the schedule itself must not
	// give up early via MaxElapsedTime.
	bo := DefaultRetryPolicy().newBackOff()
	for i := 0; i < 5; i++ {
		if d := bo.NextBackOff(); d < 0 {
			t.Fatalf("NextBackOff() = %v on draw %d, schedule stopped early", d, i)
		}
	}
}
