package respcache

import "testing"

func TestCacheable(t *testing.T) {
	tests := []struct {
		name     string
		message  string
		fullText string
		want     bool
	}{
		{
			name:     "both too short",
			message:  "hi",
			fullText: "ok",
			want:     false,
		},
		{
			name:     "message long enough but response too short",
			message:  "What is the capital of France?",
			fullText: "Paris.",
			want:     false,
		},
		{
			name:     "time-sensitive terms present",
			message:  "What is the capital of France?",
			fullText: "The current capital is Paris as of today.",
			want:     false,
		},
		{
			name:     "clean factual answer",
			message:  "What is the capital of France?",
			fullText: "The capital of France is Paris.",
			want:     true,
		},
		{
			name:     "uppercase time-sensitive term",
			message:  "What is the capital of France?",
			fullText: "RIGHT NOW the capital of France is Paris.",
			want:     false,
		},
		{
			name:     "apology is a degraded answer",
			message:  "What is the capital of France?",
			fullText: "Sorry, I cannot answer that question properly.",
			want:     false,
		},
		{
			name:     "error mention",
			message:  "What is the capital of France?",
			fullText: "An error occurred while processing your request.",
			want:     false,
		},
		{
			name:     "fallback message is never cached",
			message:  "What is the capital of France?",
			fullText: "The assistant is temporarily unavailable. Please try again in a moment.",
			want:     false,
		},
		{
			name:     "incidental substring still rejects",
			message:  "How does electric charge move?",
			fullText: "Current flows through a resistor from high to low potential.",
			want:     false,
		},
		{
			name:     "longer factual answer",
			message:  "What is the capital of France?",
			fullText: "Paris is the capital, a well-established fact of geography.",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cacheable(tt.message, tt.fullText); got != tt.want {
				t.Errorf("Cacheable(%q, %q) = %v, want %v", tt.message, tt.fullText, got, tt.want)
			}
		})
	}
}
