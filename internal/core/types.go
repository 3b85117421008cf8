// Package core provides the core types and interfaces for the chat relay.
package core

// DefaultModel is used when the caller does not name a model.
const DefaultModel = "gpt-4.1-nano"

// DefaultTemperature is used when the caller does not set a temperature.
const DefaultTemperature = 0.7

// GenerationRequest describes a single chat completion call.
// It is created per inbound request and never mutated afterwards.
type GenerationRequest struct {
	Message string            `json:"message"`
	Model   string            `json:"model,omitempty"`
	Options GenerationOptions `json:"options"`
}

// GenerationOptions holds the sampling parameters forwarded to the provider.
// Optional fields are pointers so an explicit zero stays distinguishable
// from unset.
type GenerationOptions struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Stream           bool     `json:"stream,omitempty"`
}

// WithDefaults returns a copy of the request with empty fields replaced by
// the service defaults. The receiver is not modified.
func (r GenerationRequest) WithDefaults() GenerationRequest {
	if r.Model == "" {
		r.Model = DefaultModel
	}
	if r.Options.Temperature == nil {
		t := DefaultTemperature
		r.Options.Temperature = &t
	}
	return r
}

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
