// Package openai implements the upstream client adapter for OpenAI-compatible
// chat completion APIs. It is a thin translation boundary: one HTTP call per
// stream, no retries, errors mapped onto the core taxonomy.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"chatrelay/internal/core"
	"chatrelay/internal/httpclient"
)

// DefaultBaseURL is the OpenAI API endpoint used unless overridden.
const DefaultBaseURL = "https://api.openai.com/v1"

// Config holds adapter configuration.
type Config struct {
	// APIKey is the bearer token sent with every request.
	APIKey string

	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient is the client used for requests. If nil, a default
	// streaming-tuned client is created.
	HTTPClient *http.Client
}

// Adapter translates GenerationRequests into streaming calls against an
// OpenAI-compatible provider.
type Adapter struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// New creates a new adapter.
func New(cfg Config) *Adapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = httpclient.NewDefaultHTTPClient()
	}
	return &Adapter{
		httpClient: client,
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
	}
}

// chatCompletionBody is the JSON body sent to /chat/completions.
type chatCompletionBody struct {
	Model            string         `json:"model"`
	Messages         []core.Message `json:"messages"`
	Stream           bool           `json:"stream"`
	Temperature      *float64       `json:"temperature,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
}

// StreamCompletion opens a streaming chat completion and returns the
// fragment stream. The connection is held for the life of the stream and
// released on EOF, error, or Close.
func (a *Adapter) StreamCompletion(ctx context.Context, req core.GenerationRequest) (core.TokenStream, error) {
	if req.Message == "" {
		return nil, core.NewProtocolError(0, "message must not be empty", nil)
	}

	body := chatCompletionBody{
		Model:            req.Model,
		Messages:         []core.Message{{Role: "user", Content: req.Message}},
		Stream:           true,
		Temperature:      req.Options.Temperature,
		MaxTokens:        req.Options.MaxTokens,
		TopP:             req.Options.TopP,
		FrequencyPenalty: req.Options.FrequencyPenalty,
		PresencePenalty:  req.Options.PresencePenalty,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, core.NewProtocolError(0, "failed to marshal request: "+err.Error(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, core.NewProtocolError(0, "failed to create request: "+err.Error(), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	if requestID := core.GetRequestID(ctx); requestID != "" {
		httpReq.Header.Set("X-Client-Request-Id", requestID)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, core.NewTimeoutError(ctx.Err())
		}
		return nil, core.NewTransportError("failed to send request: "+err.Error(), err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 32*1024))
		if readErr != nil {
			respBody = []byte("failed to read error response")
		}
		_ = resp.Body.Close()

		message := errorMessage(respBody)
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, core.NewRateLimitError(message)
		}
		return nil, core.NewProtocolError(resp.StatusCode, message, nil)
	}

	return newSSEStream(resp.Body), nil
}

// errorMessage extracts the provider's error.message field from an error
// body, falling back to the raw body text.
func errorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	return string(body)
}
