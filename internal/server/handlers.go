// Package server provides the HTTP boundary for the chat relay.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"chatrelay/internal/core"
	"chatrelay/internal/observability"
)

// Generator answers chat requests with a token stream. The stream always
// carries at least one fragment; failures surface as fallback text, never
// as an error the handler must translate.
type Generator interface {
	Generate(ctx context.Context, req core.GenerationRequest) core.TokenStream
}

// ChatStreamRequest is the inbound request DTO.
type ChatStreamRequest struct {
	Message     string   `json:"message" query:"message" validate:"required,max=8192"`
	Model       string   `json:"model,omitempty" query:"model" validate:"omitempty,max=128"`
	Temperature *float64 `json:"temperature,omitempty" query:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   *int     `json:"max_tokens,omitempty" query:"max_tokens" validate:"omitempty,gte=1"`
}

// Handler holds the HTTP handlers.
type Handler struct {
	generator Generator
	metrics   *observability.Metrics
}

// NewHandler creates a new handler around the generation service.
func NewHandler(generator Generator, metrics *observability.Metrics) *Handler {
	return &Handler{generator: generator, metrics: metrics}
}

// ChatStream handles GET and POST /v1/chat/stream. The response is a
// chunked text/plain body of fragments, flushed as they arrive.
func (h *Handler) ChatStream(c echo.Context) error {
	var req ChatStreamRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request: "+err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "invalid request: "+err.Error())
	}

	genReq := core.GenerationRequest{
		Message: req.Message,
		Model:   req.Model,
	}
	genReq.Options.Temperature = req.Temperature
	genReq.Options.MaxTokens = req.MaxTokens

	ctx := c.Request().Context()
	stream := h.generator.Generate(ctx, genReq)
	defer func() {
		_ = stream.Close()
	}()

	h.metrics.StreamOpened()
	defer h.metrics.StreamClosed()

	c.Response().Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().WriteHeader(http.StatusOK)

	for {
		frag, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// Headers are sent; nothing to do but stop the stream.
			slog.Warn("stream interrupted",
				"request_id", core.GetRequestID(ctx),
				"error", err,
			)
			return nil
		}
		if _, err := c.Response().Write([]byte(frag)); err != nil {
			// Client went away; the deferred Close releases upstream.
			return nil
		}
		c.Response().Flush()
	}
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "invalid_request_error",
			"message": message,
		},
	})
}
