package openai

import (
	"bufio"
	"io"
	"strings"

	"github.com/tidwall/gjson"

	"chatrelay/internal/core"
)

// maxSSELineSize bounds a single SSE line; provider chunks are small but
// error payloads embedded in the stream can be larger.
const maxSSELineSize = 1024 * 1024

// sseStream decodes an OpenAI-compatible SSE response body into text
// fragments. It owns the response body and closes it on every exit path.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELineSize)
	return &sseStream{
		body:    body,
		scanner: scanner,
	}
}

// Recv returns the next non-empty content fragment. Chunks without delta
// content (role preludes, finish chunks) are skipped. The "[DONE]" sentinel
// and plain EOF both terminate the stream with io.EOF.
func (s *sseStream) Recv() (string, error) {
	if s.closed {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.finish()
			return "", io.EOF
		}

		content := gjson.Get(data, "choices.0.delta.content")
		if !content.Exists() || content.String() == "" {
			continue
		}
		return content.String(), nil
	}

	err := s.scanner.Err()
	s.finish()
	if err != nil {
		return "", core.NewTransportError("stream interrupted: "+err.Error(), err)
	}
	return "", io.EOF
}

// Close releases the underlying connection. Safe to call multiple times and
// mid-stream; closing before the body is drained aborts the HTTP response.
func (s *sseStream) Close() error {
	if s.closed {
		return nil
	}
	return s.finish()
}

func (s *sseStream) finish() error {
	s.closed = true
	return s.body.Close()
}
