package core

import (
	"context"
	"io"
)

// TokenStream is a lazy, finite, non-restartable sequence of text fragments.
// Recv returns the next fragment, io.EOF when the stream is exhausted, or
// another error if the stream failed mid-flight. A stream must be fully
// consumed or closed so the underlying connection is released. Fragments are
// delivered in emission order; the pull-based contract means a slow consumer
// naturally throttles the producer.
type TokenStream interface {
	Recv() (string, error)
	Close() error
}

// Streamer produces a token stream for a generation request.
// Implemented by the upstream adapter and by the layers wrapped around it.
type Streamer interface {
	StreamCompletion(ctx context.Context, req GenerationRequest) (TokenStream, error)
}

// singleStream emits exactly one fragment and then io.EOF.
type singleStream struct {
	text string
	done bool
}

// SingleFragment returns a TokenStream that yields text as one fragment.
// Used for cache hits and fallback responses.
func SingleFragment(text string) TokenStream {
	return &singleStream{text: text}
}

func (s *singleStream) Recv() (string, error) {
	if s.done {
		return "", io.EOF
	}
	s.done = true
	return s.text, nil
}

func (s *singleStream) Close() error {
	s.done = true
	return nil
}

// Collect drains a stream and concatenates all fragments. The stream is
// closed before returning. On mid-stream failure the partial text is
// returned alongside the error.
func Collect(ts TokenStream) (string, error) {
	defer func() {
		_ = ts.Close()
	}()

	var out []byte
	for {
		frag, err := ts.Recv()
		if err == io.EOF {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, frag...)
	}
}
