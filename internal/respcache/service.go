package respcache

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"chatrelay/internal/core"
	"chatrelay/internal/observability"
)

// ProtectedStreamer is the resilience-wrapped upstream call. It never
// returns an error; failures surface as a fallback fragment in the stream.
type ProtectedStreamer interface {
	ProtectedStream(ctx context.Context, req core.GenerationRequest) core.TokenStream
}

// Service orchestrates the cache around the protected upstream call:
// fingerprint, lookup, and on a miss a live tee of the fragment stream into
// the store.
type Service struct {
	upstream ProtectedStreamer
	store    Store
	metrics  *observability.Metrics
}

// NewService creates the cache service. store may be nil to disable caching
// entirely; metrics may be nil.
func NewService(upstream ProtectedStreamer, store Store, metrics *observability.Metrics) *Service {
	return &Service{
		upstream: upstream,
		store:    store,
		metrics:  metrics,
	}
}

// Generate answers a request, preferring the cache over the upstream call.
// A cache hit returns the stored text as a single fragment. On a miss, the
// upstream fragment stream is forwarded to the caller unchanged while being
// accumulated; once it completes cleanly the assembled text is stored if
// the cacheability gate passes. Partial (cancelled or failed) streams are
// never stored.
func (s *Service) Generate(ctx context.Context, req core.GenerationRequest) core.TokenStream {
	req = req.WithDefaults()
	fingerprint := Fingerprint(req.Message, req.Model, req.Options)
	ctx = core.WithFingerprint(ctx, fingerprint)

	if s.store != nil {
		text, ok, err := s.store.Lookup(ctx, fingerprint)
		switch {
		case err != nil:
			// A failing cache backend degrades to pass-through.
			slog.Warn("cache lookup failed",
				"request_id", core.GetRequestID(ctx),
				"fingerprint", fingerprint,
				"error", err,
			)
		case ok:
			s.metrics.CacheLookup(true)
			slog.Debug("cache hit", "fingerprint", fingerprint)
			return core.SingleFragment(text)
		default:
			s.metrics.CacheLookup(false)
		}
	}

	stream := s.upstream.ProtectedStream(ctx, req)
	if s.store == nil {
		return stream
	}
	return &teeStream{
		ctx:         ctx,
		inner:       stream,
		service:     s,
		message:     req.Message,
		fingerprint: fingerprint,
	}
}

// teeStream forwards fragments from the upstream stream while accumulating
// them for the cache. Delivery to the caller is never delayed: each
// fragment is appended and returned immediately.
type teeStream struct {
	ctx         context.Context
	inner       core.TokenStream
	service     *Service
	message     string
	fingerprint string
	full        strings.Builder
	settled     bool
}

func (t *teeStream) Recv() (string, error) {
	frag, err := t.inner.Recv()
	if err == io.EOF {
		t.complete()
		return "", io.EOF
	}
	if err != nil {
		// A failed stream is never cached.
		t.settled = true
		return "", err
	}
	t.full.WriteString(frag)
	return frag, nil
}

// Close releases the underlying stream. Closing before io.EOF discards the
// partial accumulation.
func (t *teeStream) Close() error {
	t.settled = true
	return t.inner.Close()
}

// complete runs once on clean stream end and conditionally stores the
// assembled text.
func (t *teeStream) complete() {
	if t.settled {
		return
	}
	t.settled = true

	fullText := t.full.String()
	if !Cacheable(t.message, fullText) {
		slog.Debug("response not cacheable", "fingerprint", t.fingerprint)
		return
	}

	// The caller's context may be cancelled the moment its stream ends;
	// the store write still has to go through.
	storeCtx := context.WithoutCancel(t.ctx)
	if err := t.service.store.Store(storeCtx, t.fingerprint, fullText); err != nil {
		slog.Warn("cache store failed",
			"request_id", core.GetRequestID(t.ctx),
			"fingerprint", t.fingerprint,
			"error", err,
		)
		return
	}
	t.service.metrics.CacheStore()
	slog.Debug("response cached", "fingerprint", t.fingerprint, "bytes", len(fullText))
}
