package core

import "context"

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	requestIDKey   contextKey = "request-id"
	fingerprintKey contextKey = "fingerprint"
)

// WithRequestID returns a new context with the request ID attached.
// Correlation state travels explicitly on the context, never in
// goroutine-local storage.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithFingerprint returns a new context carrying the request fingerprint so
// inner layers can log it without recomputing the digest.
func WithFingerprint(ctx context.Context, fingerprint string) context.Context {
	return context.WithValue(ctx, fingerprintKey, fingerprint)
}

// GetFingerprint retrieves the request fingerprint from the context.
// Returns empty string if not found.
func GetFingerprint(ctx context.Context) string {
	if v := ctx.Value(fingerprintKey); v != nil {
		if fp, ok := v.(string); ok {
			return fp
		}
	}
	return ""
}
