package respcache

import "context"

// Store is the backing cache for assembled responses, keyed by fingerprint.
// Implementations must be safe for concurrent use; Store follows
// last-write-wins semantics and unconditionally overwrites existing entries.
type Store interface {
	// Lookup returns the cached text for a fingerprint, with ok=false on miss.
	Lookup(ctx context.Context, fingerprint string) (text string, ok bool, err error)

	// Store writes the full response text for a fingerprint.
	Store(ctx context.Context, fingerprint, text string) error

	// Delete evicts a single entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, fingerprint string) error

	// Flush evicts all entries.
	Flush(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
