// Package storage defines the key/value adapter used to persist resolved
// locator snapshots across process restarts.
//
// # Why Storage Exists
//
// The cache engine keeps an in-memory mirror of every locator it has
// resolved. Without a persistent adapter that mirror is lost when the process
// exits, and every script is downloaded again on the next start. The adapter
// is deliberately minimal so that any string key/value store can back it:
//   - internal/memstorage keeps values in memory (tests, short-lived tools)
//   - internal/filestorage keeps one file per key on disk
//
// # Contract
//
// Values are opaque strings. The cache writes a single JSON document under a
// versioned key, so adapters never need to understand its content.
//
// # Thread-Safety Requirements
//
// Implementations MUST be safe for concurrent use. The cache serializes its
// own writes, but other components (watchers, CLI commands) may read the same
// keys concurrently.
package storage

import "context"

// Storage is a minimal asynchronous key/value store.
type Storage interface {
	// GetItem returns the value stored under key. ok is false when the key
	// does not exist.
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)

	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key, value string) error

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error
}
