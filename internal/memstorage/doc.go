// Package memstorage provides an ephemeral, thread-safe, in-memory
// implementation of the storage.Storage interface.
//
// # Characteristics
//
//   - **Ephemeral:** values live only as long as the Store
//   - **Thread-Safe:** uses sync.Map, so independent keys never contend
//   - **Observable:** counts writes and removals, which tests use to assert
//     when the cache persisted its document
//
// # When to Use
//
// This implementation is suitable for:
//   - Tests of the cache engine and the manager
//   - Short-lived tools where re-downloading scripts on restart is acceptable
//
// For persistence across restarts use internal/filestorage.
package memstorage
