// Package cache decides whether a resolved script must be downloaded again.
//
// The Engine keeps an in-memory mirror of a single JSON document stored
// through a storage.Storage under a versioned key. The document maps each
// script's uniqueId to the snapshot of the locator it was last fetched with.
// It is loaded lazily on first use and retained for the lifetime of the
// Engine; individual entries are read with gjson and patched with sjson, so
// the mirror is always exactly what was last persisted.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/locator"
	"github.com/specialistvlad/scriptloader/internal/storage"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// KeyPrefix is the versioned storage key prefix. The namespace is appended.
const KeyPrefix = "ScriptManager.Cache.v4."

// DefaultNamespace is used when no namespace option is given.
const DefaultNamespace = "release"

var emptyDoc = []byte("{}")

// Engine is the cache decision layer. It is safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	storage storage.Storage
	key     string
	// doc is nil until the first load.
	doc []byte
}

// Option configures an Engine.
type Option func(*Engine)

// WithNamespace selects the storage key namespace, e.g. "debug".
func WithNamespace(ns string) Option {
	return func(e *Engine) {
		if ns != "" {
			e.key = KeyPrefix + ns
		}
	}
}

// New creates an Engine backed by s. A nil storage keeps the cache local to
// the process.
func New(s storage.Storage, opts ...Option) *Engine {
	e := &Engine{storage: s, key: KeyPrefix + DefaultNamespace}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Key returns the storage key of the cache document.
func (e *Engine) Key() string { return e.key }

// SetStorage swaps the storage adapter. The mirror is dropped and reloaded
// from the new adapter on next use.
func (e *Engine) SetStorage(s storage.Storage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.storage = s
	e.doc = nil
}

// Reset drops the in-memory mirror so the next call reloads it.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc = nil
}

// Decide sets candidate.Fetch and returns it.
//
// Scripts with caching disabled are always fetched. For cached scripts the
// candidate's ShouldUpdateScript, when present, has the final word;
// otherwise the script is fetched when it differs from the stored snapshot or
// has never been seen. The snapshot is persisted whenever a fetch is decided
// or no snapshot existed yet.
func (e *Engine) Decide(ctx context.Context, candidate *locator.Normalized) (bool, error) {
	logger := ctxlog.FromContext(ctx).With("unique_id", candidate.UniqueID)

	old, err := e.Entry(ctx, candidate.UniqueID)
	if err != nil {
		return false, err
	}
	outdated := old.Outdated(candidate)

	var fetch bool
	switch {
	case !candidate.Cache:
		fetch = true
	case candidate.ShouldUpdateScript != nil:
		fetch, err = candidate.ShouldUpdateScript(ctx, old, candidate, outdated)
		if err != nil {
			return false, fmt.Errorf("cache: shouldUpdateScript for %s: %w", candidate.UniqueID, err)
		}
	default:
		fetch = outdated
	}
	logger.Debug("Cache decision made.", "cache", candidate.Cache, "outdated", outdated, "fetch", fetch)

	if fetch || old == nil {
		if err := e.put(ctx, candidate.Entry()); err != nil {
			return false, err
		}
	}
	candidate.Fetch = fetch
	return fetch, nil
}

// Entry returns the stored snapshot for uniqueID, or nil when there is none.
func (e *Engine) Entry(ctx context.Context, uniqueID string) (*locator.CacheEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	res := gjson.GetBytes(e.doc, escapeKey(uniqueID))
	if !res.Exists() {
		return nil, nil
	}
	var entry locator.CacheEntry
	if err := json.Unmarshal([]byte(res.Raw), &entry); err != nil {
		ctxlog.FromContext(ctx).Warn("Ignoring unreadable cache entry.", "unique_id", uniqueID, "error", err)
		return nil, nil
	}
	return &entry, nil
}

// IDs returns the uniqueIds currently stored.
func (e *Engine) IDs(ctx context.Context) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return keys(e.doc), nil
}

// Invalidate removes the entries for ids and returns the ids removed. An
// empty ids clears the whole cache.
func (e *Engine) Invalidate(ctx context.Context, ids []string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	next := e.doc
	if len(ids) == 0 {
		ids = keys(e.doc)
		next = emptyDoc
	} else {
		for _, id := range ids {
			var err error
			next, err = sjson.DeleteBytes(next, escapeKey(id))
			if err != nil {
				return nil, fmt.Errorf("cache: invalidate %s: %w", id, err)
			}
		}
	}

	if err := e.write(ctx, next); err != nil {
		return nil, err
	}
	e.doc = next
	ctxlog.FromContext(ctx).Debug("Cache entries invalidated.", "count", len(ids))
	return ids, nil
}

func (e *Engine) put(ctx context.Context, entry locator.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", entry.UniqueID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureLoaded(ctx); err != nil {
		return err
	}
	next, err := sjson.SetRawBytes(e.doc, escapeKey(entry.UniqueID), raw)
	if err != nil {
		return fmt.Errorf("cache: update %s: %w", entry.UniqueID, err)
	}
	if err := e.write(ctx, next); err != nil {
		return err
	}
	e.doc = next
	return nil
}

// write persists doc. The caller updates the mirror only on success.
func (e *Engine) write(ctx context.Context, doc []byte) error {
	if e.storage == nil {
		return nil
	}
	if len(keys(doc)) == 0 {
		if err := e.storage.RemoveItem(ctx, e.key); err != nil {
			return fmt.Errorf("cache: remove %s: %w", e.key, err)
		}
		return nil
	}
	if err := e.storage.SetItem(ctx, e.key, string(doc)); err != nil {
		return fmt.Errorf("cache: persist %s: %w", e.key, err)
	}
	return nil
}

// ensureLoaded must be called with e.mu held.
func (e *Engine) ensureLoaded(ctx context.Context) error {
	if e.doc != nil {
		return nil
	}
	logger := ctxlog.FromContext(ctx)
	if e.storage == nil {
		e.doc = emptyDoc
		return nil
	}

	raw, ok, err := e.storage.GetItem(ctx, e.key)
	if err != nil {
		return fmt.Errorf("cache: load %s: %w", e.key, err)
	}
	switch {
	case !ok || raw == "":
		e.doc = emptyDoc
	case !gjson.Valid(raw) || !gjson.Parse(raw).IsObject():
		logger.Warn("Discarding unreadable script cache.", "key", e.key)
		e.doc = emptyDoc
	default:
		e.doc = []byte(raw)
	}
	logger.Debug("Script cache loaded.", "key", e.key, "entries", len(keys(e.doc)))
	return nil
}

func keys(doc []byte) []string {
	var out []string
	gjson.ParseBytes(doc).ForEach(func(k, _ gjson.Result) bool {
		out = append(out, k.String())
		return true
	})
	return out
}

// escapeKey turns a uniqueId into a gjson/sjson path matching it literally.
func escapeKey(id string) string {
	var b strings.Builder
	for i := 0; i < len(id); i++ {
		c := id[i]
		isWord := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
		if c < 0x80 && !isWord {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}
