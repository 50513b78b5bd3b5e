// Package resolver maps script ids to locators. A Chain holds user supplied
// resolver functions and returns the first locator one of them produces.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/locator"
	"github.com/specialistvlad/scriptloader/internal/scripterr"
)

// Func resolves a script. A nil locator with a nil error means the script
// is not handled by this resolver.
type Func func(ctx context.Context, scriptID, caller, referenceURL string) (*locator.ScriptLocator, error)

// Entry is a registered resolver.
type Entry struct {
	Priority int
	Key      string
	Resolve  Func
}

// Option configures an Entry on registration.
type Option func(*Entry)

// WithPriority sets the priority. Higher priorities run first; entries with
// equal priority keep registration order.
func WithPriority(p int) Option {
	return func(e *Entry) { e.Priority = p }
}

// WithKey names the entry so it can be removed later. Adding an entry with
// an existing key replaces it.
func WithKey(key string) Option {
	return func(e *Entry) { e.Key = key }
}

// Chain is an ordered, concurrency-safe list of resolvers.
type Chain struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewChain creates an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Add registers fn and returns its key.
func (c *Chain) Add(fn Func, opts ...Option) string {
	if fn == nil {
		panic("resolver: nil resolver function")
	}
	e := Entry{Resolve: fn}
	for _, opt := range opts {
		opt(&e)
	}
	if e.Key == "" {
		e.Key = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = without(c.entries, e.Key)
	c.entries = append(c.entries, e)
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].Priority > c.entries[j].Priority
	})
	slog.Debug("Registering script resolver.", "key", e.Key, "priority", e.Priority)
	return e.Key
}

// Remove unregisters the resolver with key.
func (c *Chain) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := len(c.entries)
	c.entries = without(c.entries, key)
	return len(c.entries) != before
}

// Clear removes every resolver.
func (c *Chain) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// Len returns the number of registered resolvers.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a snapshot of the resolvers in execution order.
func (c *Chain) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Resolve tries each resolver in order and returns the first locator
// produced. A resolver error aborts the chain.
func (c *Chain) Resolve(ctx context.Context, scriptID, caller, referenceURL string) (*locator.ScriptLocator, error) {
	return Resolve(ctx, c.Entries(), scriptID, caller, referenceURL)
}

// Resolve runs entries in order with first-match-wins semantics.
func Resolve(ctx context.Context, entries []Entry, scriptID, caller, referenceURL string) (*locator.ScriptLocator, error) {
	logger := ctxlog.FromContext(ctx)
	if len(entries) == 0 {
		return nil, scripterr.ErrNoResolvers
	}
	for _, e := range entries {
		l, err := e.Resolve(ctx, scriptID, caller, referenceURL)
		if err != nil {
			return nil, fmt.Errorf("resolver %q failed: %w", e.Key, err)
		}
		if l != nil {
			logger.Debug("Script resolved by resolver.", "script_id", scriptID, "caller", caller, "resolver", e.Key)
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w %q", scripterr.ErrUnresolved, scriptID)
}

func without(entries []Entry, key string) []Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}
