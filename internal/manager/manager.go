// Package manager is the entry point of the script pipeline. A Manager turns
// a script id into a resolved Script, decides with the cache whether it has
// to be downloaded again, and drives a native Executor to load, prefetch or
// invalidate it. Every stage can be intercepted through Hooks.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/specialistvlad/scriptloader/internal/cache"
	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/loader"
	"github.com/specialistvlad/scriptloader/internal/locator"
	"github.com/specialistvlad/scriptloader/internal/resolver"
	"github.com/specialistvlad/scriptloader/internal/scripterr"
	"github.com/specialistvlad/scriptloader/internal/storage"
)

// Executor fetches and runs script bytes. Implementations report failures as
// *scripterr.NativeError so they can be classified for retries.
type Executor interface {
	LoadScript(ctx context.Context, scriptID string, l *locator.Normalized) error
	PrefetchScript(ctx context.Context, scriptID string, l *locator.Normalized) error
	// InvalidateScripts removes downloaded copies. An empty ids removes all.
	InvalidateScripts(ctx context.Context, ids []string) error
}

// Manager is safe for concurrent use. Reconfiguring resolvers, hooks or
// storage only affects operations started afterwards.
type Manager struct {
	executor  Executor
	logger    *slog.Logger
	cache     *cache.Engine
	resolvers *resolver.Chain
	hooks     *Hooks
	flights   *loader.Coordinator
}

type options struct {
	storage   storage.Storage
	logger    *slog.Logger
	namespace string
	resolvers []resolver.Func
}

// Option configures a Manager.
type Option func(*options)

// WithStorage persists the cache through s.
func WithStorage(s storage.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithLogger sets the logger used when a call's context carries none.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCacheNamespace selects the cache key namespace, e.g. "debug".
func WithCacheNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithResolvers registers resolvers in the given order.
func WithResolvers(fns ...resolver.Func) Option {
	return func(o *options) { o.resolvers = append(o.resolvers, fns...) }
}

// New creates a Manager driving executor.
func New(executor Executor, opts ...Option) (*Manager, error) {
	if executor == nil {
		return nil, &scripterr.ConfigurationError{Message: "no native executor is available"}
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		executor:  executor,
		logger:    o.logger,
		cache:     cache.New(o.storage, cache.WithNamespace(o.namespace)),
		resolvers: resolver.NewChain(),
		hooks:     newHooks(),
		flights:   loader.NewCoordinator(),
	}
	for _, fn := range o.resolvers {
		m.resolvers.Add(fn)
	}
	return m, nil
}

// Hooks returns the interception points of the manager.
func (m *Manager) Hooks() *Hooks { return m.hooks }

// Cache returns the cache engine, for inspection.
func (m *Manager) Cache() *cache.Engine { return m.cache }

// SetStorage swaps the storage backing the cache. The cache is reloaded
// from s on next use.
func (m *Manager) SetStorage(s storage.Storage) {
	m.cache.SetStorage(s)
}

// AddResolver registers fn and returns its key.
func (m *Manager) AddResolver(fn resolver.Func, opts ...resolver.Option) string {
	return m.resolvers.Add(fn, opts...)
}

// RemoveResolver removes the resolver registered under key.
func (m *Manager) RemoveResolver(key string) bool {
	return m.resolvers.Remove(key)
}

// RemoveAllResolvers clears the resolver chain.
func (m *Manager) RemoveAllResolvers() {
	m.resolvers.Clear()
}

func (m *Manager) withLogger(ctx context.Context) context.Context {
	if ctxlog.Has(ctx) {
		return ctx
	}
	return ctxlog.WithLogger(ctx, m.logger)
}

// ResolveScript resolves scriptID for caller into a Script and records the
// cache decision in Script.Locator.Fetch.
func (m *Manager) ResolveScript(ctx context.Context, scriptID, caller, referenceURL string) (*Script, error) {
	return m.resolve(m.withLogger(ctx), scriptID, caller, referenceURL)
}

func (m *Manager) resolve(ctx context.Context, scriptID, caller, referenceURL string) (*Script, error) {
	logger := ctxlog.FromContext(ctx).With("script_id", scriptID, "caller", caller)
	m.emit(ctx, Event{Kind: EventResolving, ScriptID: scriptID, Caller: caller})

	args, err := m.hooks.BeforeResolve.Call(ctx, ResolveArgs{ScriptID: scriptID, Caller: caller, ReferenceURL: referenceURL})
	var script *Script
	if err != nil {
		err = fmt.Errorf("beforeResolve hook: %w", err)
	} else {
		script, err = m.locateAndDecide(ctx, args)
	}

	if err != nil {
		logger.Debug("Resolution failed, consulting error hooks.", "error", err)
		l, ok, herr := m.hooks.ErrorResolve.Call(ctx, ErrorArgs{ScriptID: args.ScriptID, Caller: args.Caller, Err: err})
		switch {
		case herr != nil:
			err = errors.Join(err, fmt.Errorf("errorResolve hook: %w", herr))
		case ok && l != nil:
			logger.Info("Resolution recovered by error hook.", "url", l.URL)
			script, err = m.decide(ctx, args, l)
		}
	}
	if err != nil {
		rerr := &scripterr.ResolutionError{ScriptID: args.ScriptID, Caller: args.Caller, Err: err}
		m.emit(ctx, Event{Kind: EventError, ScriptID: args.ScriptID, Caller: args.Caller, Err: rerr})
		return nil, rerr
	}

	logger.Debug("Script resolved.", "unique_id", script.UniqueID(), "url", script.Locator.URL, "fetch", script.Fetch())
	m.emit(ctx, Event{Kind: EventResolved, ScriptID: script.ScriptID, Caller: script.Caller, Locator: &script.Locator})
	return script, nil
}

func (m *Manager) locateAndDecide(ctx context.Context, args ResolveArgs) (*Script, error) {
	entries := m.resolvers.Entries()
	l, ok, err := m.hooks.Resolve.Call(ctx, ResolveHookArgs{ResolveArgs: args, Resolvers: entries})
	if err != nil {
		return nil, fmt.Errorf("resolve hook: %w", err)
	}
	if !ok || l == nil {
		l, err = resolver.Resolve(ctx, entries, args.ScriptID, args.Caller, args.ReferenceURL)
		if err != nil {
			return nil, err
		}
	}
	return m.decide(ctx, args, l)
}

// decide normalizes l, applies the cache decision and runs AfterResolve.
func (m *Manager) decide(ctx context.Context, args ResolveArgs, l *locator.ScriptLocator) (*Script, error) {
	n, err := locator.Normalize(args.ScriptID, args.Caller, l)
	if err != nil {
		return nil, err
	}
	if _, err := m.cache.Decide(ctx, n); err != nil {
		return nil, err
	}

	after, err := m.hooks.AfterResolve.Call(ctx, AfterResolveArgs{
		ScriptID: args.ScriptID,
		Caller:   args.Caller,
		Script:   newScript(args.ScriptID, args.Caller, n),
	})
	if err != nil {
		return nil, fmt.Errorf("afterResolve hook: %w", err)
	}
	return after.Script, nil
}

// LoadScript resolves and loads a script. Concurrent loads of the same
// script share one attempt and its outcome. A load started while the script
// is being prefetched waits for the prefetch first.
func (m *Manager) LoadScript(ctx context.Context, scriptID, caller string) error {
	ctx = m.withLogger(ctx)
	uid := locator.UniqueID(scriptID, caller)

	if ran, err := m.flights.Wait(ctx, prefetchKey(uid)); ran {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			ctxlog.FromContext(ctx).Debug("Prefetch failed, loading anyway.", "unique_id", uid, "error", err)
		}
	}

	return m.flights.Do(ctx, uid, func(ctx context.Context) error {
		return m.load(ctx, scriptID, caller)
	})
}

func (m *Manager) load(ctx context.Context, scriptID, caller string) error {
	script, err := m.resolve(ctx, scriptID, caller, "")
	if err != nil {
		return err
	}
	logger := ctxlog.FromContext(ctx).With("script_id", script.ScriptID, "caller", script.Caller, "unique_id", script.UniqueID())

	args, err := m.hooks.BeforeLoad.Call(ctx, LoadArgs{ScriptID: script.ScriptID, Caller: script.Caller, Script: script})
	if err != nil {
		err = fmt.Errorf("beforeLoad hook: %w", err)
	} else {
		m.emit(ctx, Event{Kind: EventLoading, ScriptID: args.ScriptID, Caller: args.Caller, Locator: &args.Script.Locator})
		native := func(ctx context.Context) error {
			return m.retry(ctx, args.Script, func(ctx context.Context) error {
				return m.executor.LoadScript(ctx, args.ScriptID, &args.Script.Locator)
			})
		}
		if m.hooks.Load.Len() > 0 {
			err = m.hooks.Load.Call(ctx, LoadHookArgs{LoadArgs: args, LoadScript: native})
		} else {
			err = native(ctx)
		}
		if err == nil {
			if args, err = m.hooks.AfterLoad.Call(ctx, args); err != nil {
				err = fmt.Errorf("afterLoad hook: %w", err)
			}
		}
	}

	if err == nil {
		logger.Info("✅ Script loaded.", "fetched", args.Script.Fetch())
		m.emit(ctx, Event{Kind: EventLoaded, ScriptID: args.ScriptID, Caller: args.Caller, Locator: &args.Script.Locator})
		return nil
	}
	return m.failLoad(ctx, args, err, EventLoaded)
}

// PrefetchScript resolves a script and downloads it without running it. A
// prefetch started while the same script is loading joins that load.
func (m *Manager) PrefetchScript(ctx context.Context, scriptID, caller string) error {
	ctx = m.withLogger(ctx)
	uid := locator.UniqueID(scriptID, caller)

	if ran, err := m.flights.Wait(ctx, uid); ran {
		return err
	}

	return m.flights.Do(ctx, prefetchKey(uid), func(ctx context.Context) error {
		return m.prefetch(ctx, scriptID, caller)
	})
}

func (m *Manager) prefetch(ctx context.Context, scriptID, caller string) error {
	script, err := m.resolve(ctx, scriptID, caller, "")
	if err != nil {
		return err
	}
	args := LoadArgs{ScriptID: script.ScriptID, Caller: script.Caller, Script: script}

	m.emit(ctx, Event{Kind: EventPrefetching, ScriptID: args.ScriptID, Caller: args.Caller, Locator: &script.Locator})
	err = m.retry(ctx, script, func(ctx context.Context) error {
		return m.executor.PrefetchScript(ctx, script.ScriptID, &script.Locator)
	})
	if err != nil {
		return m.failLoad(ctx, args, err, EventPrefetched)
	}

	ctxlog.FromContext(ctx).Debug("Script prefetched.", "unique_id", script.UniqueID(), "fetched", script.Fetch())
	m.emit(ctx, Event{Kind: EventPrefetched, ScriptID: args.ScriptID, Caller: args.Caller, Locator: &script.Locator})
	return nil
}

// failLoad offers err to the ErrorLoad hook. When a tap recovers, the
// success event is emitted and nil returned; otherwise a LoadError is.
func (m *Manager) failLoad(ctx context.Context, args LoadArgs, err error, success EventKind) error {
	logger := ctxlog.FromContext(ctx).With("script_id", args.ScriptID, "caller", args.Caller)

	recovered, ok, herr := m.hooks.ErrorLoad.Call(ctx, ErrorArgs{
		ScriptID: args.ScriptID,
		Caller:   args.Caller,
		Locator:  &args.Script.Locator,
		Err:      err,
	})
	if herr != nil {
		err = errors.Join(err, fmt.Errorf("errorLoad hook: %w", herr))
	} else if ok && recovered {
		logger.Warn("Load failure recovered by error hook.", "error", err)
		m.emit(ctx, Event{Kind: success, ScriptID: args.ScriptID, Caller: args.Caller, Locator: &args.Script.Locator})
		return nil
	}

	lerr := &scripterr.LoadError{
		ScriptID:  args.ScriptID,
		Caller:    args.Caller,
		URL:       args.Script.Locator.RequestURL(),
		Retryable: scripterr.IsRetryable(err),
		Err:       err,
	}
	logger.Error("Script load failed.", "url", lerr.URL, "retryable", lerr.Retryable, "error", err)
	m.emit(ctx, Event{Kind: EventError, ScriptID: args.ScriptID, Caller: args.Caller, Locator: &args.Script.Locator, Err: lerr})
	return lerr
}

func (m *Manager) retry(ctx context.Context, s *Script, call func(ctx context.Context) error) error {
	p := loader.Policy{Retry: s.Locator.Retry, Delay: s.Locator.RetryDelay}
	return loader.Retry(ctx, p, func(ctx context.Context, _ int) error {
		return call(ctx)
	})
}

// InvalidateScripts drops the cache entries of ids and asks the executor to
// delete their downloaded copies. Nil or empty ids clears everything.
func (m *Manager) InvalidateScripts(ctx context.Context, ids []string) error {
	ctx = m.withLogger(ctx)
	logger := ctxlog.FromContext(ctx)

	removed, err := m.cache.Invalidate(ctx, ids)
	if err == nil {
		err = m.executor.InvalidateScripts(ctx, ids)
	}
	if err != nil {
		logger.Error("Failed to invalidate scripts.", "ids", ids, "error", err)
		m.emit(ctx, Event{Kind: EventError, IDs: ids, Err: err})
		return fmt.Errorf("scriptmanager: invalidate scripts: %w", err)
	}

	logger.Info("Scripts invalidated.", "count", len(removed))
	m.emit(ctx, Event{Kind: EventInvalidated, IDs: removed})
	return nil
}

func prefetchKey(uid string) string { return "prefetch:" + uid }
