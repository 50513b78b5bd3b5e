package manager

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"

	"github.com/specialistvlad/scriptloader/internal/locator"
	"github.com/specialistvlad/scriptloader/internal/memstorage"
	"github.com/specialistvlad/scriptloader/internal/resolver"
	"github.com/specialistvlad/scriptloader/internal/scripterr"
	"github.com/specialistvlad/scriptloader/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mutableResolver returns whatever locator is currently set.
type mutableResolver struct {
	mu sync.Mutex
	l  locator.ScriptLocator
}

func (r *mutableResolver) set(l locator.ScriptLocator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.l = l
}

func (r *mutableResolver) resolve(context.Context, string, string, string) (*locator.ScriptLocator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.l
	return &l, nil
}

func prefixResolver(base string) resolver.Func {
	return func(_ context.Context, scriptID, _, _ string) (*locator.ScriptLocator, error) {
		return &locator.ScriptLocator{URL: base + "/" + scriptID + ".js"}, nil
	}
}

func newTestManager(t *testing.T, opts ...Option) (*Manager, *testutil.FakeExecutor, context.Context) {
	t.Helper()
	ctx, logger, _ := testutil.Logger(t)
	exec := testutil.NewFakeExecutor()
	m, err := New(exec, append([]Option{WithLogger(logger)}, opts...)...)
	require.NoError(t, err)
	return m, exec, ctx
}

func TestNew_RequiresExecutor(t *testing.T) {
	t.Parallel()

	_, err := New(nil)

	var cerr *scripterr.ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestShared(t *testing.T) {
	ResetShared()
	t.Cleanup(ResetShared)

	_, err := Shared()
	var cerr *scripterr.ConfigurationError
	require.ErrorAs(t, err, &cerr, "using the manager before Init must fail")

	require.NoError(t, Init(testutil.NewFakeExecutor()))
	m, err := Shared()
	require.NoError(t, err)
	assert.NotNil(t, m)

	assert.ErrorAs(t, Init(testutil.NewFakeExecutor()), &cerr)
}

func TestResolveScript_UniqueID(t *testing.T) {
	t.Parallel()

	m, _, ctx := newTestManager(t, WithResolvers(prefixResolver("http://cdn")))

	withCaller, err := m.ResolveScript(ctx, "src_App_js", "main", "")
	require.NoError(t, err)
	assert.Equal(t, "main_src_App_js", withCaller.UniqueID())
	assert.Equal(t, "http://cdn/src_App_js.js", withCaller.Locator.URL)

	noCaller, err := m.ResolveScript(ctx, "src_App_js", "", "")
	require.NoError(t, err)
	assert.Equal(t, "src_App_js", noCaller.UniqueID())
}

func TestResolveScript_Idempotent(t *testing.T) {
	t.Parallel()

	store := memstorage.New()
	m, _, ctx := newTestManager(t, WithStorage(store), WithResolvers(prefixResolver("http://cdn")))

	first, err := m.ResolveScript(ctx, "a", "", "")
	require.NoError(t, err)
	second, err := m.ResolveScript(ctx, "a", "", "")
	require.NoError(t, err)

	assert.True(t, first.Fetch(), "a script seen for the first time is fetched")
	assert.False(t, second.Fetch(), "an unchanged script is reused")
	assert.Equal(t, 1, store.SetCount())
}

func TestResolveScript_ChangeDetection(t *testing.T) {
	t.Parallel()

	body := "payload"
	changed := "changed"
	base := locator.ScriptLocator{
		URL:     "http://cdn/a.js",
		Query:   locator.QueryString("v=1"),
		Headers: map[string]string{"X-Env": "prod"},
		Body:    locator.BodyString(body),
	}
	testCases := []struct {
		name   string
		mutate func(l *locator.ScriptLocator)
	}{
		{"url", func(l *locator.ScriptLocator) { l.URL = "http://cdn/b.js" }},
		{"query", func(l *locator.ScriptLocator) { l.Query = locator.QueryMap(map[string]string{"v": "2"}) }},
		{"headers", func(l *locator.ScriptLocator) { l.Headers = map[string]string{"X-Env": "dev"} }},
		{"body", func(l *locator.ScriptLocator) { l.Body = locator.BodyString(changed) }},
		{"form body", func(l *locator.ScriptLocator) { l.Body = locator.BodyForm(url.Values{"k": {"v"}}) }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			res := &mutableResolver{}
			res.set(base)
			m, _, ctx := newTestManager(t, WithStorage(memstorage.New()), WithResolvers(res.resolve))
			_, err := m.ResolveScript(ctx, "a", "", "")
			require.NoError(t, err)

			// --- Act ---
			next := base
			tc.mutate(&next)
			res.set(next)
			script, err := m.ResolveScript(ctx, "a", "", "")

			// --- Assert ---
			require.NoError(t, err)
			assert.True(t, script.Fetch())
			stored, err := m.Cache().Entry(ctx, "a")
			require.NoError(t, err)
			require.NotNil(t, stored)
			assert.Equal(t, script.Locator.Entry(), *stored, "the persisted snapshot follows the new locator")
		})
	}
}

func TestResolveScript_Errors(t *testing.T) {
	t.Parallel()

	t.Run("no resolvers", func(t *testing.T) {
		t.Parallel()
		m, _, ctx := newTestManager(t)

		_, err := m.ResolveScript(ctx, "a", "main", "")

		var rerr *scripterr.ResolutionError
		require.ErrorAs(t, err, &rerr)
		assert.Equal(t, "a", rerr.ScriptID)
		assert.Equal(t, "main", rerr.Caller)
		assert.ErrorIs(t, err, scripterr.ErrNoResolvers)
	})

	t.Run("every resolver declines", func(t *testing.T) {
		t.Parallel()
		m, _, ctx := newTestManager(t)
		m.AddResolver(func(context.Context, string, string, string) (*locator.ScriptLocator, error) { return nil, nil })

		_, err := m.ResolveScript(ctx, "a", "", "")
		assert.ErrorIs(t, err, scripterr.ErrUnresolved)
	})

	t.Run("invalid locator", func(t *testing.T) {
		t.Parallel()
		m, _, ctx := newTestManager(t)
		m.AddResolver(func(context.Context, string, string, string) (*locator.ScriptLocator, error) {
			return &locator.ScriptLocator{URL: "http://cdn/a.js", Method: "PUT"}, nil
		})

		_, err := m.ResolveScript(ctx, "a", "", "")
		var rerr *scripterr.ResolutionError
		assert.ErrorAs(t, err, &rerr)
	})

	t.Run("persist failure", func(t *testing.T) {
		t.Parallel()
		store := memstorage.New()
		boom := errors.New("disk full")
		store.FailSets(boom)
		m, _, ctx := newTestManager(t, WithStorage(store), WithResolvers(prefixResolver("http://cdn")))

		_, err := m.ResolveScript(ctx, "a", "", "")
		assert.ErrorIs(t, err, boom)
	})
}

func TestResolvers_Management(t *testing.T) {
	t.Parallel()

	m, _, ctx := newTestManager(t)
	key := m.AddResolver(prefixResolver("http://first"))
	m.AddResolver(prefixResolver("http://urgent"), resolver.WithPriority(10))

	script, err := m.ResolveScript(ctx, "a", "", "")
	require.NoError(t, err)
	assert.Equal(t, "http://urgent/a.js", script.Locator.URL)

	assert.True(t, m.RemoveResolver(key))
	m.RemoveAllResolvers()
	_, err = m.ResolveScript(ctx, "a", "", "")
	assert.ErrorIs(t, err, scripterr.ErrNoResolvers)
}

func TestSetStorage_AppliesToLaterResolutions(t *testing.T) {
	t.Parallel()

	m, _, ctx := newTestManager(t, WithResolvers(prefixResolver("http://cdn")))
	_, err := m.ResolveScript(ctx, "a", "", "")
	require.NoError(t, err)

	store := memstorage.New()
	m.SetStorage(store)
	script, err := m.ResolveScript(ctx, "a", "", "")

	require.NoError(t, err)
	assert.True(t, script.Fetch(), "a fresh storage has no snapshot")
	raw, ok, err := store.GetItem(ctx, m.Cache().Key())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, raw, "http://cdn/a.js")
}

func TestInvalidateScripts(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	store := memstorage.New()
	m, exec, ctx := newTestManager(t, WithStorage(store), WithResolvers(prefixResolver("http://cdn")))
	for _, id := range []string{"a", "b"} {
		_, err := m.ResolveScript(ctx, id, "", "")
		require.NoError(t, err)
	}
	var events []Event
	m.Hooks().Events.Tap("record", func(_ context.Context, ev Event) error {
		events = append(events, ev)
		return nil
	})

	// --- Act ---
	require.NoError(t, m.InvalidateScripts(ctx, []string{"a"}))

	// --- Assert ---
	entry, err := m.Cache().Entry(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, entry)
	script, err := m.ResolveScript(ctx, "b", "", "")
	require.NoError(t, err)
	assert.False(t, script.Fetch(), "other entries survive")

	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"a"}, calls[0].IDs)
	require.NotEmpty(t, events)
	assert.Equal(t, EventInvalidated, events[0].Kind)
	assert.Equal(t, []string{"a"}, events[0].IDs)

	// Clearing everything removes the persisted document.
	require.NoError(t, m.InvalidateScripts(ctx, nil))
	_, ok, err := store.GetItem(ctx, m.Cache().Key())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, exec.Calls()[1].IDs)
}

func TestInvalidateScripts_ExecutorFailure(t *testing.T) {
	t.Parallel()

	m, exec, ctx := newTestManager(t)
	exec.InvalidateErrs = []error{scripterr.NewNative(scripterr.ScriptInvalidationFailure, nil, "rm failed")}

	err := m.InvalidateScripts(ctx, nil)

	code, ok := scripterr.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, scripterr.ScriptInvalidationFailure, code)
}
