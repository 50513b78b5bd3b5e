package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/scriptloader/internal/locator"
	"github.com/specialistvlad/scriptloader/internal/resolver"
	"github.com/specialistvlad/scriptloader/internal/scripterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHooks_BeforeResolveOrder(t *testing.T) {
	t.Parallel()

	m, _, ctx := newTestManager(t, WithResolvers(prefixResolver("http://cdn")))
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		m.Hooks().BeforeResolve.Tap(name, func(_ context.Context, args ResolveArgs) (ResolveArgs, error) {
			order = append(order, name)
			return args, nil
		})
	}

	_, err := m.ResolveScript(ctx, "a", "", "")

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestHooks_BeforeResolveWaterfall(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var seenByResolver, seenByAfter []string
	m, _, ctx := newTestManager(t)
	m.AddResolver(func(_ context.Context, scriptID, caller, _ string) (*locator.ScriptLocator, error) {
		seenByResolver = append(seenByResolver, scriptID, caller)
		return &locator.ScriptLocator{URL: "http://cdn/" + scriptID}, nil
	})
	m.Hooks().BeforeResolve.Tap("prefix", func(_ context.Context, args ResolveArgs) (ResolveArgs, error) {
		return ResolveArgs{ScriptID: "prefix_" + args.ScriptID}, nil
	})
	m.Hooks().BeforeResolve.Tap("caller", func(_ context.Context, args ResolveArgs) (ResolveArgs, error) {
		seenByAfter = append(seenByAfter, args.ScriptID)
		return ResolveArgs{Caller: "host"}, nil
	})

	// --- Act ---
	script, err := m.ResolveScript(ctx, "a", "main", "")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"prefix_a"}, seenByAfter)
	assert.Equal(t, []string{"prefix_a", "host"}, seenByResolver)
	assert.Equal(t, "prefix_a", script.ScriptID)
	assert.Equal(t, "host_prefix_a", script.UniqueID())
}

func TestHooks_ResolveShortCircuitsChain(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	chainCalled := false
	m, _, ctx := newTestManager(t)
	m.AddResolver(func(context.Context, string, string, string) (*locator.ScriptLocator, error) {
		chainCalled = true
		return &locator.ScriptLocator{URL: "http://chain/a.js"}, nil
	}, resolver.WithKey("fallback"))

	var offered []string
	m.Hooks().Resolve.Tap("decline", func(_ context.Context, args ResolveHookArgs) (*locator.ScriptLocator, bool, error) {
		for _, e := range args.Resolvers {
			offered = append(offered, e.Key)
		}
		return nil, false, nil
	})
	m.Hooks().Resolve.Tap("custom", func(_ context.Context, args ResolveHookArgs) (*locator.ScriptLocator, bool, error) {
		return &locator.ScriptLocator{URL: "http://hook/" + args.ScriptID + ".js"}, true, nil
	})

	// --- Act ---
	script, err := m.ResolveScript(ctx, "a", "", "")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "http://hook/a.js", script.Locator.URL)
	assert.False(t, chainCalled)
	assert.Equal(t, []string{"fallback"}, offered)
}

func TestHooks_ResolveCanDelegateToResolvers(t *testing.T) {
	t.Parallel()

	m, _, ctx := newTestManager(t, WithResolvers(prefixResolver("http://cdn")))
	m.Hooks().Resolve.Tap("delegate", func(ctx context.Context, args ResolveHookArgs) (*locator.ScriptLocator, bool, error) {
		l, err := resolver.Resolve(ctx, args.Resolvers, args.ScriptID, args.Caller, args.ReferenceURL)
		if err != nil {
			return nil, false, err
		}
		l.Headers = map[string]string{"X-Hook": "1"}
		return l, true, nil
	})

	script, err := m.ResolveScript(ctx, "a", "", "")

	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x-hook": "1"}, script.Locator.Headers)
}

func TestHooks_AfterResolveReplacesScript(t *testing.T) {
	t.Parallel()

	m, _, ctx := newTestManager(t, WithResolvers(prefixResolver("http://cdn")))
	m.Hooks().AfterResolve.Tap("rewrite", func(_ context.Context, args AfterResolveArgs) (AfterResolveArgs, error) {
		s := *args.Script
		s.Locator.URL = "http://mirror/a.js"
		return AfterResolveArgs{Script: &s}, nil
	})

	script, err := m.ResolveScript(ctx, "a", "", "")

	require.NoError(t, err)
	assert.Equal(t, "http://mirror/a.js", script.Locator.URL)
}

func TestHooks_ErrorResolveRecovery(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m, _, ctx := newTestManager(t)
	var got ErrorArgs
	m.Hooks().ErrorResolve.Tap("fallback", func(_ context.Context, args ErrorArgs) (*locator.ScriptLocator, bool, error) {
		got = args
		return &locator.ScriptLocator{URL: "http://fallback/" + args.ScriptID + ".js"}, true, nil
	})

	// --- Act ---
	script, err := m.ResolveScript(ctx, "a", "main", "")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "http://fallback/a.js", script.Locator.URL)
	assert.True(t, script.Fetch())
	assert.Equal(t, "a", got.ScriptID)
	assert.Equal(t, "main", got.Caller)
	assert.ErrorIs(t, got.Err, scripterr.ErrNoResolvers)
}

func TestHooks_ErrorResolveDeclines(t *testing.T) {
	t.Parallel()

	m, _, ctx := newTestManager(t)
	m.Hooks().ErrorResolve.Tap("observe", func(context.Context, ErrorArgs) (*locator.ScriptLocator, bool, error) {
		return nil, false, nil
	})
	var errEvent *Event
	m.Hooks().Events.Tap("errors", func(_ context.Context, ev Event) error {
		if ev.Kind == EventError {
			errEvent = &ev
		}
		return nil
	})

	_, err := m.ResolveScript(ctx, "a", "", "")

	var rerr *scripterr.ResolutionError
	require.ErrorAs(t, err, &rerr)
	require.NotNil(t, errEvent)
	assert.Equal(t, "a", errEvent.ScriptID)
}

func TestHooks_PanicInHookFeedsErrorHook(t *testing.T) {
	t.Parallel()

	m, _, ctx := newTestManager(t, WithResolvers(prefixResolver("http://cdn")))
	m.Hooks().BeforeResolve.Tap("broken", func(context.Context, ResolveArgs) (ResolveArgs, error) {
		panic("boom")
	})
	recovered := false
	m.Hooks().ErrorResolve.Tap("rescue", func(_ context.Context, args ErrorArgs) (*locator.ScriptLocator, bool, error) {
		recovered = true
		return &locator.ScriptLocator{URL: "http://rescue/a.js"}, true, nil
	})

	script, err := m.ResolveScript(ctx, "a", "", "")

	require.NoError(t, err)
	assert.True(t, recovered)
	assert.Equal(t, "http://rescue/a.js", script.Locator.URL)
}

func TestHooks_LoadSeriesReplacesNative(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	m, exec, ctx := newTestManager(t, WithResolvers(prefixResolver("http://cdn")))
	var order []string
	record := func(name string) {
		order = append(order, name)
	}
	m.Hooks().BeforeLoad.Tap("before", func(_ context.Context, args LoadArgs) (LoadArgs, error) {
		record("beforeLoad")
		return args, nil
	})
	m.Hooks().Load.Tap("first", func(context.Context, LoadHookArgs) error {
		record("load:first")
		return nil
	})
	m.Hooks().Load.Tap("second", func(_ context.Context, args LoadHookArgs) error {
		record("load:second")
		assert.Equal(t, "a", args.ScriptID)
		return nil
	})
	m.Hooks().AfterLoad.Tap("after", func(_ context.Context, args LoadArgs) (LoadArgs, error) {
		record("afterLoad")
		return args, nil
	})

	// --- Act ---
	err := m.LoadScript(ctx, "a", "")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"beforeLoad", "load:first", "load:second", "afterLoad"}, order)
	assert.Zero(t, exec.Count("load"), "load taps replace the native call")
}

func TestHooks_LoadTapCanRunNative(t *testing.T) {
	t.Parallel()

	m, exec, ctx := newTestManager(t, WithResolvers(prefixResolver("http://cdn")))
	m.Hooks().Load.Tap("wrap", func(ctx context.Context, args LoadHookArgs) error {
		return args.LoadScript(ctx)
	})

	require.NoError(t, m.LoadScript(ctx, "a", ""))
	assert.Equal(t, 1, exec.Count("load"))
}

func TestHooks_ErrorLoadFlow(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		recover   bool
		expectErr bool
	}{
		{name: "recovered", recover: true},
		{name: "not recovered", recover: false, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			m, _, ctx := newTestManager(t, WithResolvers(prefixResolver("http://cdn")))
			boom := errors.New("hook failed")
			var order []string
			m.Hooks().BeforeLoad.Tap("before", func(_ context.Context, args LoadArgs) (LoadArgs, error) {
				order = append(order, "beforeLoad")
				return args, nil
			})
			m.Hooks().Load.Tap("load", func(context.Context, LoadHookArgs) error {
				order = append(order, "load")
				return boom
			})
			m.Hooks().AfterLoad.Tap("after", func(_ context.Context, args LoadArgs) (LoadArgs, error) {
				order = append(order, "afterLoad")
				return args, nil
			})
			m.Hooks().ErrorLoad.Tap("error", func(_ context.Context, args ErrorArgs) (bool, bool, error) {
				order = append(order, "errorLoad")
				assert.ErrorIs(t, args.Err, boom)
				if assert.NotNil(t, args.Locator) {
					assert.Equal(t, "http://cdn/a.js", args.Locator.URL)
				}
				return tc.recover, tc.recover, nil
			})

			// --- Act ---
			err := m.LoadScript(ctx, "a", "")

			// --- Assert ---
			assert.Equal(t, []string{"beforeLoad", "load", "errorLoad"}, order)
			if tc.expectErr {
				var lerr *scripterr.LoadError
				require.ErrorAs(t, err, &lerr)
				assert.ErrorIs(t, err, boom)
				assert.False(t, lerr.Retryable)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHooks_FailingEventObserverIsIgnored(t *testing.T) {
	t.Parallel()

	m, _, ctx := newTestManager(t, WithResolvers(prefixResolver("http://cdn")))
	m.Hooks().Events.Tap("broken", func(context.Context, Event) error {
		return errors.New("observer down")
	})

	assert.NoError(t, m.LoadScript(ctx, "a", ""))
}
