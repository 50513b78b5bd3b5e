package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/specialistvlad/scriptloader/internal/locator"
	"github.com/specialistvlad/scriptloader/internal/scripterr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(url string, calls *[]string) Func {
	return func(context.Context, string, string, string) (*locator.ScriptLocator, error) {
		*calls = append(*calls, url)
		if url == "" {
			return nil, nil
		}
		return &locator.ScriptLocator{URL: url}, nil
	}
}

func TestChain_FirstMatchWins(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	var calls []string
	c := NewChain()
	c.Add(fixed("", &calls))
	c.Add(fixed("http://specific/a.js", &calls))
	c.Add(fixed("http://fallback/a.js", &calls))

	// --- Act ---
	l, err := c.Resolve(context.Background(), "a", "", "")

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, "http://specific/a.js", l.URL)
	assert.Equal(t, []string{"", "http://specific/a.js"}, calls)
}

func TestChain_Priority(t *testing.T) {
	t.Parallel()

	var calls []string
	c := NewChain()
	c.Add(fixed("http://low", &calls), WithKey("low"))
	c.Add(fixed("http://high", &calls), WithKey("high"), WithPriority(10))

	l, err := c.Resolve(context.Background(), "a", "", "")
	require.NoError(t, err)
	assert.Equal(t, "http://high", l.URL)

	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "high", entries[0].Key)
}

func TestChain_KeyReplacesAndRemove(t *testing.T) {
	t.Parallel()

	var calls []string
	c := NewChain()
	c.Add(fixed("http://v1", &calls), WithKey("app"))
	c.Add(fixed("http://v2", &calls), WithKey("app"))
	require.Equal(t, 1, c.Len())

	l, err := c.Resolve(context.Background(), "a", "", "")
	require.NoError(t, err)
	assert.Equal(t, "http://v2", l.URL)

	assert.True(t, c.Remove("app"))
	assert.False(t, c.Remove("app"))
	assert.Equal(t, 0, c.Len())
}

func TestChain_Errors(t *testing.T) {
	t.Parallel()

	c := NewChain()
	_, err := c.Resolve(context.Background(), "a", "", "")
	assert.ErrorIs(t, err, scripterr.ErrNoResolvers)

	var calls []string
	c.Add(fixed("", &calls))
	_, err = c.Resolve(context.Background(), "a", "", "")
	assert.ErrorIs(t, err, scripterr.ErrUnresolved)

	boom := errors.New("lookup failed")
	c.Clear()
	c.Add(func(context.Context, string, string, string) (*locator.ScriptLocator, error) { return nil, boom })
	c.Add(fixed("http://never", &calls))
	_, err = c.Resolve(context.Background(), "a", "", "")
	assert.ErrorIs(t, err, boom)
	assert.NotContains(t, calls, "http://never")
}

func TestStatic(t *testing.T) {
	t.Parallel()

	fn, err := NewStatic(Static{
		Name:    "cdn",
		Match:   "src_*",
		Caller:  "main",
		Locator: locator.ScriptLocator{URL: "https://cdn.example/[caller]/[name].js", Headers: map[string]string{"a": "1"}},
	})
	require.NoError(t, err)

	l, err := fn(context.Background(), "src_App_js", "main", "")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "https://cdn.example/main/src_App_js.js", l.URL)

	l, err = fn(context.Background(), "vendor", "main", "")
	require.NoError(t, err)
	assert.Nil(t, l)

	l, err = fn(context.Background(), "src_App_js", "other", "")
	require.NoError(t, err)
	assert.Nil(t, l)

	_, err = NewStatic(Static{Name: "bad", Match: "[", Locator: locator.ScriptLocator{URL: "x"}})
	assert.Error(t, err)
	_, err = NewStatic(Static{Name: "nourl"})
	assert.Error(t, err)
}
