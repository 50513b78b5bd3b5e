package policy

import (
	"context"
	"testing"

	"github.com/specialistvlad/scriptloader/internal/locator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidate(t *testing.T, url string, headers map[string]string) *locator.Normalized {
	t.Helper()
	n, err := locator.Normalize("a", "", &locator.ScriptLocator{URL: url, Headers: headers})
	require.NoError(t, err)
	return n
}

func TestCompile_Engines(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		engine Engine
		source string
	}{
		{"expr", EngineExpr, `outdated || new.headers["x-force"] == "1"`},
		{"default engine", "", `outdated || new.headers["x-force"] == "1"`},
		{"cel", EngineCEL, `outdated || ("x-force" in new.headers && new.headers["x-force"] == "1")`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			fn, err := Compile(tc.engine, tc.source)
			require.NoError(t, err)
			ctx := context.Background()
			stored := candidate(t, "http://x/a.js", nil).Entry()

			// --- Act & Assert ---
			ok, err := fn(ctx, &stored, candidate(t, "http://x/a.js", nil), false)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = fn(ctx, &stored, candidate(t, "http://x/a.js", map[string]string{"X-Force": "1"}), false)
			require.NoError(t, err)
			assert.True(t, ok, "header forces a refetch")

			ok, err = fn(ctx, nil, candidate(t, "http://x/a.js", nil), true)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestCompile_ComparesOldAndNew(t *testing.T) {
	t.Parallel()

	fn, err := Compile(EngineCEL, `size(old) > 0 && old.url != new.url`)
	require.NoError(t, err)
	ctx := context.Background()

	stored := candidate(t, "http://x/a.js", nil).Entry()
	ok, err := fn(ctx, &stored, candidate(t, "http://x/b.js", nil), true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = fn(ctx, nil, candidate(t, "http://x/b.js", nil), true)
	require.NoError(t, err)
	assert.False(t, ok, "old is empty on first resolution")
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()

	_, err := Compile(EngineExpr, "")
	assert.Error(t, err)

	_, err = Compile("lua", "true")
	assert.ErrorContains(t, err, "unknown engine")

	_, err = Compile(EngineCEL, `new.url`)
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, EngineCEL, evalErr.Engine)

	_, err = Compile(EngineExpr, `outdated ||`)
	assert.Error(t, err)
}
