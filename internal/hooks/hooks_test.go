package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type args struct {
	ScriptID string
	Caller   string
}

func (a args) Merge(p args) args {
	if p.ScriptID != "" {
		a.ScriptID = p.ScriptID
	}
	if p.Caller != "" {
		a.Caller = p.Caller
	}
	return a
}

func TestWaterfall_OrderAndPropagation(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	w := NewWaterfall[args]("beforeResolve")
	var order []string
	for _, name := range []string{"first", "second", "third"} {
		w.Tap(name, func(_ context.Context, acc args) (args, error) {
			order = append(order, name)
			return acc, nil
		})
	}
	w.Tap("prefix", func(_ context.Context, acc args) (args, error) {
		return args{ScriptID: "prefix_" + acc.ScriptID}, nil
	})
	var seen string
	w.Tap("observer", func(_ context.Context, acc args) (args, error) {
		seen = acc.ScriptID
		return args{}, nil
	})

	// --- Act ---
	out, err := w.Call(context.Background(), args{ScriptID: "a", Caller: "main"})

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Equal(t, "prefix_a", seen)
	assert.Equal(t, args{ScriptID: "prefix_a", Caller: "main"}, out, "partial patch keeps untouched fields")
}

func TestWaterfall_ErrorAborts(t *testing.T) {
	t.Parallel()

	w := NewWaterfall[args]("afterLoad")
	boom := errors.New("boom")
	called := false
	w.Tap("fails", func(context.Context, args) (args, error) { return args{}, boom })
	w.Tap("never", func(_ context.Context, a args) (args, error) { called = true; return a, nil })

	_, err := w.Call(context.Background(), args{})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestWaterfall_PanicBecomesError(t *testing.T) {
	t.Parallel()

	w := NewWaterfall[args]("beforeLoad")
	w.Tap("panics", func(context.Context, args) (args, error) { panic("kaboom") })

	_, err := w.Call(context.Background(), args{})
	var perr *PanicError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "beforeLoad", perr.Hook)
	assert.Equal(t, "panics", perr.Tap)
}

func TestBail_FirstHandledWins(t *testing.T) {
	t.Parallel()

	b := NewBail[string, int]("resolve")
	var order []string
	b.Tap("skip", func(context.Context, string) (int, bool, error) {
		order = append(order, "skip")
		return 0, false, nil
	})
	b.Tap("handle", func(_ context.Context, in string) (int, bool, error) {
		order = append(order, "handle")
		return len(in), true, nil
	})
	b.Tap("late", func(context.Context, string) (int, bool, error) {
		order = append(order, "late")
		return 99, true, nil
	})

	out, ok, err := b.Call(context.Background(), "abcd")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, out)
	assert.Equal(t, []string{"skip", "handle"}, order)
}

func TestBail_Unhandled(t *testing.T) {
	t.Parallel()

	b := NewBail[string, int]("errorLoad")
	_, ok, err := b.Call(context.Background(), "x")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSeries_CallAndNotify(t *testing.T) {
	t.Parallel()

	s := NewSeries[string]("events")
	var got []string
	boom := errors.New("observer failed")
	s.Tap("a", func(_ context.Context, v string) error { got = append(got, "a:"+v); return boom })
	s.Tap("b", func(_ context.Context, v string) error { got = append(got, "b:"+v); return nil })

	err := s.Call(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:x"}, got)

	got = nil
	err = s.Notify(context.Background(), "y")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a:y", "b:y"}, got)
}

func TestUntap(t *testing.T) {
	t.Parallel()

	s := NewSeries[int]("load")
	s.Tap("keep", func(context.Context, int) error { return nil })
	s.Tap("drop", func(context.Context, int) error { return nil })
	s.Tap("drop", func(context.Context, int) error { return nil })

	assert.True(t, s.Untap("drop"))
	assert.False(t, s.Untap("missing"))
	assert.Equal(t, []string{"keep"}, s.Names())
	s.Clear()
	assert.Equal(t, 0, s.Len())
}
