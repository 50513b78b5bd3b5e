package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/scriptloader/internal/locator"
)

// Call records one invocation of a FakeExecutor method.
type Call struct {
	Method   string
	ScriptID string
	Locator  locator.Normalized
	IDs      []string
	Start    time.Time
	End      time.Time
}

// FakeExecutor is a scripted executor for pipeline tests. Each method pops
// the next error from its queue; an empty queue means success. When Gate is
// set, load and prefetch calls block until it is closed.
type FakeExecutor struct {
	mu sync.Mutex

	LoadErrs       []error
	PrefetchErrs   []error
	InvalidateErrs []error
	Gate           chan struct{}
	// Started receives the script id of every load or prefetch as it starts.
	Started chan string

	calls []Call
}

// NewFakeExecutor creates an executor that succeeds on every call.
func NewFakeExecutor() *FakeExecutor {
	return &FakeExecutor{}
}

// LoadScript implements manager.Executor.
func (f *FakeExecutor) LoadScript(ctx context.Context, scriptID string, l *locator.Normalized) error {
	return f.run(ctx, "load", scriptID, l, &f.LoadErrs)
}

// PrefetchScript implements manager.Executor.
func (f *FakeExecutor) PrefetchScript(ctx context.Context, scriptID string, l *locator.Normalized) error {
	return f.run(ctx, "prefetch", scriptID, l, &f.PrefetchErrs)
}

// InvalidateScripts implements manager.Executor.
func (f *FakeExecutor) InvalidateScripts(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	f.calls = append(f.calls, Call{Method: "invalidate", IDs: append([]string(nil), ids...), Start: now, End: now})
	return pop(&f.InvalidateErrs)
}

func (f *FakeExecutor) run(ctx context.Context, method, scriptID string, l *locator.Normalized, errs *[]error) error {
	c := Call{Method: method, ScriptID: scriptID, Locator: *l, Start: time.Now()}

	f.mu.Lock()
	gate, started := f.Gate, f.Started
	f.mu.Unlock()

	if started != nil {
		started <- scriptID
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c.End = time.Now()
	f.calls = append(f.calls, c)
	return pop(errs)
}

func pop(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

// Calls returns the recorded calls in completion order.
func (f *FakeExecutor) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Count returns how many calls of method were recorded.
func (f *FakeExecutor) Count(method string) int {
	n := 0
	for _, c := range f.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}
