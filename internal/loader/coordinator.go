// Package loader coordinates script loads: at most one flight per script at
// a time, and a bounded retry policy for transport failures.
package loader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/scripterr"
	"golang.org/x/sync/singleflight"
)

// Coordinator collapses concurrent work for the same key onto one flight.
// Every caller waiting on a flight receives its result. Once the flight
// settles the key is free again, so later calls start from scratch.
type Coordinator struct {
	group singleflight.Group

	mu     sync.Mutex
	active map[string]*flight
}

type flight struct {
	done chan struct{}
	err  error
}

// NewCoordinator creates a Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{active: make(map[string]*flight)}
}

type flightIDKey struct{}

// FlightID returns the id of the flight running fn, for log correlation.
func FlightID(ctx context.Context) string {
	id, _ := ctx.Value(flightIDKey{}).(string)
	return id
}

// Do runs fn for key unless a flight for key is already running, in which
// case it waits for that flight. fn runs detached from the caller's
// cancellation; a caller whose ctx ends stops waiting and gets ctx.Err()
// while the flight continues for everyone else.
func (c *Coordinator) Do(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	logger := ctxlog.FromContext(ctx).With("key", key)

	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		id := uuid.NewString()
		fctx := context.WithValue(flightCtx, flightIDKey{}, id)
		fctx = ctxlog.WithLogger(fctx, ctxlog.FromContext(flightCtx).With("flight_id", id))
		ctxlog.FromContext(fctx).Debug("Flight started.", "key", key)

		f := &flight{done: make(chan struct{})}
		c.mu.Lock()
		c.active[key] = f
		c.mu.Unlock()

		defer func() {
			c.mu.Lock()
			delete(c.active, key)
			c.mu.Unlock()
			close(f.done)
		}()

		f.err = fn(fctx)
		return nil, f.err
	})

	select {
	case res := <-ch:
		if res.Shared {
			logger.Debug("Joined in-flight load.")
		}
		return res.Err
	case <-ctx.Done():
		logger.Debug("Stopped waiting for in-flight load.", "error", ctx.Err())
		return ctx.Err()
	}
}

// Wait blocks until the flight for key, if any, settles. It reports whether
// a flight was running and that flight's error.
func (c *Coordinator) Wait(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	f, ok := c.active[key]
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	select {
	case <-f.done:
		return true, f.err
	case <-ctx.Done():
		return true, ctx.Err()
	}
}

// Forget releases key so the next call starts a new flight even if one is
// still running.
func (c *Coordinator) Forget(key string) {
	c.group.Forget(key)
}

// Policy bounds retries of a native call.
type Policy struct {
	// Retry is the number of additional attempts after the first.
	Retry int
	// Delay is the pause before each additional attempt.
	Delay time.Duration
}

// Retry calls attempt until it succeeds, fails with a non-retryable error,
// or the policy is exhausted. The last error is returned.
func Retry(ctx context.Context, p Policy, attempt func(ctx context.Context, n int) error) error {
	logger := ctxlog.FromContext(ctx)

	var err error
	for n := 0; n <= p.Retry; n++ {
		if n > 0 {
			logger.Debug("Retrying after delay.", "attempt", n+1, "delay", p.Delay)
			if werr := wait(ctx, p.Delay); werr != nil {
				return fmt.Errorf("retry interrupted: %w (last error: %v)", werr, err)
			}
		}

		err = attempt(ctx, n)
		if err == nil {
			return nil
		}
		if !scripterr.IsRetryable(err) {
			logger.Debug("Attempt failed with a fatal error.", "attempt", n+1, "error", err)
			return err
		}
		logger.Warn("Attempt failed with a retryable error.", "attempt", n+1, "of", p.Retry+1, "error", err)
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
