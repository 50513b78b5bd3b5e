// Package hooks provides typed, ordered interceptor chains.
//
// Three combinators are available:
//
//   - Waterfall threads an accumulator through every tap. Each tap returns a
//     patch that is shallow-merged onto the accumulator before the next tap
//     sees it.
//   - Bail runs taps until one reports that it handled the input.
//   - Series runs every tap for its side effects.
//
// Taps are named and run in registration order. A chain is safe for
// concurrent use; each invocation runs over a snapshot of the taps taken when
// it starts, so taps added mid-run only apply to later invocations.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// PanicError is returned when a tap panics.
type PanicError struct {
	Hook  string
	Tap   string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("hooks: tap %q of %s panicked: %v", e.Tap, e.Hook, e.Value)
}

type tap[F any] struct {
	name string
	fn   F
}

// chain is the ordered, named list shared by all combinators.
type chain[F any] struct {
	name string
	mu   sync.RWMutex
	taps []tap[F]
}

func (c *chain[F]) add(name string, fn F) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taps = append(c.taps, tap[F]{name: name, fn: fn})
}

// Untap removes every tap registered under name and reports whether any
// were removed.
func (c *chain[F]) Untap(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.taps[:0:0]
	for _, t := range c.taps {
		if t.name != name {
			kept = append(kept, t)
		}
	}
	removed := len(kept) != len(c.taps)
	c.taps = kept
	return removed
}

// Clear removes every tap.
func (c *chain[F]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.taps = nil
}

// Len returns the number of registered taps.
func (c *chain[F]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.taps)
}

// Names returns tap names in execution order.
func (c *chain[F]) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.taps))
	for i, t := range c.taps {
		names[i] = t.name
	}
	return names
}

func (c *chain[F]) snapshot() []tap[F] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]tap[F], len(c.taps))
	copy(out, c.taps)
	return out
}

// guard runs fn and converts a panic into a PanicError.
func guard[R any](hook, name string, fn func() (R, error)) (res R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Hook: hook, Tap: name, Value: r}
		}
	}()
	return fn()
}

// Mergeable is implemented by waterfall accumulators. Merge returns the
// receiver with every non-zero field of patch copied over it.
type Mergeable[T any] interface {
	Merge(patch T) T
}

// WaterfallFunc receives the current accumulator and returns a patch.
// Returning the accumulator unchanged is always valid.
type WaterfallFunc[T any] func(ctx context.Context, acc T) (T, error)

// Waterfall threads an accumulator through its taps.
type Waterfall[T Mergeable[T]] struct {
	chain[WaterfallFunc[T]]
}

// NewWaterfall creates an empty waterfall chain. name is used in errors.
func NewWaterfall[T Mergeable[T]](name string) *Waterfall[T] {
	return &Waterfall[T]{chain: chain[WaterfallFunc[T]]{name: name}}
}

// Tap appends fn under name.
func (w *Waterfall[T]) Tap(name string, fn WaterfallFunc[T]) {
	w.add(name, fn)
}

// Call runs every tap in order. The first error aborts the chain and is
// returned together with the accumulator as it was before the failing tap.
func (w *Waterfall[T]) Call(ctx context.Context, seed T) (T, error) {
	acc := seed
	for _, t := range w.snapshot() {
		current := acc
		patch, err := guard(w.name, t.name, func() (T, error) { return t.fn(ctx, current) })
		if err != nil {
			return acc, err
		}
		acc = acc.Merge(patch)
	}
	return acc, nil
}

// BailFunc returns ok=true when it handled the input.
type BailFunc[In, Out any] func(ctx context.Context, in In) (out Out, ok bool, err error)

// Bail runs taps until the first one that handles the input.
type Bail[In, Out any] struct {
	chain[BailFunc[In, Out]]
}

// NewBail creates an empty bail chain.
func NewBail[In, Out any](name string) *Bail[In, Out] {
	return &Bail[In, Out]{chain: chain[BailFunc[In, Out]]{name: name}}
}

// Tap appends fn under name.
func (b *Bail[In, Out]) Tap(name string, fn BailFunc[In, Out]) {
	b.add(name, fn)
}

// Call returns the output of the first tap reporting ok. It returns ok=false
// when no tap handled the input. A tap error stops the chain.
func (b *Bail[In, Out]) Call(ctx context.Context, in In) (Out, bool, error) {
	type result struct {
		out Out
		ok  bool
	}
	for _, t := range b.snapshot() {
		r, err := guard(b.name, t.name, func() (result, error) {
			out, ok, err := t.fn(ctx, in)
			return result{out, ok}, err
		})
		if err != nil {
			var zero Out
			return zero, false, err
		}
		if r.ok {
			return r.out, true, nil
		}
	}
	var zero Out
	return zero, false, nil
}

// SeriesFunc is a side-effect-only tap.
type SeriesFunc[T any] func(ctx context.Context, v T) error

// Series runs every tap with the same value.
type Series[T any] struct {
	chain[SeriesFunc[T]]
}

// NewSeries creates an empty series chain.
func NewSeries[T any](name string) *Series[T] {
	return &Series[T]{chain: chain[SeriesFunc[T]]{name: name}}
}

// Tap appends fn under name.
func (s *Series[T]) Tap(name string, fn SeriesFunc[T]) {
	s.add(name, fn)
}

// Call runs taps in order and stops at the first error.
func (s *Series[T]) Call(ctx context.Context, v T) error {
	for _, t := range s.snapshot() {
		_, err := guard(s.name, t.name, func() (struct{}, error) { return struct{}{}, t.fn(ctx, v) })
		if err != nil {
			return err
		}
	}
	return nil
}

// Notify runs every tap regardless of failures and joins their errors.
func (s *Series[T]) Notify(ctx context.Context, v T) error {
	var errs []error
	for _, t := range s.snapshot() {
		_, err := guard(s.name, t.name, func() (struct{}, error) { return struct{}{}, t.fn(ctx, v) })
		if err != nil {
			errs = append(errs, fmt.Errorf("%s tap %q: %w", s.name, t.name, err))
		}
	}
	return errors.Join(errs...)
}
