package manager

import (
	"context"

	"github.com/specialistvlad/scriptloader/internal/hooks"
	"github.com/specialistvlad/scriptloader/internal/locator"
	"github.com/specialistvlad/scriptloader/internal/resolver"
)

// ResolveArgs is threaded through BeforeResolve taps. Non-empty fields of a
// returned patch replace the accumulator's.
type ResolveArgs struct {
	ScriptID     string
	Caller       string
	ReferenceURL string
}

// Merge implements hooks.Mergeable.
func (a ResolveArgs) Merge(p ResolveArgs) ResolveArgs {
	if p.ScriptID != "" {
		a.ScriptID = p.ScriptID
	}
	if p.Caller != "" {
		a.Caller = p.Caller
	}
	if p.ReferenceURL != "" {
		a.ReferenceURL = p.ReferenceURL
	}
	return a
}

// ResolveHookArgs is given to Resolve taps. Resolvers is a snapshot of the
// registered resolver chain, which a tap may run itself.
type ResolveHookArgs struct {
	ResolveArgs
	Resolvers []resolver.Entry
}

// AfterResolveArgs is threaded through AfterResolve taps.
type AfterResolveArgs struct {
	ScriptID string
	Caller   string
	Script   *Script
}

// Merge implements hooks.Mergeable.
func (a AfterResolveArgs) Merge(p AfterResolveArgs) AfterResolveArgs {
	if p.ScriptID != "" {
		a.ScriptID = p.ScriptID
	}
	if p.Caller != "" {
		a.Caller = p.Caller
	}
	if p.Script != nil {
		a.Script = p.Script
	}
	return a
}

// LoadArgs is threaded through BeforeLoad and AfterLoad taps.
type LoadArgs struct {
	ScriptID string
	Caller   string
	Script   *Script
}

// Merge implements hooks.Mergeable.
func (a LoadArgs) Merge(p LoadArgs) LoadArgs {
	if p.ScriptID != "" {
		a.ScriptID = p.ScriptID
	}
	if p.Caller != "" {
		a.Caller = p.Caller
	}
	if p.Script != nil {
		a.Script = p.Script
	}
	return a
}

// LoadHookArgs is given to Load taps. LoadScript runs the default native
// load, including retries, for taps that only want to wrap it.
type LoadHookArgs struct {
	LoadArgs
	LoadScript func(ctx context.Context) error
}

// ErrorArgs is given to ErrorResolve and ErrorLoad taps.
type ErrorArgs struct {
	ScriptID string
	Caller   string
	// Locator is the attempted locator; nil when resolution failed.
	Locator *locator.Normalized
	Err     error
}

// Hooks holds the interception points of the resolution and load pipelines.
//
// ErrorResolve taps recover by returning a locator with ok=true. ErrorLoad
// taps recover by returning true with ok=true.
type Hooks struct {
	BeforeResolve *hooks.Waterfall[ResolveArgs]
	Resolve       *hooks.Bail[ResolveHookArgs, *locator.ScriptLocator]
	AfterResolve  *hooks.Waterfall[AfterResolveArgs]
	ErrorResolve  *hooks.Bail[ErrorArgs, *locator.ScriptLocator]

	BeforeLoad *hooks.Waterfall[LoadArgs]
	// Load taps replace the native load when any are registered. All of them
	// run, in order.
	Load      *hooks.Series[LoadHookArgs]
	AfterLoad *hooks.Waterfall[LoadArgs]
	ErrorLoad *hooks.Bail[ErrorArgs, bool]

	// Events observes pipeline milestones. Observer errors are logged only.
	Events *hooks.Series[Event]
}

func newHooks() *Hooks {
	return &Hooks{
		BeforeResolve: hooks.NewWaterfall[ResolveArgs]("beforeResolve"),
		Resolve:       hooks.NewBail[ResolveHookArgs, *locator.ScriptLocator]("resolve"),
		AfterResolve:  hooks.NewWaterfall[AfterResolveArgs]("afterResolve"),
		ErrorResolve:  hooks.NewBail[ErrorArgs, *locator.ScriptLocator]("errorResolve"),
		BeforeLoad:    hooks.NewWaterfall[LoadArgs]("beforeLoad"),
		Load:          hooks.NewSeries[LoadHookArgs]("load"),
		AfterLoad:     hooks.NewWaterfall[LoadArgs]("afterLoad"),
		ErrorLoad:     hooks.NewBail[ErrorArgs, bool]("errorLoad"),
		Events:        hooks.NewSeries[Event]("events"),
	}
}
