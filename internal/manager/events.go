package manager

import (
	"context"

	"github.com/specialistvlad/scriptloader/internal/ctxlog"
	"github.com/specialistvlad/scriptloader/internal/locator"
)

// EventKind names a pipeline milestone.
type EventKind string

const (
	EventResolving   EventKind = "resolving"
	EventResolved    EventKind = "resolved"
	EventLoading     EventKind = "loading"
	EventLoaded      EventKind = "loaded"
	EventPrefetching EventKind = "prefetching"
	EventPrefetched  EventKind = "prefetched"
	EventInvalidated EventKind = "invalidated"
	EventError       EventKind = "error"
)

// Event is delivered to Hooks.Events taps.
type Event struct {
	Kind     EventKind
	ScriptID string
	Caller   string
	Locator  *locator.Normalized
	// IDs lists invalidated uniqueIds.
	IDs []string
	Err error
}

func (m *Manager) emit(ctx context.Context, ev Event) {
	if err := m.hooks.Events.Notify(ctx, ev); err != nil {
		ctxlog.FromContext(ctx).Warn("Event observer failed.", "event", ev.Kind, "error", err)
	}
}
