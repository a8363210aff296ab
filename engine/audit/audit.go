// Package audit holds the narrow append-only event sink the runtime writes
// to as it fires tasks, so host applications can observe a workflow
// instance's history without polling the store tables directly.
package audit

import "context"

// Sink receives one audit event at a time, scoped to path (typically
// workflow id, task name, generation).
type Sink interface {
	Append(ctx context.Context, path []string, event any) error
}

// Handle is the audit capability threaded through activity and action
// invocations. A nil Sink makes every Append a no-op, so wiring audit up
// is opt-in.
type Handle struct {
	Sink Sink
	Path []string
}

// Append records event under h.Path, doing nothing if h.Sink is nil.
func (h Handle) Append(ctx context.Context, event any) error {
	if h.Sink == nil {
		return nil
	}
	return h.Sink.Append(ctx, h.Path, event)
}

// With returns a Handle scoped to a deeper path segment, e.g. moving from
// a workflow-level handle to one scoped to a specific task name.
func (h Handle) With(segment string) Handle {
	path := make([]string, len(h.Path)+1)
	copy(path, h.Path)
	path[len(h.Path)] = segment
	return Handle{Sink: h.Sink, Path: path}
}
