// Package scheduler holds the host scheduling capability (spec §6): deferred,
// keyed, at-most-once invocation of engine callbacks, used to drive delayed
// task (re-)initialization without the caller having to poll.
package scheduler

import (
	"context"
	"time"

	"github.com/tasquencer/tasquencer/engine/store"
)

// InvokeFunc is the callback a scheduled function runs at its appointed
// time. It receives a fresh context; any store access it needs must open
// its own transaction.
type InvokeFunc func(ctx context.Context) error

// HostScheduler is the capability a host application supplies: schedule
// invoke to run at (or after) at, returning an opaque function id the
// engine can use for deduplication and, depending on the implementation,
// cancellation.
type HostScheduler interface {
	Schedule(ctx context.Context, at time.Time, invoke InvokeFunc) (functionID string, err error)
}

// Handle binds a HostScheduler to the transaction the engine is currently
// inside, giving engine/runtime a single RegisterScheduled entry point that
// is safe to call repeatedly for the same logical key (spec §6's
// scheduledInitializations table).
type Handle struct {
	Tx   store.Tx
	Host HostScheduler
}

// RegisterScheduled ensures invoke is scheduled to run at at exactly once
// for the given key: if key was already registered, the previously
// returned function id is reused instead of scheduling a duplicate.
func (h Handle) RegisterScheduled(ctx context.Context, key string, at time.Time, invoke InvokeFunc) (string, error) {
	existing, err := h.Tx.GetScheduledInit(ctx, key)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ScheduledFunctionID, nil
	}
	functionID, err := h.Host.Schedule(ctx, at, invoke)
	if err != nil {
		return "", err
	}
	if err := h.Tx.PutScheduledInit(ctx, &store.ScheduledInitRow{
		Key:                 key,
		ScheduledFunctionID: functionID,
	}); err != nil {
		return "", err
	}
	return functionID, nil
}
