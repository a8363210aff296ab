// Package policy holds the task state-transition policy contract (spec
// §4.5): the function a task consults whenever one of its work items (or,
// for composite tasks, child workflows) reaches a new state, to decide
// whether the task generation itself should keep running, complete, or
// fail.
package policy

import (
	"context"

	"github.com/tasquencer/tasquencer/engine/store"
)

// Transition describes the state change that just happened to the work
// item or child workflow that triggered a policy evaluation.
type Transition struct {
	From store.WorkItemState
	To   store.WorkItemState
}

// Outcome is a policy's verdict on the owning task generation.
type Outcome string

const (
	// Continue leaves the task generation running; more children may
	// still be initialized or reach a terminal state.
	Continue Outcome = "continue"
	// Complete finalizes the task generation successfully.
	Complete Outcome = "complete"
	// Fail finalizes the task generation unsuccessfully.
	Fail Outcome = "fail"
)

// StatsAccessor reads the current aggregated counters for the task
// generation a policy is evaluating. It is supplied by the runtime so a
// policy never touches the store directly.
type StatsAccessor func(ctx context.Context) (store.Stats, error)

// Policy decides what a task generation should do next after transition
// was observed on one of its children. It must be deterministic given its
// inputs and must not mutate state itself — the runtime applies whatever
// Outcome it returns.
type Policy func(ctx context.Context, transition Transition, stats StatsAccessor) (Outcome, error)

// Default is the policy every task uses unless a builder overrides it
// (spec §4.5): a completed child only finalizes the task once every
// sibling child has also reached a terminal state; a failed child fails
// the task immediately; a canceled child behaves like a completed one for
// the purpose of deciding whether the task is done.
func Default(ctx context.Context, transition Transition, stats StatsAccessor) (Outcome, error) {
	switch transition.To {
	case store.WorkItemFailed:
		return Fail, nil
	case store.WorkItemCompleted, store.WorkItemCanceled:
		s, err := stats(ctx)
		if err != nil {
			return "", err
		}
		if s.AllTerminal() {
			return Complete, nil
		}
		return Continue, nil
	default:
		return Continue, nil
	}
}
