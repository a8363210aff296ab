package net

import (
	"context"

	"github.com/tasquencer/tasquencer/engine/actions/schema"
	"github.com/tasquencer/tasquencer/engine/audit"
	"github.com/tasquencer/tasquencer/engine/scheduler"
	"github.com/tasquencer/tasquencer/engine/store"
)

// ActionContext is the read/write handle given to a work item action
// callback (spec §4.2). IsInternalMutation distinguishes an
// engine-internal bookkeeping transition (e.g. the cancel applied to a
// task's still-open work items when its generation is torn down) from a
// caller-issued action, so a
// callback can skip side effects that only make sense for explicit calls.
type ActionContext struct {
	Tx                 store.Tx
	Workflow           *store.WorkflowRow
	Task               *store.TaskRow
	WorkItem           *store.WorkItemRow
	Audit              audit.Handle
	Scheduler          scheduler.Handle
	IsInternalMutation bool
}

// ActionDef pairs a work item action's payload schema with the callback
// that runs after the payload validates and before the state transition
// commits.
type ActionDef struct {
	Schema   schema.Schema
	Callback func(ctx context.Context, ac *ActionContext, payload map[string]any) error
}

// noopAction is the default for every action a builder does not override:
// the generic engine just drives the state transition (spec §4.2).
var noopAction = ActionDef{
	Schema: schema.Open,
	Callback: func(context.Context, *ActionContext, map[string]any) error {
		return nil
	},
}

// WorkItemActionSet is the six typed actions a work item supports (spec
// §3.2, §4.2). Fields left zero-valued default to noopAction.
type WorkItemActionSet struct {
	Initialize ActionDef
	Start      ActionDef
	Complete   ActionDef
	Fail       ActionDef
	Cancel     ActionDef
	Reset      ActionDef
}

func (s WorkItemActionSet) resolve(which func(WorkItemActionSet) ActionDef) ActionDef {
	def := which(s)
	if def.Schema == nil {
		return noopAction
	}
	return def
}

// Action returns the resolved ActionDef for the named transition, falling
// back to noopAction when the builder left it unset.
func (s WorkItemActionSet) Action(name string) ActionDef {
	switch name {
	case "initialize":
		return s.resolve(func(a WorkItemActionSet) ActionDef { return a.Initialize })
	case "start":
		return s.resolve(func(a WorkItemActionSet) ActionDef { return a.Start })
	case "complete":
		return s.resolve(func(a WorkItemActionSet) ActionDef { return a.Complete })
	case "fail":
		return s.resolve(func(a WorkItemActionSet) ActionDef { return a.Fail })
	case "cancel":
		return s.resolve(func(a WorkItemActionSet) ActionDef { return a.Cancel })
	case "reset":
		return s.resolve(func(a WorkItemActionSet) ActionDef { return a.Reset })
	default:
		return noopAction
	}
}

// WorkflowActionSet are the two typed actions a workflow instance supports
// at its top level (spec §4.2): initialize (instantiate and mark the start
// condition) and cancel (explicit teardown).
type WorkflowActionSet struct {
	Initialize ActionDef
	Cancel     ActionDef
}

// Action returns the resolved ActionDef for the named workflow-level
// transition, falling back to noopAction when unset.
func (s WorkflowActionSet) Action(name string) ActionDef {
	switch name {
	case "initialize":
		if s.Initialize.Schema == nil {
			return noopAction
		}
		return s.Initialize
	case "cancel":
		if s.Cancel.Schema == nil {
			return noopAction
		}
		return s.Cancel
	default:
		return noopAction
	}
}
