package runtime

import (
	"context"
	"fmt"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/policy"
	"github.com/tasquencer/tasquencer/engine/scheduler"
	"github.com/tasquencer/tasquencer/engine/store"
)

// InitializeWorkItem creates a work item owned by (wf, td, t), in state
// initialized, and invokes its onInitialized activity hook (spec §4.6).
// isInternalMutation distinguishes engine bookkeeping from an explicit
// caller action, for the action callback to assert on if it wants.
func (e *Engine) InitializeWorkItem(ctx context.Context, tx store.Tx, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, name string, payload map[string]any, isInternalMutation bool) (*store.WorkItemRow, error) {
	if t.State != store.TaskEnabled && t.State != store.TaskStarted {
		return nil, core.NewError(fmt.Errorf("task %q generation %d is not accepting work items in state %q", t.Name, t.Generation, t.State),
			core.ErrCodeIllegalTransition, nil)
	}
	id, err := core.NewID()
	if err != nil {
		return nil, fmt.Errorf("failed to mint work item id: %w", err)
	}
	now := e.Clock.Now()
	wi := &store.WorkItemRow{
		ID: id, WorkflowID: wf.ID, TaskName: t.Name, Generation: t.Generation,
		Name: name, State: store.WorkItemInitialized, Path: wf.Path, VersionName: wf.VersionName,
		Payload: payload, CreatedAt: now, UpdatedAt: now,
	}
	if err := tx.PutWorkItem(ctx, wi); err != nil {
		return nil, err
	}
	if err := incrementShard(ctx, tx, td, wf.ID, t.Generation, id, "total"); err != nil {
		return nil, err
	}
	if err := incrementShard(ctx, tx, td, wf.ID, t.Generation, id, "initialized"); err != nil {
		return nil, err
	}
	ac := e.workItemActionContext(tx, wf, t, wi, isInternalMutation)
	if cb := td.Actions.Initialize.Callback; cb != nil {
		if err := cb(ctx, ac, payload); err != nil {
			return nil, err
		}
	}
	if err := e.notifyWorkItemStateChanged(ctx, tx, wf, td, t, wi, "", store.WorkItemInitialized); err != nil {
		return nil, err
	}
	return wi, nil
}

// notifyWorkItemStateChanged invokes the owning task's
// OnWorkItemStateChanged hook, if set, letting it observe every child
// transition without polling stats shards.
func (e *Engine) notifyWorkItemStateChanged(ctx context.Context, tx store.Tx, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, wi *store.WorkItemRow, from, to store.WorkItemState) error {
	if td.Activities.OnWorkItemStateChanged == nil {
		return nil
	}
	return td.Activities.OnWorkItemStateChanged(ctx, e.activityContext(tx, wf, t), net.WorkItemChange{WorkItem: wi, FromState: from, ToState: to})
}

// StartWorkItem transitions wi from initialized to started (spec §4.6).
func (e *Engine) StartWorkItem(ctx context.Context, tx store.Tx, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, wi *store.WorkItemRow, payload map[string]any, isInternalMutation bool) error {
	if wi.State != store.WorkItemInitialized {
		return core.NewError(fmt.Errorf("work item %s is in state %q, cannot start", wi.ID, wi.State), core.ErrCodeIllegalTransition, nil)
	}
	if err := e.ensureTaskStarted(ctx, tx, wf, td, t); err != nil {
		return err
	}
	wi.State = store.WorkItemStarted
	wi.UpdatedAt = e.Clock.Now()
	if err := tx.PutWorkItem(ctx, wi); err != nil {
		return err
	}
	if err := moveShard(ctx, tx, td, wf.ID, t.Generation, wi.ID, "initialized", "started"); err != nil {
		return err
	}
	ac := e.workItemActionContext(tx, wf, t, wi, isInternalMutation)
	if cb := td.Actions.Start.Callback; cb != nil {
		if err := cb(ctx, ac, payload); err != nil {
			return err
		}
	}
	return e.notifyWorkItemStateChanged(ctx, tx, wf, td, t, wi, store.WorkItemInitialized, store.WorkItemStarted)
}

// terminateWorkItem is the shared body of complete/fail/cancel: transition
// started→toState, move the stats shard counter out of started into
// toState's counter, invoke the matching callback, then consult the owning
// task's policy (spec §4.6).
func (e *Engine) terminateWorkItem(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, wi *store.WorkItemRow, toState store.WorkItemState, payload map[string]any, isInternalMutation bool) error {
	if wi.State != store.WorkItemStarted {
		return core.NewError(fmt.Errorf("work item %s is in state %q, cannot transition to %q", wi.ID, wi.State, toState),
			core.ErrCodeIllegalTransition, nil)
	}
	from := wi.State
	wi.State = toState
	wi.UpdatedAt = e.Clock.Now()
	if err := tx.PutWorkItem(ctx, wi); err != nil {
		return err
	}
	var field, actionName string
	switch toState {
	case store.WorkItemCompleted:
		field, actionName = "completed", "complete"
	case store.WorkItemFailed:
		field, actionName = "failed", "fail"
	case store.WorkItemCanceled:
		field, actionName = "canceled", "cancel"
	}
	if err := moveShard(ctx, tx, td, wf.ID, t.Generation, wi.ID, "started", field); err != nil {
		return err
	}
	ac := e.workItemActionContext(tx, wf, t, wi, isInternalMutation)
	if cb := td.Actions.Action(actionName).Callback; cb != nil {
		if err := cb(ctx, ac, payload); err != nil {
			return err
		}
	}
	if err := e.notifyWorkItemStateChanged(ctx, tx, wf, td, t, wi, from, toState); err != nil {
		return err
	}
	if t.State.IsTerminal() {
		return nil // owning generation already finalized (e.g. cancellation teardown)
	}
	outcome, err := td.EffectivePolicy()(ctx, policy.Transition{From: from, To: toState}, e.statsAccessor(tx, wf.ID, t.Name, t.Generation))
	if err != nil {
		return err
	}
	return e.applyPolicyOutcome(ctx, tx, def, wf, td, t, outcome)
}

// CompleteWorkItem transitions wi from started to completed.
func (e *Engine) CompleteWorkItem(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, wi *store.WorkItemRow, payload map[string]any, isInternalMutation bool) error {
	return e.terminateWorkItem(ctx, tx, def, wf, td, t, wi, store.WorkItemCompleted, payload, isInternalMutation)
}

// FailWorkItem transitions wi from started to failed.
func (e *Engine) FailWorkItem(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, wi *store.WorkItemRow, payload map[string]any, isInternalMutation bool) error {
	return e.terminateWorkItem(ctx, tx, def, wf, td, t, wi, store.WorkItemFailed, payload, isInternalMutation)
}

// CancelWorkItem transitions wi to canceled and consults the owning task's
// policy, for an explicit caller-issued cancel action.
func (e *Engine) CancelWorkItem(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, wi *store.WorkItemRow, payload map[string]any, isInternalMutation bool) error {
	return e.cancelWorkItemTx(ctx, tx, def, wf, td, t, wi, isInternalMutation, true)
}

// cancelWorkItemTx is the shared body for an explicit cancel action and
// the teardown cascade a task/workflow cancellation runs. consultPolicy is
// false during teardown, since the owning task is already being finalized
// unconditionally and must not re-enter completion via its own policy.
func (e *Engine) cancelWorkItemTx(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, wi *store.WorkItemRow, isInternalMutation, consultPolicy bool) error {
	if wi.State.IsTerminal() {
		return nil
	}
	if wi.State != store.WorkItemStarted && wi.State != store.WorkItemInitialized {
		return core.NewError(fmt.Errorf("work item %s is in state %q, cannot cancel", wi.ID, wi.State), core.ErrCodeIllegalTransition, nil)
	}
	from := wi.State
	wi.State = store.WorkItemCanceled
	wi.UpdatedAt = e.Clock.Now()
	if err := tx.PutWorkItem(ctx, wi); err != nil {
		return err
	}
	vacated := "initialized"
	if from == store.WorkItemStarted {
		vacated = "started"
	}
	if err := moveShard(ctx, tx, td, wf.ID, t.Generation, wi.ID, vacated, "canceled"); err != nil {
		return err
	}
	ac := e.workItemActionContext(tx, wf, t, wi, isInternalMutation)
	if cb := td.Actions.Cancel.Callback; cb != nil {
		if err := cb(ctx, ac, nil); err != nil {
			return err
		}
	}
	if err := e.notifyWorkItemStateChanged(ctx, tx, wf, td, t, wi, from, store.WorkItemCanceled); err != nil {
		return err
	}
	if !consultPolicy || t.State.IsTerminal() {
		return nil
	}
	// A work item canceled straight from initialized never passed through
	// StartWorkItem's task transition; the task itself still must reach
	// started before any terminal outcome (spec §3.2).
	if err := e.ensureTaskStarted(ctx, tx, wf, td, t); err != nil {
		return err
	}
	outcome, err := td.EffectivePolicy()(ctx, policy.Transition{From: from, To: store.WorkItemCanceled}, e.statsAccessor(tx, wf.ID, t.Name, t.Generation))
	if err != nil {
		return err
	}
	return e.applyPolicyOutcome(ctx, tx, def, wf, td, t, outcome)
}

// ResetWorkItem transitions wi from started back to initialized, moving it
// back out of the started occupancy counter without touching any terminal
// counter (spec §4.6).
func (e *Engine) ResetWorkItem(ctx context.Context, tx store.Tx, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, wi *store.WorkItemRow, payload map[string]any, isInternalMutation bool) error {
	if wi.State != store.WorkItemStarted {
		return core.NewError(fmt.Errorf("work item %s is in state %q, cannot reset", wi.ID, wi.State), core.ErrCodeIllegalTransition, nil)
	}
	wi.State = store.WorkItemInitialized
	wi.UpdatedAt = e.Clock.Now()
	if err := tx.PutWorkItem(ctx, wi); err != nil {
		return err
	}
	if err := moveShard(ctx, tx, td, wf.ID, t.Generation, wi.ID, "started", "initialized"); err != nil {
		return err
	}
	ac := e.workItemActionContext(tx, wf, t, wi, isInternalMutation)
	if cb := td.Actions.Reset.Callback; cb != nil {
		return cb(ctx, ac, payload)
	}
	return nil
}

func (e *Engine) workItemActionContext(tx store.Tx, wf *store.WorkflowRow, t *store.TaskRow, wi *store.WorkItemRow, isInternalMutation bool) *net.ActionContext {
	return &net.ActionContext{
		Tx: tx, Workflow: wf, Task: t, WorkItem: wi,
		Audit:              e.auditHandle(wf, t),
		Scheduler:          scheduler.Handle{Tx: tx, Host: e.Scheduler},
		IsInternalMutation: isInternalMutation,
	}
}
