package runtime

import (
	"context"
	"fmt"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/store"
)

// startTaskTx moves a composite/dynamic composite task from enabled to
// started and spawns its children, as decided by its `initialize` hook
// (spec §4.8: "on enablement, the parent task creates one or more child
// workflow instances").
func (e *Engine) startTaskTx(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow) error {
	from := t.State
	t.State = store.TaskStarted
	t.UpdatedAt = e.Clock.Now()
	if err := tx.PutTask(ctx, t); err != nil {
		return err
	}
	if err := tx.AppendTaskStateLog(ctx, &store.TaskStateLogRow{
		WorkflowID: wf.ID, TaskName: t.Name, Generation: t.Generation,
		FromState: from, ToState: store.TaskStarted, At: t.UpdatedAt,
	}); err != nil {
		return err
	}
	if td.Activities.OnStarted != nil {
		if err := td.Activities.OnStarted(ctx, e.activityContext(tx, wf, t)); err != nil {
			return err
		}
	}

	ac := e.activityContext(tx, wf, t)
	if td.CompositeActions.Initialize == nil {
		return core.NewError(fmt.Errorf("composite task %q has no initialize hook", td.Name), core.ErrCodeUnknownElement, nil)
	}
	specs, err := td.CompositeActions.Initialize(ctx, ac)
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		return core.NewError(fmt.Errorf("composite task %q's initialize hook spawned no children", td.Name), core.ErrCodeAssertionFailed, nil)
	}
	for _, spec := range specs {
		childDef := td.ChildWorkflow
		if td.Kind == net.KindDynamicComposite {
			childDef = td.ChildWorkflows[spec.DefinitionName]
			if childDef == nil {
				return core.NewError(fmt.Errorf("dynamic composite task %q has no child definition named %q", td.Name, spec.DefinitionName),
					core.ErrCodeUnknownElement, map[string]any{"definition": spec.DefinitionName})
			}
		}
		parent := &store.ParentRef{WorkflowID: wf.ID, TaskName: td.Name, Generation: t.Generation}
		childID, err := e.initializeWorkflowTx(ctx, tx, childDef.Name, childDef.VersionName, parent)
		if err != nil {
			return err
		}
		if err := incrementShard(ctx, tx, td, wf.ID, t.Generation, childID, "total"); err != nil {
			return err
		}
	}
	return nil
}

// propagateChildWorkflowState is called whenever a child workflow reaches
// a terminal state, to increment its parent task generation's counters
// and consult the parent's policy (spec §4.8: child workflows are counted
// exactly like work items for policy purposes).
func (e *Engine) propagateChildWorkflowState(ctx context.Context, tx store.Tx, child *store.WorkflowRow, toState store.WorkflowState) error {
	parent := child.Parent
	parentWf, err := tx.GetWorkflow(ctx, parent.WorkflowID)
	if err != nil {
		return err
	}
	if parentWf == nil {
		return core.NewError(fmt.Errorf("parent workflow %s not found", parent.WorkflowID), core.ErrCodeEntityNotFound, nil)
	}
	parentDef, err := e.definitionFor(ctx, parentWf)
	if err != nil {
		return err
	}
	parentTask := parentDef.Tasks[parent.TaskName]
	if parentTask == nil {
		return core.NewError(fmt.Errorf("parent task %q not found in definition %q", parent.TaskName, parentDef.Name), core.ErrCodeUnknownElement, nil)
	}
	parentTaskRow, err := tx.GetTask(ctx, parent.WorkflowID, parent.TaskName, parent.Generation)
	if err != nil {
		return err
	}
	if parentTaskRow == nil {
		return core.NewError(fmt.Errorf("parent task generation %q/%d not found", parent.TaskName, parent.Generation), core.ErrCodeEntityNotFound, nil)
	}

	var field string
	switch toState {
	case store.WorkflowCompleted:
		field = "completed"
	case store.WorkflowFailed:
		field = "failed"
	case store.WorkflowCanceled:
		field = "canceled"
	default:
		return nil
	}
	if err := incrementShard(ctx, tx, parentTask, parentWf.ID, parent.Generation, child.ID, field); err != nil {
		return err
	}
	if parentTaskRow.State.IsTerminal() {
		return nil // already finalized, e.g. via teardown
	}

	outcome, err := parentTask.EffectivePolicy()(ctx,
		policyTransitionFor(toState),
		e.statsAccessor(tx, parentWf.ID, parent.TaskName, parent.Generation),
	)
	if err != nil {
		return err
	}
	return e.applyPolicyOutcome(ctx, tx, parentDef, parentWf, parentTask, parentTaskRow, outcome)
}
