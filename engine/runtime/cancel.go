package runtime

import (
	"context"

	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/store"
)

// cancelTaskGeneration transitions t to canceled, cancelling any still-open
// work items or child workflows it owns, then applies its cancellation
// region (a canceled task
// does not produce tokens; only a completed one does, so no split runs
// here — see spec §4.3, which ties split firing to successful completion).
func (e *Engine) cancelTaskGeneration(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, reason store.CancellationReason) error {
	if t.State.IsTerminal() {
		return nil
	}
	if err := e.cancelOpenWorkItems(ctx, tx, def, wf, td, t); err != nil {
		return err
	}
	if err := e.cancelOpenChildren(ctx, tx, def, wf, td, t, reason); err != nil {
		return err
	}
	from := t.State
	t.State = store.TaskCanceled
	t.UpdatedAt = e.Clock.Now()
	if err := tx.PutTask(ctx, t); err != nil {
		return err
	}
	if err := tx.AppendTaskStateLog(ctx, &store.TaskStateLogRow{
		WorkflowID: wf.ID, TaskName: t.Name, Generation: t.Generation,
		FromState: from, ToState: store.TaskCanceled, At: t.UpdatedAt,
	}); err != nil {
		return err
	}
	if td.Activities.OnCanceled != nil {
		if err := td.Activities.OnCanceled(ctx, e.activityContext(tx, wf, t)); err != nil {
			return err
		}
	}
	return e.applyCancellationRegion(ctx, tx, def, wf, td)
}

func (e *Engine) cancelOpenWorkItems(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow) error {
	items, err := tx.ListWorkItems(ctx, wf.ID, t.Name, t.Generation)
	if err != nil {
		return err
	}
	for _, wi := range items {
		if wi.State.IsTerminal() {
			continue
		}
		if err := e.cancelWorkItemTx(ctx, tx, def, wf, td, t, wi, true, false); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) cancelOpenChildren(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, reason store.CancellationReason) error {
	if td.Kind != net.KindComposite && td.Kind != net.KindDynamicComposite {
		return nil
	}
	children, err := tx.ListChildWorkflows(ctx, wf.ID, t.Name, t.Generation)
	if err != nil {
		return err
	}
	for _, child := range children {
		if child.State.IsTerminal() {
			continue
		}
		if td.CompositeActions.Cancel != nil {
			if err := td.CompositeActions.Cancel(ctx, e.activityContext(tx, wf, t), &net.ChildWorkflowView{
				WorkflowID: string(child.ID), State: string(child.State),
			}); err != nil {
				return err
			}
		}
		if err := e.cancelWorkflowTx(ctx, tx, child, reason); err != nil {
			return err
		}
	}
	return nil
}

// applyCancellationRegion clears the region a just-finalized task
// declared: cancels non-terminal sibling task generations and zeroes
// named condition markings (spec §4.8).
func (e *Engine) applyCancellationRegion(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef) error {
	if td.CancellationRegion == nil {
		return nil
	}
	for _, taskName := range td.CancellationRegion.Tasks {
		sibling := def.Tasks[taskName]
		if sibling == nil {
			continue
		}
		generations, err := tx.ListTaskGenerations(ctx, wf.ID, taskName)
		if err != nil {
			return err
		}
		var latest *store.TaskRow
		for _, g := range generations {
			if latest == nil || g.Generation > latest.Generation {
				latest = g
			}
		}
		if latest == nil || latest.State.IsTerminal() {
			continue // no-op on an already-terminal task (spec §8)
		}
		if err := e.cancelTaskGeneration(ctx, tx, def, wf, sibling, latest, store.CancellationTeardown); err != nil {
			return err
		}
	}
	for _, conditionName := range td.CancellationRegion.Conditions {
		cond, err := tx.GetCondition(ctx, wf.ID, conditionName)
		if err != nil {
			return err
		}
		if cond == nil {
			continue
		}
		cond.Marking = 0
		if err := tx.PutCondition(ctx, cond); err != nil {
			return err
		}
	}
	return nil
}
