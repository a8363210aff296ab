package runtime

import (
	"context"

	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/store"
)

// completeTaskGeneration transitions t to completed and fires its split
// (spec §4.5's `complete` outcome).
func (e *Engine) completeTaskGeneration(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow) error {
	if t.State.IsTerminal() {
		return nil
	}
	from := t.State
	t.State = store.TaskCompleted
	t.UpdatedAt = e.Clock.Now()
	if err := tx.PutTask(ctx, t); err != nil {
		return err
	}
	if err := tx.AppendTaskStateLog(ctx, &store.TaskStateLogRow{
		WorkflowID: wf.ID, TaskName: t.Name, Generation: t.Generation,
		FromState: from, ToState: store.TaskCompleted, At: t.UpdatedAt,
	}); err != nil {
		return err
	}
	if td.Activities.OnCompleted != nil {
		if err := td.Activities.OnCompleted(ctx, e.activityContext(tx, wf, t)); err != nil {
			return err
		}
	}
	return e.runSplit(ctx, tx, def, wf, td, t)
}

// failTaskGeneration transitions t to failed and, by default, fails the
// owning workflow (spec §4.5's `fail` outcome, §4.7's default propagation).
func (e *Engine) failTaskGeneration(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow) error {
	if t.State.IsTerminal() {
		return nil
	}
	from := t.State
	t.State = store.TaskFailed
	t.UpdatedAt = e.Clock.Now()
	if err := tx.PutTask(ctx, t); err != nil {
		return err
	}
	if err := tx.AppendTaskStateLog(ctx, &store.TaskStateLogRow{
		WorkflowID: wf.ID, TaskName: t.Name, Generation: t.Generation,
		FromState: from, ToState: store.TaskFailed, At: t.UpdatedAt,
	}); err != nil {
		return err
	}
	if td.Activities.OnFailed != nil {
		if err := td.Activities.OnFailed(ctx, e.activityContext(tx, wf, t)); err != nil {
			return err
		}
	}
	return e.failWorkflow(ctx, tx, def, wf)
}

// fireDummyTask advances a structural dummy task straight through
// started→completed within the same transaction it enabled in (spec
// §4.10's dummy task: pure routing, no work items).
func (e *Engine) fireDummyTask(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow) error {
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
	return e.completeTaskGeneration(ctx, tx, def, wf, td, t)
}
