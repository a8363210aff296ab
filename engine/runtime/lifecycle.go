package runtime

import (
	"context"

	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/store"
)

// markWorkflowStarted transitions wf from initialized to started the first
// time any task enables (spec §4.7).
func (e *Engine) markWorkflowStarted(ctx context.Context, tx store.Tx, wf *store.WorkflowRow) error {
	if wf.State != store.WorkflowInitialized {
		return nil
	}
	wf.State = store.WorkflowStarted
	wf.UpdatedAt = e.Clock.Now()
	if err := tx.PutWorkflow(ctx, wf); err != nil {
		return err
	}
	def, err := e.definitionFor(ctx, wf)
	if err != nil {
		return err
	}
	if def.Activities.OnStarted != nil {
		if err := def.Activities.OnStarted(ctx, e.activityContext(tx, wf, nil)); err != nil {
			return err
		}
	}
	return nil
}

// ensureTaskStarted transitions an atomic task generation from enabled to
// started the first time one of its work items starts, since the task
// state machine has no enabled→completed edge — only enabled→{started,
// canceled} and started→{completed,failed,canceled} (spec §3.2). Dummy and
// composite/dynamic composite generations already make this transition
// themselves on enablement (fireDummyTask, startTaskTx); this covers the
// remaining atomic case.
func (e *Engine) ensureTaskStarted(ctx context.Context, tx store.Tx, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow) error {
	if t.State != store.TaskEnabled {
		return nil
	}
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
		return td.Activities.OnStarted(ctx, e.activityContext(tx, wf, t))
	}
	return nil
}

// anyTaskNonTerminal reports whether wf has any task generation not yet in
// a terminal state.
func anyTaskNonTerminal(ctx context.Context, tx store.Tx, wf *store.WorkflowRow) (bool, error) {
	tasks, err := tx.ListTasksByWorkflow(ctx, wf.ID)
	if err != nil {
		return false, err
	}
	latestByName := map[string]*store.TaskRow{}
	for _, t := range tasks {
		cur, ok := latestByName[t.Name]
		if !ok || t.Generation > cur.Generation {
			latestByName[t.Name] = t
		}
	}
	for _, t := range latestByName {
		if !t.State.IsTerminal() && t.State != store.TaskDisabled {
			return true, nil
		}
	}
	return false, nil
}

// maybeCompleteWorkflow completes wf once its end condition holds a token
// and no task is mid-flight (spec §4.7).
func (e *Engine) maybeCompleteWorkflow(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow) error {
	if wf.State.IsTerminal() {
		return nil
	}
	end, err := tx.GetCondition(ctx, wf.ID, def.EndCondition)
	if err != nil {
		return err
	}
	if end == nil || end.Marking < 1 {
		return nil
	}
	nonTerminal, err := anyTaskNonTerminal(ctx, tx, wf)
	if err != nil {
		return err
	}
	if nonTerminal {
		return nil
	}
	wf.State = store.WorkflowCompleted
	wf.UpdatedAt = e.Clock.Now()
	if err := tx.PutWorkflow(ctx, wf); err != nil {
		return err
	}
	if def.Activities.OnCompleted != nil {
		if err := def.Activities.OnCompleted(ctx, e.activityContext(tx, wf, nil)); err != nil {
			return err
		}
	}
	if wf.Parent != nil {
		return e.propagateChildWorkflowState(ctx, tx, wf, store.WorkflowCompleted)
	}
	return nil
}

// failWorkflow fails wf and tears down every non-terminal task (spec §4.7:
// default policy is that any task failure fails the owning workflow).
func (e *Engine) failWorkflow(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow) error {
	if wf.State.IsTerminal() {
		return nil
	}
	if err := e.teardownWorkflow(ctx, tx, def, wf, store.CancellationTeardown); err != nil {
		return err
	}
	wf.State = store.WorkflowFailed
	wf.UpdatedAt = e.Clock.Now()
	if err := tx.PutWorkflow(ctx, wf); err != nil {
		return err
	}
	if def.Activities.OnFailed != nil {
		if err := def.Activities.OnFailed(ctx, e.activityContext(tx, wf, nil)); err != nil {
			return err
		}
	}
	if wf.Parent != nil {
		return e.propagateChildWorkflowState(ctx, tx, wf, store.WorkflowFailed)
	}
	return nil
}

// cancelWorkflowTx cancels wf for the given reason, tearing down every
// non-terminal task generation.
func (e *Engine) cancelWorkflowTx(ctx context.Context, tx store.Tx, wf *store.WorkflowRow, reason store.CancellationReason) error {
	if wf.State.IsTerminal() {
		return nil
	}
	def, err := e.definitionFor(ctx, wf)
	if err != nil {
		return err
	}
	if err := e.teardownWorkflow(ctx, tx, def, wf, reason); err != nil {
		return err
	}
	wf.State = store.WorkflowCanceled
	wf.UpdatedAt = e.Clock.Now()
	if err := tx.PutWorkflow(ctx, wf); err != nil {
		return err
	}
	if def.Activities.OnCanceled != nil {
		if err := def.Activities.OnCanceled(ctx, e.activityContext(tx, wf, nil)); err != nil {
			return err
		}
	}
	if wf.Parent != nil {
		return e.propagateChildWorkflowState(ctx, tx, wf, store.WorkflowCanceled)
	}
	return nil
}

// teardownWorkflow cancels every non-terminal task generation belonging to
// wf, used by both explicit cancellation and failure propagation.
func (e *Engine) teardownWorkflow(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, reason store.CancellationReason) error {
	tasks, err := tx.ListTasksByWorkflow(ctx, wf.ID)
	if err != nil {
		return err
	}
	latestByName := map[string]*store.TaskRow{}
	for _, t := range tasks {
		cur, ok := latestByName[t.Name]
		if !ok || t.Generation > cur.Generation {
			latestByName[t.Name] = t
		}
	}
	for name, t := range latestByName {
		if t.State.IsTerminal() {
			continue
		}
		td := def.Tasks[name]
		if td == nil {
			continue
		}
		if err := e.cancelTaskGeneration(ctx, tx, def, wf, td, t, reason); err != nil {
			return err
		}
	}
	return nil
}
