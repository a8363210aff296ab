package runtime

import (
	"context"
	"fmt"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/store"
)

// ResolveWorkflow loads a workflow instance and its compiled definition,
// the pair engine/actions needs before it can validate or dispatch any
// action against it.
func (e *Engine) ResolveWorkflow(ctx context.Context, tx store.Tx, workflowID core.ID) (*store.WorkflowRow, *net.WorkflowDef, error) {
	wf, err := tx.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	if wf == nil {
		return nil, nil, core.NewError(fmt.Errorf("workflow %s not found", workflowID), core.ErrCodeEntityNotFound, map[string]any{"workflowId": string(workflowID)})
	}
	def, err := e.definitionFor(ctx, wf)
	if err != nil {
		return nil, nil, err
	}
	return wf, def, nil
}

// ResolveTask loads a task generation row and its definition within an
// already-resolved workflow.
func (e *Engine) ResolveTask(ctx context.Context, tx store.Tx, def *net.WorkflowDef, workflowID core.ID, taskName string, generation int) (*store.TaskRow, *net.TaskDef, error) {
	td := def.Tasks[taskName]
	if td == nil {
		return nil, nil, core.NewError(fmt.Errorf("task %q not found in definition %q", taskName, def.Name), core.ErrCodeUnknownElement, map[string]any{"task": taskName})
	}
	t, err := tx.GetTask(ctx, workflowID, taskName, generation)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return nil, nil, core.NewError(fmt.Errorf("task %q generation %d not found", taskName, generation), core.ErrCodeEntityNotFound, map[string]any{"task": taskName, "generation": generation})
	}
	return t, td, nil
}

// ResolveWorkItem loads a work item row by id.
func (e *Engine) ResolveWorkItem(ctx context.Context, tx store.Tx, id core.ID) (*store.WorkItemRow, error) {
	wi, err := tx.GetWorkItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if wi == nil {
		return nil, core.NewError(fmt.Errorf("work item %s not found", id), core.ErrCodeEntityNotFound, map[string]any{"workItemId": string(id)})
	}
	return wi, nil
}
