package runtime

import (
	"context"
	"fmt"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/policy"
	"github.com/tasquencer/tasquencer/engine/store"
)

// policyTransitionFor maps a terminal workflow state onto the WorkItemState
// vocabulary policy.Transition uses, so composite tasks reuse exactly the
// same policy surface work items do (spec §4.8).
func policyTransitionFor(s store.WorkflowState) policy.Transition {
	switch s {
	case store.WorkflowCompleted:
		return policy.Transition{From: store.WorkItemStarted, To: store.WorkItemCompleted}
	case store.WorkflowFailed:
		return policy.Transition{From: store.WorkItemStarted, To: store.WorkItemFailed}
	case store.WorkflowCanceled:
		return policy.Transition{From: store.WorkItemStarted, To: store.WorkItemCanceled}
	default:
		return policy.Transition{}
	}
}

// applyPolicyOutcome acts on a task generation's policy verdict: Continue
// is a no-op, Complete finalizes and fires the split, Fail finalizes and
// propagates failure to the owning workflow (spec §4.5).
func (e *Engine) applyPolicyOutcome(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, outcome policy.Outcome) error {
	switch outcome {
	case policy.Continue:
		return nil
	case policy.Complete:
		return e.completeTaskGeneration(ctx, tx, def, wf, td, t)
	case policy.Fail:
		return e.failTaskGeneration(ctx, tx, def, wf, td, t)
	default:
		return core.NewError(fmt.Errorf("task %q's policy returned unknown outcome %q", td.Name, outcome), core.ErrCodeAssertionFailed, nil)
	}
}
