package runtime

import (
	"context"
	"fmt"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/store"
)

// tryEnableFromCondition is called whenever conditionName's marking
// changes: it considers every task the condition feeds and enables
// whichever are eligible (spec §4.2, §4.4).
func (e *Engine) tryEnableFromCondition(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, conditionName string) error {
	for _, taskName := range def.TaskOrder {
		td := def.Tasks[taskName]
		feeds := false
		for _, in := range td.Incoming {
			if in == conditionName {
				feeds = true
				break
			}
		}
		if !feeds {
			continue
		}
		if err := e.tryEnableTask(ctx, tx, def, wf, td); err != nil {
			return err
		}
	}
	return nil
}

// tryEnableTask evaluates td's join condition and, if satisfied and the
// task has no active generation, enables a new generation.
func (e *Engine) tryEnableTask(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef) error {
	generations, err := tx.ListTaskGenerations(ctx, wf.ID, td.Name)
	if err != nil {
		return err
	}
	latestGen := 0
	for _, g := range generations {
		if g.Generation > latestGen {
			latestGen = g.Generation
		}
		if g.State == store.TaskEnabled || g.State == store.TaskStarted {
			return nil // already active, not re-enterable
		}
	}

	consume, ok, err := e.evaluateJoin(ctx, tx, wf, td)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	for _, conditionName := range consume {
		if err := consumeToken(ctx, tx, wf.ID, conditionName, 1); err != nil {
			return err
		}
	}

	now := e.Clock.Now()
	generation := latestGen + 1
	row := &store.TaskRow{
		WorkflowID:   wf.ID,
		Name:         td.Name,
		Generation:   generation,
		State:        store.TaskEnabled,
		Path:         wf.Path,
		RealizedPath: append(append([]string{}, wf.RealizedPath...), fmt.Sprintf("%s#%d", td.Name, generation)),
		VersionName:  wf.VersionName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.PutTask(ctx, row); err != nil {
		return err
	}
	if err := tx.AppendTaskStateLog(ctx, &store.TaskStateLogRow{
		WorkflowID: wf.ID, TaskName: td.Name, Generation: generation,
		FromState: store.TaskDisabled, ToState: store.TaskEnabled, At: now,
	}); err != nil {
		return err
	}
	if err := e.markWorkflowStarted(ctx, tx, wf); err != nil {
		return err
	}

	ac := e.activityContext(tx, wf, row)
	if td.Activities.OnEnabled != nil {
		if err := td.Activities.OnEnabled(ctx, ac); err != nil {
			return err
		}
	}

	switch td.Kind {
	case net.KindDummy:
		return e.fireDummyTask(ctx, tx, def, wf, td, row)
	case net.KindComposite, net.KindDynamicComposite:
		return e.startTaskTx(ctx, tx, def, wf, td, row)
	default:
		return nil // atomic tasks wait for an explicit start action
	}
}

// evaluateJoin decides whether td is eligible given the current markings
// of its incoming conditions, and which conditions to consume from if so.
func (e *Engine) evaluateJoin(ctx context.Context, tx store.Tx, wf *store.WorkflowRow, td *net.TaskDef) (consume []string, ok bool, err error) {
	markings := make(map[string]int, len(td.Incoming))
	for _, name := range td.Incoming {
		cond, err := tx.GetCondition(ctx, wf.ID, name)
		if err != nil {
			return nil, false, err
		}
		if cond == nil {
			return nil, false, core.NewError(fmt.Errorf("condition %q not found for workflow %s", name, wf.ID),
				core.ErrCodeEntityNotFound, map[string]any{"condition": name})
		}
		markings[name] = cond.Marking
	}

	switch td.JoinType {
	case net.JoinAnd, "":
		for _, name := range td.Incoming {
			if markings[name] < 1 {
				return nil, false, nil
			}
		}
		return append([]string{}, td.Incoming...), true, nil
	case net.JoinXor:
		// First marked incoming by declaration order wins the tie-break.
		for _, name := range td.Incoming {
			if markings[name] >= 1 {
				return []string{name}, true, nil
			}
		}
		return nil, false, nil
	case net.JoinOr:
		var marked []string
		for _, name := range td.Incoming {
			if markings[name] >= 1 {
				marked = append(marked, name)
			}
		}
		if len(marked) == 0 {
			return nil, false, nil
		}
		return marked, true, nil
	default:
		return nil, false, core.NewError(fmt.Errorf("task %q has unknown join type %q", td.Name, td.JoinType),
			core.ErrCodeUnknownElement, map[string]any{"task": td.Name})
	}
}

func consumeToken(ctx context.Context, tx store.Tx, workflowID core.ID, conditionName string, n int) error {
	cond, err := tx.GetCondition(ctx, workflowID, conditionName)
	if err != nil {
		return err
	}
	if cond == nil || cond.Marking < n {
		return core.NewError(fmt.Errorf("condition %q cannot be consumed by %d", conditionName, n),
			core.ErrCodeMarkingUnderflow, map[string]any{"condition": conditionName, "n": n})
	}
	cond.Marking -= n
	return tx.PutCondition(ctx, cond)
}

func produceToken(ctx context.Context, tx store.Tx, workflowID core.ID, conditionName string, n int) error {
	cond, err := tx.GetCondition(ctx, workflowID, conditionName)
	if err != nil {
		return err
	}
	if cond == nil {
		return core.NewError(fmt.Errorf("condition %q not found for workflow %s", conditionName, workflowID),
			core.ErrCodeEntityNotFound, map[string]any{"condition": conditionName})
	}
	cond.Marking += n
	return tx.PutCondition(ctx, cond)
}
