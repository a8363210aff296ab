package runtime

import (
	"context"
	"fmt"
	"sort"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/router"
	"github.com/tasquencer/tasquencer/engine/store"
)

// buildRouterContext assembles the read-only view an XOR/OR router sees,
// with work items and child workflows ordered most-recently-created-first
// so a router can always call Latest()/LatestChildWorkflow() to see the
// current round of a loop rather than stale history (spec §4.3, §4.9).
func (e *Engine) buildRouterContext(ctx context.Context, tx store.Tx, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow) (*router.Context, error) {
	items, err := tx.ListWorkItems(ctx, wf.ID, td.Name, t.Generation)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	workItems := make([]map[string]any, len(items))
	for i, wi := range items {
		workItems[i] = map[string]any{
			"id": string(wi.ID), "name": wi.Name, "state": string(wi.State), "payload": wi.Payload,
		}
	}

	var childWorkflows []map[string]any
	if td.Kind == net.KindComposite || td.Kind == net.KindDynamicComposite {
		children, err := tx.ListChildWorkflows(ctx, wf.ID, td.Name, t.Generation)
		if err != nil {
			return nil, err
		}
		sort.Slice(children, func(i, j int) bool { return children[i].CreatedAt.After(children[j].CreatedAt) })
		childWorkflows = make([]map[string]any, len(children))
		for i, c := range children {
			childWorkflows[i] = map[string]any{
				"id": string(c.ID), "definitionName": c.DefinitionName, "state": string(c.State),
			}
		}
	}

	var data map[string]any
	if len(workItems) > 0 {
		data = workItems[0]
	}

	return &router.Context{
		WorkflowID:     string(wf.ID),
		WorkflowName:   wf.DefinitionName,
		TaskName:       td.Name,
		Generation:     t.Generation,
		WorkItems:      workItems,
		ChildWorkflows: childWorkflows,
		Data:           data,
	}, nil
}

// runSplit fires td's outgoing flows according to its split type, once it
// has finalized successfully (spec §4.3).
func (e *Engine) runSplit(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow) error {
	var targets []string
	switch td.SplitType {
	case net.SplitAnd, "":
		for _, out := range td.Outgoing {
			targets = append(targets, out.ConditionName)
		}
	case net.SplitXor:
		if td.XORRouter == nil {
			return core.NewError(fmt.Errorf("task %q has no XOR router", td.Name), core.ErrCodeMissingRouter, nil)
		}
		rc, err := e.buildRouterContext(ctx, tx, wf, td, t)
		if err != nil {
			return err
		}
		decision, err := td.XORRouter(ctx, rc)
		if err != nil {
			return fmt.Errorf("XOR router for task %q: %w", td.Name, err)
		}
		condName, err := def.ResolveTarget(td.Name, decision)
		if err != nil {
			return err
		}
		targets = []string{condName}
	case net.SplitOr:
		if td.ORRouter == nil {
			return core.NewError(fmt.Errorf("task %q has no OR router", td.Name), core.ErrCodeMissingRouter, nil)
		}
		rc, err := e.buildRouterContext(ctx, tx, wf, td, t)
		if err != nil {
			return err
		}
		decisions, err := td.ORRouter(ctx, rc)
		if err != nil {
			return fmt.Errorf("OR router for task %q: %w", td.Name, err)
		}
		if len(decisions) == 0 {
			return core.NewError(fmt.Errorf("OR router for task %q returned no targets", td.Name), core.ErrCodeMissingRouter, nil)
		}
		for _, d := range decisions {
			condName, err := def.ResolveTarget(td.Name, d)
			if err != nil {
				return err
			}
			targets = append(targets, condName)
		}
	default:
		return core.NewError(fmt.Errorf("task %q has unknown split type %q", td.Name, td.SplitType), core.ErrCodeUnknownElement, nil)
	}

	for _, condName := range targets {
		if err := produceToken(ctx, tx, wf.ID, condName, 1); err != nil {
			return err
		}
	}
	if err := e.applyCancellationRegion(ctx, tx, def, wf, td); err != nil {
		return err
	}
	for _, condName := range targets {
		if condName == def.EndCondition {
			if err := e.maybeCompleteWorkflow(ctx, tx, def, wf); err != nil {
				return err
			}
			continue
		}
		if err := e.tryEnableFromCondition(ctx, tx, def, wf, condName); err != nil {
			return err
		}
	}
	return nil
}
