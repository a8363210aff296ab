package runtime

import (
	"context"
	"fmt"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/migration"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/store"
)

// Migrate moves an in-flight workflow instance from its current version to
// decl.TargetVersionName, following the algorithm in spec §4.11: a fresh
// target instance is created in fastForward exec mode, condition markings
// are replayed by name, every non-terminal source task is resolved against
// the target graph and handed to its migrator, and the target's own
// enablement recursion (tryEnableFromCondition/runSplit, the same code a
// live workflow uses) carries any resulting cascade to a fixed point.
func (e *Engine) Migrate(ctx context.Context, sourceWorkflowID core.ID, decl migration.Declaration) (core.ID, error) {
	var targetID core.ID
	err := e.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		source, err := tx.GetWorkflow(ctx, sourceWorkflowID)
		if err != nil {
			return err
		}
		if source == nil {
			return core.NewError(fmt.Errorf("workflow %s not found", sourceWorkflowID), core.ErrCodeEntityNotFound, nil)
		}
		sourceDef, err := e.definitionFor(ctx, source)
		if err != nil {
			return err
		}
		targetDef, err := e.Versions.Resolve(source.DefinitionName, decl.TargetVersionName)
		if err != nil {
			return err
		}

		target, err := e.newTargetWorkflow(ctx, tx, source, targetDef)
		if err != nil {
			return err
		}
		targetID = target.ID
		if err := tx.PutMigration(ctx, &store.MigrationRow{
			FromWorkflowID: source.ID, ToWorkflowID: target.ID, CreatedAt: e.Clock.Now(),
		}); err != nil {
			return err
		}

		if err := e.replayConditions(ctx, tx, source, target, targetDef); err != nil {
			return err
		}

		mc := &migration.Context{Tx: tx, Source: source, Target: target}
		if decl.Initializer != nil {
			if err := decl.Initializer(ctx, mc); err != nil {
				return err
			}
		}

		if err := e.migrateTasks(ctx, tx, sourceDef, source, targetDef, target, decl); err != nil {
			return err
		}

		if decl.Finalizer != nil {
			if err := decl.Finalizer(ctx, mc); err != nil {
				return err
			}
		}

		target.ExecMode = store.ExecModeNormal
		target.UpdatedAt = e.Clock.Now()
		return tx.PutWorkflow(ctx, target)
	})
	return targetID, err
}

// newTargetWorkflow creates the target instance row in fastForward exec
// mode, with every condition present but unmarked; replayConditions fills
// in markings afterward so a task's join never sees a partially-seeded
// graph.
func (e *Engine) newTargetWorkflow(ctx context.Context, tx store.Tx, source *store.WorkflowRow, targetDef *net.WorkflowDef) (*store.WorkflowRow, error) {
	id, err := core.NewID()
	if err != nil {
		return nil, fmt.Errorf("failed to mint migrated workflow id: %w", err)
	}
	now := e.Clock.Now()
	target := &store.WorkflowRow{
		ID:             id,
		DefinitionName: targetDef.Name,
		VersionName:    targetDef.VersionName,
		ExecMode:       store.ExecModeFastForward,
		State:          store.WorkflowInitialized,
		Path:           source.Path,
		RealizedPath:   source.RealizedPath,
		Parent:         source.Parent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.PutWorkflow(ctx, target); err != nil {
		return nil, err
	}
	for name, cond := range targetDef.Conditions {
		if err := tx.PutCondition(ctx, &store.ConditionRow{WorkflowID: id, Name: name, Implicit: cond.Implicit, Marking: 0}); err != nil {
			return nil, err
		}
	}
	return target, nil
}

// replayConditions copies source markings onto every target condition
// whose name exists in both graphs (spec §4.11 step 3).
func (e *Engine) replayConditions(ctx context.Context, tx store.Tx, source, target *store.WorkflowRow, targetDef *net.WorkflowDef) error {
	sourceConditions, err := tx.ListConditions(ctx, source.ID)
	if err != nil {
		return err
	}
	for _, sc := range sourceConditions {
		if sc.Marking == 0 {
			continue
		}
		if _, ok := targetDef.Conditions[sc.Name]; !ok {
			continue
		}
		tc, err := tx.GetCondition(ctx, target.ID, sc.Name)
		if err != nil {
			return err
		}
		if tc == nil {
			continue
		}
		tc.Marking = sc.Marking
		if err := tx.PutCondition(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}

// migrateTasks resolves every non-terminal source task generation against
// the target graph and invokes its migrator (spec §4.11 step 4).
func (e *Engine) migrateTasks(ctx context.Context, tx store.Tx, sourceDef *net.WorkflowDef, source *store.WorkflowRow, targetDef *net.WorkflowDef, target *store.WorkflowRow, decl migration.Declaration) error {
	sourceTasks, err := tx.ListTasksByWorkflow(ctx, source.ID)
	if err != nil {
		return err
	}
	latestByName := map[string]*store.TaskRow{}
	for _, t := range sourceTasks {
		cur, ok := latestByName[t.Name]
		if !ok || t.Generation > cur.Generation {
			latestByName[t.Name] = t
		}
	}
	for name, sourceTask := range latestByName {
		if sourceTask.State.IsTerminal() || sourceTask.State == store.TaskDisabled {
			continue
		}
		targetTaskDef := targetDef.Tasks[name]
		if targetTaskDef == nil {
			continue // task removed in the target graph; nothing to carry
		}
		key := sourceDef.Name + "/" + name
		migrator, ok := decl.TaskMigrators[key]
		if !ok {
			return core.NewError(fmt.Errorf("migration has no task migrator for %q", key), core.ErrCodeUnknownElement, map[string]any{"task": key})
		}
		workItems, err := tx.ListWorkItems(ctx, source.ID, name, sourceTask.Generation)
		if err != nil {
			return err
		}
		var children []*store.WorkflowRow
		if targetTaskDef.Kind == net.KindComposite || targetTaskDef.Kind == net.KindDynamicComposite {
			children, err = tx.ListChildWorkflows(ctx, source.ID, name, sourceTask.Generation)
			if err != nil {
				return err
			}
		}
		decision, err := migrator(ctx, &migration.TaskContext{
			Tx: tx, Source: source, Target: target, SourceTask: sourceTask,
			TargetTask: targetTaskDef, WorkItems: workItems, Children: children,
		})
		if err != nil {
			return err
		}
		switch decision.Outcome {
		case migration.Continue:
			if err := e.continueTask(ctx, tx, target, targetTaskDef, decision.Port); err != nil {
				return err
			}
		case migration.FastForward:
			if err := e.fastForwardTask(ctx, tx, targetDef, target, targetTaskDef); err != nil {
				return err
			}
		default:
			return core.NewError(fmt.Errorf("task migrator for %q returned unknown outcome %q", key, decision.Outcome),
				core.ErrCodeUnknownElement, map[string]any{"task": key})
		}
	}
	return nil
}

// continueTask creates td's first generation in the target instance in
// the enabled state (its source counterpart already consumed its join
// tokens; the target's matching conditions were seeded by replayConditions),
// then lets the migrator port active work items or children into it.
func (e *Engine) continueTask(ctx context.Context, tx store.Tx, wf *store.WorkflowRow, td *net.TaskDef, port func(ctx context.Context, pc *migration.PortContext) error) error {
	row, err := e.createTaskGeneration(ctx, tx, wf, td, store.TaskEnabled)
	if err != nil {
		return err
	}
	if err := e.markWorkflowStarted(ctx, tx, wf); err != nil {
		return err
	}
	if td.Activities.OnEnabled != nil {
		if err := td.Activities.OnEnabled(ctx, e.activityContext(tx, wf, row)); err != nil {
			return err
		}
	}
	if port == nil {
		return nil
	}
	pc := &migration.PortContext{
		Tx: tx, Target: wf,
		CopyWorkItem: func(ctx context.Context, src *store.WorkItemRow) error {
			return e.portWorkItem(ctx, tx, wf, td, row, src)
		},
		SpawnChild: func(ctx context.Context, definitionName, versionName string, input map[string]any) (core.ID, error) {
			parent := &store.ParentRef{WorkflowID: wf.ID, TaskName: td.Name, Generation: row.Generation}
			childID, err := e.initializeWorkflowTx(ctx, tx, definitionName, versionName, parent)
			if err != nil {
				return "", err
			}
			if err := incrementShard(ctx, tx, td, wf.ID, row.Generation, childID, "total"); err != nil {
				return "", err
			}
			return childID, nil
		},
	}
	return port(ctx, pc)
}

// fastForwardTask creates td's first generation already completed, and
// fires its split exactly as natural completion would, so any downstream
// join sees a real token (spec §4.11 step 4's FastForward outcome).
func (e *Engine) fastForwardTask(ctx context.Context, tx store.Tx, def *net.WorkflowDef, wf *store.WorkflowRow, td *net.TaskDef) error {
	row, err := e.createTaskGeneration(ctx, tx, wf, td, store.TaskCompleted)
	if err != nil {
		return err
	}
	if err := e.markWorkflowStarted(ctx, tx, wf); err != nil {
		return err
	}
	if td.Activities.OnCompleted != nil {
		if err := td.Activities.OnCompleted(ctx, e.activityContext(tx, wf, row)); err != nil {
			return err
		}
	}
	return e.runSplit(ctx, tx, def, wf, td, row)
}

// createTaskGeneration writes a task's first generation directly into
// state, bypassing the ordinary disabled→enabled transition log entry
// since a migrated task never was disabled in the target instance.
func (e *Engine) createTaskGeneration(ctx context.Context, tx store.Tx, wf *store.WorkflowRow, td *net.TaskDef, state store.TaskState) (*store.TaskRow, error) {
	now := e.Clock.Now()
	const generation = 1
	row := &store.TaskRow{
		WorkflowID:   wf.ID,
		Name:         td.Name,
		Generation:   generation,
		State:        state,
		Path:         wf.Path,
		RealizedPath: append(append([]string{}, wf.RealizedPath...), fmt.Sprintf("%s#%d", td.Name, generation)),
		VersionName:  wf.VersionName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.PutTask(ctx, row); err != nil {
		return nil, err
	}
	if err := tx.AppendTaskStateLog(ctx, &store.TaskStateLogRow{
		WorkflowID: wf.ID, TaskName: td.Name, Generation: generation,
		FromState: store.TaskDisabled, ToState: state, At: now,
	}); err != nil {
		return nil, err
	}
	return row, nil
}

// portWorkItem copies one source work item into the target task
// generation, preserving its state and payload, and lands it in the
// single occupancy or terminal counter matching that state — a ported
// item was never actually initialized-then-started-then-terminated in
// the target generation, so only its current state's counter moves.
func (e *Engine) portWorkItem(ctx context.Context, tx store.Tx, wf *store.WorkflowRow, td *net.TaskDef, t *store.TaskRow, src *store.WorkItemRow) error {
	id, err := core.NewID()
	if err != nil {
		return fmt.Errorf("failed to mint ported work item id: %w", err)
	}
	now := e.Clock.Now()
	wi := &store.WorkItemRow{
		ID: id, WorkflowID: wf.ID, TaskName: t.Name, Generation: t.Generation,
		Name: src.Name, State: src.State, Path: wf.Path, VersionName: wf.VersionName,
		Payload: src.Payload, CreatedAt: now, UpdatedAt: now,
	}
	if err := tx.PutWorkItem(ctx, wi); err != nil {
		return err
	}
	if err := incrementShard(ctx, tx, td, wf.ID, t.Generation, id, "total"); err != nil {
		return err
	}
	if src.State != store.WorkItemInitialized {
		// A ported work item that already started carries its owning
		// generation past enabled, mirroring ensureTaskStarted's role on
		// the live StartWorkItem path (spec §3.2).
		if err := e.ensureTaskStarted(ctx, tx, wf, td, t); err != nil {
			return err
		}
	}
	var field string
	switch src.State {
	case store.WorkItemInitialized:
		field = "initialized"
	case store.WorkItemStarted:
		field = "started"
	case store.WorkItemCompleted:
		field = "completed"
	case store.WorkItemFailed:
		field = "failed"
	case store.WorkItemCanceled:
		field = "canceled"
	}
	return incrementShard(ctx, tx, td, wf.ID, t.Generation, id, field)
}
