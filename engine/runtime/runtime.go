// Package runtime is the firing engine: the only code that mutates
// workflow, task, condition, work item, and stats shard rows (spec §4).
// Every exported entry point either opens its own transaction or, for the
// internal helpers other packages compose (engine/actions, engine/migration),
// accepts an already-open store.Tx so several mutations can commit
// atomically.
package runtime

import (
	"context"
	"fmt"

	"github.com/tasquencer/tasquencer/engine/audit"
	"github.com/tasquencer/tasquencer/engine/builder"
	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/scheduler"
	"github.com/tasquencer/tasquencer/engine/store"
)

// Engine ties the definition registry to a backing store, host scheduler,
// and audit sink.
type Engine struct {
	Store     store.Store
	Versions  *builder.VersionManager
	Scheduler scheduler.HostScheduler
	Audit     audit.Sink
	Clock     core.Clock
}

// New builds an Engine. scheduler and auditSink may be nil: a nil
// scheduler means scheduled (delayed) initializations are unsupported, and
// a nil sink makes every audit append a no-op.
func New(st store.Store, versions *builder.VersionManager, hostScheduler scheduler.HostScheduler, auditSink audit.Sink) *Engine {
	return &Engine{
		Store:     st,
		Versions:  versions,
		Scheduler: hostScheduler,
		Audit:     auditSink,
		Clock:     core.SystemClock,
	}
}

// InitializeWorkflow creates a new workflow instance of (defName,
// versionName), deposits a token in its start condition, and runs its
// onInitialized activity (spec §4.7). parent is non-nil for a workflow
// spawned by a composite or dynamic composite task.
func (e *Engine) InitializeWorkflow(ctx context.Context, defName, versionName string, parent *store.ParentRef) (core.ID, error) {
	var id core.ID
	err := e.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		id, err = e.initializeWorkflowTx(ctx, tx, defName, versionName, parent)
		return err
	})
	return id, err
}

func (e *Engine) initializeWorkflowTx(ctx context.Context, tx store.Tx, defName, versionName string, parent *store.ParentRef) (core.ID, error) {
	def, err := e.Versions.Resolve(defName, versionName)
	if err != nil {
		return "", err
	}
	id, err := core.NewID()
	if err != nil {
		return "", fmt.Errorf("failed to mint workflow id: %w", err)
	}
	now := e.Clock.Now()
	path, realizedPath := derivePaths(parent)
	row := &store.WorkflowRow{
		ID:             id,
		DefinitionName: def.Name,
		VersionName:    def.VersionName,
		ExecMode:       store.ExecModeNormal,
		State:          store.WorkflowInitialized,
		Path:           path,
		RealizedPath:   realizedPath,
		Parent:         parent,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.PutWorkflow(ctx, row); err != nil {
		return "", err
	}
	for _, cond := range def.Conditions {
		marking := 0
		if cond.IsStart {
			marking = 1
		}
		if err := tx.PutCondition(ctx, &store.ConditionRow{
			WorkflowID: id,
			Name:       cond.Name,
			Implicit:   cond.Implicit,
			Marking:    marking,
		}); err != nil {
			return "", err
		}
	}
	ac := e.activityContext(tx, row, nil)
	if def.Activities.OnInitialized != nil {
		if err := def.Activities.OnInitialized(ctx, ac); err != nil {
			return "", err
		}
	}
	if err := e.auditHandle(row, nil).Append(ctx, map[string]any{"event": "workflowInitialized"}); err != nil {
		return "", err
	}
	if err := e.tryEnableFromCondition(ctx, tx, def, row, def.StartCondition); err != nil {
		return "", err
	}
	return id, nil
}

func derivePaths(parent *store.ParentRef) (path, realizedPath []string) {
	if parent == nil {
		return nil, nil
	}
	segment := fmt.Sprintf("%s/%s", parent.WorkflowID, parent.TaskName)
	realizedSegment := fmt.Sprintf("%s/%s#%d", parent.WorkflowID, parent.TaskName, parent.Generation)
	return []string{segment}, []string{realizedSegment}
}

func (e *Engine) activityContext(tx store.Tx, wf *store.WorkflowRow, task *store.TaskRow) *net.ActivityContext {
	return &net.ActivityContext{
		Tx:        tx,
		Workflow:  wf,
		Task:      task,
		Audit:     e.auditHandle(wf, task),
		Scheduler: scheduler.Handle{Tx: tx, Host: e.Scheduler},
	}
}

func (e *Engine) auditHandle(wf *store.WorkflowRow, task *store.TaskRow) audit.Handle {
	path := []string{string(wf.ID)}
	if task != nil {
		path = append(path, task.Name)
	}
	return audit.Handle{Sink: e.Audit, Path: path}
}

// CancelWorkflow explicitly cancels a workflow instance (spec §4.7's
// `cancel` action), tearing down every non-terminal task generation.
func (e *Engine) CancelWorkflow(ctx context.Context, workflowID core.ID) error {
	return e.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		wf, err := tx.GetWorkflow(ctx, workflowID)
		if err != nil {
			return err
		}
		if wf == nil {
			return core.NewError(fmt.Errorf("workflow %s not found", workflowID), core.ErrCodeEntityNotFound, nil)
		}
		return e.cancelWorkflowTx(ctx, tx, wf, store.CancellationExplicit)
	})
}

func (e *Engine) definitionFor(ctx context.Context, wf *store.WorkflowRow) (*net.WorkflowDef, error) {
	return e.Versions.Resolve(wf.DefinitionName, wf.VersionName)
}
