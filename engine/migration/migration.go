// Package migration declares the shapes a workflow author supplies to move
// an in-flight instance from one registered version to another (spec
// §4.11). The algorithm itself lives in engine/runtime, which is the only
// code allowed to mutate workflow state; this package only carries the
// callback contracts and the read-only views they receive.
package migration

import (
	"context"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/store"
)

// Outcome is what a TaskMigrator decides for one non-terminal source task
// generation.
type Outcome string

const (
	// Continue carries the task's progress forward: a corresponding
	// generation is created in the target graph, and the Decision's Port
	// hook copies across whichever active work items or child workflows
	// the migrator chooses.
	Continue Outcome = "continue"
	// FastForward treats the task as already terminal in the target
	// graph: its active work items and child workflows are discarded,
	// and it produces outgoing tokens as though it had completed
	// naturally, which may cascade further enablement.
	FastForward Outcome = "fastForward"
)

// Context is given to a migration's Initializer and Finalizer hooks.
type Context struct {
	Tx     store.Tx
	Source *store.WorkflowRow
	Target *store.WorkflowRow
}

// TaskContext is given to a TaskMigrator: everything it needs to decide
// Continue or FastForward for one source task generation.
type TaskContext struct {
	Tx         store.Tx
	Source     *store.WorkflowRow
	Target     *store.WorkflowRow
	SourceTask *store.TaskRow
	TargetTask *net.TaskDef
	WorkItems  []*store.WorkItemRow
	Children   []*store.WorkflowRow
}

// PortContext is given to a Continue Decision's Port hook, once the target
// task generation already exists, so the migrator can carry the source's
// active work items and child workflows into it.
type PortContext struct {
	Tx     store.Tx
	Source *store.WorkflowRow
	Target *store.WorkflowRow
	// CopyWorkItem ports one source work item into the new target task
	// generation, preserving its current state and payload.
	CopyWorkItem func(ctx context.Context, wi *store.WorkItemRow) error
	// SpawnChild starts a new child workflow under the target task
	// generation. Dynamic composite migrators use this to choose a
	// (possibly different) target definition per child.
	SpawnChild func(ctx context.Context, definitionName, versionName string, input map[string]any) (core.ID, error)
}

// Decision is what a TaskMigrator returns.
type Decision struct {
	Outcome Outcome
	// Port runs only when Outcome is Continue. It may be nil if the task
	// has no active work items or children worth porting.
	Port func(ctx context.Context, pc *PortContext) error
}

// TaskMigrator decides, for one non-terminal source task generation, how
// it should be represented in the target graph.
type TaskMigrator func(ctx context.Context, tc *TaskContext) (Decision, error)

// Declaration is one migration: from whatever version a source instance
// is currently running to TargetVersionName, of the same workflow name
// (spec §4.11).
type Declaration struct {
	TargetVersionName string
	// Initializer runs once, against the freshly created target row,
	// before any condition or task is replayed.
	Initializer func(ctx context.Context, mc *Context) error
	// Finalizer runs once, after every non-terminal source task has been
	// migrated and the target has reached a fixed point.
	Finalizer func(ctx context.Context, mc *Context) error
	// TaskMigrators is keyed "<workflowName>/<taskName>".
	TaskMigrators map[string]TaskMigrator
}
