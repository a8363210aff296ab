// Package store defines the host store contract (spec §6): the eight
// persisted tables Tasquencer needs, and the transactional Store/Tx
// interfaces any backing database must satisfy. Application code never
// touches these rows directly — only engine/runtime and engine/migration
// mutate them, inside a transaction.
package store

import (
	"time"

	"github.com/tasquencer/tasquencer/engine/core"
)

// WorkflowExecMode distinguishes ordinary execution from the transient mode
// a workflow instance runs in while a migration replays it (spec §4.11).
type WorkflowExecMode string

const (
	ExecModeNormal      WorkflowExecMode = "normal"
	ExecModeFastForward WorkflowExecMode = "fastForward"
)

// WorkflowState is the workflow instance lifecycle (spec §3.1).
type WorkflowState string

const (
	WorkflowInitialized WorkflowState = "initialized"
	WorkflowStarted     WorkflowState = "started"
	WorkflowCompleted   WorkflowState = "completed"
	WorkflowFailed      WorkflowState = "failed"
	WorkflowCanceled    WorkflowState = "canceled"
)

// TaskState is a task generation's lifecycle (spec §3.1/§3.2).
type TaskState string

const (
	TaskDisabled  TaskState = "disabled"
	TaskEnabled   TaskState = "enabled"
	TaskStarted   TaskState = "started"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCanceled  TaskState = "canceled"
)

// IsTerminal reports whether s is one of task's terminal states.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCanceled:
		return true
	default:
		return false
	}
}

// WorkItemState is a work item's lifecycle (spec §3.1/§3.2).
type WorkItemState string

const (
	WorkItemInitialized WorkItemState = "initialized"
	WorkItemStarted     WorkItemState = "started"
	WorkItemCompleted   WorkItemState = "completed"
	WorkItemFailed      WorkItemState = "failed"
	WorkItemCanceled    WorkItemState = "canceled"
)

// IsTerminal reports whether s is one of work item's terminal states.
func (s WorkItemState) IsTerminal() bool {
	switch s {
	case WorkItemCompleted, WorkItemFailed, WorkItemCanceled:
		return true
	default:
		return false
	}
}

// CancellationReason distinguishes why an element was cancelled (spec §5).
type CancellationReason string

const (
	CancellationExplicit CancellationReason = "explicit"
	CancellationTeardown CancellationReason = "teardown"
	CancellationMigration CancellationReason = "migration"
)

// ParentRef locates the composite task a sub-workflow was spawned from.
type ParentRef struct {
	WorkflowID core.ID `json:"workflowId"`
	TaskName   string  `json:"taskName"`
	Generation int      `json:"generation"`
}

// WorkflowRow is one row of the `workflows` table: one per workflow instance.
type WorkflowRow struct {
	ID             core.ID          `json:"id"`
	DefinitionName string           `json:"name"`
	VersionName    string           `json:"versionName"`
	ExecMode       WorkflowExecMode `json:"execMode"`
	State          WorkflowState    `json:"state"`
	Path           []string         `json:"path"`
	RealizedPath   []string         `json:"realizedPath"`
	Parent         *ParentRef       `json:"parent,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// TaskRow is one row of the `tasks` table: one per task generation.
type TaskRow struct {
	WorkflowID   core.ID   `json:"workflowId"`
	Name         string    `json:"name"`
	Generation   int       `json:"generation"`
	State        TaskState `json:"state"`
	Path         []string  `json:"path"`
	RealizedPath []string  `json:"realizedPath"`
	VersionName  string    `json:"versionName"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TaskStateLogRow is one append-only entry of the `tasksStateLog` table.
type TaskStateLogRow struct {
	WorkflowID core.ID   `json:"workflowId"`
	TaskName   string    `json:"taskName"`
	Generation int       `json:"generation"`
	FromState  TaskState `json:"fromState"`
	ToState    TaskState `json:"toState"`
	At         time.Time `json:"at"`
}

// ConditionRow is one row of the `conditions` table: one per condition per
// workflow instance.
type ConditionRow struct {
	WorkflowID core.ID `json:"workflowId"`
	Name       string  `json:"name"`
	Implicit   bool    `json:"implicit"`
	Marking    int     `json:"marking"`
}

// WorkItemRow is one row of the `workItems` table.
type WorkItemRow struct {
	ID          core.ID       `json:"id"`
	WorkflowID  core.ID       `json:"workflowId"`
	TaskName    string        `json:"taskName"`
	Generation  int           `json:"generation"`
	Name        string        `json:"name"`
	State       WorkItemState `json:"state"`
	Path        []string      `json:"path"`
	VersionName string        `json:"versionName"`
	Payload     map[string]any `json:"payload,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// TaskStatsShardRow is one of the N rows per task generation holding a
// slice of its aggregate counters (spec §3.1, §4.5, §9).
type TaskStatsShardRow struct {
	WorkflowID  core.ID `json:"workflowId"`
	TaskName    string  `json:"taskName"`
	Generation  int     `json:"generation"`
	ShardID     int     `json:"shardId"`
	Total       int64   `json:"total"`
	Initialized int64   `json:"initialized"`
	Started     int64   `json:"started"`
	Completed   int64   `json:"completed"`
	Failed      int64   `json:"failed"`
	Canceled    int64   `json:"canceled"`
}

// Stats is the aggregation of every shard of a task generation.
type Stats struct {
	Total       int64
	Initialized int64
	Started     int64
	Completed   int64
	Failed      int64
	Canceled    int64
}

// Add folds shard into the aggregate.
func (s *Stats) Add(shard TaskStatsShardRow) {
	s.Total += shard.Total
	s.Initialized += shard.Initialized
	s.Started += shard.Started
	s.Completed += shard.Completed
	s.Failed += shard.Failed
	s.Canceled += shard.Canceled
}

// AllTerminal reports whether every counted child has reached a terminal
// state (spec §4.5's default policy condition).
func (s Stats) AllTerminal() bool {
	return s.Completed+s.Failed+s.Canceled == s.Total
}

// ScheduledInitRow is one row of the `scheduledInitializations` table: a
// de-duplicated pointer from a stable key to a scheduled function id.
type ScheduledInitRow struct {
	Key                 string `json:"key"`
	ScheduledFunctionID string `json:"scheduledFunctionId"`
}

// MigrationRow is one row of the `migration` table.
type MigrationRow struct {
	FromWorkflowID core.ID   `json:"fromWorkflowId"`
	ToWorkflowID   core.ID   `json:"toWorkflowId"`
	CreatedAt      time.Time `json:"createdAt"`
}
