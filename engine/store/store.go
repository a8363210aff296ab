package store

import (
	"context"

	"github.com/tasquencer/tasquencer/engine/core"
)

// Store is the host store contract from spec §6: typed tables with
// secondary indexes, and transactions with optimistic concurrency control
// and automatic retry on conflict. The engine never talks to a backing
// database except through a Store.
type Store interface {
	// WithTx runs fn inside a single transaction. If fn returns an error,
	// or the underlying transaction fails to commit (e.g. an OCC conflict),
	// WithTx returns that error and no partial state persists. Implementations
	// may retry fn transparently on conflict; fn must therefore be idempotent.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Tx is the set of reads and writes available inside one transaction.
// All index-shaped lookups described in spec §6's table are exposed here.
type Tx interface {
	// workflows — indexed by (parent.workflowId, parent.taskName,
	// parent.generation, state, name)
	GetWorkflow(ctx context.Context, id core.ID) (*WorkflowRow, error)
	PutWorkflow(ctx context.Context, row *WorkflowRow) error
	ListChildWorkflows(ctx context.Context, parentWorkflowID core.ID, parentTaskName string, parentGeneration int) ([]*WorkflowRow, error)

	// tasks — indexed by (workflowId, state) and (workflowId, name, generation)
	GetTask(ctx context.Context, workflowID core.ID, name string, generation int) (*TaskRow, error)
	PutTask(ctx context.Context, row *TaskRow) error
	ListTaskGenerations(ctx context.Context, workflowID core.ID, name string) ([]*TaskRow, error)
	ListTasksByWorkflow(ctx context.Context, workflowID core.ID) ([]*TaskRow, error)

	// tasksStateLog — append-only, indexed by (workflowId, name, generation)
	AppendTaskStateLog(ctx context.Context, row *TaskStateLogRow) error
	ListTaskStateLog(ctx context.Context, workflowID core.ID, name string, generation int) ([]*TaskStateLogRow, error)

	// conditions — indexed by (workflowId, name) and (workflowId, marking)
	GetCondition(ctx context.Context, workflowID core.ID, name string) (*ConditionRow, error)
	PutCondition(ctx context.Context, row *ConditionRow) error
	ListConditions(ctx context.Context, workflowID core.ID) ([]*ConditionRow, error)

	// workItems — indexed by (parent.workflowId, taskName, generation, state)
	GetWorkItem(ctx context.Context, id core.ID) (*WorkItemRow, error)
	PutWorkItem(ctx context.Context, row *WorkItemRow) error
	ListWorkItems(ctx context.Context, workflowID core.ID, taskName string, generation int) ([]*WorkItemRow, error)

	// taskStatsShards — indexed by (workflowId, taskName, generation, shardId)
	GetTaskStatsShard(ctx context.Context, workflowID core.ID, taskName string, generation, shardID int) (*TaskStatsShardRow, error)
	PutTaskStatsShard(ctx context.Context, row *TaskStatsShardRow) error
	ListTaskStatsShards(ctx context.Context, workflowID core.ID, taskName string, generation int) ([]*TaskStatsShardRow, error)

	// scheduledInitializations — indexed by key
	GetScheduledInit(ctx context.Context, key string) (*ScheduledInitRow, error)
	PutScheduledInit(ctx context.Context, row *ScheduledInitRow) error

	// migration — indexed by toWorkflowId
	GetMigrationByTarget(ctx context.Context, toWorkflowID core.ID) (*MigrationRow, error)
	PutMigration(ctx context.Context, row *MigrationRow) error
}

// AggregateStats sums every shard of a task generation.
func AggregateStats(ctx context.Context, tx Tx, workflowID core.ID, taskName string, generation int) (Stats, error) {
	shards, err := tx.ListTaskStatsShards(ctx, workflowID, taskName, generation)
	if err != nil {
		return Stats{}, err
	}
	var agg Stats
	for _, shard := range shards {
		agg.Add(*shard)
	}
	return agg, nil
}
