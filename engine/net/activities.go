package net

import (
	"context"

	"github.com/tasquencer/tasquencer/engine/audit"
	"github.com/tasquencer/tasquencer/engine/scheduler"
	"github.com/tasquencer/tasquencer/engine/store"
)

// ActivityContext is the read/write handle given to lifecycle activity
// callbacks (spec §4.7): onInitialize/onStart/onComplete/onFail/onCancel
// hooks that run once per task generation or workflow instance, as opposed
// to once per work item action.
type ActivityContext struct {
	Tx        store.Tx
	Workflow  *store.WorkflowRow
	Task      *store.TaskRow // nil for workflow-level activities
	Audit     audit.Handle
	Scheduler scheduler.Handle
}

// WorkItemChange describes a work item's transition, passed to
// OnWorkItemStateChanged so a task can observe every child's progress
// without re-deriving it from stats shards.
type WorkItemChange struct {
	WorkItem  *store.WorkItemRow
	FromState store.WorkItemState
	ToState   store.WorkItemState
}

// TaskActivities are the lifecycle hooks a task definition may supply
// (spec §4.10's activities map). Any left nil are no-ops.
type TaskActivities struct {
	OnDisabled            func(ctx context.Context, ac *ActivityContext) error
	OnEnabled             func(ctx context.Context, ac *ActivityContext) error
	OnStarted             func(ctx context.Context, ac *ActivityContext) error
	OnCompleted           func(ctx context.Context, ac *ActivityContext) error
	OnFailed              func(ctx context.Context, ac *ActivityContext) error
	OnCanceled            func(ctx context.Context, ac *ActivityContext) error
	OnWorkItemStateChanged func(ctx context.Context, ac *ActivityContext, change WorkItemChange) error
}

// WorkflowActivities are the lifecycle hooks a workflow definition may
// supply, run once per instance.
type WorkflowActivities struct {
	OnInitialized func(ctx context.Context, ac *ActivityContext) error
	OnStarted     func(ctx context.Context, ac *ActivityContext) error
	OnCompleted   func(ctx context.Context, ac *ActivityContext) error
	OnFailed      func(ctx context.Context, ac *ActivityContext) error
	OnCanceled    func(ctx context.Context, ac *ActivityContext) error
}
