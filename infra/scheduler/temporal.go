package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/tasquencer/tasquencer/engine/scheduler"
)

// invokeRegistry holds the callback for every Temporal scheduled function
// this process has registered, keyed by function id. It does not survive a
// process restart: a callback scheduled and not yet fired when the worker
// that scheduled it dies is lost, the same restriction Temporal's own
// local activities carry.
var invokeRegistry sync.Map

// Temporal schedules a delayed invocation as a workflow execution using
// StartDelay, so the timer itself survives a worker restart even though
// the callback closure does not.
type Temporal struct {
	Client    client.Client
	TaskQueue string
}

// NewTemporal builds a Temporal scheduler over an already-connected client.
func NewTemporal(c client.Client, taskQueue string) *Temporal {
	return &Temporal{Client: c, TaskQueue: taskQueue}
}

// Schedule starts DelayedInvokeWorkflow with StartDelay set to the time
// remaining until at, returning the workflow id as the function id.
func (t *Temporal) Schedule(ctx context.Context, at time.Time, invoke scheduler.InvokeFunc) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("scheduler: mint function id: %w", err)
	}
	functionID := id.String()
	invokeRegistry.Store(functionID, invoke)
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	_, err = t.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:         functionID,
		TaskQueue:  t.TaskQueue,
		StartDelay: delay,
	}, DelayedInvokeWorkflow, functionID)
	if err != nil {
		invokeRegistry.Delete(functionID)
		return "", fmt.Errorf("scheduler: start delayed workflow: %w", err)
	}
	return functionID, nil
}

// RegisterWith registers the workflow and activity Temporal depends on. A
// host must call this once against every worker process that may run a
// scheduled callback.
func RegisterWith(w worker.Worker) {
	w.RegisterWorkflow(DelayedInvokeWorkflow)
	w.RegisterActivity(InvokeActivity)
}

// DelayedInvokeWorkflow is the workflow StartDelay schedules. It runs once,
// immediately executing the registered callback as an activity.
func DelayedInvokeWorkflow(ctx workflow.Context, functionID string) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
	})
	return workflow.ExecuteActivity(ctx, InvokeActivity, functionID).Get(ctx, nil)
}

// InvokeActivity looks up functionID's registered callback and runs it,
// removing it from the registry either way so a retried activity attempt
// after a successful run does not re-invoke it.
func InvokeActivity(ctx context.Context, functionID string) error {
	v, ok := invokeRegistry.LoadAndDelete(functionID)
	if !ok {
		return fmt.Errorf("scheduler: no callback registered for function %s", functionID)
	}
	return v.(scheduler.InvokeFunc)(ctx)
}
