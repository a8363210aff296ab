package runtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasquencer/tasquencer/engine/builder"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/store"
)

// discriminatorDef enables b and c in parallel off a, declares a
// cancellation region on b that clears c, and joins b/c into d with an OR
// join so d does not wait on the branch b just canceled.
func discriminatorDef(t *testing.T) *net.WorkflowDef {
	t.Helper()
	def, err := builder.Workflow("discriminator", "v1").
		StartCondition("start").
		EndCondition("end").
		DummyTask("a").
		Task("b").
		Task("c").
		Task("d", builder.OrJoin()).
		ConnectCondition("start").ToTask("a").
		ConnectTask("a").ToTask("b").
		ConnectTask("a").ToTask("c").
		ConnectTask("b").ToTask("d").
		ConnectTask("c").ToTask("d").
		ConnectTask("d").ToCondition("end").
		Build()
	require.NoError(t, err)
	def.Tasks["b"].CancellationRegion = &net.CancellationRegion{Tasks: []string{"c"}}
	return def
}

func TestCancellationRegionClearsSiblingTask(t *testing.T) {
	def := discriminatorDef(t)
	e, _ := newEngine(t, def)
	id, err := e.InitializeWorkflow(context.Background(), "discriminator", "v1", nil)
	require.NoError(t, err)

	assert.Equal(t, store.TaskEnabled, latestTask(t, e, id, "b").State)
	assert.Equal(t, store.TaskEnabled, latestTask(t, e, id, "c").State)

	driveWorkItem(t, e, id, "b")

	assert.Equal(t, store.TaskCompleted, latestTask(t, e, id, "b").State)
	assert.Equal(t, store.TaskCanceled, latestTask(t, e, id, "c").State)
	assert.Equal(t, store.TaskEnabled, latestTask(t, e, id, "d").State)
}

func TestCancellationRegionIsANoopOnAnAlreadyTerminalTask(t *testing.T) {
	def := discriminatorDef(t)
	e, _ := newEngine(t, def)
	id, err := e.InitializeWorkflow(context.Background(), "discriminator", "v1", nil)
	require.NoError(t, err)

	driveWorkItem(t, e, id, "c")
	assert.Equal(t, store.TaskCompleted, latestTask(t, e, id, "c").State)

	driveWorkItem(t, e, id, "b")
	assert.Equal(t, store.TaskCompleted, latestTask(t, e, id, "b").State)
	assert.Equal(t, store.TaskCompleted, latestTask(t, e, id, "c").State,
		"a task already completed before the region fired must not be disturbed")
}

func TestCancelWorkflowTearsDownOpenTasksAndWorkItems(t *testing.T) {
	def, err := builder.Workflow("cancelable", "v1").
		StartCondition("start").
		EndCondition("end").
		Task("a").
		ConnectCondition("start").ToTask("a").
		ConnectTask("a").ToCondition("end").
		Build()
	require.NoError(t, err)
	e, _ := newEngine(t, def)
	id, err := e.InitializeWorkflow(context.Background(), "cancelable", "v1", nil)
	require.NoError(t, err)
	assert.Equal(t, store.TaskEnabled, latestTask(t, e, id, "a").State)

	require.NoError(t, e.CancelWorkflow(context.Background(), id))

	assert.Equal(t, store.WorkflowCanceled, getWorkflow(t, e, id).State)
	assert.Equal(t, store.TaskCanceled, latestTask(t, e, id, "a").State)
}

func TestCancelWorkflowIsANoopOnAnAlreadyTerminalWorkflow(t *testing.T) {
	def, err := builder.Workflow("already-done", "v1").
		StartCondition("start").
		EndCondition("end").
		Task("a").
		ConnectCondition("start").ToTask("a").
		ConnectTask("a").ToCondition("end").
		Build()
	require.NoError(t, err)
	e, _ := newEngine(t, def)
	id, err := e.InitializeWorkflow(context.Background(), "already-done", "v1", nil)
	require.NoError(t, err)

	driveWorkItem(t, e, id, "a")
	require.Equal(t, store.WorkflowCompleted, getWorkflow(t, e, id).State)

	require.NoError(t, e.CancelWorkflow(context.Background(), id))
	assert.Equal(t, store.WorkflowCompleted, getWorkflow(t, e, id).State,
		"canceling an already-completed workflow must not override its terminal state")
}
