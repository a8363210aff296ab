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

func TestCompositeTask(t *testing.T) {
	child, err := builder.Workflow("child", "v1").
		StartCondition("start").
		EndCondition("end").
		Task("work").
		ConnectCondition("start").ToTask("work").
		ConnectTask("work").ToCondition("end").
		Build()
	require.NoError(t, err)

	parent, err := builder.Workflow("parent", "v1").
		StartCondition("start").
		EndCondition("end").
		CompositeTask("spawn", child,
			builder.WithCompositeActions(net.CompositeActionSet{
				Initialize: func(_ context.Context, _ *net.ActivityContext) ([]net.ChildSpec, error) {
					return []net.ChildSpec{{DefinitionName: "child", Input: nil}}, nil
				},
			}),
		).
		ConnectCondition("start").ToTask("spawn").
		ConnectTask("spawn").ToCondition("end").
		Build()
	require.NoError(t, err)

	e, _ := newEngine(t, child, parent)

	t.Run("Should start the child workflow on enablement and complete the parent when it finishes", func(t *testing.T) {
		id, err := e.InitializeWorkflow(context.Background(), "parent", "v1", nil)
		require.NoError(t, err)

		spawnTask := latestTask(t, e, id, "spawn")
		require.NotNil(t, spawnTask)
		assert.Equal(t, store.TaskStarted, spawnTask.State)

		var child0 *store.WorkflowRow
		require.NoError(t, e.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			children, err := tx.ListChildWorkflows(ctx, id, "spawn", spawnTask.Generation)
			if err != nil {
				return err
			}
			require.Len(t, children, 1)
			child0 = children[0]
			return nil
		}))

		driveWorkItem(t, e, child0.ID, "work")
		assert.Equal(t, store.WorkflowCompleted, getWorkflow(t, e, child0.ID).State)

		assert.Equal(t, store.TaskCompleted, latestTask(t, e, id, "spawn").State)
		assert.Equal(t, store.WorkflowCompleted, getWorkflow(t, e, id).State)
	})
}
