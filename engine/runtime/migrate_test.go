package runtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasquencer/tasquencer/engine/builder"
	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/migration"
	"github.com/tasquencer/tasquencer/engine/store"
)

func TestMigrateContinuesAnInFlightTask(t *testing.T) {
	v1, err := builder.Workflow("order", "v1").
		StartCondition("start").
		EndCondition("end").
		Task("a").
		Task("b").
		Task("c").
		ConnectCondition("start").ToTask("a").
		ConnectTask("a").ToTask("b").
		ConnectTask("b").ToTask("c").
		ConnectTask("c").ToCondition("end").
		Build()
	require.NoError(t, err)

	v2, err := builder.Workflow("order", "v2").
		StartCondition("start").
		EndCondition("end").
		Task("a").
		Task("b").
		Task("c").
		ConnectCondition("start").ToTask("a").
		ConnectTask("a").ToTask("b").
		ConnectTask("b").ToTask("c").
		ConnectTask("c").ToCondition("end").
		Build()
	require.NoError(t, err)

	e, _ := newEngine(t, v1, v2)

	sourceID, err := e.InitializeWorkflow(context.Background(), "order", "v1", nil)
	require.NoError(t, err)

	driveWorkItem(t, e, sourceID, "a") // enables b

	require.NoError(t, e.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		wf, def, err := e.ResolveWorkflow(ctx, tx, sourceID)
		if err != nil {
			return err
		}
		b := latestTask(t, e, sourceID, "b")
		require.NotNil(t, b)
		td := def.Tasks["b"]
		wi, err := e.InitializeWorkItem(ctx, tx, wf, td, b, "in-flight", nil, false)
		if err != nil {
			return err
		}
		return e.StartWorkItem(ctx, tx, wf, td, b, wi, nil, false)
	}))

	decl := migration.Declaration{
		TargetVersionName: "v2",
		TaskMigrators: map[string]migration.TaskMigrator{
			"order/b": func(_ context.Context, tc *migration.TaskContext) (migration.Decision, error) {
				items := tc.WorkItems
				return migration.Decision{
					Outcome: migration.Continue,
					Port: func(ctx context.Context, pc *migration.PortContext) error {
						for _, wi := range items {
							if err := pc.CopyWorkItem(ctx, wi); err != nil {
								return err
							}
						}
						return nil
					},
				}, nil
			},
		},
	}

	targetID, err := e.Migrate(context.Background(), sourceID, decl)
	require.NoError(t, err)

	t.Run("Should carry the in-flight task into the target version with its work item ported", func(t *testing.T) {
		targetB := latestTask(t, e, targetID, "b")
		require.NotNil(t, targetB)
		assert.Equal(t, store.TaskStarted, targetB.State)

		var portedID core.ID
		require.NoError(t, e.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			items, err := tx.ListWorkItems(ctx, targetID, "b", targetB.Generation)
			if err != nil {
				return err
			}
			require.Len(t, items, 1)
			assert.Equal(t, store.WorkItemStarted, items[0].State)
			portedID = items[0].ID
			return nil
		}))

		require.NoError(t, e.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			wf, def, err := e.ResolveWorkflow(ctx, tx, targetID)
			if err != nil {
				return err
			}
			b := latestTask(t, e, targetID, "b")
			td := def.Tasks["b"]
			wi, err := tx.GetWorkItem(ctx, portedID)
			if err != nil {
				return err
			}
			return e.CompleteWorkItem(ctx, tx, def, wf, td, b, wi, nil, false)
		}))

		assert.Equal(t, store.TaskCompleted, latestTask(t, e, targetID, "b").State)
		assert.Equal(t, store.TaskEnabled, latestTask(t, e, targetID, "c").State)

		driveWorkItem(t, e, targetID, "c")
		assert.Equal(t, store.WorkflowCompleted, getWorkflow(t, e, targetID).State)
	})
}

func TestMigrateFastForwardsACompletedLookingTask(t *testing.T) {
	v1, err := builder.Workflow("approval", "v1").
		StartCondition("start").
		EndCondition("end").
		Task("review").
		Task("notify").
		ConnectCondition("start").ToTask("review").
		ConnectTask("review").ToTask("notify").
		ConnectTask("notify").ToCondition("end").
		Build()
	require.NoError(t, err)

	v2, err := builder.Workflow("approval", "v2").
		StartCondition("start").
		EndCondition("end").
		Task("review").
		Task("notify").
		ConnectCondition("start").ToTask("review").
		ConnectTask("review").ToTask("notify").
		ConnectTask("notify").ToCondition("end").
		Build()
	require.NoError(t, err)

	e, _ := newEngine(t, v1, v2)

	sourceID, err := e.InitializeWorkflow(context.Background(), "approval", "v1", nil)
	require.NoError(t, err)

	decl := migration.Declaration{
		TargetVersionName: "v2",
		TaskMigrators: map[string]migration.TaskMigrator{
			"approval/review": func(context.Context, *migration.TaskContext) (migration.Decision, error) {
				return migration.Decision{Outcome: migration.FastForward}, nil
			},
		},
	}

	targetID, err := e.Migrate(context.Background(), sourceID, decl)
	require.NoError(t, err)

	t.Run("Should mark the fast-forwarded task completed and enable its downstream task", func(t *testing.T) {
		assert.Equal(t, store.TaskCompleted, latestTask(t, e, targetID, "review").State)
		assert.Equal(t, store.TaskEnabled, latestTask(t, e, targetID, "notify").State)

		driveWorkItem(t, e, targetID, "notify")
		assert.Equal(t, store.WorkflowCompleted, getWorkflow(t, e, targetID).State)
	})
}
