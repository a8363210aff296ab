package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/store"
	"github.com/tasquencer/tasquencer/infra/memstore"
)

func TestShardForIsDeterministicAndInRange(t *testing.T) {
	td := &net.TaskDef{Name: "bulk", StatsShardCount: 4}
	id := core.ID("work-item-1")

	first := shardFor(td, id)
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 4)
	assert.Equal(t, first, shardFor(td, id), "the same work item id must always hash to the same shard")
}

func TestShardForCollapsesToZeroWhenUnsharded(t *testing.T) {
	td := &net.TaskDef{Name: "solo"}
	assert.Equal(t, 0, shardFor(td, core.ID("any-id")))
}

func TestIncrementShardAggregatesAcrossShards(t *testing.T) {
	st := memstore.New()
	td := &net.TaskDef{Name: "bulk", StatsShardCount: 4}
	workflowID := core.ID("wf-1")

	ids := []core.ID{"item-a", "item-b", "item-c", "item-d", "item-e"}
	require.NoError(t, st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, id := range ids {
			if err := incrementShard(ctx, tx, td, workflowID, 1, id, "completed"); err != nil {
				return err
			}
		}
		return nil
	}))

	var agg store.Stats
	require.NoError(t, st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		agg, err = store.AggregateStats(ctx, tx, workflowID, td.Name, 1)
		return err
	}))
	assert.Equal(t, int64(len(ids)), agg.Completed)
}

func TestMoveShardKeepsOccupancyInvariant(t *testing.T) {
	st := memstore.New()
	td := &net.TaskDef{Name: "solo"}
	workflowID := core.ID("wf-1")
	id := core.ID("item-a")

	require.NoError(t, st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := incrementShard(ctx, tx, td, workflowID, 1, id, "total"); err != nil {
			return err
		}
		return incrementShard(ctx, tx, td, workflowID, 1, id, "initialized")
	}))

	assertOccupancyInvariant := func() store.Stats {
		var agg store.Stats
		require.NoError(t, st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			var err error
			agg, err = store.AggregateStats(ctx, tx, workflowID, td.Name, 1)
			return err
		}))
		assert.Equal(t, agg.Total, agg.Initialized+agg.Started+agg.Completed+agg.Failed+agg.Canceled)
		return agg
	}

	agg := assertOccupancyInvariant()
	assert.Equal(t, int64(1), agg.Total)
	assert.Equal(t, int64(1), agg.Initialized)
	assert.Equal(t, int64(0), agg.Started)

	require.NoError(t, st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return moveShard(ctx, tx, td, workflowID, 1, id, "initialized", "started")
	}))
	agg = assertOccupancyInvariant()
	assert.Equal(t, int64(0), agg.Initialized)
	assert.Equal(t, int64(1), agg.Started)

	require.NoError(t, st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return moveShard(ctx, tx, td, workflowID, 1, id, "started", "completed")
	}))
	agg = assertOccupancyInvariant()
	assert.Equal(t, int64(0), agg.Started)
	assert.Equal(t, int64(1), agg.Completed)
}
