package runtime

import (
	"context"
	"hash/fnv"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/policy"
	"github.com/tasquencer/tasquencer/engine/store"
)

// shardFor picks a deterministic shard for workItemID, spreading writes
// across td.EffectiveShardCount() shards to reduce contention on hot tasks
// (spec §4.5, §9).
func shardFor(td *net.TaskDef, workItemID core.ID) int {
	count := td.EffectiveShardCount()
	if count <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(workItemID))
	return int(h.Sum32() % uint32(count))
}

func getOrNewShard(ctx context.Context, tx store.Tx, workflowID core.ID, taskName string, generation, shardID int) (*store.TaskStatsShardRow, error) {
	shard, err := tx.GetTaskStatsShard(ctx, workflowID, taskName, generation, shardID)
	if err != nil {
		return nil, err
	}
	if shard == nil {
		shard = &store.TaskStatsShardRow{WorkflowID: workflowID, TaskName: taskName, Generation: generation, ShardID: shardID}
	}
	return shard, nil
}

// adjustShardField applies delta to the named counter on shard. initialized
// and started track items *currently* sitting in that state (spec §8), so
// every occupancy move nets out: the vacated field's delta and the entered
// field's delta must land in the same read-modify-write or the aggregate
// total(g) = initialized(g)+started(g)+completed(g)+failed(g)+canceled(g)
// invariant drifts.
func adjustShardField(shard *store.TaskStatsShardRow, field string, delta int64) {
	switch field {
	case "total":
		shard.Total += delta
	case "initialized":
		shard.Initialized += delta
	case "started":
		shard.Started += delta
	case "completed":
		shard.Completed += delta
	case "failed":
		shard.Failed += delta
	case "canceled":
		shard.Canceled += delta
	}
}

// incrementShard increments a single counter, identified by field, on the
// shard workItemID hashes to. Used only for total (a one-time count at
// creation) and for occupancy moves with no prior occupancy counter to
// vacate (e.g. a just-created work item entering initialized).
func incrementShard(ctx context.Context, tx store.Tx, td *net.TaskDef, workflowID core.ID, generation int, workItemID core.ID, field string) error {
	shardID := shardFor(td, workItemID)
	shard, err := getOrNewShard(ctx, tx, workflowID, td.Name, generation, shardID)
	if err != nil {
		return err
	}
	adjustShardField(shard, field, 1)
	return tx.PutTaskStatsShard(ctx, shard)
}

// moveShard decrements the occupancy counter a work item is vacating and
// increments the one it is entering, in a single read-modify-write.
func moveShard(ctx context.Context, tx store.Tx, td *net.TaskDef, workflowID core.ID, generation int, workItemID core.ID, from, to string) error {
	shardID := shardFor(td, workItemID)
	shard, err := getOrNewShard(ctx, tx, workflowID, td.Name, generation, shardID)
	if err != nil {
		return err
	}
	adjustShardField(shard, from, -1)
	adjustShardField(shard, to, 1)
	return tx.PutTaskStatsShard(ctx, shard)
}

// statsAccessor binds a policy.StatsAccessor to one task generation.
func (e *Engine) statsAccessor(tx store.Tx, workflowID core.ID, taskName string, generation int) policy.StatsAccessor {
	return func(ctx context.Context) (store.Stats, error) {
		return store.AggregateStats(ctx, tx, workflowID, taskName, generation)
	}
}
