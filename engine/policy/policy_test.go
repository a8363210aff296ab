package policy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasquencer/tasquencer/engine/policy"
	"github.com/tasquencer/tasquencer/engine/store"
)

func statsOf(s store.Stats) policy.StatsAccessor {
	return func(context.Context) (store.Stats, error) { return s, nil }
}

func TestDefault(t *testing.T) {
	t.Run("Should fail the task immediately on a failed transition regardless of stats", func(t *testing.T) {
		outcome, err := policy.Default(context.Background(),
			policy.Transition{From: store.WorkItemStarted, To: store.WorkItemFailed},
			statsOf(store.Stats{Total: 3, Completed: 1, Failed: 1}))
		require.NoError(t, err)
		assert.Equal(t, policy.Fail, outcome)
	})

	t.Run("Should continue when a completed transition leaves siblings unterminated", func(t *testing.T) {
		outcome, err := policy.Default(context.Background(),
			policy.Transition{From: store.WorkItemStarted, To: store.WorkItemCompleted},
			statsOf(store.Stats{Total: 2, Completed: 1}))
		require.NoError(t, err)
		assert.Equal(t, policy.Continue, outcome)
	})

	t.Run("Should complete once every counted child is terminal", func(t *testing.T) {
		outcome, err := policy.Default(context.Background(),
			policy.Transition{From: store.WorkItemStarted, To: store.WorkItemCompleted},
			statsOf(store.Stats{Total: 2, Completed: 1, Canceled: 1}))
		require.NoError(t, err)
		assert.Equal(t, policy.Complete, outcome)
	})

	t.Run("Should treat a canceled transition the same as completed for termination purposes", func(t *testing.T) {
		outcome, err := policy.Default(context.Background(),
			policy.Transition{From: store.WorkItemStarted, To: store.WorkItemCanceled},
			statsOf(store.Stats{Total: 1, Canceled: 1}))
		require.NoError(t, err)
		assert.Equal(t, policy.Complete, outcome)
	})

	t.Run("Should continue on any other transition", func(t *testing.T) {
		outcome, err := policy.Default(context.Background(),
			policy.Transition{From: store.WorkItemInitialized, To: store.WorkItemStarted},
			statsOf(store.Stats{}))
		require.NoError(t, err)
		assert.Equal(t, policy.Continue, outcome)
	})
}
