package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasquencer/tasquencer/engine/scheduler"
	"github.com/tasquencer/tasquencer/engine/store"
	"github.com/tasquencer/tasquencer/infra/memstore"
)

type fakeHost struct {
	calls int
}

func (f *fakeHost) Schedule(context.Context, time.Time, scheduler.InvokeFunc) (string, error) {
	f.calls++
	return "fn-1", nil
}

func TestHandleRegisterScheduled(t *testing.T) {
	t.Run("Should schedule once and return the same function id on repeat calls for the same key", func(t *testing.T) {
		st := memstore.New()
		host := &fakeHost{}
		var first, second string
		require.NoError(t, st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			h := scheduler.Handle{Tx: tx, Host: host}
			var err error
			first, err = h.RegisterScheduled(ctx, "wf1/taskA", time.Now(), func(context.Context) error { return nil })
			if err != nil {
				return err
			}
			second, err = h.RegisterScheduled(ctx, "wf1/taskA", time.Now(), func(context.Context) error { return nil })
			return err
		}))
		assert.Equal(t, first, second)
		assert.Equal(t, 1, host.calls)
	})

	t.Run("Should schedule independently for distinct keys", func(t *testing.T) {
		st := memstore.New()
		host := &fakeHost{}
		require.NoError(t, st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			h := scheduler.Handle{Tx: tx, Host: host}
			if _, err := h.RegisterScheduled(ctx, "wf1/taskA", time.Now(), func(context.Context) error { return nil }); err != nil {
				return err
			}
			_, err := h.RegisterScheduled(ctx, "wf1/taskB", time.Now(), func(context.Context) error { return nil })
			return err
		}))
		assert.Equal(t, 2, host.calls)
	})
}
