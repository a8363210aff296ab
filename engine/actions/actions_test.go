package actions_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasquencer/tasquencer/engine/actions"
	"github.com/tasquencer/tasquencer/engine/actions/schema"
	"github.com/tasquencer/tasquencer/engine/builder"
	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/runtime"
	"github.com/tasquencer/tasquencer/engine/store"
	"github.com/tasquencer/tasquencer/infra/memstore"
	"github.com/tasquencer/tasquencer/infra/metrics"
)

func newDispatcher(t *testing.T, defs ...*net.WorkflowDef) *actions.Dispatcher {
	t.Helper()
	vm := builder.NewVersionManager()
	for _, def := range defs {
		require.NoError(t, vm.Register(def))
	}
	e := runtime.New(memstore.New(), vm, nil, nil)
	return actions.New(e)
}

func latestTask(t *testing.T, d *actions.Dispatcher, workflowID core.ID, name string) *store.TaskRow {
	t.Helper()
	var out *store.TaskRow
	require.NoError(t, d.Engine.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		gens, err := tx.ListTaskGenerations(ctx, workflowID, name)
		if err != nil {
			return err
		}
		for _, g := range gens {
			if out == nil || g.Generation > out.Generation {
				out = g
			}
		}
		return nil
	}))
	return out
}

func singleTaskDef() *net.WorkflowDef {
	def, err := builder.Workflow("ticket", "v1").
		StartCondition("start").
		EndCondition("end").
		Task("review").
		ConnectCondition("start").ToTask("review").
		ConnectTask("review").ToCondition("end").
		Build()
	if err != nil {
		panic(err)
	}
	return def
}

func schemaGuardedTaskDef(t *testing.T) *net.WorkflowDef {
	t.Helper()
	s, err := schema.Compile(json.RawMessage(`{
		"type": "object",
		"properties": {"approved": {"type": "boolean"}},
		"required": ["approved"]
	}`))
	require.NoError(t, err)
	def, err := builder.Workflow("ticket", "v1").
		StartCondition("start").
		EndCondition("end").
		Task("review", builder.WithTaskActions(net.WorkItemActionSet{
			Complete: net.ActionDef{Schema: s},
		})).
		ConnectCondition("start").ToTask("review").
		ConnectTask("review").ToCondition("end").
		Build()
	require.NoError(t, err)
	return def
}

func TestDispatchRejectsAPayloadFailingTheActionSchema(t *testing.T) {
	d := newDispatcher(t, schemaGuardedTaskDef(t))
	id, err := d.DispatchWorkflow(context.Background(), actions.WorkflowAction{
		Kind: actions.Initialize, DefinitionName: "ticket", VersionName: "v1",
	})
	require.NoError(t, err)
	gen := latestTask(t, d, id, "review").Generation

	wi, err := d.Dispatch(context.Background(), actions.WorkItemAction{
		WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Initialize, Name: "do-it",
	})
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), actions.WorkItemAction{
		WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Start, WorkItemID: wi.ID,
	})
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), actions.WorkItemAction{
		WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Complete, WorkItemID: wi.ID,
		Payload: map[string]any{},
	})
	require.Error(t, err)
	assert.Equal(t, core.ErrCodePayloadInvalid, core.CodeOf(err))

	_, err = d.Dispatch(context.Background(), actions.WorkItemAction{
		WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Complete, WorkItemID: wi.ID,
		Payload: map[string]any{"approved": true},
	})
	require.NoError(t, err)
}

func TestDispatchWorkflow(t *testing.T) {
	t.Run("Should initialize a workflow and enable its first task", func(t *testing.T) {
		d := newDispatcher(t, singleTaskDef())
		id, err := d.DispatchWorkflow(context.Background(), actions.WorkflowAction{
			Kind: actions.Initialize, DefinitionName: "ticket", VersionName: "v1",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, store.TaskEnabled, latestTask(t, d, id, "review").State)
	})

	t.Run("Should reject an initialize envelope missing the version name", func(t *testing.T) {
		d := newDispatcher(t, singleTaskDef())
		_, err := d.DispatchWorkflow(context.Background(), actions.WorkflowAction{
			Kind: actions.Initialize, DefinitionName: "ticket",
		})
		require.Error(t, err)
	})

	t.Run("Should cancel a running workflow", func(t *testing.T) {
		d := newDispatcher(t, singleTaskDef())
		id, err := d.DispatchWorkflow(context.Background(), actions.WorkflowAction{
			Kind: actions.Initialize, DefinitionName: "ticket", VersionName: "v1",
		})
		require.NoError(t, err)

		_, err = d.DispatchWorkflow(context.Background(), actions.WorkflowAction{Kind: actions.Cancel, WorkflowID: id})
		require.NoError(t, err)

		var wf *store.WorkflowRow
		require.NoError(t, d.Engine.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			var err error
			wf, err = tx.GetWorkflow(ctx, id)
			return err
		}))
		assert.Equal(t, store.WorkflowCanceled, wf.State)
	})
}

func TestDispatchRecordsMetricsWhenWired(t *testing.T) {
	d := newDispatcher(t, singleTaskDef())
	reg := metrics.New()
	d.Metrics = reg

	id, err := d.DispatchWorkflow(context.Background(), actions.WorkflowAction{
		Kind: actions.Initialize, DefinitionName: "ticket", VersionName: "v1",
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.WorkItemDispatches.WithLabelValues("initialize", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.WorkflowTransitions.WithLabelValues("initialized")))

	gen := latestTask(t, d, id, "review").Generation
	wi, err := d.Dispatch(context.Background(), actions.WorkItemAction{
		WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Initialize, Name: "do-it",
	})
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), actions.WorkItemAction{
		WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Start, WorkItemID: wi.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.WorkItemDispatches.WithLabelValues("start", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.TaskTransitions.WithLabelValues("review", "started")))

	_, err = d.DispatchWorkflow(context.Background(), actions.WorkflowAction{Kind: actions.Initialize, DefinitionName: "ticket"})
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.WorkItemDispatches.WithLabelValues("initialize", "error")))
}

func TestDispatchWorkItem(t *testing.T) {
	setup := func(t *testing.T) (*actions.Dispatcher, core.ID) {
		d := newDispatcher(t, singleTaskDef())
		id, err := d.DispatchWorkflow(context.Background(), actions.WorkflowAction{
			Kind: actions.Initialize, DefinitionName: "ticket", VersionName: "v1",
		})
		require.NoError(t, err)
		return d, id
	}

	t.Run("Should drive a work item from initialize through complete", func(t *testing.T) {
		d, id := setup(t)
		gen := latestTask(t, d, id, "review").Generation

		wi, err := d.Dispatch(context.Background(), actions.WorkItemAction{
			WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Initialize, Name: "do-it",
		})
		require.NoError(t, err)
		require.NotNil(t, wi)
		assert.Equal(t, store.WorkItemInitialized, wi.State)

		wi, err = d.Dispatch(context.Background(), actions.WorkItemAction{
			WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Start, WorkItemID: wi.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, store.WorkItemStarted, wi.State)
		assert.Equal(t, store.TaskStarted, latestTask(t, d, id, "review").State)

		wi, err = d.Dispatch(context.Background(), actions.WorkItemAction{
			WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Complete, WorkItemID: wi.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, store.WorkItemCompleted, wi.State)
		assert.Equal(t, store.TaskCompleted, latestTask(t, d, id, "review").State)
		assert.Equal(t, store.WorkflowCompleted, func() store.WorkflowState {
			var wf *store.WorkflowRow
			require.NoError(t, d.Engine.Store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
				var err error
				wf, err = tx.GetWorkflow(ctx, id)
				return err
			}))
			return wf.State
		}())
	})

	t.Run("Should reject a re-delivered start as an illegal transition", func(t *testing.T) {
		d, id := setup(t)
		gen := latestTask(t, d, id, "review").Generation

		wi, err := d.Dispatch(context.Background(), actions.WorkItemAction{
			WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Initialize, Name: "do-it",
		})
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), actions.WorkItemAction{
			WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Start, WorkItemID: wi.ID,
		})
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), actions.WorkItemAction{
			WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Start, WorkItemID: wi.ID,
		})
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeIllegalTransition, core.CodeOf(err))
	})

	t.Run("Should reject resetting a work item that was never started", func(t *testing.T) {
		d, id := setup(t)
		gen := latestTask(t, d, id, "review").Generation

		wi, err := d.Dispatch(context.Background(), actions.WorkItemAction{
			WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Initialize, Name: "do-it",
		})
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), actions.WorkItemAction{
			WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Reset, WorkItemID: wi.ID,
		})
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeIllegalTransition, core.CodeOf(err))
	})

	t.Run("Should reject completing a work item that was never started", func(t *testing.T) {
		d, id := setup(t)
		gen := latestTask(t, d, id, "review").Generation

		wi, err := d.Dispatch(context.Background(), actions.WorkItemAction{
			WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Initialize, Name: "do-it",
		})
		require.NoError(t, err)

		_, err = d.Dispatch(context.Background(), actions.WorkItemAction{
			WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Complete, WorkItemID: wi.ID,
		})
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeIllegalTransition, core.CodeOf(err))
	})

	t.Run("Should reject an envelope missing a work item id for a non-initialize action", func(t *testing.T) {
		d, id := setup(t)
		gen := latestTask(t, d, id, "review").Generation

		_, err := d.Dispatch(context.Background(), actions.WorkItemAction{
			WorkflowID: id, TaskName: "review", Generation: gen, Kind: actions.Start,
		})
		require.Error(t, err)
	})
}
