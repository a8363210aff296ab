package net_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/router"
)

func minimalDef() *net.WorkflowDef {
	return &net.WorkflowDef{
		Name:        "wf",
		VersionName: "v1",
		Conditions: map[string]*net.ConditionDef{
			"start": {Name: "start", IsStart: true},
			"end":   {Name: "end", IsEnd: true},
		},
		StartCondition: "start",
		EndCondition:   "end",
		Tasks:          map[string]*net.TaskDef{},
	}
}

func TestWorkflowDefValidate(t *testing.T) {
	t.Run("Should reject a definition with no start condition", func(t *testing.T) {
		d := minimalDef()
		d.StartCondition = ""
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeMissingStartCondition, core.CodeOf(err))
	})

	t.Run("Should reject a definition with no end condition", func(t *testing.T) {
		d := minimalDef()
		d.EndCondition = ""
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeMissingEndCondition, core.CodeOf(err))
	})

	t.Run("Should reject a task referencing an unknown incoming condition", func(t *testing.T) {
		d := minimalDef()
		d.Tasks["a"] = &net.TaskDef{Name: "a", Kind: net.KindAtomic, SplitType: net.SplitAnd, JoinType: net.JoinAnd, Incoming: []string{"nope"}}
		d.TaskOrder = []string{"a"}
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeUnknownElement, core.CodeOf(err))
	})

	t.Run("Should reject the same condition connecting to the same task twice", func(t *testing.T) {
		d := minimalDef()
		d.Tasks["a"] = &net.TaskDef{
			Name: "a", Kind: net.KindAtomic, SplitType: net.SplitAnd, JoinType: net.JoinAnd,
			Incoming: []string{"start", "start"},
		}
		d.TaskOrder = []string{"a"}
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeDuplicateConnection, core.CodeOf(err))
	})

	t.Run("Should reject an XOR split task with no router", func(t *testing.T) {
		d := minimalDef()
		d.Tasks["a"] = &net.TaskDef{Name: "a", Kind: net.KindAtomic, SplitType: net.SplitXor, JoinType: net.JoinAnd}
		d.TaskOrder = []string{"a"}
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeMissingRouter, core.CodeOf(err))
	})

	t.Run("Should accept a well-formed single-task definition", func(t *testing.T) {
		d := minimalDef()
		d.Tasks["a"] = &net.TaskDef{
			Name: "a", Kind: net.KindAtomic, SplitType: net.SplitAnd, JoinType: net.JoinAnd,
			Incoming: []string{"start"},
			Outgoing: []net.OutgoingEdge{{ConditionName: "end"}},
		}
		d.TaskOrder = []string{"a"}
		require.NoError(t, d.Validate())
	})

	t.Run("Should reject an OR split task with no router", func(t *testing.T) {
		d := minimalDef()
		d.Tasks["a"] = &net.TaskDef{Name: "a", Kind: net.KindAtomic, SplitType: net.SplitOr, JoinType: net.JoinAnd}
		d.TaskOrder = []string{"a"}
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeMissingRouter, core.CodeOf(err))
	})

	t.Run("Should reject a composite task with no child workflow", func(t *testing.T) {
		d := minimalDef()
		d.Tasks["a"] = &net.TaskDef{Name: "a", Kind: net.KindComposite, SplitType: net.SplitAnd, JoinType: net.JoinAnd}
		d.TaskOrder = []string{"a"}
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeUnknownElement, core.CodeOf(err))
	})

	t.Run("Should reject a dynamic composite task with no child workflow definitions", func(t *testing.T) {
		d := minimalDef()
		d.Tasks["a"] = &net.TaskDef{Name: "a", Kind: net.KindDynamicComposite, SplitType: net.SplitAnd, JoinType: net.JoinAnd}
		d.TaskOrder = []string{"a"}
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeUnknownElement, core.CodeOf(err))
	})

	t.Run("Should reject a cancellation region naming an unknown task", func(t *testing.T) {
		d := minimalDef()
		d.Tasks["a"] = &net.TaskDef{
			Name: "a", Kind: net.KindAtomic, SplitType: net.SplitAnd, JoinType: net.JoinAnd,
			Incoming:           []string{"start"},
			Outgoing:           []net.OutgoingEdge{{ConditionName: "end"}},
			CancellationRegion: &net.CancellationRegion{Tasks: []string{"nope"}},
		}
		d.TaskOrder = []string{"a"}
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeUnknownElement, core.CodeOf(err))
	})

	t.Run("Should reject a cancellation region naming an unknown condition", func(t *testing.T) {
		d := minimalDef()
		d.Tasks["a"] = &net.TaskDef{
			Name: "a", Kind: net.KindAtomic, SplitType: net.SplitAnd, JoinType: net.JoinAnd,
			Incoming:           []string{"start"},
			Outgoing:           []net.OutgoingEdge{{ConditionName: "end"}},
			CancellationRegion: &net.CancellationRegion{Conditions: []string{"nope"}},
		}
		d.TaskOrder = []string{"a"}
		err := d.Validate()
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeUnknownElement, core.CodeOf(err))
	})
}

func TestResolveTarget(t *testing.T) {
	d := minimalDef()
	d.Tasks["a"] = &net.TaskDef{Name: "a"}

	t.Run("Should resolve a condition-kind decision to its declared name", func(t *testing.T) {
		name, err := d.ResolveTarget("a", router.Route.ToCondition("end"))
		require.NoError(t, err)
		assert.Equal(t, "end", name)
	})

	t.Run("Should reject a condition-kind decision naming an unknown condition", func(t *testing.T) {
		_, err := d.ResolveTarget("a", router.Route.ToCondition("nope"))
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeUnknownElement, core.CodeOf(err))
	})

	t.Run("Should reject a task-kind decision with no implicit condition between the pair", func(t *testing.T) {
		_, err := d.ResolveTarget("a", router.Route.ToTask("b"))
		require.Error(t, err)
		assert.Equal(t, core.ErrCodeUnknownElement, core.CodeOf(err))
	})
}
