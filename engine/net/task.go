package net

import (
	"context"
	"fmt"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/policy"
	"github.com/tasquencer/tasquencer/engine/router"
)

// Kind distinguishes a task's shape (spec §2.2, §4.6).
type Kind string

const (
	KindAtomic           Kind = "atomic"
	KindDummy            Kind = "dummy"
	KindComposite        Kind = "composite"
	KindDynamicComposite Kind = "dynamicComposite"
)

// SplitType and JoinType classify how a task's incoming/outgoing flows
// behave (spec §2.2, §4.3).
type SplitType string
type JoinType string

const (
	SplitAnd SplitType = "and"
	SplitXor SplitType = "xor"
	SplitOr  SplitType = "or"

	JoinAnd JoinType = "and"
	JoinXor JoinType = "xor"
	JoinOr  JoinType = "or"
)

// CancellationRegion is the set of sibling tasks and conditions cleared
// when the owning task completes (spec §5's discriminator / cancel-other-
// branch pattern).
type CancellationRegion struct {
	Tasks      []string
	Conditions []string
}

// ChildSpec describes one child workflow a composite or dynamic composite
// task should spawn.
type ChildSpec struct {
	DefinitionName string
	Input          map[string]any
}

// CompositeActionSet are the hooks a composite/dynamic composite task uses
// to decide which and how many children to spawn, and how to tear them
// down on cancellation.
type CompositeActionSet struct {
	// Initialize returns the child workflow(s) to spawn when the task
	// enables: at least one, since an empty result is an error. A plain
	// composite task spawns one child of its ChildWorkflow per ChildSpec; a
	// dynamic composite task picks each child's definition by
	// ChildSpec.DefinitionName.
	Initialize func(ctx context.Context, ac *ActivityContext) ([]ChildSpec, error)
	// Cancel is invoked once per still-active child when the task's
	// children are torn down (region cancellation or workflow teardown).
	Cancel func(ctx context.Context, ac *ActivityContext, child *ChildWorkflowView) error
}

// ChildWorkflowView is the minimal child-workflow projection a Cancel hook
// needs; runtime fills it in from the matching store.WorkflowRow.
type ChildWorkflowView struct {
	WorkflowID string
	State      string
}

// TaskDef is one transition in the workflow net (spec §2.2).
type TaskDef struct {
	Name            string
	Kind            Kind
	SplitType       SplitType
	JoinType        JoinType
	Incoming        []string // condition names
	Outgoing        []OutgoingEdge
	XORRouter       router.XOR // required when SplitType == SplitXor
	ORRouter        router.OR  // required when SplitType == SplitOr
	StatsShardCount int
	Policy          policy.Policy
	Activities      TaskActivities
	Actions         WorkItemActionSet
	Description     string

	CancellationRegion *CancellationRegion

	// ChildWorkflow is set for KindComposite.
	ChildWorkflow *WorkflowDef
	// ChildWorkflows is set for KindDynamicComposite, keyed by the
	// definition name a ChildSpec may request.
	ChildWorkflows   map[string]*WorkflowDef
	CompositeActions CompositeActionSet
}

// EffectivePolicy returns def.Policy, or policy.Default if unset.
func (d *TaskDef) EffectivePolicy() policy.Policy {
	if d.Policy != nil {
		return d.Policy
	}
	return policy.Default
}

// EffectiveShardCount returns def.StatsShardCount, or 1 if unset.
func (d *TaskDef) EffectiveShardCount() int {
	if d.StatsShardCount > 0 {
		return d.StatsShardCount
	}
	return 1
}

// Validate checks the structural invariants a TaskDef must satisfy on its
// own, independent of the workflow it belongs to (spec §7's structural
// error kinds).
func (d *TaskDef) Validate() error {
	if d.Name == "" {
		return core.NewError(fmt.Errorf("task has empty name"), core.ErrCodeUnknownElement, nil)
	}
	if d.SplitType == SplitXor && d.XORRouter == nil {
		return core.NewError(fmt.Errorf("task %q has an XOR split but no router", d.Name),
			core.ErrCodeMissingRouter, map[string]any{"task": d.Name})
	}
	if d.SplitType == SplitOr && d.ORRouter == nil {
		return core.NewError(fmt.Errorf("task %q has an OR split but no router", d.Name),
			core.ErrCodeMissingRouter, map[string]any{"task": d.Name})
	}
	if d.Kind == KindComposite && d.ChildWorkflow == nil {
		return core.NewError(fmt.Errorf("composite task %q has no child workflow", d.Name),
			core.ErrCodeUnknownElement, map[string]any{"task": d.Name})
	}
	if d.Kind == KindDynamicComposite && len(d.ChildWorkflows) == 0 {
		return core.NewError(fmt.Errorf("dynamic composite task %q has no child workflow definitions", d.Name),
			core.ErrCodeUnknownElement, map[string]any{"task": d.Name})
	}
	return nil
}
