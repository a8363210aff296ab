package net

import (
	"fmt"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/router"
)

// WorkflowDef is a compiled, immutable workflow net (spec §2, §4.10). It is
// produced by engine/builder and is never mutated after compilation; every
// workflow instance in engine/store references one by (Name, VersionName).
type WorkflowDef struct {
	Name           string
	VersionName    string
	StartCondition string
	EndCondition   string
	Description    string

	Conditions map[string]*ConditionDef
	Tasks      map[string]*TaskDef
	// TaskOrder preserves builder declaration order, used to break ties
	// deterministically (the order in which tryEnableFromCondition
	// considers the tasks a condition feeds, and diagnostic listing order).
	TaskOrder []string

	Activities WorkflowActivities
	Actions    WorkflowActionSet

	// implicitByTaskPair maps (fromTask, toTask) to the synthesized
	// condition name connecting them directly, used to resolve
	// router.Route.ToTask decisions (spec §4.9).
	implicitByTaskPair map[[2]string]string
}

// ResolveTarget turns a router Decision produced while sourceTask fires
// into the actual condition name that should receive a token.
func (d *WorkflowDef) ResolveTarget(sourceTask string, decision router.Decision) (string, error) {
	switch decision.Kind {
	case router.TargetCondition:
		if _, ok := d.Conditions[decision.Target]; !ok {
			return "", core.NewError(fmt.Errorf("router for task %q named unknown condition %q", sourceTask, decision.Target),
				core.ErrCodeUnknownElement, map[string]any{"task": sourceTask, "condition": decision.Target})
		}
		return decision.Target, nil
	case router.TargetTask:
		name, ok := d.implicitByTaskPair[[2]string{sourceTask, decision.Target}]
		if !ok {
			return "", core.NewError(fmt.Errorf("router for task %q named unreachable task %q", sourceTask, decision.Target),
				core.ErrCodeUnknownElement, map[string]any{"task": sourceTask, "toTask": decision.Target})
		}
		return name, nil
	default:
		return "", core.NewError(fmt.Errorf("router for task %q returned an unknown decision kind %q", sourceTask, decision.Kind),
			core.ErrCodeUnknownElement, map[string]any{"task": sourceTask})
	}
}

// Validate checks the structural invariants spec §7 names: a start and end
// condition must exist, every task/condition name referenced by a flow
// must be declared, and no two flows may connect the same ordered pair
// twice (spec's DuplicateConnection).
func (d *WorkflowDef) Validate() error {
	if d.StartCondition == "" || d.Conditions[d.StartCondition] == nil {
		return core.NewError(fmt.Errorf("workflow %q has no start condition", d.Name),
			core.ErrCodeMissingStartCondition, map[string]any{"workflow": d.Name})
	}
	if d.EndCondition == "" || d.Conditions[d.EndCondition] == nil {
		return core.NewError(fmt.Errorf("workflow %q has no end condition", d.Name),
			core.ErrCodeMissingEndCondition, map[string]any{"workflow": d.Name})
	}
	seen := map[[2]string]bool{}
	for _, name := range d.TaskOrder {
		t := d.Tasks[name]
		if err := t.Validate(); err != nil {
			return err
		}
		for _, in := range t.Incoming {
			if d.Conditions[in] == nil {
				return core.NewError(fmt.Errorf("task %q has unknown incoming condition %q", t.Name, in),
					core.ErrCodeUnknownElement, map[string]any{"task": t.Name, "condition": in})
			}
			pair := [2]string{in, t.Name}
			if seen[pair] {
				return core.NewError(fmt.Errorf("condition %q connects to task %q more than once", in, t.Name),
					core.ErrCodeDuplicateConnection, map[string]any{"condition": in, "task": t.Name})
			}
			seen[pair] = true
		}
		for _, out := range t.Outgoing {
			if d.Conditions[out.ConditionName] == nil {
				return core.NewError(fmt.Errorf("task %q has unknown outgoing condition %q", t.Name, out.ConditionName),
					core.ErrCodeUnknownElement, map[string]any{"task": t.Name, "condition": out.ConditionName})
			}
			pair := [2]string{t.Name, out.ConditionName}
			if seen[pair] {
				return core.NewError(fmt.Errorf("task %q connects to condition %q more than once", t.Name, out.ConditionName),
					core.ErrCodeDuplicateConnection, map[string]any{"task": t.Name, "condition": out.ConditionName})
			}
			seen[pair] = true
		}
		if t.CancellationRegion != nil {
			for _, rt := range t.CancellationRegion.Tasks {
				if d.Tasks[rt] == nil {
					return core.NewError(fmt.Errorf("task %q's cancellation region names unknown task %q", t.Name, rt),
						core.ErrCodeUnknownElement, map[string]any{"task": t.Name, "region task": rt})
				}
			}
			for _, rc := range t.CancellationRegion.Conditions {
				if d.Conditions[rc] == nil {
					return core.NewError(fmt.Errorf("task %q's cancellation region names unknown condition %q", t.Name, rc),
						core.ErrCodeUnknownElement, map[string]any{"task": t.Name, "region condition": rc})
				}
			}
		}
	}
	return nil
}
