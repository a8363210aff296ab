// Package builder is the fluent construction API workflow authors use
// (spec §4.10): workflow(name), startCondition/endCondition/condition,
// task/dummyTask/compositeTask/dynamicCompositeTask, connectCondition/
// connectTask, withActivities/withActions/withCancellationRegion/
// withDescription. Building compiles a graph of engine/net definition
// types and validates every structural invariant spec §7 names before
// handing back an immutable *net.WorkflowDef.
package builder

import (
	"fmt"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
)

// WorkflowBuilder accumulates a workflow net definition. Its zero value is
// not usable; start from Workflow.
type WorkflowBuilder struct {
	def         *net.WorkflowDef
	implicitSeq int
	err         error
}

// Workflow starts building a new workflow definition named name at
// versionName. versionName is opaque to the builder; engine/migration and
// the version manager use it to disambiguate definitions sharing a name.
func Workflow(name, versionName string) *WorkflowBuilder {
	return &WorkflowBuilder{
		def: &net.WorkflowDef{
			Name:               name,
			VersionName:        versionName,
			Conditions:         map[string]*net.ConditionDef{},
			Tasks:              map[string]*net.TaskDef{},
			implicitByTaskPair: map[[2]string]string{},
		},
	}
}

func (b *WorkflowBuilder) fail(err error) *WorkflowBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// WithDescription sets the workflow's human-readable description.
func (b *WorkflowBuilder) WithDescription(text string) *WorkflowBuilder {
	b.def.Description = text
	return b
}

// WithActivities sets the workflow-level lifecycle hooks.
func (b *WorkflowBuilder) WithActivities(a net.WorkflowActivities) *WorkflowBuilder {
	b.def.Activities = a
	return b
}

// WithActions sets the workflow-level initialize/cancel action definitions.
func (b *WorkflowBuilder) WithActions(a net.WorkflowActionSet) *WorkflowBuilder {
	b.def.Actions = a
	return b
}

// StartCondition declares name as the workflow's single start condition,
// the one place the runtime deposits the initial token (spec §2.1).
func (b *WorkflowBuilder) StartCondition(name string) *WorkflowBuilder {
	b.def.Conditions[name] = &net.ConditionDef{Name: name, IsStart: true}
	b.def.StartCondition = name
	return b
}

// EndCondition declares name as the workflow's single end condition.
func (b *WorkflowBuilder) EndCondition(name string) *WorkflowBuilder {
	b.def.Conditions[name] = &net.ConditionDef{Name: name, IsEnd: true}
	b.def.EndCondition = name
	return b
}

// Condition declares an ordinary, explicitly-named condition.
func (b *WorkflowBuilder) Condition(name string) *WorkflowBuilder {
	b.def.Conditions[name] = &net.ConditionDef{Name: name}
	return b
}

// TaskOption configures a TaskDef while it is being declared.
type TaskOption func(*TaskBuilder)

// Task declares an ordinary (atomic) task.
func (b *WorkflowBuilder) Task(name string, opts ...TaskOption) *WorkflowBuilder {
	return b.addTask(name, net.KindAtomic, opts)
}

// DummyTask declares a structural task used purely for routing: it
// auto-enables, auto-starts, and auto-completes within one transaction,
// never exposing work items.
func (b *WorkflowBuilder) DummyTask(name string, opts ...TaskOption) *WorkflowBuilder {
	return b.addTask(name, net.KindDummy, opts)
}

// CompositeTask declares a task that spawns, per enablement, the child
// workflow instances its `initialize` hook returns (one or more), each built
// from childDef.
func (b *WorkflowBuilder) CompositeTask(name string, childDef *net.WorkflowDef, opts ...TaskOption) *WorkflowBuilder {
	opts = append(opts, func(tb *TaskBuilder) { tb.def.ChildWorkflow = childDef })
	return b.addTask(name, net.KindComposite, opts)
}

// DynamicCompositeTask declares a task whose `initialize` hook chooses,
// per enablement, one or more children from childDefs (keyed by the
// definition name a ChildSpec may request).
func (b *WorkflowBuilder) DynamicCompositeTask(name string, childDefs map[string]*net.WorkflowDef, opts ...TaskOption) *WorkflowBuilder {
	opts = append(opts, func(tb *TaskBuilder) { tb.def.ChildWorkflows = childDefs })
	return b.addTask(name, net.KindDynamicComposite, opts)
}

func (b *WorkflowBuilder) addTask(name string, kind net.Kind, opts []TaskOption) *WorkflowBuilder {
	if _, exists := b.def.Tasks[name]; exists {
		return b.fail(core.NewError(fmt.Errorf("task %q declared more than once", name),
			core.ErrCodeUnknownElement, map[string]any{"task": name}))
	}
	td := &net.TaskDef{Name: name, Kind: kind, SplitType: net.SplitAnd, JoinType: net.JoinAnd}
	tb := &TaskBuilder{def: td}
	for _, opt := range opts {
		opt(tb)
	}
	b.def.Tasks[name] = td
	b.def.TaskOrder = append(b.def.TaskOrder, name)
	return b
}

// WithCancellationRegion attaches a cancellation region to an already
// declared task (spec §4.8).
func (b *WorkflowBuilder) WithCancellationRegion(taskName string, region net.CancellationRegion) *WorkflowBuilder {
	td, ok := b.def.Tasks[taskName]
	if !ok {
		return b.fail(core.NewError(fmt.Errorf("cancellation region declared for unknown task %q", taskName),
			core.ErrCodeUnknownElement, map[string]any{"task": taskName}))
	}
	td.CancellationRegion = &region
	return b
}

// Build validates the accumulated definition and returns it, or the first
// structural error encountered either during declaration or validation.
func (b *WorkflowBuilder) Build() (*net.WorkflowDef, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.def.Validate(); err != nil {
		return nil, err
	}
	return b.def, nil
}
