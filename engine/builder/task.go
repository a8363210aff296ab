package builder

import (
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/policy"
	"github.com/tasquencer/tasquencer/engine/router"
)

// TaskBuilder accumulates a single TaskDef's options. Authors never
// construct one directly; they compose TaskOption values passed to
// WorkflowBuilder.Task/DummyTask/CompositeTask/DynamicCompositeTask.
type TaskBuilder struct {
	def *net.TaskDef
}

// AndSplit fires every outgoing flow when the task completes (spec §4.3).
// This is the default; callers rarely need to name it explicitly.
func AndSplit() TaskOption {
	return func(tb *TaskBuilder) { tb.def.SplitType = net.SplitAnd }
}

// XorSplit fires exactly one outgoing flow, chosen by r, when the task
// completes.
func XorSplit(r router.XOR) TaskOption {
	return func(tb *TaskBuilder) {
		tb.def.SplitType = net.SplitXor
		tb.def.XORRouter = r
	}
}

// OrSplit fires every outgoing flow r selects (one or more) when the task
// completes.
func OrSplit(r router.OR) TaskOption {
	return func(tb *TaskBuilder) {
		tb.def.SplitType = net.SplitOr
		tb.def.ORRouter = r
	}
}

// AndJoin requires every incoming condition to hold a token before the
// task enables. This is the default.
func AndJoin() TaskOption {
	return func(tb *TaskBuilder) { tb.def.JoinType = net.JoinAnd }
}

// XorJoin enables the task as soon as any single incoming condition holds
// a token.
func XorJoin() TaskOption {
	return func(tb *TaskBuilder) { tb.def.JoinType = net.JoinXor }
}

// OrJoin enables the task as soon as at least one incoming condition holds
// a token, consuming one token from every incoming condition marked at that
// moment; it does not wait for tokens still to arrive on the empty ones.
func OrJoin() TaskOption {
	return func(tb *TaskBuilder) { tb.def.JoinType = net.JoinOr }
}

// WithPolicy overrides the task's state-transition policy; omit to use
// policy.Default.
func WithPolicy(p policy.Policy) TaskOption {
	return func(tb *TaskBuilder) { tb.def.Policy = p }
}

// WithStatsShardCount sets how many stats shard rows the task generation
// spreads its counters across (spec §9's write-contention knob).
func WithStatsShardCount(n int) TaskOption {
	return func(tb *TaskBuilder) { tb.def.StatsShardCount = n }
}

// WithTaskActivities sets the task's lifecycle hooks.
func WithTaskActivities(a net.TaskActivities) TaskOption {
	return func(tb *TaskBuilder) { tb.def.Activities = a }
}

// WithTaskActions sets the task's work item action definitions.
func WithTaskActions(a net.WorkItemActionSet) TaskOption {
	return func(tb *TaskBuilder) { tb.def.Actions = a }
}

// WithCompositeActions sets a composite/dynamic composite task's child
// spawn/teardown hooks.
func WithCompositeActions(a net.CompositeActionSet) TaskOption {
	return func(tb *TaskBuilder) { tb.def.CompositeActions = a }
}

// WithTaskDescription sets the task's human-readable description.
func WithTaskDescription(text string) TaskOption {
	return func(tb *TaskBuilder) { tb.def.Description = text }
}
