// Package router holds the XOR/OR router contract (spec §4.3, §4.9):
// user-supplied callbacks that choose a task's outgoing flow(s) when it
// finalizes, plus the `route` helper that builds routing decisions.
//
// Routers must be deterministic given the current workflow state and must
// not write: the engine invokes them read-only, inside the same transaction
// that will apply whatever they decide.
package router

import "context"

// TargetKind distinguishes the two shapes a routing Decision can name.
type TargetKind string

const (
	TargetTask      TargetKind = "task"
	TargetCondition TargetKind = "condition"
)

// Decision is one outgoing routing choice: produce a token into the
// condition reached by Target, resolved according to Kind.
type Decision struct {
	Kind   TargetKind
	Target string
}

// routeBuilder is the `route` helper every router callback receives.
type routeBuilder struct{}

// Route is the single instance of the route-decision builder, used as
// `router.Route.ToTask("B")` / `router.Route.ToCondition("done")`.
var Route = routeBuilder{}

// ToTask builds a decision that produces into the implicit condition between
// the firing task and the named task.
func (routeBuilder) ToTask(name string) Decision {
	return Decision{Kind: TargetTask, Target: name}
}

// ToCondition builds a decision that produces into the named explicit
// condition.
func (routeBuilder) ToCondition(name string) Decision {
	return Decision{Kind: TargetCondition, Target: name}
}

// Context is the read-only handle passed to every router invocation.
// WorkItems/ChildWorkflows are supplied by the runtime already ordered by
// creation time descending, so routers satisfy spec §4.9's "read the most
// recent state" requirement by simply indexing element 0.
type Context struct {
	WorkflowID     string
	WorkflowName   string
	TaskName       string
	Generation     int
	WorkItems      []map[string]any // latest-first; each entry flattens a work item row + payload
	ChildWorkflows []map[string]any // latest-first; composite/dynamic-composite only
	Data           map[string]any   // convenience bag (task payload/output) for expression-based routers
}

// Latest returns the most recently created work item, or nil if there are
// none. Routers in loops (spec §4.9 scenario 4) must call this instead of
// inspecting history, or they risk acting on a stale decision.
func (c *Context) Latest() map[string]any {
	if len(c.WorkItems) == 0 {
		return nil
	}
	return c.WorkItems[0]
}

// LatestChildWorkflow returns the most recently spawned child workflow
// snapshot, or nil.
func (c *Context) LatestChildWorkflow() map[string]any {
	if len(c.ChildWorkflows) == 0 {
		return nil
	}
	return c.ChildWorkflows[0]
}

// XOR is an XOR-split router: it must return exactly one Decision.
type XOR func(ctx context.Context, rc *Context) (Decision, error)

// OR is an OR-split router: it must return one or more Decisions.
type OR func(ctx context.Context, rc *Context) ([]Decision, error)
