// Package actions is the caller-facing entry point for a typed action
// (spec §4.2, §6): it resolves the target row, validates the envelope and
// the action's declared payload schema, then drives the matching
// engine/runtime mutation. engine/runtime itself never validates a
// payload — every action callback it invokes trusts the payload already
// passed a schema, and this package is the only place that guarantee is
// enforced.
package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
	"github.com/tasquencer/tasquencer/engine/runtime"
	"github.com/tasquencer/tasquencer/engine/store"
	"github.com/tasquencer/tasquencer/infra/metrics"
)

var envelopeValidator = validator.New()

// Kind names the six work item transitions a caller can request.
type Kind string

const (
	Initialize Kind = "initialize"
	Start      Kind = "start"
	Complete   Kind = "complete"
	Fail       Kind = "fail"
	Cancel     Kind = "cancel"
	Reset      Kind = "reset"
)

// WorkItemAction is the envelope a caller submits to drive a work item
// transition. WorkItemID is empty for Initialize, which creates the row
// this envelope otherwise targets.
type WorkItemAction struct {
	WorkflowID core.ID        `validate:"required"`
	TaskName   string         `validate:"required"`
	Generation int            `validate:"min=0"`
	Kind       Kind           `validate:"required"`
	WorkItemID core.ID        `validate:"required_unless=Kind initialize"`
	Name       string         // work item name, Initialize only
	Payload    map[string]any
}

// Dispatcher validates and applies actions against an engine.Engine.
type Dispatcher struct {
	Engine *runtime.Engine

	// Metrics, if set, records dispatch outcomes and transitions. A nil
	// Metrics is a no-op, so instrumentation is opt-in.
	Metrics *metrics.Registry
}

// New builds a Dispatcher over e.
func New(e *runtime.Engine) *Dispatcher {
	return &Dispatcher{Engine: e}
}

// Dispatch validates a's envelope and payload, then applies it. It returns
// the affected work item, which for Initialize is the newly created row.
//
// A re-delivered action is not special-cased: if the work item no longer
// sits in the state the action requires, runtime rejects it with
// IllegalTransition exactly as a genuinely illegal delivery would (spec
// §8's round-trip law). A caller that needs at-least-once retry safety
// must track which of its actions already landed itself.
func (d *Dispatcher) Dispatch(ctx context.Context, a WorkItemAction) (*store.WorkItemRow, error) {
	start := time.Now()
	result, err := d.dispatch(ctx, a)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	d.Metrics.ObserveDispatch(string(a.Kind), outcome, time.Since(start).Seconds())
	if err == nil && result != nil {
		d.Metrics.ObserveTaskTransition(a.TaskName, string(result.State))
	}
	return result, err
}

func (d *Dispatcher) dispatch(ctx context.Context, a WorkItemAction) (*store.WorkItemRow, error) {
	if err := envelopeValidator.Struct(a); err != nil {
		return nil, core.NewError(fmt.Errorf("invalid action envelope: %w", err), core.ErrCodePayloadInvalid, nil)
	}

	var result *store.WorkItemRow
	err := d.Engine.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		wf, def, err := d.Engine.ResolveWorkflow(ctx, tx, a.WorkflowID)
		if err != nil {
			return err
		}
		t, td, err := d.Engine.ResolveTask(ctx, tx, def, a.WorkflowID, a.TaskName, a.Generation)
		if err != nil {
			return err
		}
		action := td.Actions.Action(string(a.Kind))
		if err := action.Schema.Validate(a.Payload); err != nil {
			return err
		}

		if a.Kind == Initialize {
			wi, err := d.Engine.InitializeWorkItem(ctx, tx, wf, td, t, a.Name, a.Payload, false)
			result = wi
			return err
		}

		wi, err := d.Engine.ResolveWorkItem(ctx, tx, a.WorkItemID)
		if err != nil {
			return err
		}
		result = wi

		switch a.Kind {
		case Start:
			return d.Engine.StartWorkItem(ctx, tx, wf, td, t, wi, a.Payload, false)
		case Complete:
			return d.Engine.CompleteWorkItem(ctx, tx, def, wf, td, t, wi, a.Payload, false)
		case Fail:
			return d.Engine.FailWorkItem(ctx, tx, def, wf, td, t, wi, a.Payload, false)
		case Cancel:
			return d.Engine.CancelWorkItem(ctx, tx, def, wf, td, t, wi, a.Payload, false)
		case Reset:
			return d.Engine.ResetWorkItem(ctx, tx, wf, td, t, wi, a.Payload, false)
		default:
			return core.NewError(fmt.Errorf("unknown action kind %q", a.Kind), core.ErrCodeIllegalTransition, nil)
		}
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WorkflowAction is the envelope for a workflow-level action (spec §4.7):
// initialize instantiates a new run of (DefinitionName, VersionName);
// cancel tears down an existing one named by WorkflowID.
type WorkflowAction struct {
	Kind           Kind
	DefinitionName string  `validate:"required_if=Kind initialize"`
	VersionName    string  `validate:"required_if=Kind initialize"`
	WorkflowID     core.ID `validate:"required_if=Kind cancel"`
	Payload        map[string]any
}

// DispatchWorkflow validates a's envelope and payload against the target
// definition's workflow-level action schema, then initializes or cancels
// the run. The definition's Actions callback, if set, runs against the
// freshly resolved row before the runtime mutation commits.
func (d *Dispatcher) DispatchWorkflow(ctx context.Context, a WorkflowAction) (core.ID, error) {
	start := time.Now()
	id, err := d.dispatchWorkflow(ctx, a)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	d.Metrics.ObserveDispatch(string(a.Kind), outcome, time.Since(start).Seconds())
	if err == nil {
		switch a.Kind {
		case Initialize:
			d.Metrics.ObserveWorkflowTransition(string(store.WorkflowInitialized))
		case Cancel:
			d.Metrics.ObserveWorkflowTransition(string(store.WorkflowCanceled))
		}
	}
	return id, err
}

func (d *Dispatcher) dispatchWorkflow(ctx context.Context, a WorkflowAction) (core.ID, error) {
	if err := envelopeValidator.Struct(a); err != nil {
		return "", core.NewError(fmt.Errorf("invalid action envelope: %w", err), core.ErrCodePayloadInvalid, nil)
	}

	switch a.Kind {
	case Initialize:
		def, err := d.Engine.Versions.Resolve(a.DefinitionName, a.VersionName)
		if err != nil {
			return "", err
		}
		if err := def.Actions.Action("initialize").Schema.Validate(a.Payload); err != nil {
			return "", err
		}
		id, err := d.Engine.InitializeWorkflow(ctx, a.DefinitionName, a.VersionName, nil)
		if err != nil {
			return "", err
		}
		if cb := def.Actions.Initialize.Callback; cb != nil {
			if err := d.runWorkflowCallback(ctx, id, cb, a.Payload); err != nil {
				return "", err
			}
		}
		return id, nil
	case Cancel:
		var def *net.WorkflowDef
		err := d.Engine.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			wf, resolved, err := d.Engine.ResolveWorkflow(ctx, tx, a.WorkflowID)
			if err != nil {
				return err
			}
			def = resolved
			switch wf.State {
			case store.WorkflowCompleted, store.WorkflowFailed, store.WorkflowCanceled:
				return nil
			}
			return def.Actions.Action("cancel").Schema.Validate(a.Payload)
		})
		if err != nil {
			return "", err
		}
		if cb := def.Actions.Cancel.Callback; cb != nil {
			if err := d.runWorkflowCallback(ctx, a.WorkflowID, cb, a.Payload); err != nil {
				return "", err
			}
		}
		if err := d.Engine.CancelWorkflow(ctx, a.WorkflowID); err != nil {
			return "", err
		}
		return a.WorkflowID, nil
	default:
		return "", core.NewError(fmt.Errorf("unknown workflow action kind %q", a.Kind), core.ErrCodeIllegalTransition, nil)
	}
}

func (d *Dispatcher) runWorkflowCallback(ctx context.Context, id core.ID, cb func(context.Context, *net.ActionContext, map[string]any) error, payload map[string]any) error {
	return d.Engine.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		wf, err := tx.GetWorkflow(ctx, id)
		if err != nil {
			return err
		}
		if wf == nil {
			return core.NewError(fmt.Errorf("workflow %s not found", id), core.ErrCodeEntityNotFound, nil)
		}
		ac := &net.ActionContext{Tx: tx, Workflow: wf, IsInternalMutation: false}
		return cb(ctx, ac, payload)
	})
}
