package builder

import (
	"fmt"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/net"
)

// IncomingFlow connects a declared condition to a task's incoming side.
type IncomingFlow struct {
	wb            *WorkflowBuilder
	conditionName string
}

// ConnectCondition starts declaring condition name's outgoing flow(s) into
// one or more tasks.
func (b *WorkflowBuilder) ConnectCondition(name string) *IncomingFlow {
	if _, ok := b.def.Conditions[name]; !ok {
		b.fail(core.NewError(fmt.Errorf("connectCondition references unknown condition %q", name),
			core.ErrCodeUnknownElement, map[string]any{"condition": name}))
	}
	return &IncomingFlow{wb: b, conditionName: name}
}

// ToTask connects the condition to taskName's incoming side and returns
// the workflow builder for further chaining. Call ToTask again on the
// returned IncomingFlow (via ConnectCondition) to fan the same condition
// out to more tasks.
func (f *IncomingFlow) ToTask(taskName string) *WorkflowBuilder {
	td, ok := f.wb.def.Tasks[taskName]
	if !ok {
		return f.wb.fail(core.NewError(fmt.Errorf("connectCondition(%q) references unknown task %q", f.conditionName, taskName),
			core.ErrCodeUnknownElement, map[string]any{"task": taskName}))
	}
	td.Incoming = append(td.Incoming, f.conditionName)
	return f.wb
}

// OutgoingFlow connects a task's outgoing side to a condition, either
// explicit (ToCondition) or implicit (ToTask, which synthesizes the
// connecting condition).
type OutgoingFlow struct {
	wb       *WorkflowBuilder
	taskName string
}

// ConnectTask starts declaring taskName's outgoing flow(s).
func (b *WorkflowBuilder) ConnectTask(name string) *OutgoingFlow {
	if _, ok := b.def.Tasks[name]; !ok {
		b.fail(core.NewError(fmt.Errorf("connectTask references unknown task %q", name),
			core.ErrCodeUnknownElement, map[string]any{"task": name}))
	}
	return &OutgoingFlow{wb: b, taskName: name}
}

// ToCondition connects the task to an already-declared, explicitly named
// condition.
func (f *OutgoingFlow) ToCondition(conditionName string) *WorkflowBuilder {
	if _, ok := f.wb.def.Conditions[conditionName]; !ok {
		return f.wb.fail(core.NewError(fmt.Errorf("connectTask(%q) references unknown condition %q", f.taskName, conditionName),
			core.ErrCodeUnknownElement, map[string]any{"condition": conditionName}))
	}
	td := f.wb.def.Tasks[f.taskName]
	td.Outgoing = append(td.Outgoing, net.OutgoingEdge{ConditionName: conditionName})
	return f.wb
}

// ToTask connects the task directly to toTask, synthesizing the implicit
// condition between them (spec §2.2).
func (f *OutgoingFlow) ToTask(toTask string) *WorkflowBuilder {
	if _, ok := f.wb.def.Tasks[toTask]; !ok {
		return f.wb.fail(core.NewError(fmt.Errorf("connectTask(%q) references unknown task %q", f.taskName, toTask),
			core.ErrCodeUnknownElement, map[string]any{"task": toTask}))
	}
	f.wb.implicitSeq++
	conditionName := fmt.Sprintf("__implicit_%s_to_%s_%d", f.taskName, toTask, f.wb.implicitSeq)
	f.wb.def.Conditions[conditionName] = &net.ConditionDef{Name: conditionName, Implicit: true}
	fromTask := f.wb.def.Tasks[f.taskName]
	fromTask.Outgoing = append(fromTask.Outgoing, net.OutgoingEdge{ConditionName: conditionName, ToTask: toTask})
	toTaskDef := f.wb.def.Tasks[toTask]
	toTaskDef.Incoming = append(toTaskDef.Incoming, conditionName)
	f.wb.def.implicitByTaskPair[[2]string{f.taskName, toTask}] = conditionName
	return f.wb
}
