// Package memstore is an in-memory store.Store/store.Tx implementation,
// the primary backing the engine's own tests run against (spec §6's host
// store contract). It is "functionally real, not mocked": every lookup,
// index, and transaction-rollback guarantee the contract promises is
// actually implemented against plain Go maps, not stubbed.
package memstore

import (
	"context"
	"sync"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/store"
)

type taskKey struct {
	workflowID core.ID
	name       string
	generation int
}

type conditionKey struct {
	workflowID core.ID
	name       string
}

type shardKey struct {
	workflowID core.ID
	taskName   string
	generation int
	shardID    int
}

type childKey struct {
	workflowID core.ID
	taskName   string
	generation int
}

// state is every table the host store contract names, held as a group so
// the whole thing can be snapshotted and restored atomically.
type state struct {
	workflows     map[core.ID]store.WorkflowRow
	children      map[childKey][]core.ID // parent -> child workflow ids, insertion order
	tasks         map[taskKey]store.TaskRow
	taskGens      map[core.ID]map[string][]int // workflowID -> taskName -> generations, insertion order
	taskStateLog  map[taskKey][]store.TaskStateLogRow
	conditions    map[conditionKey]store.ConditionRow
	workItems     map[core.ID]store.WorkItemRow
	workItemsByTG map[taskKey][]core.ID // insertion order, for ListWorkItems
	statsShards   map[shardKey]store.TaskStatsShardRow
	scheduled     map[string]store.ScheduledInitRow
	migrations    map[core.ID]store.MigrationRow // keyed by ToWorkflowID
}

func newState() *state {
	return &state{
		workflows:     map[core.ID]store.WorkflowRow{},
		children:      map[childKey][]core.ID{},
		tasks:         map[taskKey]store.TaskRow{},
		taskGens:      map[core.ID]map[string][]int{},
		taskStateLog:  map[taskKey][]store.TaskStateLogRow{},
		conditions:    map[conditionKey]store.ConditionRow{},
		workItems:     map[core.ID]store.WorkItemRow{},
		workItemsByTG: map[taskKey][]core.ID{},
		statsShards:   map[shardKey]store.TaskStatsShardRow{},
		scheduled:     map[string]store.ScheduledInitRow{},
		migrations:    map[core.ID]store.MigrationRow{},
	}
}

// clone deep-copies s so a failed transaction can be rolled back by
// swapping the live state back to a pre-call snapshot.
func (s *state) clone() *state {
	out := newState()
	for k, v := range s.workflows {
		out.workflows[k] = v
	}
	for k, v := range s.children {
		out.children[k] = append([]core.ID{}, v...)
	}
	for k, v := range s.tasks {
		out.tasks[k] = v
	}
	for wfID, byName := range s.taskGens {
		cp := map[string][]int{}
		for name, gens := range byName {
			cp[name] = append([]int{}, gens...)
		}
		out.taskGens[wfID] = cp
	}
	for k, v := range s.taskStateLog {
		out.taskStateLog[k] = append([]store.TaskStateLogRow{}, v...)
	}
	for k, v := range s.conditions {
		out.conditions[k] = v
	}
	for k, v := range s.workItems {
		out.workItems[k] = v
	}
	for k, v := range s.workItemsByTG {
		out.workItemsByTG[k] = append([]core.ID{}, v...)
	}
	for k, v := range s.statsShards {
		out.statsShards[k] = v
	}
	for k, v := range s.scheduled {
		out.scheduled[k] = v
	}
	for k, v := range s.migrations {
		out.migrations[k] = v
	}
	return out
}

// Store is the in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex
	s  *state
}

// New returns an empty store.
func New() *Store {
	return &Store{s: newState()}
}

// WithTx runs fn against a live snapshot of the store, restoring the
// pre-call snapshot if fn returns an error so no partial state persists
// (spec §6's "transactions with OCC and automatic retry" contract — this
// implementation never actually races, so rollback-on-error is the only
// guarantee it needs to provide).
func (st *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	before := st.s.clone()
	tx := &Tx{s: st.s}
	if err := fn(ctx, tx); err != nil {
		st.s = before
		return err
	}
	return nil
}

// Close is a no-op; there is no connection to release.
func (st *Store) Close() error { return nil }

// Tx is the in-memory implementation of store.Tx. It mutates its Store's
// live state directly; WithTx is the only caller, and holds the store's
// lock for the duration.
type Tx struct {
	s *state
}

func cloneIDs(ids []string) []string {
	if ids == nil {
		return nil
	}
	return append([]string{}, ids...)
}

func (tx *Tx) GetWorkflow(_ context.Context, id core.ID) (*store.WorkflowRow, error) {
	row, ok := tx.s.workflows[id]
	if !ok {
		return nil, nil
	}
	out := row
	out.Path = cloneIDs(row.Path)
	out.RealizedPath = cloneIDs(row.RealizedPath)
	return &out, nil
}

func (tx *Tx) PutWorkflow(_ context.Context, row *store.WorkflowRow) error {
	cp := *row
	cp.Path = cloneIDs(row.Path)
	cp.RealizedPath = cloneIDs(row.RealizedPath)
	tx.s.workflows[row.ID] = cp
	if row.Parent != nil {
		key := childKey{workflowID: row.Parent.WorkflowID, taskName: row.Parent.TaskName, generation: row.Parent.Generation}
		existing := tx.s.children[key]
		found := false
		for _, id := range existing {
			if id == row.ID {
				found = true
				break
			}
		}
		if !found {
			tx.s.children[key] = append(existing, row.ID)
		}
	}
	return nil
}

func (tx *Tx) ListChildWorkflows(_ context.Context, parentWorkflowID core.ID, parentTaskName string, parentGeneration int) ([]*store.WorkflowRow, error) {
	key := childKey{workflowID: parentWorkflowID, taskName: parentTaskName, generation: parentGeneration}
	var out []*store.WorkflowRow
	for _, id := range tx.s.children[key] {
		row := tx.s.workflows[id]
		cp := row
		out = append(out, &cp)
	}
	return out, nil
}

func (tx *Tx) GetTask(_ context.Context, workflowID core.ID, name string, generation int) (*store.TaskRow, error) {
	row, ok := tx.s.tasks[taskKey{workflowID, name, generation}]
	if !ok {
		return nil, nil
	}
	out := row
	out.Path = cloneIDs(row.Path)
	out.RealizedPath = cloneIDs(row.RealizedPath)
	return &out, nil
}

func (tx *Tx) PutTask(_ context.Context, row *store.TaskRow) error {
	key := taskKey{row.WorkflowID, row.Name, row.Generation}
	cp := *row
	cp.Path = cloneIDs(row.Path)
	cp.RealizedPath = cloneIDs(row.RealizedPath)
	tx.s.tasks[key] = cp

	byName, ok := tx.s.taskGens[row.WorkflowID]
	if !ok {
		byName = map[string][]int{}
		tx.s.taskGens[row.WorkflowID] = byName
	}
	gens := byName[row.Name]
	found := false
	for _, g := range gens {
		if g == row.Generation {
			found = true
			break
		}
	}
	if !found {
		byName[row.Name] = append(gens, row.Generation)
	}
	return nil
}

func (tx *Tx) ListTaskGenerations(_ context.Context, workflowID core.ID, name string) ([]*store.TaskRow, error) {
	var out []*store.TaskRow
	for _, gen := range tx.s.taskGens[workflowID][name] {
		row := tx.s.tasks[taskKey{workflowID, name, gen}]
		cp := row
		out = append(out, &cp)
	}
	return out, nil
}

func (tx *Tx) ListTasksByWorkflow(_ context.Context, workflowID core.ID) ([]*store.TaskRow, error) {
	var out []*store.TaskRow
	for name, gens := range tx.s.taskGens[workflowID] {
		for _, gen := range gens {
			row := tx.s.tasks[taskKey{workflowID, name, gen}]
			cp := row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (tx *Tx) AppendTaskStateLog(_ context.Context, row *store.TaskStateLogRow) error {
	key := taskKey{row.WorkflowID, row.TaskName, row.Generation}
	tx.s.taskStateLog[key] = append(tx.s.taskStateLog[key], *row)
	return nil
}

func (tx *Tx) ListTaskStateLog(_ context.Context, workflowID core.ID, name string, generation int) ([]*store.TaskStateLogRow, error) {
	entries := tx.s.taskStateLog[taskKey{workflowID, name, generation}]
	out := make([]*store.TaskStateLogRow, len(entries))
	for i := range entries {
		cp := entries[i]
		out[i] = &cp
	}
	return out, nil
}

func (tx *Tx) GetCondition(_ context.Context, workflowID core.ID, name string) (*store.ConditionRow, error) {
	row, ok := tx.s.conditions[conditionKey{workflowID, name}]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (tx *Tx) PutCondition(_ context.Context, row *store.ConditionRow) error {
	tx.s.conditions[conditionKey{row.WorkflowID, row.Name}] = *row
	return nil
}

func (tx *Tx) ListConditions(_ context.Context, workflowID core.ID) ([]*store.ConditionRow, error) {
	var out []*store.ConditionRow
	for k, v := range tx.s.conditions {
		if k.workflowID != workflowID {
			continue
		}
		cp := v
		out = append(out, &cp)
	}
	return out, nil
}

func (tx *Tx) GetWorkItem(_ context.Context, id core.ID) (*store.WorkItemRow, error) {
	row, ok := tx.s.workItems[id]
	if !ok {
		return nil, nil
	}
	cp := row
	cp.Path = cloneIDs(row.Path)
	return &cp, nil
}

func (tx *Tx) PutWorkItem(_ context.Context, row *store.WorkItemRow) error {
	cp := *row
	cp.Path = cloneIDs(row.Path)
	tx.s.workItems[row.ID] = cp
	key := taskKey{row.WorkflowID, row.TaskName, row.Generation}
	existing := tx.s.workItemsByTG[key]
	found := false
	for _, id := range existing {
		if id == row.ID {
			found = true
			break
		}
	}
	if !found {
		tx.s.workItemsByTG[key] = append(existing, row.ID)
	}
	return nil
}

func (tx *Tx) ListWorkItems(_ context.Context, workflowID core.ID, taskName string, generation int) ([]*store.WorkItemRow, error) {
	var out []*store.WorkItemRow
	for _, id := range tx.s.workItemsByTG[taskKey{workflowID, taskName, generation}] {
		row := tx.s.workItems[id]
		cp := row
		out = append(out, &cp)
	}
	return out, nil
}

func (tx *Tx) GetTaskStatsShard(_ context.Context, workflowID core.ID, taskName string, generation, shardID int) (*store.TaskStatsShardRow, error) {
	row, ok := tx.s.statsShards[shardKey{workflowID, taskName, generation, shardID}]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (tx *Tx) PutTaskStatsShard(_ context.Context, row *store.TaskStatsShardRow) error {
	tx.s.statsShards[shardKey{row.WorkflowID, row.TaskName, row.Generation, row.ShardID}] = *row
	return nil
}

func (tx *Tx) ListTaskStatsShards(_ context.Context, workflowID core.ID, taskName string, generation int) ([]*store.TaskStatsShardRow, error) {
	var out []*store.TaskStatsShardRow
	for k, v := range tx.s.statsShards {
		if k.workflowID != workflowID || k.taskName != taskName || k.generation != generation {
			continue
		}
		cp := v
		out = append(out, &cp)
	}
	return out, nil
}

func (tx *Tx) GetScheduledInit(_ context.Context, key string) (*store.ScheduledInitRow, error) {
	row, ok := tx.s.scheduled[key]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (tx *Tx) PutScheduledInit(_ context.Context, row *store.ScheduledInitRow) error {
	tx.s.scheduled[row.Key] = *row
	return nil
}

func (tx *Tx) GetMigrationByTarget(_ context.Context, toWorkflowID core.ID) (*store.MigrationRow, error) {
	row, ok := tx.s.migrations[toWorkflowID]
	if !ok {
		return nil, nil
	}
	cp := row
	return &cp, nil
}

func (tx *Tx) PutMigration(_ context.Context, row *store.MigrationRow) error {
	tx.s.migrations[row.ToWorkflowID] = *row
	return nil
}

var _ store.Store = (*Store)(nil)
var _ store.Tx = (*Tx)(nil)
