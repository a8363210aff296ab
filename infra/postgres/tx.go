package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/tasquencer/tasquencer/engine/core"
	"github.com/tasquencer/tasquencer/engine/store"
)

// psql builds every query against this driver with $N placeholders, the
// format pgx expects.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// tx adapts a single pgx.Tx to engine/store's Tx contract. No method here
// opens its own transaction; Store.WithTx owns that boundary.
type tx struct {
	tx pgx.Tx
}

func (x *tx) exec(ctx context.Context, b squirrel.Sqlizer) error {
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build query: %w", err)
	}
	_, err = x.tx.Exec(ctx, sqlStr, args...)
	return err
}

var errNoRows = pgx.ErrNoRows

func isNoRows(err error) bool { return errors.Is(err, errNoRows) }

// scanner is satisfied by both pgx.Row (QueryRow) and pgx.Rows (Query),
// the common surface every scan helper below needs.
type scanner interface {
	Scan(dest ...any) error
}

// --- workflows ---

var workflowColumns = []string{
	"id", "definition_name", "version_name", "exec_mode", "state",
	"path", "realized_path", "parent", "created_at", "updated_at",
}

func scanWorkflow(row scanner) (*store.WorkflowRow, error) {
	var wf store.WorkflowRow
	var path, realizedPath, parent []byte
	if err := row.Scan(
		&wf.ID, &wf.DefinitionName, &wf.VersionName, &wf.ExecMode, &wf.State,
		&path, &realizedPath, &parent, &wf.CreatedAt, &wf.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := fromJSONB(path, &wf.Path); err != nil {
		return nil, err
	}
	if err := fromJSONB(realizedPath, &wf.RealizedPath); err != nil {
		return nil, err
	}
	if err := fromJSONB(parent, &wf.Parent); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (x *tx) GetWorkflow(ctx context.Context, id core.ID) (*store.WorkflowRow, error) {
	sqlStr, args, err := psql.Select(workflowColumns...).From("workflows").Where(squirrel.Eq{"id": string(id)}).ToSql()
	if err != nil {
		return nil, err
	}
	row := x.tx.QueryRow(ctx, sqlStr, args...)
	wf, err := scanWorkflow(row)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func (x *tx) PutWorkflow(ctx context.Context, row *store.WorkflowRow) error {
	path, err := toJSONB(row.Path)
	if err != nil {
		return err
	}
	realizedPath, err := toJSONB(row.RealizedPath)
	if err != nil {
		return err
	}
	parent, err := toJSONB(row.Parent)
	if err != nil {
		return err
	}
	var parentWorkflowID, parentTaskName any
	var parentGeneration any
	if row.Parent != nil {
		parentWorkflowID = string(row.Parent.WorkflowID)
		parentTaskName = row.Parent.TaskName
		parentGeneration = row.Parent.Generation
	}
	q := psql.Insert("workflows").
		Columns(
			"id", "definition_name", "version_name", "exec_mode", "state",
			"path", "realized_path", "parent",
			"parent_workflow_id", "parent_task_name", "parent_generation",
			"created_at", "updated_at",
		).
		Values(
			string(row.ID), row.DefinitionName, row.VersionName, string(row.ExecMode), string(row.State),
			path, realizedPath, parent,
			parentWorkflowID, parentTaskName, parentGeneration,
			row.CreatedAt, row.UpdatedAt,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			definition_name = EXCLUDED.definition_name,
			version_name = EXCLUDED.version_name,
			exec_mode = EXCLUDED.exec_mode,
			state = EXCLUDED.state,
			path = EXCLUDED.path,
			realized_path = EXCLUDED.realized_path,
			parent = EXCLUDED.parent,
			parent_workflow_id = EXCLUDED.parent_workflow_id,
			parent_task_name = EXCLUDED.parent_task_name,
			parent_generation = EXCLUDED.parent_generation,
			updated_at = EXCLUDED.updated_at`)
	return x.exec(ctx, q)
}

func (x *tx) ListChildWorkflows(ctx context.Context, parentWorkflowID core.ID, parentTaskName string, parentGeneration int) ([]*store.WorkflowRow, error) {
	sqlStr, args, err := psql.Select(workflowColumns...).From("workflows").Where(squirrel.Eq{
		"parent_workflow_id": string(parentWorkflowID),
		"parent_task_name":   parentTaskName,
		"parent_generation":  parentGeneration,
	}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := x.tx.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.WorkflowRow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wf)
	}
	return out, rows.Err()
}

// --- tasks ---

var taskColumns = []string{
	"workflow_id", "name", "generation", "state", "path", "realized_path",
	"version_name", "created_at", "updated_at",
}

func scanTask(row scanner) (*store.TaskRow, error) {
	var t store.TaskRow
	var path, realizedPath []byte
	if err := row.Scan(
		&t.WorkflowID, &t.Name, &t.Generation, &t.State, &path, &realizedPath,
		&t.VersionName, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := fromJSONB(path, &t.Path); err != nil {
		return nil, err
	}
	if err := fromJSONB(realizedPath, &t.RealizedPath); err != nil {
		return nil, err
	}
	return &t, nil
}

func (x *tx) GetTask(ctx context.Context, workflowID core.ID, name string, generation int) (*store.TaskRow, error) {
	sqlStr, args, err := psql.Select(taskColumns...).From("tasks").Where(squirrel.Eq{
		"workflow_id": string(workflowID), "name": name, "generation": generation,
	}).ToSql()
	if err != nil {
		return nil, err
	}
	t, err := scanTask(x.tx.QueryRow(ctx, sqlStr, args...))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (x *tx) PutTask(ctx context.Context, row *store.TaskRow) error {
	path, err := toJSONB(row.Path)
	if err != nil {
		return err
	}
	realizedPath, err := toJSONB(row.RealizedPath)
	if err != nil {
		return err
	}
	q := psql.Insert("tasks").
		Columns("workflow_id", "name", "generation", "state", "path", "realized_path", "version_name", "created_at", "updated_at").
		Values(string(row.WorkflowID), row.Name, row.Generation, string(row.State), path, realizedPath, row.VersionName, row.CreatedAt, row.UpdatedAt).
		Suffix(`ON CONFLICT (workflow_id, name, generation) DO UPDATE SET
			state = EXCLUDED.state,
			path = EXCLUDED.path,
			realized_path = EXCLUDED.realized_path,
			updated_at = EXCLUDED.updated_at`)
	return x.exec(ctx, q)
}

func (x *tx) listTasks(ctx context.Context, pred squirrel.Eq) ([]*store.TaskRow, error) {
	sqlStr, args, err := psql.Select(taskColumns...).From("tasks").Where(pred).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := x.tx.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.TaskRow
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (x *tx) ListTaskGenerations(ctx context.Context, workflowID core.ID, name string) ([]*store.TaskRow, error) {
	return x.listTasks(ctx, squirrel.Eq{"workflow_id": string(workflowID), "name": name})
}

func (x *tx) ListTasksByWorkflow(ctx context.Context, workflowID core.ID) ([]*store.TaskRow, error) {
	return x.listTasks(ctx, squirrel.Eq{"workflow_id": string(workflowID)})
}

// --- tasksStateLog ---

func (x *tx) AppendTaskStateLog(ctx context.Context, row *store.TaskStateLogRow) error {
	q := psql.Insert("tasks_state_log").
		Columns("workflow_id", "task_name", "generation", "from_state", "to_state", "at").
		Values(string(row.WorkflowID), row.TaskName, row.Generation, string(row.FromState), string(row.ToState), row.At)
	return x.exec(ctx, q)
}

func (x *tx) ListTaskStateLog(ctx context.Context, workflowID core.ID, name string, generation int) ([]*store.TaskStateLogRow, error) {
	sqlStr, args, err := psql.Select("workflow_id", "task_name", "generation", "from_state", "to_state", "at").
		From("tasks_state_log").
		Where(squirrel.Eq{"workflow_id": string(workflowID), "task_name": name, "generation": generation}).
		OrderBy("at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := x.tx.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.TaskStateLogRow
	for rows.Next() {
		var r store.TaskStateLogRow
		if err := rows.Scan(&r.WorkflowID, &r.TaskName, &r.Generation, &r.FromState, &r.ToState, &r.At); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// --- conditions ---

func (x *tx) GetCondition(ctx context.Context, workflowID core.ID, name string) (*store.ConditionRow, error) {
	sqlStr, args, err := psql.Select("workflow_id", "name", "implicit", "marking").
		From("conditions").
		Where(squirrel.Eq{"workflow_id": string(workflowID), "name": name}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var c store.ConditionRow
	err = x.tx.QueryRow(ctx, sqlStr, args...).Scan(&c.WorkflowID, &c.Name, &c.Implicit, &c.Marking)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (x *tx) PutCondition(ctx context.Context, row *store.ConditionRow) error {
	q := psql.Insert("conditions").
		Columns("workflow_id", "name", "implicit", "marking").
		Values(string(row.WorkflowID), row.Name, row.Implicit, row.Marking).
		Suffix(`ON CONFLICT (workflow_id, name) DO UPDATE SET implicit = EXCLUDED.implicit, marking = EXCLUDED.marking`)
	return x.exec(ctx, q)
}

func (x *tx) ListConditions(ctx context.Context, workflowID core.ID) ([]*store.ConditionRow, error) {
	sqlStr, args, err := psql.Select("workflow_id", "name", "implicit", "marking").
		From("conditions").
		Where(squirrel.Eq{"workflow_id": string(workflowID)}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := x.tx.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.ConditionRow
	for rows.Next() {
		var c store.ConditionRow
		if err := rows.Scan(&c.WorkflowID, &c.Name, &c.Implicit, &c.Marking); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// --- workItems ---

var workItemColumns = []string{
	"id", "workflow_id", "task_name", "generation", "name", "state",
	"path", "version_name", "payload", "created_at", "updated_at",
}

func scanWorkItem(row scanner) (*store.WorkItemRow, error) {
	var wi store.WorkItemRow
	var path, payload []byte
	if err := row.Scan(
		&wi.ID, &wi.WorkflowID, &wi.TaskName, &wi.Generation, &wi.Name, &wi.State,
		&path, &wi.VersionName, &payload, &wi.CreatedAt, &wi.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := fromJSONB(path, &wi.Path); err != nil {
		return nil, err
	}
	if err := fromJSONB(payload, &wi.Payload); err != nil {
		return nil, err
	}
	return &wi, nil
}

func (x *tx) GetWorkItem(ctx context.Context, id core.ID) (*store.WorkItemRow, error) {
	sqlStr, args, err := psql.Select(workItemColumns...).From("work_items").Where(squirrel.Eq{"id": string(id)}).ToSql()
	if err != nil {
		return nil, err
	}
	wi, err := scanWorkItem(x.tx.QueryRow(ctx, sqlStr, args...))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return wi, nil
}

func (x *tx) PutWorkItem(ctx context.Context, row *store.WorkItemRow) error {
	path, err := toJSONB(row.Path)
	if err != nil {
		return err
	}
	payload, err := toJSONB(row.Payload)
	if err != nil {
		return err
	}
	q := psql.Insert("work_items").
		Columns("id", "workflow_id", "task_name", "generation", "name", "state", "path", "version_name", "payload", "created_at", "updated_at").
		Values(string(row.ID), string(row.WorkflowID), row.TaskName, row.Generation, row.Name, string(row.State), path, row.VersionName, payload, row.CreatedAt, row.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`)
	return x.exec(ctx, q)
}

func (x *tx) ListWorkItems(ctx context.Context, workflowID core.ID, taskName string, generation int) ([]*store.WorkItemRow, error) {
	sqlStr, args, err := psql.Select(workItemColumns...).From("work_items").Where(squirrel.Eq{
		"workflow_id": string(workflowID), "task_name": taskName, "generation": generation,
	}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := x.tx.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.WorkItemRow
	for rows.Next() {
		wi, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wi)
	}
	return out, rows.Err()
}

// --- taskStatsShards ---

func (x *tx) GetTaskStatsShard(ctx context.Context, workflowID core.ID, taskName string, generation, shardID int) (*store.TaskStatsShardRow, error) {
	sqlStr, args, err := psql.Select("workflow_id", "task_name", "generation", "shard_id", "total", "initialized", "started", "completed", "failed", "canceled").
		From("task_stats_shards").
		Where(squirrel.Eq{"workflow_id": string(workflowID), "task_name": taskName, "generation": generation, "shard_id": shardID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var s store.TaskStatsShardRow
	err = x.tx.QueryRow(ctx, sqlStr, args...).Scan(
		&s.WorkflowID, &s.TaskName, &s.Generation, &s.ShardID,
		&s.Total, &s.Initialized, &s.Started, &s.Completed, &s.Failed, &s.Canceled,
	)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (x *tx) PutTaskStatsShard(ctx context.Context, row *store.TaskStatsShardRow) error {
	q := psql.Insert("task_stats_shards").
		Columns("workflow_id", "task_name", "generation", "shard_id", "total", "initialized", "started", "completed", "failed", "canceled").
		Values(string(row.WorkflowID), row.TaskName, row.Generation, row.ShardID, row.Total, row.Initialized, row.Started, row.Completed, row.Failed, row.Canceled).
		Suffix(`ON CONFLICT (workflow_id, task_name, generation, shard_id) DO UPDATE SET
			total = EXCLUDED.total,
			initialized = EXCLUDED.initialized,
			started = EXCLUDED.started,
			completed = EXCLUDED.completed,
			failed = EXCLUDED.failed,
			canceled = EXCLUDED.canceled`)
	return x.exec(ctx, q)
}

func (x *tx) ListTaskStatsShards(ctx context.Context, workflowID core.ID, taskName string, generation int) ([]*store.TaskStatsShardRow, error) {
	sqlStr, args, err := psql.Select("workflow_id", "task_name", "generation", "shard_id", "total", "initialized", "started", "completed", "failed", "canceled").
		From("task_stats_shards").
		Where(squirrel.Eq{"workflow_id": string(workflowID), "task_name": taskName, "generation": generation}).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := x.tx.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*store.TaskStatsShardRow
	for rows.Next() {
		var s store.TaskStatsShardRow
		if err := rows.Scan(&s.WorkflowID, &s.TaskName, &s.Generation, &s.ShardID, &s.Total, &s.Initialized, &s.Started, &s.Completed, &s.Failed, &s.Canceled); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// --- scheduledInitializations ---

func (x *tx) GetScheduledInit(ctx context.Context, key string) (*store.ScheduledInitRow, error) {
	sqlStr, args, err := psql.Select("key", "scheduled_function_id").From("scheduled_initializations").
		Where(squirrel.Eq{"key": key}).ToSql()
	if err != nil {
		return nil, err
	}
	var r store.ScheduledInitRow
	err = x.tx.QueryRow(ctx, sqlStr, args...).Scan(&r.Key, &r.ScheduledFunctionID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (x *tx) PutScheduledInit(ctx context.Context, row *store.ScheduledInitRow) error {
	q := psql.Insert("scheduled_initializations").
		Columns("key", "scheduled_function_id").
		Values(row.Key, row.ScheduledFunctionID).
		Suffix(`ON CONFLICT (key) DO UPDATE SET scheduled_function_id = EXCLUDED.scheduled_function_id`)
	return x.exec(ctx, q)
}

// --- migration ---

func (x *tx) GetMigrationByTarget(ctx context.Context, toWorkflowID core.ID) (*store.MigrationRow, error) {
	sqlStr, args, err := psql.Select("from_workflow_id", "to_workflow_id", "created_at").From("migration").
		Where(squirrel.Eq{"to_workflow_id": string(toWorkflowID)}).ToSql()
	if err != nil {
		return nil, err
	}
	var m store.MigrationRow
	err = x.tx.QueryRow(ctx, sqlStr, args...).Scan(&m.FromWorkflowID, &m.ToWorkflowID, &m.CreatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (x *tx) PutMigration(ctx context.Context, row *store.MigrationRow) error {
	q := psql.Insert("migration").
		Columns("from_workflow_id", "to_workflow_id", "created_at").
		Values(string(row.FromWorkflowID), string(row.ToWorkflowID), row.CreatedAt).
		Suffix(`ON CONFLICT (to_workflow_id) DO UPDATE SET from_workflow_id = EXCLUDED.from_workflow_id, created_at = EXCLUDED.created_at`)
	return x.exec(ctx, q)
}
