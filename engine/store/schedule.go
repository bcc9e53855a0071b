package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// UpsertSchedule inserts or updates a schedule row keyed by its stable id.
// last_run_at is deliberately absent from the conflict-update list so a
// re-install never clobbers catch-up state.
func (s *Store) UpsertSchedule(ctx context.Context, rec ScheduleRecord) error {
	status := rec.Status
	if status == "" {
		status = ScheduleStatusActive
	}
	query, args, err := psql.Insert("schedules").
		Columns("id", "workflow_name", "trigger_type", "cron_expression", "timezone", "status", "last_run_at").
		Values(rec.ID, rec.WorkflowName, rec.TriggerType, rec.CronExpression, rec.Timezone, string(status), rec.LastRunAt).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			workflow_name = excluded.workflow_name,
			trigger_type = excluded.trigger_type,
			cron_expression = excluded.cron_expression,
			timezone = excluded.timezone,
			status = excluded.status`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert-schedule query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// SetScheduleLastRun advances last_run_at. A WHERE guard enforces
// monotonicity so a stale caller can't regress it.
func (s *Store) SetScheduleLastRun(ctx context.Context, id string, lastRunAt time.Time) error {
	query, args, err := psql.Update("schedules").
		Set("last_run_at", lastRunAt.UTC()).
		Where(sq.Eq{"id": id}).
		Where(sq.Or{sq.Eq{"last_run_at": nil}, sq.Lt{"last_run_at": lastRunAt.UTC()}}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set-last-run query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// GetScheduleLastRun returns the persisted last_run_at, or nil if the
// schedule has never fired or does not exist.
func (s *Store) GetScheduleLastRun(ctx context.Context, id string) (*time.Time, error) {
	query, args, err := psql.Select("last_run_at").From("schedules").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get-last-run query: %w", err)
	}
	var lastRun sql.NullTime
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&lastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule last run: %w", err)
	}
	if !lastRun.Valid {
		return nil, nil
	}
	t := lastRun.Time
	return &t, nil
}

// GetSchedule returns a single schedule row, or nil if it does not exist.
func (s *Store) GetSchedule(ctx context.Context, id string) (*ScheduleRecord, error) {
	query, args, err := psql.Select(
		"id", "workflow_name", "trigger_type", "cron_expression", "timezone", "status", "last_run_at",
	).From("schedules").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get-schedule query: %w", err)
	}
	rec, err := scanSchedule(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListSchedulesForWorkflow returns all schedule rows for a workflow name.
func (s *Store) ListSchedulesForWorkflow(ctx context.Context, workflowName string) ([]ScheduleRecord, error) {
	query, args, err := psql.Select(
		"id", "workflow_name", "trigger_type", "cron_expression", "timezone", "status", "last_run_at",
	).From("schedules").Where(sq.Eq{"workflow_name": workflowName}).OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list-schedules query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()
	var out []ScheduleRecord
	for rows.Next() {
		rec, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// SetScheduleStatus pauses or resumes a schedule.
func (s *Store) SetScheduleStatus(ctx context.Context, id string, status ScheduleStatus) error {
	query, args, err := psql.Update("schedules").Set("status", string(status)).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build set-schedule-status query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// DeleteSchedulesForWorkflow removes all schedule rows for a workflow.
func (s *Store) DeleteSchedulesForWorkflow(ctx context.Context, workflowName string) error {
	query, args, err := psql.Delete("schedules").Where(sq.Eq{"workflow_name": workflowName}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete-schedules query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*ScheduleRecord, error) {
	var rec ScheduleRecord
	var status string
	var lastRun sql.NullTime
	if err := row.Scan(
		&rec.ID, &rec.WorkflowName, &rec.TriggerType, &rec.CronExpression, &rec.Timezone, &status, &lastRun,
	); err != nil {
		return nil, err
	}
	rec.Status = ScheduleStatus(status)
	if lastRun.Valid {
		t := lastRun.Time
		rec.LastRunAt = &t
	}
	return &rec, nil
}
