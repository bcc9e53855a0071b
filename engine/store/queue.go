package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/openweavr/openweavr/engine/core"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// EnqueueRun inserts a new queued row with attempts=0 and
// next_attempt_at=now.
func (s *Store) EnqueueRun(ctx context.Context, in EnqueueInput) error {
	now := nowUTC()
	id := in.ID
	if id == "" {
		id = core.NewRunID().String()
	}
	query, args, err := psql.Insert("queue").
		Columns(
			"id", "workflow_name", "trigger_type", "trigger_data", "workflow_content",
			"status", "attempts", "next_attempt_at", "created_at", "scheduled_for",
		).
		Values(
			id, in.WorkflowName, in.TriggerType, in.TriggerData, in.WorkflowContent,
			string(RunStatusQueued), 0, now, now, in.ScheduledFor,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build enqueue query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("enqueue run: %w", err)
	}
	return nil
}

// ClaimNextRuns selects up to limit oldest queued rows whose
// next_attempt_at <= now, atomically transitioning them to running and
// incrementing attempts. The claim is linearizable: the
// candidate-select and the per-row conditional UPDATE run in one
// transaction, and each UPDATE's WHERE clause re-checks status='queued' so
// a row raced away by a concurrent claimer (impossible within one process,
// but kept for correctness if the store is ever opened by two processes
// sharing a network filesystem) is silently skipped rather than returned.
func (s *Store) ClaimNextRuns(ctx context.Context, limit int) ([]QueuedRun, error) {
	if limit <= 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUTC()
	selectQuery, selectArgs, err := psql.Select("id").
		From("queue").
		Where(sq.Eq{"status": string(RunStatusQueued)}).
		Where(sq.LtOrEq{"next_attempt_at": now}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim candidate query: %w", err)
	}
	rows, err := tx.QueryContext(ctx, selectQuery, selectArgs...)
	if err != nil {
		return nil, fmt.Errorf("select claim candidates: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan claim candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	claimed := make([]QueuedRun, 0, len(ids))
	for _, id := range ids {
		updateQuery, updateArgs, err := psql.Update("queue").
			Set("status", string(RunStatusRunning)).
			Set("started_at", now).
			Set("attempts", sq.Expr("attempts + 1")).
			Where(sq.Eq{"id": id, "status": string(RunStatusQueued)}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build claim update: %w", err)
		}
		res, err := tx.ExecContext(ctx, updateQuery, updateArgs...)
		if err != nil {
			return nil, fmt.Errorf("claim run %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue // raced away by a concurrent claimer
		}
		run, err := getQueueRow(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, *run)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim transaction: %w", err)
	}
	return claimed, nil
}

// MarkRunCompleted is the terminal transition for a queue row.
func (s *Store) MarkRunCompleted(ctx context.Context, id string, status RunStatus, runErr string) error {
	now := nowUTC()
	query, args, err := psql.Update("queue").
		Set("status", string(status)).
		Set("completed_at", now).
		Set("error", runErr).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark-completed query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// RescheduleRun returns a row to queued with a new next_attempt_at; the
// backoff schedule is computed by the caller.
func (s *Store) RescheduleRun(ctx context.Context, id string, nextAttemptAt time.Time, runErr string) error {
	query, args, err := psql.Update("queue").
		Set("status", string(RunStatusQueued)).
		Set("next_attempt_at", nextAttemptAt.UTC()).
		Set("error", runErr).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reschedule query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// RecoverStaleRuns scans for rows stuck in 'running' older than grace —
// left behind when a previous process died mid-run — and returns them to
// 'queued' with attempts preserved, so a restart resumes interrupted work
// instead of orphaning it.
func (s *Store) RecoverStaleRuns(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := nowUTC().Add(-grace)
	query, args, err := psql.Update("queue").
		Set("status", string(RunStatusQueued)).
		Set("started_at", nil).
		Set("error", "interrupted").
		Where(sq.Eq{"status": string(RunStatusRunning)}).
		Where(sq.Lt{"started_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build stale-run recovery query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("recover stale runs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func getQueueRow(ctx context.Context, tx *sql.Tx, id string) (*QueuedRun, error) {
	query, args, err := psql.Select(
		"id", "workflow_name", "trigger_type", "trigger_data", "workflow_content",
		"status", "attempts", "next_attempt_at", "created_at", "started_at",
		"completed_at", "scheduled_for", "error",
	).From("queue").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get-queue-row query: %w", err)
	}
	row := tx.QueryRowContext(ctx, query, args...)
	var r QueuedRun
	var status string
	if err := row.Scan(
		&r.ID, &r.WorkflowName, &r.TriggerType, &r.TriggerData, &r.WorkflowContent,
		&status, &r.Attempts, &r.NextAttemptAt, &r.CreatedAt, &r.StartedAt,
		&r.CompletedAt, &r.ScheduledFor, &r.Error,
	); err != nil {
		return nil, fmt.Errorf("scan queue row %s: %w", id, err)
	}
	r.Status = RunStatus(status)
	return &r, nil
}

func nowUTC() time.Time { return time.Now().UTC() }
