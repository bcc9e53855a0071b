package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// SaveCompletedRun atomically inserts a history row plus its run_logs and
// run_steps children in one transaction.
func (s *Store) SaveCompletedRun(ctx context.Context, run CompletedRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save-completed-run transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	h := run.History
	if h.CreatedAt.IsZero() {
		h.CreatedAt = nowUTC()
	}
	query, args, err := psql.Insert("history").
		Columns(
			"id", "workflow_name", "status", "started_at", "completed_at",
			"duration_ms", "error", "trigger_type", "trigger_data", "created_at",
		).
		Values(
			h.ID, h.WorkflowName, string(h.Status), h.StartedAt, h.CompletedAt,
			h.Duration.Milliseconds(), h.Error, h.TriggerType, h.TriggerData, h.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build history insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert history row: %w", err)
	}

	for _, l := range run.Logs {
		q, a, err := psql.Insert("run_logs").
			Columns("run_id", "timestamp", "level", "step_id", "message").
			Values(h.ID, l.Timestamp, l.Level, l.StepID, l.Message).
			ToSql()
		if err != nil {
			return fmt.Errorf("build run_logs insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, a...); err != nil {
			return fmt.Errorf("insert run_logs row: %w", err)
		}
	}

	for _, st := range run.Steps {
		q, a, err := psql.Insert("run_steps").
			Columns("run_id", "step_id", "status", "duration_ms", "error", "output").
			Values(h.ID, st.StepID, st.Status, st.Duration.Milliseconds(), st.Error, st.Output).
			ToSql()
		if err != nil {
			return fmt.Errorf("build run_steps insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q, a...); err != nil {
			return fmt.Errorf("insert run_steps row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save-completed-run transaction: %w", err)
	}
	return nil
}

// GetRunHistory lists history rows matching q, newest first, paginated.
func (s *Store) GetRunHistory(ctx context.Context, q HistoryQuery) ([]HistoryRecord, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	builder := psql.Select(
		"id", "workflow_name", "status", "started_at", "completed_at",
		"duration_ms", "error", "trigger_type", "trigger_data", "created_at",
	).From("history")
	if q.WorkflowName != "" {
		builder = builder.Where(sq.Eq{"workflow_name": q.WorkflowName})
	}
	if q.Status != nil {
		builder = builder.Where(sq.Eq{"status": string(*q.Status)})
	}
	if q.Days != nil {
		cutoff := nowUTC().AddDate(0, 0, -*q.Days)
		builder = builder.Where(sq.GtOrEq{"created_at": cutoff})
	}
	query, args, err := builder.
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64((page - 1) * limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRecord
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// GetRunByID returns one history row, or nil if it does not exist.
func (s *Store) GetRunByID(ctx context.Context, id string) (*HistoryRecord, error) {
	query, args, err := psql.Select(
		"id", "workflow_name", "status", "started_at", "completed_at",
		"duration_ms", "error", "trigger_type", "trigger_data", "created_at",
	).From("history").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get-run query: %w", err)
	}
	rec, err := scanHistory(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// CleanupOldData deletes history rows older than daysToKeep, cascading
// run_logs/run_steps via ON DELETE CASCADE, plus equally old token_usage
// rows.
func (s *Store) CleanupOldData(ctx context.Context, daysToKeep int) (int64, error) {
	cutoff := nowUTC().AddDate(0, 0, -daysToKeep)

	histQuery, histArgs, err := psql.Delete("history").Where(sq.Lt{"created_at": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup-history query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, histQuery, histArgs...)
	if err != nil {
		return 0, fmt.Errorf("cleanup old history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	usageQuery, usageArgs, err := psql.Delete("token_usage").Where(sq.Lt{"timestamp": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup-usage query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, usageQuery, usageArgs...); err != nil {
		return 0, fmt.Errorf("cleanup old token usage: %w", err)
	}
	return n, nil
}

func scanHistory(row rowScanner) (*HistoryRecord, error) {
	var rec HistoryRecord
	var status string
	var durationMS int64
	if err := row.Scan(
		&rec.ID, &rec.WorkflowName, &status, &rec.StartedAt, &rec.CompletedAt,
		&durationMS, &rec.Error, &rec.TriggerType, &rec.TriggerData, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = HistoryStatus(status)
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	return &rec, nil
}
