package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/openweavr/openweavr/engine/core"
)

// TrackTokenUsage records one accounting row. Row ids are k-sortable so a
// plain scan over the table reads in insertion order.
func (s *Store) TrackTokenUsage(ctx context.Context, rec TokenUsageRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = nowUTC()
	}
	id := rec.ID
	if id == "" {
		id = core.NewSortableID().String()
	}
	query, args, err := psql.Insert("token_usage").
		Columns("id", "timestamp", "input_tokens", "output_tokens", "model", "workflow_name", "run_id").
		Values(id, ts, rec.InputTokens, rec.OutputTokens, rec.Model, rec.WorkflowName, rec.RunID).
		ToSql()
	if err != nil {
		return fmt.Errorf("build track-usage query: %w", err)
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// GetTokenUsage aggregates token counts matching q.
func (s *Store) GetTokenUsage(ctx context.Context, q UsageQuery) (TokenUsageRecord, error) {
	builder := psql.Select(
		"COALESCE(SUM(input_tokens), 0)",
		"COALESCE(SUM(output_tokens), 0)",
	).From("token_usage")
	if q.WorkflowName != "" {
		builder = builder.Where(sq.Eq{"workflow_name": q.WorkflowName})
	}
	if q.Days != nil {
		cutoff := nowUTC().AddDate(0, 0, -*q.Days)
		builder = builder.Where(sq.GtOrEq{"timestamp": cutoff})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return TokenUsageRecord{}, fmt.Errorf("build get-usage query: %w", err)
	}

	var rec TokenUsageRecord
	rec.WorkflowName = q.WorkflowName
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&rec.InputTokens, &rec.OutputTokens); err != nil {
		return TokenUsageRecord{}, fmt.Errorf("aggregate token usage: %w", err)
	}
	return rec, nil
}
