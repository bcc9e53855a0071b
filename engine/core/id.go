package core

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// RunID identifies one execution instance of a workflow. Run ids are
// UUIDs so external callers can generate and correlate them without
// coordination.
type RunID string

// NewRunID generates a fresh run id.
func NewRunID() RunID {
	return RunID(uuid.NewString())
}

func ParseRunID(s string) (RunID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid run id %q: %w", s, err)
	}
	return RunID(s), nil
}

func (id RunID) String() string { return string(id) }

// SortableID is a k-sortable identifier used for rows where lexical
// ordering by creation time is convenient (token_usage rows).
type SortableID string

func NewSortableID() SortableID {
	return SortableID(ksuid.New().String())
}

func (id SortableID) String() string { return string(id) }
