// Package store is the durable scheduler store: a single-file embedded
// sqlite database holding the run queue, schedules, run history and token
// usage.
package store

import "time"

// RunStatus is the lifecycle state of a queue row.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// HistoryStatus is the terminal outcome recorded in a history row.
type HistoryStatus string

const (
	HistoryStatusSuccess HistoryStatus = "success"
	HistoryStatusFailed  HistoryStatus = "failed"
)

// ScheduleStatus is the lifecycle state of a schedule row.
type ScheduleStatus string

const (
	ScheduleStatusActive ScheduleStatus = "active"
	ScheduleStatusPaused ScheduleStatus = "paused"
)

// QueuedRun is a durable row in the run queue.
type QueuedRun struct {
	ID              string
	WorkflowName    string
	TriggerType     string
	TriggerData     string // serialized JSON
	WorkflowContent string
	Status          RunStatus
	Attempts        int
	NextAttemptAt   time.Time
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ScheduledFor    *time.Time
	Error           string
}

// EnqueueInput is the set of fields a caller supplies to enqueue a run.
type EnqueueInput struct {
	ID              string
	WorkflowName    string
	TriggerType     string
	TriggerData     string
	WorkflowContent string
	ScheduledFor    *time.Time
}

// ScheduleRecord tracks last-fired state for a workflow's trigger. ID is
// the stable name::triggerType::index key.
type ScheduleRecord struct {
	ID             string
	WorkflowName   string
	TriggerType    string
	CronExpression string
	Timezone       string
	Status         ScheduleStatus
	LastRunAt      *time.Time
}

// HistoryRecord is a completed run's summary row.
type HistoryRecord struct {
	ID           string
	WorkflowName string
	Status       HistoryStatus
	StartedAt    time.Time
	CompletedAt  time.Time
	Duration     time.Duration
	Error        string
	TriggerType  string
	TriggerData  string
	CreatedAt    time.Time
}

// RunLog is one log line attached to a run.
type RunLog struct {
	RunID     string
	Timestamp time.Time
	Level     string
	StepID    string
	Message   string
}

// RunStep is one step's terminal result attached to a run.
type RunStep struct {
	RunID    string
	StepID   string
	Status   string
	Duration time.Duration
	Error    string
	Output   string // serialized JSON
}

// CompletedRun bundles a HistoryRecord with its child rows so
// SaveCompletedRun can insert all three in one transaction.
type CompletedRun struct {
	History HistoryRecord
	Logs    []RunLog
	Steps   []RunStep
}

// TokenUsageRecord is one AI token accounting row. ID is assigned on
// insert when empty (k-sortable).
type TokenUsageRecord struct {
	ID           string
	Timestamp    time.Time
	InputTokens  int
	OutputTokens int
	Model        string
	WorkflowName string
	RunID        string
}

// HistoryQuery filters GetRunHistory.
type HistoryQuery struct {
	Page         int
	Limit        int
	Days         *int
	Status       *HistoryStatus
	WorkflowName string
}

// UsageQuery filters GetTokenUsage.
type UsageQuery struct {
	Days         *int
	WorkflowName string
}
