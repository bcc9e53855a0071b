package executor

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/openweavr/openweavr/engine/store"
	"github.com/openweavr/openweavr/engine/workflow"
)

type stepStatus string

const (
	stepPending   stepStatus = "pending"
	stepRunning   stepStatus = "running"
	stepCompleted stepStatus = "completed"
	stepFailed    stepStatus = "failed"
)

type stepState struct {
	status   stepStatus
	output   any
	err      error
	duration time.Duration
}

type logEntry struct {
	timestamp time.Time
	level     string
	stepID    string
	message   string
}

// runState holds the mutable per-run state shared across concurrently
// executing steps within a readiness wave. Every step starts pending.
type runState struct {
	mu    sync.Mutex
	steps map[string]*stepState
	logs  []logEntry
}

func newRunState(steps []workflow.Step) *runState {
	rs := &runState{steps: make(map[string]*stepState, len(steps))}
	for _, s := range steps {
		rs.steps[s.ID] = &stepState{status: stepPending}
	}
	return rs
}

// readySteps returns every pending step whose dependencies are all
// completed.
func (rs *runState) readySteps(deps map[string][]string) []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var ready []string
	for id, st := range rs.steps {
		if st.status != stepPending {
			continue
		}
		blocked := false
		for _, dep := range deps[id] {
			if d, ok := rs.steps[dep]; !ok || d.status != stepCompleted {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, id)
		}
	}
	return ready
}

func (rs *runState) markRunning(id string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.steps[id].status = stepRunning
}

func (rs *runState) complete(id string, output any, duration time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.steps[id].status = stepCompleted
	rs.steps[id].output = output
	rs.steps[id].duration = duration
}

func (rs *runState) fail(id string, err error, duration time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.steps[id].status = stepFailed
	rs.steps[id].err = err
	rs.steps[id].duration = duration
}

func (rs *runState) anyFailed() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, st := range rs.steps {
		if st.status == stepFailed {
			return true
		}
	}
	return false
}

func (rs *runState) hasPending() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, st := range rs.steps {
		if st.status == stepPending {
			return true
		}
	}
	return false
}

// completedOutputs snapshots every completed step's output, keyed by step
// id, for use as the `steps` interpolation-context field.
func (rs *runState) completedOutputs() map[string]any {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make(map[string]any, len(rs.steps))
	for id, st := range rs.steps {
		if st.status == stepCompleted {
			out[id] = st.output
		}
	}
	return out
}

func (rs *runState) log(level, stepID, message string, now time.Time) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.logs = append(rs.logs, logEntry{timestamp: now, level: level, stepID: stepID, message: message})
}

func (rs *runState) firstError() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, st := range rs.steps {
		if st.status == stepFailed && st.err != nil {
			return st.err.Error()
		}
	}
	return ""
}

func (rs *runState) storeLogs(runID string) []store.RunLog {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]store.RunLog, 0, len(rs.logs))
	for _, l := range rs.logs {
		out = append(out, store.RunLog{
			RunID: runID, Timestamp: l.timestamp, Level: l.level, StepID: l.stepID, Message: l.message,
		})
	}
	return out
}

func (rs *runState) storeSteps(runID string) []store.RunStep {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]store.RunStep, 0, len(rs.steps))
	for id, st := range rs.steps {
		row := store.RunStep{RunID: runID, StepID: id, Status: string(st.status), Duration: st.duration}
		if st.err != nil {
			row.Error = st.err.Error()
		}
		if st.output != nil {
			if b, err := json.Marshal(st.output); err == nil {
				row.Output = string(b)
			}
		}
		out = append(out, row)
	}
	return out
}
