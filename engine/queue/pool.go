// Package queue is the run queue worker pool: a single polling loop that
// claims queued runs up to a concurrency limit, drives execution, and
// reports completion or retry back to the store.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/openweavr/openweavr/engine/store"
	"github.com/openweavr/openweavr/pkg/logger"
)

// Executor runs one claimed queue row to completion and reports the
// outcome as a CompletedRun ready for history persistence. A non-nil err
// signals this attempt failed (either a step failed or an executor-level
// exception occurred); the pool decides whether to retry based on attempts.
type Executor interface {
	Execute(ctx context.Context, run store.QueuedRun) (store.CompletedRun, error)
}

// CompletionFunc is invoked after a run reaches a terminal state (success
// or attempts exhausted); the gateway uses it to notify clients.
type CompletionFunc func(workflowName string, runID string, status store.HistoryStatus, runErr string)

// Config controls pool behavior.
type Config struct {
	PollInterval   time.Duration
	MaxConcurrency int
	MaxAttempts    int
	RetryDelay     time.Duration
}

// Pool is the run queue worker pool.
type Pool struct {
	store    *store.Store
	executor Executor
	cfg      Config
	onDone   CompletionFunc
	log      logger.Logger

	mu         sync.Mutex
	activeRuns map[string]struct{}

	wg sync.WaitGroup
}

// New constructs a Pool. onDone may be nil.
func New(st *store.Store, exec Executor, cfg Config, onDone CompletionFunc) *Pool {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 5
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Pool{
		store:      st,
		executor:   exec,
		cfg:        cfg,
		onDone:     onDone,
		log:        logger.FromContext(context.Background()),
		activeRuns: make(map[string]struct{}),
	}
}

// Run drives the polling loop until ctx is canceled, then waits for
// in-flight runs to finish before returning.
func (p *Pool) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Pool) pollOnce(ctx context.Context) {
	available := p.cfg.MaxConcurrency - p.activeCount()
	if available <= 0 {
		return
	}
	claimed, err := p.store.ClaimNextRuns(ctx, available)
	if err != nil {
		p.log.Error("claim next runs failed", "error", err)
		return
	}
	for _, run := range claimed {
		runsClaimed.Inc()
		p.spawn(ctx, run)
	}
}

func (p *Pool) spawn(ctx context.Context, run store.QueuedRun) {
	p.addActive(run.ID)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.removeActive(run.ID)
		p.execute(ctx, run)
	}()
}

func (p *Pool) execute(ctx context.Context, run store.QueuedRun) {
	completed, execErr := p.executor.Execute(ctx, run)

	if execErr != nil && run.Attempts < p.cfg.MaxAttempts {
		delay := backoffDelay(p.cfg.RetryDelay, run.Attempts)
		if err := p.store.RescheduleRun(ctx, run.ID, time.Now().UTC().Add(delay), execErr.Error()); err != nil {
			p.log.Error("reschedule run failed", "run_id", run.ID, "error", err)
		}
		runsRescheduled.Inc()
		p.log.Warn("run attempt failed, rescheduled", "run_id", run.ID, "attempts", run.Attempts, "delay", delay)
		return
	}

	status := store.RunStatusCompleted
	historyStatus := store.HistoryStatusSuccess
	errText := ""
	if execErr != nil {
		status = store.RunStatusFailed
		historyStatus = store.HistoryStatusFailed
		errText = execErr.Error()
	}

	if err := p.store.MarkRunCompleted(ctx, run.ID, status, errText); err != nil {
		p.log.Error("mark run completed failed", "run_id", run.ID, "error", err)
	}

	completed.History.ID = run.ID
	completed.History.WorkflowName = run.WorkflowName
	completed.History.Status = historyStatus
	completed.History.Error = errText
	completed.History.TriggerType = run.TriggerType
	completed.History.TriggerData = run.TriggerData
	if err := p.store.SaveCompletedRun(ctx, completed); err != nil {
		p.log.Error("save completed run failed", "run_id", run.ID, "error", err)
	}

	runsCompleted.WithLabelValues(string(historyStatus)).Inc()
	if p.onDone != nil {
		p.onDone(run.WorkflowName, run.ID, historyStatus, errText)
	}
}

// backoffDelay computes retryDelay * 2^(attempts-1).
func backoffDelay(base time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	mult := int64(1) << uint(attempts-1)
	return base * time.Duration(mult)
}

func (p *Pool) activeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.activeRuns)
}

func (p *Pool) addActive(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeRuns[id] = struct{}{}
	activeRunsGauge.Set(float64(len(p.activeRuns)))
}

func (p *Pool) removeActive(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeRuns, id)
	activeRunsGauge.Set(float64(len(p.activeRuns)))
}
