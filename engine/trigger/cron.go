package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openweavr/openweavr/engine/core"
	"github.com/openweavr/openweavr/engine/store"
	"github.com/openweavr/openweavr/engine/workflow"
)

// installCron registers a cron job for trig, upserts the schedule row, and
// performs missed-tick catch-up.
func (s *Scheduler) installCron(ctx context.Context, id string, wf *workflow.Workflow, trig workflow.Trigger, index int) error {
	expr, _ := trig.Config["expression"].(string)
	tz, _ := trig.Config["timezone"].(string)
	if tz == "" {
		tz = s.cfg.DefaultTimezone
	}

	if expr == "" {
		return s.parkInvalidSchedule(ctx, id, wf, expr, tz, fmt.Errorf("expression is required"))
	}
	schedule, err := cronParser.Parse(cronSpecWithTZ(expr, tz))
	if err != nil {
		return s.parkInvalidSchedule(ctx, id, wf, expr, tz, err)
	}

	entryID := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.onCronTick(context.Background(), id, wf, expr)
	}))

	entry := &scheduledEntry{workflow: wf, trigger: trig, index: index, cronID: &entryID, expr: expr, tz: tz}
	s.registerEntry(id, wf.Name, entry)

	if err := s.store.UpsertSchedule(ctx, store.ScheduleRecord{
		ID: id, WorkflowName: wf.Name, TriggerType: workflow.TriggerTypeCron,
		CronExpression: expr, Timezone: tz, Status: store.ScheduleStatusActive,
	}); err != nil {
		return err
	}

	return s.catchUp(ctx, id, wf, schedule, expr)
}

// parkInvalidSchedule persists the broken schedule in the paused state so
// the operator can see it, then surfaces a ScheduleInvalid error.
func (s *Scheduler) parkInvalidSchedule(ctx context.Context, id string, wf *workflow.Workflow, expr, tz string, cause error) error {
	if upsertErr := s.store.UpsertSchedule(ctx, store.ScheduleRecord{
		ID: id, WorkflowName: wf.Name, TriggerType: workflow.TriggerTypeCron,
		CronExpression: expr, Timezone: tz, Status: store.ScheduleStatusPaused,
	}); upsertErr != nil {
		s.log.Error("persist paused schedule for invalid cron failed", "id", id, "error", upsertErr)
	}
	return core.NewError(
		fmt.Errorf("cron trigger %q: invalid expression %q: %w", id, expr, cause),
		core.CodeScheduleInvalid,
		map[string]any{"schedule": id, "expression": expr},
	)
}

// cronSpecWithTZ builds a robfig/cron expression string carrying its
// timezone the way the library expects (a leading "CRON_TZ=<zone>"
// directive), so each workflow's cron entry can run in its own declared
// timezone rather than a single process-wide one.
func cronSpecWithTZ(expr, tz string) string {
	if tz == "" {
		return expr
	}
	return fmt.Sprintf("CRON_TZ=%s %s", tz, expr)
}

func (s *Scheduler) onCronTick(ctx context.Context, id string, wf *workflow.Workflow, expr string) {
	now := time.Now().UTC()
	_, err := s.enqueue(ctx, wf, workflow.TriggerTypeCron, map[string]any{
		"type":         "cron",
		"expression":   expr,
		"scheduledFor": now.Format(time.RFC3339),
	}, &now)
	if err != nil {
		s.log.Error("enqueue cron-triggered run failed", "id", id, "error", err)
		return
	}
	if err := s.store.SetScheduleLastRun(ctx, id, now); err != nil {
		s.log.Error("update schedule last_run_at failed", "id", id, "error", err)
	}
}

// catchUp computes all cron fire times missed since the schedule's
// persisted last_run_at, clamped to CatchUpWindow, takes up to
// MaxCatchUpRuns earliest-first, and enqueues each with its original
// scheduledFor.
func (s *Scheduler) catchUp(ctx context.Context, id string, wf *workflow.Workflow, schedule cron.Schedule, expr string) error {
	lastRun, err := s.store.GetScheduleLastRun(ctx, id)
	if err != nil {
		return fmt.Errorf("get schedule last run: %w", err)
	}
	if lastRun == nil {
		return nil
	}

	now := time.Now().UTC()
	windowStart := now.Add(-s.cfg.CatchUpWindow)
	from := *lastRun
	if from.Before(windowStart) {
		from = windowStart
	}

	var fireTimes []time.Time
	next := schedule.Next(from)
	for !next.After(now) && len(fireTimes) < s.cfg.MaxCatchUpRuns {
		fireTimes = append(fireTimes, next)
		next = schedule.Next(next)
	}
	if len(fireTimes) == 0 {
		return nil
	}

	for _, t := range fireTimes {
		scheduledFor := t
		if _, err := s.enqueue(ctx, wf, workflow.TriggerTypeCron, map[string]any{
			"type":         "cron",
			"expression":   expr,
			"scheduledFor": t.Format(time.RFC3339),
			"catchUp":      true,
		}, &scheduledFor); err != nil {
			s.log.Error("enqueue catch-up run failed", "id", id, "error", err)
			continue
		}
	}

	newest := fireTimes[len(fireTimes)-1]
	return s.store.SetScheduleLastRun(ctx, id, newest)
}
