package trigger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openweavr/openweavr/engine/registry"
	"github.com/openweavr/openweavr/engine/store"
	"github.com/openweavr/openweavr/engine/workflow"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler.db")
	s, err := store.Open(context.Background(), store.Config{Path: path, BusyTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestScheduler(t *testing.T) *Scheduler {
	st := openTestStore(t)
	reg := registry.New()
	mgr := NewManager(reg)
	return NewScheduler(st, reg, mgr, Config{DefaultTimezone: "UTC"})
}

func webhookWorkflow(name, path string) *workflow.Workflow {
	return &workflow.Workflow{
		Name:    name,
		Content: "name: " + name,
		Triggers: []workflow.Trigger{
			{Type: workflow.TriggerTypeWebhook, Config: map[string]any{"path": path}},
		},
		Steps: []workflow.Step{{ID: "a", Action: "log"}},
	}
}

func TestScheduler_TriggerWebhookMatchesPath(t *testing.T) {
	t.Run("Should enqueue a run for an exact path match", func(t *testing.T) {
		ctx := context.Background()
		s := newTestScheduler(t)
		wf := webhookWorkflow("wf-webhook", "incoming")
		require.NoError(t, s.scheduleWorkflow(ctx, wf))

		result, err := s.TriggerWebhook(ctx, "incoming", map[string]any{"ok": true})
		require.NoError(t, err)
		assert.Equal(t, []string{"wf-webhook"}, result.Triggered)
		require.Len(t, result.RunIDs, 1)
	})

	t.Run("Should match with a single leading slash added to either side", func(t *testing.T) {
		ctx := context.Background()
		s := newTestScheduler(t)
		wf := webhookWorkflow("wf-webhook", "/incoming")
		require.NoError(t, s.scheduleWorkflow(ctx, wf))

		result, err := s.TriggerWebhook(ctx, "incoming", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"wf-webhook"}, result.Triggered)
	})

	t.Run("Should not match an unrelated path", func(t *testing.T) {
		ctx := context.Background()
		s := newTestScheduler(t)
		wf := webhookWorkflow("wf-webhook", "incoming")
		require.NoError(t, s.scheduleWorkflow(ctx, wf))

		result, err := s.TriggerWebhook(ctx, "other", nil)
		require.NoError(t, err)
		assert.Empty(t, result.Triggered)
	})
}

func TestScheduler_EmailDefaultPath(t *testing.T) {
	t.Run("Should default email.inbound to path \"email\" when unset", func(t *testing.T) {
		ctx := context.Background()
		s := newTestScheduler(t)
		wf := &workflow.Workflow{
			Name:    "wf-email",
			Content: "name: wf-email",
			Triggers: []workflow.Trigger{
				{Type: workflow.TriggerTypeEmail, Config: map[string]any{}},
			},
			Steps: []workflow.Step{{ID: "a", Action: "log"}},
		}
		require.NoError(t, s.scheduleWorkflow(ctx, wf))

		result, err := s.TriggerWebhook(ctx, "email", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"wf-email"}, result.Triggered)
	})
}

func TestScheduler_PauseStopsWebhookDelivery(t *testing.T) {
	t.Run("Should stop matching a paused webhook schedule", func(t *testing.T) {
		ctx := context.Background()
		s := newTestScheduler(t)
		wf := webhookWorkflow("wf-webhook", "incoming")
		require.NoError(t, s.scheduleWorkflow(ctx, wf))

		require.NoError(t, s.Pause(ctx, "wf-webhook"))

		result, err := s.TriggerWebhook(ctx, "incoming", nil)
		require.NoError(t, err)
		assert.Empty(t, result.Triggered)
	})

	t.Run("Should resume delivery after Resume", func(t *testing.T) {
		ctx := context.Background()
		s := newTestScheduler(t)
		wf := webhookWorkflow("wf-webhook", "incoming")
		require.NoError(t, s.scheduleWorkflow(ctx, wf))
		require.NoError(t, s.Pause(ctx, "wf-webhook"))
		require.NoError(t, s.Resume(ctx, "wf-webhook"))

		result, err := s.TriggerWebhook(ctx, "incoming", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"wf-webhook"}, result.Triggered)
	})
}

func TestScheduler_Unschedule(t *testing.T) {
	t.Run("Should remove all schedule rows and stop future matches", func(t *testing.T) {
		ctx := context.Background()
		s := newTestScheduler(t)
		wf := webhookWorkflow("wf-webhook", "incoming")
		require.NoError(t, s.scheduleWorkflow(ctx, wf))

		require.NoError(t, s.Unschedule(ctx, "wf-webhook"))

		rows, err := s.store.ListSchedulesForWorkflow(ctx, "wf-webhook")
		require.NoError(t, err)
		assert.Empty(t, rows)

		result, err := s.TriggerWebhook(ctx, "incoming", nil)
		require.NoError(t, err)
		assert.Empty(t, result.Triggered)
	})
}

func TestCronCatchUp(t *testing.T) {
	t.Run("Should enqueue missed ticks bounded by MaxCatchUpRuns and advance last_run_at", func(t *testing.T) {
		ctx := context.Background()
		st := openTestStore(t)
		reg := registry.New()
		mgr := NewManager(reg)
		s := NewScheduler(st, reg, mgr, Config{DefaultTimezone: "UTC", MaxCatchUpRuns: 2, CatchUpWindow: time.Hour})

		wf := &workflow.Workflow{
			Name:    "wf-cron",
			Content: "name: wf-cron",
			Triggers: []workflow.Trigger{
				{Type: workflow.TriggerTypeCron, Config: map[string]any{"expression": "* * * * *"}},
			},
			Steps: []workflow.Step{{ID: "a", Action: "log"}},
		}
		id := scheduleID("wf-cron", workflow.TriggerTypeCron, 0)
		stale := time.Now().UTC().Add(-10 * time.Minute)
		require.NoError(t, st.UpsertSchedule(ctx, store.ScheduleRecord{
			ID: id, WorkflowName: "wf-cron", TriggerType: workflow.TriggerTypeCron,
			CronExpression: "* * * * *", Timezone: "UTC",
		}))
		require.NoError(t, st.SetScheduleLastRun(ctx, id, stale))

		require.NoError(t, s.scheduleWorkflow(ctx, wf))

		claimed, err := st.ClaimNextRuns(ctx, 10)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(claimed), 2)
		assert.NotEmpty(t, claimed)

		newLastRun, err := st.GetScheduleLastRun(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, newLastRun)
		assert.True(t, newLastRun.After(stale))
	})
}

func TestScheduler_TriggerManualRun(t *testing.T) {
	t.Run("Should enqueue a manual run for a loaded workflow", func(t *testing.T) {
		ctx := context.Background()
		st := openTestStore(t)
		reg := registry.New()
		mgr := NewManager(reg)

		var notifiedName, notifiedRun string
		s := NewScheduler(st, reg, mgr, Config{DefaultTimezone: "UTC", OnTriggered: func(name, runID string) {
			notifiedName, notifiedRun = name, runID
		}})
		wf := webhookWorkflow("wf-manual", "unused")
		require.NoError(t, s.scheduleWorkflow(ctx, wf))

		runID, err := s.TriggerManualRun(ctx, "wf-manual")
		require.NoError(t, err)
		assert.NotEmpty(t, runID)
		assert.Equal(t, "wf-manual", notifiedName)
		assert.Equal(t, runID, notifiedRun)

		claimed, err := st.ClaimNextRuns(ctx, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1)
		assert.Equal(t, "manual", claimed[0].TriggerType)
	})

	t.Run("Should reject an unknown workflow name", func(t *testing.T) {
		s := newTestScheduler(t)
		_, err := s.TriggerManualRun(context.Background(), "nope")
		assert.Error(t, err)
	})
}

func TestScheduler_InvalidCronLeavesScheduleParked(t *testing.T) {
	t.Run("Should persist a paused schedule row for an unparseable expression", func(t *testing.T) {
		ctx := context.Background()
		st := openTestStore(t)
		reg := registry.New()
		s := NewScheduler(st, reg, NewManager(reg), Config{DefaultTimezone: "UTC"})

		wf := &workflow.Workflow{
			Name:    "wf-bad-cron",
			Content: "name: wf-bad-cron",
			Triggers: []workflow.Trigger{
				{Type: workflow.TriggerTypeCron, Config: map[string]any{"expression": "not a cron"}},
			},
			Steps: []workflow.Step{{ID: "a", Action: "log"}},
		}
		err := s.scheduleWorkflow(ctx, wf)
		require.Error(t, err)

		rec, err := st.GetSchedule(ctx, scheduleID("wf-bad-cron", workflow.TriggerTypeCron, 0))
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, store.ScheduleStatusPaused, rec.Status)
	})
}
