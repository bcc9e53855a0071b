package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/robfig/cron/v3"

	"github.com/openweavr/openweavr/engine/core"
	"github.com/openweavr/openweavr/engine/registry"
	"github.com/openweavr/openweavr/engine/store"
	"github.com/openweavr/openweavr/engine/workflow"
	"github.com/openweavr/openweavr/pkg/logger"
)

// cronParser accepts standard 5-field expressions plus @every/@daily-style
// descriptors.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Config controls the trigger scheduler.
type Config struct {
	WorkflowsDir    string
	DefaultTimezone string
	CatchUpWindow   time.Duration
	MaxCatchUpRuns  int

	// OnTriggered is invoked after every successful enqueue; the gateway
	// uses it to notify clients a run was created. Optional.
	OnTriggered func(workflowName, runID string)
}

type scheduledEntry struct {
	workflow *workflow.Workflow
	trigger  workflow.Trigger
	index    int
	cronID   *cron.EntryID
	expr     string
	tz       string
	active   bool
}

// Scheduler loads workflow files, installs cron jobs, accepts
// webhook/GitHub dispatch, and delegates plugin triggers to a Manager.
type Scheduler struct {
	store    *store.Store
	registry *registry.Registry
	manager  *Manager
	cfg      Config
	cron     *cron.Cron
	log      logger.Logger

	mu        sync.Mutex
	workflows map[string]*workflow.Workflow  // name -> loaded workflow
	entries   map[string]*scheduledEntry     // scheduleId -> entry
	byName    map[string][]string            // workflow name -> scheduleIds
}

func NewScheduler(st *store.Store, reg *registry.Registry, mgr *Manager, cfg Config) *Scheduler {
	if cfg.CatchUpWindow <= 0 {
		cfg.CatchUpWindow = 24 * time.Hour
	}
	if cfg.MaxCatchUpRuns <= 0 {
		cfg.MaxCatchUpRuns = 10
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	return &Scheduler{
		store:     st,
		registry:  reg,
		manager:   mgr,
		cfg:       cfg,
		cron:      cron.New(),
		log:       logger.FromContext(context.Background()),
		workflows: make(map[string]*workflow.Workflow),
		entries:   make(map[string]*scheduledEntry),
		byName:    make(map[string][]string),
	}
}

// Start begins the cron scheduler's background goroutine. Must be called
// after LoadAndSchedule so initial entries are installed first.
func (s *Scheduler) Start() { s.cron.Start() }

// LoadAndSchedule reads every *.yaml/*.yml file from the workflow
// directory, parses and validates it, and schedules its triggers. Files
// that fail to parse are logged and skipped so one broken workflow never
// blocks the rest.
func (s *Scheduler) LoadAndSchedule(ctx context.Context) error {
	if s.cfg.WorkflowsDir == "" {
		return nil
	}
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := doublestar.FilepathGlob(filepath.Join(s.cfg.WorkflowsDir, pattern))
		if err != nil {
			return fmt.Errorf("glob workflow files: %w", err)
		}
		files = append(files, matches...)
	}

	for _, path := range files {
		content, err := readWorkflowFile(path)
		if err != nil {
			s.log.Error("read workflow file failed", "path", path, "error", err)
			continue
		}
		wf, err := parseAndValidate(content, path, s.registry)
		if err != nil {
			s.log.Error("invalid workflow file", "path", path, "error", err)
			continue
		}
		if err := s.scheduleWorkflow(ctx, wf); err != nil {
			s.log.Error("schedule workflow failed", "workflow", wf.Name, "error", err)
		}
	}
	return nil
}

func readWorkflowFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

func parseAndValidate(content, path string, reg *registry.Registry) (*workflow.Workflow, error) {
	wf, err := workflow.Parse(content, path)
	if err != nil {
		return nil, err
	}
	if err := workflow.Validate(wf, reg.WorkflowSchemaLookup()); err != nil {
		return nil, err
	}
	return wf, nil
}

func (s *Scheduler) scheduleWorkflow(ctx context.Context, wf *workflow.Workflow) error {
	s.mu.Lock()
	s.workflows[wf.Name] = wf
	s.mu.Unlock()

	for idx, trig := range wf.Triggers {
		if err := s.scheduleTrigger(ctx, wf, trig, idx); err != nil {
			return err
		}
	}
	return nil
}

func scheduleID(workflowName, triggerType string, index int) string {
	return fmt.Sprintf("%s::%s::%d", workflowName, triggerType, index)
}

func (s *Scheduler) scheduleTrigger(ctx context.Context, wf *workflow.Workflow, trig workflow.Trigger, index int) error {
	id := scheduleID(wf.Name, trig.Type, index)

	switch trig.Type {
	case workflow.TriggerTypeCron:
		return s.installCron(ctx, id, wf, trig, index)
	case workflow.TriggerTypeWebhook, workflow.TriggerTypeEmail:
		entry := &scheduledEntry{workflow: wf, trigger: trig, index: index}
		s.registerEntry(id, wf.Name, entry)
		return s.store.UpsertSchedule(ctx, store.ScheduleRecord{
			ID: id, WorkflowName: wf.Name, TriggerType: trig.Type, Status: store.ScheduleStatusActive,
		})
	default:
		entry := &scheduledEntry{workflow: wf, trigger: trig, index: index}
		s.registerEntry(id, wf.Name, entry)
		if err := s.store.UpsertSchedule(ctx, store.ScheduleRecord{
			ID: id, WorkflowName: wf.Name, TriggerType: trig.Type, Status: store.ScheduleStatusActive,
		}); err != nil {
			return err
		}
		emit := func(ctx context.Context, envelope map[string]any) error {
			_, err := s.enqueue(ctx, wf, trig.Type, envelope, nil)
			return err
		}
		return s.manager.SetupTrigger(ctx, id, trig.Type, trig.Config, emit)
	}
}

func (s *Scheduler) registerEntry(id, workflowName string, entry *scheduledEntry) {
	entry.active = true
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = entry
	for _, existing := range s.byName[workflowName] {
		if existing == id {
			return
		}
	}
	s.byName[workflowName] = append(s.byName[workflowName], id)
}

// enqueue marshals triggerData to JSON and inserts a queue row, returning
// the generated run id.
func (s *Scheduler) enqueue(
	ctx context.Context,
	wf *workflow.Workflow,
	triggerType string,
	triggerData map[string]any,
	scheduledFor *time.Time,
) (string, error) {
	raw, err := json.Marshal(triggerData)
	if err != nil {
		return "", fmt.Errorf("marshal trigger data: %w", err)
	}
	runID := core.NewRunID().String()
	err = s.store.EnqueueRun(ctx, store.EnqueueInput{
		ID:              runID,
		WorkflowName:    wf.Name,
		TriggerType:     triggerType,
		TriggerData:     string(raw),
		WorkflowContent: wf.Content,
		ScheduledFor:    scheduledFor,
	})
	if err == nil && s.cfg.OnTriggered != nil {
		s.cfg.OnTriggered(wf.Name, runID)
	}
	return runID, err
}

// TriggerManualRun enqueues a run for an already-loaded workflow with
// triggerType "manual", the path behind the gateway's
// POST /workflows/<name>/run.
func (s *Scheduler) TriggerManualRun(ctx context.Context, workflowName string) (string, error) {
	s.mu.Lock()
	wf := s.workflows[workflowName]
	s.mu.Unlock()
	if wf == nil {
		return "", fmt.Errorf("workflow %q is not loaded", workflowName)
	}
	return s.enqueue(ctx, wf, "manual", map[string]any{"type": "manual"}, nil)
}

// Pause stops firing a workflow's triggers without forgetting their state.
func (s *Scheduler) Pause(ctx context.Context, workflowName string) error {
	for _, id := range s.idsForWorkflow(workflowName) {
		s.mu.Lock()
		entry := s.entries[id]
		s.mu.Unlock()
		if entry == nil {
			continue
		}
		if entry.cronID != nil {
			s.cron.Remove(*entry.cronID)
			s.mu.Lock()
			entry.cronID = nil
			s.mu.Unlock()
		} else if !entry.trigger.IsBuiltin() {
			if err := s.manager.StopTrigger(id); err != nil {
				s.log.Warn("stop trigger during pause failed", "id", id, "error", err)
			}
		}
		s.mu.Lock()
		entry.active = false
		s.mu.Unlock()
		if err := s.store.SetScheduleStatus(ctx, id, store.ScheduleStatusPaused); err != nil {
			return err
		}
	}
	return nil
}

// Resume re-installs cron jobs or re-invokes plugin trigger setup, then
// performs a window-bounded catch-up so a long pause does not replay every
// missed tick and stampede the queue.
func (s *Scheduler) Resume(ctx context.Context, workflowName string) error {
	for _, id := range s.idsForWorkflow(workflowName) {
		s.mu.Lock()
		entry := s.entries[id]
		s.mu.Unlock()
		if entry == nil {
			continue
		}
		if err := s.store.SetScheduleStatus(ctx, id, store.ScheduleStatusActive); err != nil {
			return err
		}
		if err := s.scheduleTrigger(ctx, entry.workflow, entry.trigger, entry.index); err != nil {
			return err
		}
	}
	return nil
}

// Unschedule stops and forgets every trigger for workflowName and deletes
// its schedule rows.
func (s *Scheduler) Unschedule(ctx context.Context, workflowName string) error {
	ids := s.idsForWorkflow(workflowName)
	for _, id := range ids {
		s.mu.Lock()
		entry := s.entries[id]
		delete(s.entries, id)
		s.mu.Unlock()
		if entry == nil {
			continue
		}
		if entry.cronID != nil {
			s.cron.Remove(*entry.cronID)
		} else if !entry.trigger.IsBuiltin() {
			if err := s.manager.StopTrigger(id); err != nil {
				s.log.Warn("stop trigger during unschedule failed", "id", id, "error", err)
			}
		}
	}
	s.mu.Lock()
	delete(s.byName, workflowName)
	delete(s.workflows, workflowName)
	s.mu.Unlock()
	return s.store.DeleteSchedulesForWorkflow(ctx, workflowName)
}

// StopAll tears down the cron scheduler and every plugin trigger.
func (s *Scheduler) StopAll() error {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return s.manager.StopAll()
}

func (s *Scheduler) idsForWorkflow(workflowName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.byName[workflowName]))
	copy(ids, s.byName[workflowName])
	return ids
}

// normalizeWebhookPath matches two webhook paths either exactly or with a
// single leading slash added to either side.
func normalizeWebhookPath(a, b string) bool {
	if a == b {
		return true
	}
	return "/"+a == b || a == "/"+b
}
