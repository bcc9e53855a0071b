package trigger

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of Create/Write events a single save
// can produce into one reload.
const watchDebounce = 300 * time.Millisecond

// WatchWorkflowsDir re-parses and re-schedules a workflow file whenever it
// is created or written, and unschedules it on removal, for operators who
// edit workflow files against a running daemon. cmd/weavrd starts it only
// when pkg/config WorkflowsConfig.Watch is set, which is off by default.
func (s *Scheduler) WatchWorkflowsDir(ctx context.Context) error {
	if s.cfg.WorkflowsDir == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.cfg.WorkflowsDir); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				s.debounceWatchEvent(ctx, event, timers)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Error("workflow directory watch error", "error", err)
			}
		}
	}()
	return nil
}

// debounceWatchEvent delays handling of event until watchDebounce has
// elapsed with no further event for the same path, so a single save
// (which often fires Create+Write in quick succession) triggers one
// reload instead of several.
func (s *Scheduler) debounceWatchEvent(ctx context.Context, event fsnotify.Event, timers map[string]*time.Timer) {
	if !isWorkflowFile(event.Name) {
		return
	}
	if existing, ok := timers[event.Name]; ok {
		existing.Stop()
	}
	timers[event.Name] = time.AfterFunc(watchDebounce, func() {
		s.handleWatchEvent(ctx, event)
	})
}

func (s *Scheduler) handleWatchEvent(ctx context.Context, event fsnotify.Event) {
	if !isWorkflowFile(event.Name) {
		return
	}
	switch {
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		name := workflowNameForPath(s, event.Name)
		if name == "" {
			return
		}
		if err := s.Unschedule(ctx, name); err != nil {
			s.log.Error("unschedule removed workflow failed", "path", event.Name, "error", err)
		}
	case event.Op&fsnotify.Create != 0, event.Op&fsnotify.Write != 0:
		s.reloadWorkflowFile(ctx, event.Name)
	}
}

func (s *Scheduler) reloadWorkflowFile(ctx context.Context, path string) {
	content, err := readWorkflowFile(path)
	if err != nil {
		s.log.Error("re-read changed workflow file failed", "path", path, "error", err)
		return
	}
	wf, err := parseAndValidate(content, path, s.registry)
	if err != nil {
		s.log.Error("reload of changed workflow file is invalid, keeping previous schedule", "path", path, "error", err)
		return
	}
	s.mu.Lock()
	_, alreadyScheduled := s.workflows[wf.Name]
	s.mu.Unlock()
	if alreadyScheduled {
		if err := s.Unschedule(ctx, wf.Name); err != nil {
			s.log.Error("unschedule stale triggers before reload failed", "workflow", wf.Name, "error", err)
		}
	}
	if err := s.scheduleWorkflow(ctx, wf); err != nil {
		s.log.Error("reschedule changed workflow failed", "workflow", wf.Name, "error", err)
	}
}

func workflowNameForPath(s *Scheduler, path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, wf := range s.workflows {
		if wf.SourcePath == path {
			return name
		}
	}
	return ""
}

func isWorkflowFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
