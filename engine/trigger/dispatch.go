package trigger

import (
	"context"
	"fmt"

	"github.com/google/go-github/v74/github"

	"github.com/openweavr/openweavr/engine/workflow"
)

// WebhookResult is returned to the external HTTP gateway caller of
// POST /webhook/<path>.
type WebhookResult struct {
	Triggered []string
	RunIDs    []string
}

// TriggerWebhook matches path against every active http.webhook/email.inbound
// schedule and enqueues a run for each match.
func (s *Scheduler) TriggerWebhook(ctx context.Context, path string, data map[string]any) (WebhookResult, error) {
	var result WebhookResult
	for _, entry := range s.activeEntriesOfType(workflow.TriggerTypeWebhook, workflow.TriggerTypeEmail) {
		triggerPath, _ := entry.trigger.Config["path"].(string)
		if entry.trigger.Type == workflow.TriggerTypeEmail && triggerPath == "" {
			triggerPath = "email"
		}
		if !normalizeWebhookPath(triggerPath, path) {
			continue
		}
		runID, err := s.enqueue(ctx, entry.workflow, entry.trigger.Type, map[string]any{
			"type": "webhook",
			"path": path,
			"data": data,
		}, nil)
		if err != nil {
			return result, fmt.Errorf("enqueue webhook run for %q: %w", entry.workflow.Name, err)
		}
		result.Triggered = append(result.Triggered, entry.workflow.Name)
		result.RunIDs = append(result.RunIDs, runID)
	}
	return result, nil
}

// GitHub event trigger type.
const (
	githubTriggerType = "github.event"
)

// TriggerGitHubEvent matches an already-signature-verified, already-parsed
// GitHub event against every active github.event schedule and enqueues a
// run for each match. eventType is GitHub's X-GitHub-Event header value
// ("push", "pull_request", ...).
func (s *Scheduler) TriggerGitHubEvent(ctx context.Context, eventType string, payload any) (WebhookResult, error) {
	var result WebhookResult
	for _, entry := range s.activeEntriesOfType(githubTriggerType) {
		event, _ := entry.trigger.Config["event"].(string)
		if event != eventType {
			continue
		}
		if !matchGitHubConfig(entry.trigger.Config, eventType, payload) {
			continue
		}
		runID, err := s.enqueue(ctx, entry.workflow, githubTriggerType, map[string]any{
			"type":  "github",
			"event": eventType,
		}, nil)
		if err != nil {
			return result, fmt.Errorf("enqueue github event run for %q: %w", entry.workflow.Name, err)
		}
		result.Triggered = append(result.Triggered, entry.workflow.Name)
		result.RunIDs = append(result.RunIDs, runID)
	}
	return result, nil
}

// matchGitHubConfig applies the optional repo/branch/events filters,
// using go-github's typed event structs so field access doesn't depend on
// guessing the raw JSON shape.
func matchGitHubConfig(cfg map[string]any, eventType string, payload any) bool {
	if repo, ok := cfg["repo"].(string); ok && repo != "" {
		if !matchesRepo(repo, eventType, payload) {
			return false
		}
	}
	switch eventType {
	case "push":
		if branch, ok := cfg["branch"].(string); ok && branch != "" {
			push, isPush := payload.(*github.PushEvent)
			if !isPush || push.GetRef() != "refs/heads/"+branch {
				return false
			}
		}
	case "pull_request":
		if allow, ok := cfg["events"].([]any); ok && len(allow) > 0 {
			pr, isPR := payload.(*github.PullRequestEvent)
			if !isPR {
				return false
			}
			if !containsAction(allow, pr.GetAction()) {
				return false
			}
		}
	}
	return true
}

func matchesRepo(repo, eventType string, payload any) bool {
	switch eventType {
	case "push":
		if push, ok := payload.(*github.PushEvent); ok {
			return push.GetRepo().GetFullName() == repo
		}
	case "pull_request":
		if pr, ok := payload.(*github.PullRequestEvent); ok {
			return pr.GetRepo().GetFullName() == repo
		}
	}
	return true
}

func containsAction(allow []any, action string) bool {
	for _, a := range allow {
		if s, ok := a.(string); ok && s == action {
			return true
		}
	}
	return false
}

func (s *Scheduler) activeEntriesOfType(types ...string) []*scheduledEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[string]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	var out []*scheduledEntry
	for _, entry := range s.entries {
		if !wanted[entry.trigger.Type] || !entry.active {
			continue
		}
		out = append(out, entry)
	}
	return out
}
