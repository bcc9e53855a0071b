// Package workflow holds the typed workflow document model and its YAML
// parser and validator.
package workflow

import "github.com/openweavr/openweavr/engine/core"

// Workflow is the immutable, content-addressed document a user authors.
type Workflow struct {
	Name        string        `json:"name"                  yaml:"name"`
	Description string        `json:"description,omitempty" yaml:"description,omitempty"`
	Env         core.EnvMap   `json:"env,omitempty"          yaml:"env,omitempty"`
	Triggers    []Trigger     `json:"triggers,omitempty"     yaml:"triggers,omitempty"`
	Memory      []MemoryBlock `json:"memory,omitempty"       yaml:"memory,omitempty"`
	Steps       []Step        `json:"steps"                  yaml:"steps"`

	// SourcePath is the file this workflow was loaded from, used to derive
	// Name when absent and to identify the workflow for hot-reload.
	SourcePath string `json:"-" yaml:"-"`
	// Content is the raw serialized text; a workflow is content-addressed
	// by it, and queue rows embed it so a run executes exactly the version
	// that triggered it.
	Content string `json:"-" yaml:"-"`
}

// Trigger is one event source declared by the workflow.
type Trigger struct {
	Type   string         `json:"type"             yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

const (
	TriggerTypeCron    = "cron.schedule"
	TriggerTypeWebhook = "http.webhook"
	TriggerTypeEmail   = "email.inbound"
)

// IsBuiltin reports whether t is handled directly by the trigger scheduler
// (cron/webhook/email) rather than delegated to the trigger manager /
// plugin registry.
func (t Trigger) IsBuiltin() bool {
	switch t.Type {
	case TriggerTypeCron, TriggerTypeWebhook, TriggerTypeEmail:
		return true
	default:
		return false
	}
}

// RetryConfig controls per-step retry. Defaults are 1 attempt / 1000ms
// delay, applied by Parse when absent. Delay is a
// human-readable alternative to DelayMS ("2s", "1 minute"); when both are
// set DelayMS wins.
type RetryConfig struct {
	Attempts int    `json:"attempts,omitempty"  yaml:"attempts,omitempty"`
	DelayMS  int    `json:"delay_ms,omitempty"  yaml:"delay_ms,omitempty"`
	Delay    string `json:"delay,omitempty"     yaml:"delay,omitempty"`
}

// Step is one action within a workflow's DAG.
type Step struct {
	ID        string         `json:"id"                   yaml:"id"`
	Action    string         `json:"action"               yaml:"action"`
	Config    map[string]any `json:"config,omitempty"     yaml:"config,omitempty"`
	DependsOn []string       `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Retry     RetryConfig    `json:"retry,omitempty"      yaml:"retry,omitempty"`
}

// MemorySourceType enumerates the kinds of memory source.
type MemorySourceType string

const (
	MemorySourceText      MemorySourceType = "text"
	MemorySourceFile      MemorySourceType = "file"
	MemorySourceURL       MemorySourceType = "url"
	MemorySourceWebSearch MemorySourceType = "web_search"
	MemorySourceStep      MemorySourceType = "step"
	MemorySourceTrigger   MemorySourceType = "trigger"
)

// MemorySource is one entry in a MemoryBlock's Sources list. Only the
// fields relevant to Type are meaningful; unused fields are simply left
// at zero value.
type MemorySource struct {
	ID    string           `json:"id,omitempty"    yaml:"id,omitempty"`
	Type  MemorySourceType `json:"type"             yaml:"type"`
	Label string           `json:"label,omitempty"  yaml:"label,omitempty"`

	Text string `json:"text,omitempty" yaml:"text,omitempty"` // text source

	Path string `json:"path,omitempty" yaml:"path,omitempty"` // file source path, OR step/trigger dotted path

	URL string `json:"url,omitempty" yaml:"url,omitempty"` // url source

	Query      string `json:"query,omitempty"       yaml:"query,omitempty"`       // web_search
	MaxResults int    `json:"max_results,omitempty" yaml:"max_results,omitempty"` // web_search

	StepID string `json:"step_id,omitempty" yaml:"step_id,omitempty"` // step source

	MaxChars *int `json:"max_chars,omitempty" yaml:"max_chars,omitempty"`
}

// MemoryBlock is a text fragment assembled before steps run and exposed
// to templates as memory.blocks.<id>.
type MemoryBlock struct {
	ID        string         `json:"id"                  yaml:"id"`
	Sources   []MemorySource `json:"sources"             yaml:"sources"`
	Template  *string        `json:"template,omitempty"  yaml:"template,omitempty"`
	Separator string         `json:"separator,omitempty" yaml:"separator,omitempty"`
	Dedupe    bool           `json:"dedupe,omitempty"    yaml:"dedupe,omitempty"`
	MaxChars  *int           `json:"max_chars,omitempty" yaml:"max_chars,omitempty"`
}

// SeparatorOrDefault returns Separator, defaulting to "\n\n".
func (b MemoryBlock) SeparatorOrDefault() string {
	if b.Separator == "" {
		return "\n\n"
	}
	return b.Separator
}
