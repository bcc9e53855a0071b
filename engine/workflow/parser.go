package workflow

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/gosimple/slug"

	"github.com/openweavr/openweavr/engine/core"
)

// rawDocument mirrors the on-disk shape, accepting either a singular
// `trigger` field or a list `triggers`.
type rawDocument struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Env         map[string]string `yaml:"env"`
	Trigger     *Trigger       `yaml:"trigger"`
	Triggers    []Trigger      `yaml:"triggers"`
	Memory      []MemoryBlock  `yaml:"memory"`
	Steps       []Step         `yaml:"steps"`
}

// Parse decodes a workflow document's raw text into a Workflow, applying
// step retry defaults but not yet validating cross-references (see
// Validate).
func Parse(content string, sourcePath string) (*Workflow, error) {
	var raw rawDocument
	if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
		return nil, NewInvalidWorkflow("document", fmt.Sprintf("failed to parse YAML: %s", err))
	}

	triggers := raw.Triggers
	if raw.Trigger != nil {
		triggers = append([]Trigger{*raw.Trigger}, triggers...)
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = deriveNameFromPath(sourcePath)
	}

	env := make(map[string]string, len(raw.Env))
	for k, v := range raw.Env {
		env[k] = v
	}

	steps := make([]Step, len(raw.Steps))
	for i, s := range raw.Steps {
		step, err := applyStepDefaults(s)
		if err != nil {
			return nil, err
		}
		steps[i] = step
	}

	wf := &Workflow{
		Name:        name,
		Description: raw.Description,
		Env:         core.EnvMap(env),
		Triggers:    triggers,
		Memory:      raw.Memory,
		Steps:       steps,
		SourcePath:  sourcePath,
		Content:     content,
	}
	return wf, nil
}

func applyStepDefaults(s Step) (Step, error) {
	if s.Retry.DelayMS <= 0 && s.Retry.Delay != "" {
		d, err := core.ParseHumanDuration(s.Retry.Delay)
		if err != nil {
			return s, NewInvalidWorkflow(
				"steps[].retry.delay",
				fmt.Sprintf("step %q: cannot parse delay %q: %s", s.ID, s.Retry.Delay, err),
			)
		}
		s.Retry.DelayMS = int(d.Milliseconds())
	}
	if s.Retry.Attempts <= 0 {
		s.Retry.Attempts = 1
	}
	if s.Retry.DelayMS <= 0 {
		s.Retry.DelayMS = 1000
	}
	return s, nil
}

// deriveNameFromPath derives a kebab-case workflow name from the file's
// base name when `name` is absent.
func deriveNameFromPath(sourcePath string) string {
	if sourcePath == "" {
		return ""
	}
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return slug.Make(base)
}

// Serialize renders wf back to YAML text. Parse(Serialize(wf)) yields an
// equivalent document.
func Serialize(wf *Workflow) (string, error) {
	doc := rawDocument{
		Name:        wf.Name,
		Description: wf.Description,
		Env:         map[string]string(wf.Env),
		Triggers:    wf.Triggers,
		Memory:      wf.Memory,
		Steps:       wf.Steps,
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize workflow: %w", err)
	}
	return string(b), nil
}
