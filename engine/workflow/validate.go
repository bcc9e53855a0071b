package workflow

import (
	"fmt"

	"github.com/openweavr/openweavr/engine/core"
)

// InvalidWorkflow reports a document-level validation failure, carrying
// the offending field alongside the message.
type InvalidWorkflow struct {
	Field   string
	Message string
	err     *core.Error
}

func NewInvalidWorkflow(field, message string) *InvalidWorkflow {
	return &InvalidWorkflow{
		Field:   field,
		Message: message,
		err: core.NewError(fmt.Errorf("%s", message), core.CodeInvalidWorkflow, map[string]any{
			"field": field,
		}),
	}
}

func (e *InvalidWorkflow) Error() string { return e.err.Error() }
func (e *InvalidWorkflow) Unwrap() error { return e.err }

// ActionSchema is the subset of the plugin registry's ActionDescriptor the
// validator needs: a schema to validate step.config against and defaults to
// apply. Absence of a schema for an action is not an error (permits
// built-ins like transform/log/delay/condition).
type ActionSchema interface {
	// Validate checks cfg against the schema, returning a field-level error.
	Validate(cfg map[string]any) error
	// ApplyDefaults merges schema defaults into cfg, without overriding
	// explicit values.
	ApplyDefaults(cfg map[string]any) map[string]any
}

// SchemaLookup resolves `step.action` to an ActionSchema, or returns
// (nil, false) when the registry has no schema for it.
type SchemaLookup func(action string) (ActionSchema, bool)

// Validate checks a parsed Workflow: every depends_on id resolves, the
// dependency graph is acyclic, step ids are unique, and (when a schema is
// registered for an action) its config validates and receives defaults.
func Validate(wf *Workflow, lookup SchemaLookup) error {
	if wf.Name == "" {
		return NewInvalidWorkflow("name", "workflow name is required")
	}
	if len(wf.Steps) == 0 {
		return NewInvalidWorkflow("steps", "workflow must declare at least one step")
	}
	for _, trig := range wf.Triggers {
		if err := validateTriggerConfig(trig); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(wf.Steps))
	for _, s := range wf.Steps {
		if s.ID == "" {
			return NewInvalidWorkflow("steps[].id", "step id is required")
		}
		if seen[s.ID] {
			return NewInvalidWorkflow("steps[].id", fmt.Sprintf("duplicate step id %q", s.ID))
		}
		seen[s.ID] = true
	}

	for i := range wf.Steps {
		s := &wf.Steps[i]
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return NewInvalidWorkflow(
					"steps[].depends_on",
					fmt.Sprintf("step %q depends on unknown step %q", s.ID, dep),
				)
			}
		}
		if lookup != nil {
			if schema, ok := lookup(s.Action); ok {
				cfg := schema.ApplyDefaults(s.Config)
				if err := schema.Validate(cfg); err != nil {
					return NewInvalidWorkflow(
						fmt.Sprintf("steps[%s].config", s.ID),
						err.Error(),
					)
				}
				s.Config = cfg
			}
		}
	}

	if err := checkAcyclic(wf.Steps); err != nil {
		return err
	}
	return nil
}

// checkAcyclic runs a grey/black DFS over the depends_on graph.
func checkAcyclic(steps []Step) error {
	deps := make(map[string][]string, len(steps))
	for _, s := range steps {
		deps[s.ID] = s.DependsOn
	}

	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(steps))

	var visit func(id string, path []string) error
	visit = func(id string, path []string) error {
		switch color[id] {
		case black:
			return nil
		case grey:
			return NewInvalidWorkflow(
				"steps[].depends_on",
				fmt.Sprintf("circular dependency detected: %v", append(path, id)),
			)
		}
		color[id] = grey
		for _, dep := range deps[id] {
			if err := visit(dep, append(path, id)); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	for _, s := range steps {
		if color[s.ID] == white {
			if err := visit(s.ID, nil); err != nil {
				return err
			}
		}
	}
	return nil
}
