// Package registry is the in-process plugin registry: a lookup from
// "plugin.action" to an ActionDescriptor and "plugin.trigger" to a
// TriggerDescriptor, populated at startup and read-only afterwards.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/openweavr/openweavr/engine/core"
)

// ActionContext is passed to an ActionDescriptor's Execute function: the
// step's pre-interpolated config plus the run's interpolation context, so
// plugins never need to know about the templating grammar.
type ActionContext struct {
	Context context.Context
	Config  map[string]any
	Run     map[string]any // full interpolation context (trigger/steps/env/memory)
}

// ActionDescriptor describes a callable plugin or built-in action. Execute
// returns the step's output value — a plain string for text-producing
// actions like transform, a map for structured outputs — which downstream
// steps address as `steps.<id>` (optionally with a dotted path into map
// outputs).
type ActionDescriptor struct {
	Name    string
	Schema  Schema // optional; nil means no validation/defaults
	Execute func(ActionContext) (any, error)
}

// EmitFunc is handed to a trigger's Setup by the trigger manager; calling
// it enqueues a new run.
type EmitFunc func(ctx context.Context, envelope map[string]any) error

// CleanupFunc tears down a trigger's background resources.
type CleanupFunc func() error

// TriggerDescriptor describes a plugin-defined long-poll/event trigger.
type TriggerDescriptor struct {
	Name  string
	Setup func(ctx context.Context, config map[string]any, emit EmitFunc) (CleanupFunc, error)
}

// Schema validates and defaults a step or trigger config.
type Schema interface {
	Validate(cfg map[string]any) error
	ApplyDefaults(cfg map[string]any) map[string]any
}

// Registry is the process-wide plugin lookup table. It is safe for
// concurrent reads; Register is expected to happen only during startup.
type Registry struct {
	mu       sync.RWMutex
	actions  map[string]*ActionDescriptor
	triggers map[string]*TriggerDescriptor
}

func New() *Registry {
	return &Registry{
		actions:  make(map[string]*ActionDescriptor),
		triggers: make(map[string]*TriggerDescriptor),
	}
}

// RegisterAction adds an action descriptor. Re-registration of the same
// name is an error.
func (r *Registry) RegisterAction(desc *ActionDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[desc.Name]; exists {
		return core.NewError(
			fmt.Errorf("action %q is already registered", desc.Name),
			"DUPLICATE_ACTION",
			map[string]any{"name": desc.Name},
		)
	}
	r.actions[desc.Name] = desc
	return nil
}

// RegisterTrigger adds a trigger descriptor. Re-registration is an error.
func (r *Registry) RegisterTrigger(desc *TriggerDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.triggers[desc.Name]; exists {
		return core.NewError(
			fmt.Errorf("trigger %q is already registered", desc.Name),
			"DUPLICATE_TRIGGER",
			map[string]any{"name": desc.Name},
		)
	}
	r.triggers[desc.Name] = desc
	return nil
}

// GetAction looks up an action descriptor by fully-qualified name.
func (r *Registry) GetAction(name string) (*ActionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.actions[name]
	return d, ok
}

// GetTrigger looks up a trigger descriptor by fully-qualified name.
func (r *Registry) GetTrigger(name string) (*TriggerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.triggers[name]
	return d, ok
}

// ActionSchema returns the Schema registered for an action, if any.
// WorkflowSchemaLookup (adapter.go) wraps it as a workflow.SchemaLookup, so
// registry imports workflow and workflow never imports registry.
func (r *Registry) ActionSchema(name string) (Schema, bool) {
	d, ok := r.GetAction(name)
	if !ok || d.Schema == nil {
		return nil, false
	}
	return d.Schema, true
}
