package executor

import (
	"time"

	"github.com/openweavr/openweavr/engine/registry"
	"github.com/openweavr/openweavr/pkg/logger"
)

// RegisterBuiltins adds the transform/log/delay/condition action
// descriptors to reg. Call once at daemon startup, before
// any workflow is validated or executed, since workflow.Validate and
// Executor.executeStep resolve actions through the same registry.
func RegisterBuiltins(reg *registry.Registry) error {
	builtins := []*registry.ActionDescriptor{
		{Name: "transform", Execute: transformAction},
		{Name: "log", Execute: logAction},
		{Name: "delay", Execute: delayAction},
		{Name: "condition", Execute: conditionAction},
	}
	for _, b := range builtins {
		if err := reg.RegisterAction(b); err != nil {
			return err
		}
	}
	return nil
}

// transformAction returns config.template, already interpolated by the
// executor before Execute is called. The output is the bare string so a
// downstream `{{ steps.<id> }}` resolves to the transformed text directly.
func transformAction(ac registry.ActionContext) (any, error) {
	template, _ := ac.Config["template"].(string)
	return template, nil
}

func logAction(ac registry.ActionContext) (any, error) {
	message, _ := ac.Config["message"].(string)
	logger.FromContext(ac.Context).Info(message, "action", "log")
	return map[string]any{"logged": message}, nil
}

func delayAction(ac registry.ActionContext) (any, error) {
	ms := configInt(ac.Config["ms"])
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ac.Context.Done():
		return nil, ac.Context.Err()
	}
	return map[string]any{"delayed": ms}, nil
}

// falsySet is the condition built-in's falsy set.
var falsySet = map[string]bool{"": true, "false": true, "0": true}

func conditionAction(ac registry.ActionContext) (any, error) {
	value, _ := ac.Config["if"].(string)
	return map[string]any{"result": !falsySet[value]}, nil
}

func configInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}
