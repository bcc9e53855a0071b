package workflow

import "github.com/go-playground/validator/v10"

// triggerConfigValidator applies struct-tag validation to the builtin
// trigger shapes the engine itself understands (cron expression,
// optional IANA timezone, webhook/email path); plugin trigger configs are
// instead validated via the registry's SchemaLookup in Validate.
var triggerConfigValidator = validator.New()

type cronTriggerConfig struct {
	Expression string `validate:"required"`
	Timezone   string `validate:"omitempty,timezone"`
}

type webhookTriggerConfig struct {
	Path string `validate:"omitempty"`
}

// validateTriggerConfig checks a single trigger's config against its builtin
// shape. Non-builtin (plugin) trigger types are left to the plugin's own
// schema, so they return nil here.
func validateTriggerConfig(t Trigger) error {
	switch t.Type {
	case TriggerTypeCron:
		expr, _ := t.Config["expression"].(string)
		tz, _ := t.Config["timezone"].(string)
		cfg := cronTriggerConfig{Expression: expr, Timezone: tz}
		if err := triggerConfigValidator.Struct(cfg); err != nil {
			return NewInvalidWorkflow("triggers[].config", "cron trigger: "+err.Error())
		}
	case TriggerTypeWebhook, TriggerTypeEmail:
		path, _ := t.Config["path"].(string)
		cfg := webhookTriggerConfig{Path: path}
		if err := triggerConfigValidator.Struct(cfg); err != nil {
			return NewInvalidWorkflow("triggers[].config", "webhook trigger: "+err.Error())
		}
	}
	return nil
}
