package registry

import (
	"fmt"

	"dario.cat/mergo"
)

// ConfigSchema is a map-backed Schema for plugins that declare required
// keys and default values without a full schema language. Defaults are
// merged under the step's explicit config, never over it.
type ConfigSchema struct {
	Required []string
	Defaults map[string]any
}

func (s *ConfigSchema) Validate(cfg map[string]any) error {
	for _, key := range s.Required {
		if v, ok := cfg[key]; !ok || v == nil || v == "" {
			return fmt.Errorf("missing required config key %q", key)
		}
	}
	return nil
}

func (s *ConfigSchema) ApplyDefaults(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg)+len(s.Defaults))
	for k, v := range cfg {
		out[k] = v
	}
	if err := mergo.Merge(&out, s.Defaults); err != nil {
		return cfg
	}
	return out
}
