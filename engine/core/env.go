package core

import (
	"fmt"

	"dario.cat/mergo"
)

// EnvMap is a workflow-local mapping of env-var name to value. It is never
// merged with the process environment implicitly.
type EnvMap map[string]string

func (e EnvMap) Prop(key string) string {
	if e == nil {
		return ""
	}
	return e[key]
}

// Merge returns a new EnvMap with other's keys overriding e's.
func (e EnvMap) Merge(other EnvMap) (EnvMap, error) {
	result := make(EnvMap, len(e))
	for k, v := range e {
		result[k] = v
	}
	if err := mergo.Merge(&result, other, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge env: %w", err)
	}
	return result, nil
}

func (e EnvMap) AsMap() map[string]any {
	result := make(map[string]any, len(e))
	for k, v := range e {
		result[k] = v
	}
	return result
}
