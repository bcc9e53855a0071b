package registry

import "github.com/openweavr/openweavr/engine/workflow"

// WorkflowSchemaLookup adapts the registry to workflow.SchemaLookup so the
// validator can consult plugin schemas without the workflow package
// depending on the registry package.
func (r *Registry) WorkflowSchemaLookup() workflow.SchemaLookup {
	return func(action string) (workflow.ActionSchema, bool) {
		s, ok := r.ActionSchema(action)
		if !ok {
			return nil, false
		}
		return s, true
	}
}
