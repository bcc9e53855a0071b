package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_S1LinearDAG(t *testing.T) {
	t.Run("Should accept a valid linear DAG", func(t *testing.T) {
		wf, err := Parse(linearDAG, "linear-dag.yaml")
		require.NoError(t, err)
		require.NoError(t, Validate(wf, nil))
	})
}

func TestValidate_S3CycleRejected(t *testing.T) {
	t.Run("Should fail validation on a two-step cycle", func(t *testing.T) {
		doc := `
name: cyclic
steps:
  - id: a
    action: log
    depends_on: [b]
  - id: b
    action: log
    depends_on: [a]
`
		wf, err := Parse(doc, "cyclic.yaml")
		require.NoError(t, err)

		err = Validate(wf, nil)
		require.Error(t, err)
		var invalid *InvalidWorkflow
		require.ErrorAs(t, err, &invalid)
	})
}

func TestValidate_CronTriggerRequiresExpression(t *testing.T) {
	t.Run("Should reject a cron trigger with no expression", func(t *testing.T) {
		doc := `
name: bad-cron
trigger:
  type: cron.schedule
  config:
    timezone: "America/New_York"
steps:
  - id: a
    action: log
`
		wf, err := Parse(doc, "bad-cron.yaml")
		require.NoError(t, err)
		require.Error(t, Validate(wf, nil))
	})

	t.Run("Should reject an invalid IANA timezone", func(t *testing.T) {
		doc := `
name: bad-tz
trigger:
  type: cron.schedule
  config:
    expression: "* * * * *"
    timezone: "Not/A_Zone"
steps:
  - id: a
    action: log
`
		wf, err := Parse(doc, "bad-tz.yaml")
		require.NoError(t, err)
		require.Error(t, Validate(wf, nil))
	})
}

func TestValidate_UnknownDependency(t *testing.T) {
	t.Run("Should reject a depends_on referencing an unknown step", func(t *testing.T) {
		doc := `
name: broken
steps:
  - id: a
    action: log
    depends_on: [missing]
`
		wf, err := Parse(doc, "broken.yaml")
		require.NoError(t, err)
		require.Error(t, Validate(wf, nil))
	})
}

func TestValidate_DuplicateStepID(t *testing.T) {
	t.Run("Should reject duplicate step ids", func(t *testing.T) {
		doc := `
name: dup
steps:
  - id: a
    action: log
  - id: a
    action: log
`
		wf, err := Parse(doc, "dup.yaml")
		require.NoError(t, err)
		require.Error(t, Validate(wf, nil))
	})
}

type stubSchema struct {
	defaults map[string]any
	wantErr  bool
}

func (s stubSchema) Validate(cfg map[string]any) error {
	if s.wantErr {
		return assert.AnError
	}
	return nil
}

func (s stubSchema) ApplyDefaults(cfg map[string]any) map[string]any {
	out := make(map[string]any, len(cfg)+len(s.defaults))
	for k, v := range s.defaults {
		out[k] = v
	}
	for k, v := range cfg {
		out[k] = v
	}
	return out
}

func TestValidate_PluginSchemaAppliesDefaults(t *testing.T) {
	t.Run("Should merge schema defaults into step config", func(t *testing.T) {
		doc := `
name: with-plugin
steps:
  - id: a
    action: slack.postMessage
    config:
      text: hi
`
		wf, err := Parse(doc, "with-plugin.yaml")
		require.NoError(t, err)

		lookup := func(action string) (ActionSchema, bool) {
			if action == "slack.postMessage" {
				return stubSchema{defaults: map[string]any{"channel": "#general"}}, true
			}
			return nil, false
		}
		require.NoError(t, Validate(wf, lookup))
		assert.Equal(t, "#general", wf.Steps[0].Config["channel"])
		assert.Equal(t, "hi", wf.Steps[0].Config["text"])
	})

	t.Run("Should not error when no schema is registered for the action", func(t *testing.T) {
		doc := `
name: generic
steps:
  - id: a
    action: transform
    config:
      template: "x"
`
		wf, err := Parse(doc, "generic.yaml")
		require.NoError(t, err)
		require.NoError(t, Validate(wf, func(string) (ActionSchema, bool) { return nil, false }))
	})
}
