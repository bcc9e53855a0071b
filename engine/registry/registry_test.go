package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGetAction(t *testing.T) {
	t.Run("Should register and retrieve an action descriptor", func(t *testing.T) {
		r := New()
		desc := &ActionDescriptor{Name: "slack.postMessage", Execute: func(ActionContext) (any, error) {
			return map[string]any{"ok": true}, nil
		}}
		require.NoError(t, r.RegisterAction(desc))

		got, ok := r.GetAction("slack.postMessage")
		require.True(t, ok)
		assert.Equal(t, desc, got)
	})

	t.Run("Should error on duplicate registration", func(t *testing.T) {
		r := New()
		desc := &ActionDescriptor{Name: "dup"}
		require.NoError(t, r.RegisterAction(desc))
		assert.Error(t, r.RegisterAction(desc))
	})

	t.Run("Should report unknown actions as absent", func(t *testing.T) {
		r := New()
		_, ok := r.GetAction("missing")
		assert.False(t, ok)
	})
}

func TestRegistry_RegisterAndGetTrigger(t *testing.T) {
	t.Run("Should register and retrieve a trigger descriptor", func(t *testing.T) {
		r := New()
		desc := &TriggerDescriptor{Name: "telegram.message"}
		require.NoError(t, r.RegisterTrigger(desc))

		got, ok := r.GetTrigger("telegram.message")
		require.True(t, ok)
		assert.Equal(t, desc, got)
	})
}

func TestConfigSchema(t *testing.T) {
	t.Run("Should merge defaults under explicit config", func(t *testing.T) {
		schema := &ConfigSchema{
			Required: []string{"channel"},
			Defaults: map[string]any{"channel": "#general", "icon": ":robot:"},
		}
		cfg := schema.ApplyDefaults(map[string]any{"channel": "#alerts"})
		assert.Equal(t, "#alerts", cfg["channel"])
		assert.Equal(t, ":robot:", cfg["icon"])
		assert.NoError(t, schema.Validate(cfg))
	})

	t.Run("Should report a missing required key", func(t *testing.T) {
		schema := &ConfigSchema{Required: []string{"channel"}}
		assert.Error(t, schema.Validate(map[string]any{}))
	})
}
