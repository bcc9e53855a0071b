package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Default(t *testing.T) {
	t.Run("Should return valid default configuration", func(t *testing.T) {
		cfg := Default()
		require.NotNil(t, cfg)
		assert.Equal(t, 5, cfg.Scheduler.MaxConcurrency)
		assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
		assert.Equal(t, "UTC", cfg.Timezone)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
	})
}

func TestConfig_RedactedFields(t *testing.T) {
	t.Run("Should mask API keys and SMTP password", func(t *testing.T) {
		cfg := Default()
		cfg.AI.OpenAIAPIKey = "sk-1234567890"
		cfg.Email.SMTPPass = "hunter2pass"

		fields := cfg.RedactedFields()

		joined := make(map[string]any, len(fields)/2)
		for i := 0; i+1 < len(fields); i += 2 {
			joined[fields[i].(string)] = fields[i+1]
		}
		assert.NotContains(t, joined["openai_api_key"], "sk-1234567890")
		assert.NotContains(t, joined["smtp_pass"], "hunter2pass")
		assert.Equal(t, cfg.Store.Path, joined["store_path"])
	})
}

func TestManager_Load(t *testing.T) {
	t.Run("Should layer defaults, file and env", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("scheduler:\n  max_concurrency: 9\n"), 0o600))
		t.Setenv("WEAVR_TIMEZONE", "America/New_York")

		m := NewManager(NewService())
		cfg, err := m.Load(context.Background(), NewDefaultProvider(), NewFileProvider(path), NewEnvProvider())
		require.NoError(t, err)

		assert.Equal(t, 9, cfg.Scheduler.MaxConcurrency)
		assert.Equal(t, "America/New_York", cfg.Timezone)
		assert.Equal(t, 3, cfg.Scheduler.MaxAttempts, "unset fields keep their default")
	})

	t.Run("Should tolerate a missing config file", func(t *testing.T) {
		m := NewManager(NewService())
		cfg, err := m.Load(context.Background(), NewDefaultProvider(), NewFileProvider("/does/not/exist.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Scheduler.MaxConcurrency)
	})
}

func TestNewManager_NilService(t *testing.T) {
	t.Run("Should fall back to a fresh Service when given nil", func(t *testing.T) {
		m := NewManager(nil)
		cfg, err := m.Load(context.Background(), NewDefaultProvider())
		require.NoError(t, err)
		assert.Equal(t, "UTC", cfg.Timezone)
	})
}
