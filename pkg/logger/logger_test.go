package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("Should return logger from context when present", func(t *testing.T) {
		expected := NewLogger(TestConfig())
		ctx := ContextWithLogger(context.Background(), expected)

		got := FromContext(ctx)

		require.NotNil(t, got)
		assert.Equal(t, expected, got)
	})

	t.Run("Should return default logger when no logger in context", func(t *testing.T) {
		got := FromContext(context.Background())
		require.NotNil(t, got)
		got.Info("test message from default logger")
	})

	t.Run("Should return default logger when wrong type in context", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), LoggerCtxKey, "not a logger")
		got := FromContext(ctx)
		require.NotNil(t, got)
	})

	t.Run("Should return default logger when nil logger in context", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), LoggerCtxKey, (Logger)(nil))
		got := FromContext(ctx)
		require.NotNil(t, got)
	})
}

func TestLogLevel_ToCharmLevel(t *testing.T) {
	t.Run("Should convert all log levels to charm levels correctly", func(t *testing.T) {
		cases := []struct {
			level    LogLevel
			expected int
		}{
			{DebugLevel, -4},
			{InfoLevel, 0},
			{WarnLevel, 4},
			{ErrorLevel, 8},
			{DisabledLevel, 1000},
			{LogLevel("unknown"), 0},
		}
		for _, tc := range cases {
			assert.Equal(t, tc.expected, int(tc.level.ToCharmLevel()))
		}
	})
}
