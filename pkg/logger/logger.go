// Package logger provides a small structured-logging wrapper around
// charmbracelet/log, carried through context.Context the way the rest of
// the engine threads request-scoped values.
package logger

import (
	"context"
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
)

// LogLevel is a string enum so it round-trips cleanly through YAML/env config.
type LogLevel string

const (
	DebugLevel    LogLevel = "debug"
	InfoLevel     LogLevel = "info"
	WarnLevel     LogLevel = "warn"
	ErrorLevel    LogLevel = "error"
	DisabledLevel LogLevel = "disabled"
)

// ToCharmLevel converts to charmbracelet/log's level type, defaulting to
// InfoLevel for unrecognized values.
func (l LogLevel) ToCharmLevel() charmlog.Level {
	switch l {
	case DebugLevel:
		return charmlog.DebugLevel
	case InfoLevel:
		return charmlog.InfoLevel
	case WarnLevel:
		return charmlog.WarnLevel
	case ErrorLevel:
		return charmlog.ErrorLevel
	case DisabledLevel:
		return charmlog.Level(1000)
	default:
		return charmlog.InfoLevel
	}
}

// Logger is the interface the engine depends on everywhere instead of a
// concrete type, so call sites never import charmbracelet/log directly.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	With(kv ...any) Logger
}

type charmLogger struct {
	l *charmlog.Logger
}

func (c *charmLogger) Debug(msg string, kv ...any) { c.l.Debug(msg, kv...) }
func (c *charmLogger) Info(msg string, kv ...any)  { c.l.Info(msg, kv...) }
func (c *charmLogger) Warn(msg string, kv ...any)  { c.l.Warn(msg, kv...) }
func (c *charmLogger) Error(msg string, kv ...any) { c.l.Error(msg, kv...) }
func (c *charmLogger) With(kv ...any) Logger {
	return &charmLogger{l: c.l.With(kv...)}
}

// Config controls how NewLogger constructs a Logger.
type Config struct {
	Level  LogLevel
	Output io.Writer
	JSON   bool
}

// TestConfig returns a Config suitable for unit tests: debug level, output
// discarded unless the caller wants to inspect it.
func TestConfig() Config {
	return Config{Level: DebugLevel, Output: io.Discard}
}

// NewLogger builds a Logger from Config.
func NewLogger(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := charmlog.Options{
		ReportTimestamp: true,
		Formatter:       charmlog.TextFormatter,
	}
	if cfg.JSON {
		opts.Formatter = charmlog.JSONFormatter
	}
	l := charmlog.NewWithOptions(out, opts)
	l.SetLevel(cfg.Level.ToCharmLevel())
	return &charmLogger{l: l}
}

type ctxKey struct{}

// LoggerCtxKey is exported so tests can inject a bad value and assert the
// fallback path in FromContext.
var LoggerCtxKey = ctxKey{}

var defaultLogger = NewLogger(Config{Level: InfoLevel})

// ContextWithLogger returns a child context carrying l.
func ContextWithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, LoggerCtxKey, l)
}

// FromContext returns the logger carried by ctx, or a process-wide default
// logger if none is present or the value is of the wrong type.
func FromContext(ctx context.Context) Logger {
	if ctx == nil {
		return defaultLogger
	}
	if l, ok := ctx.Value(LoggerCtxKey).(Logger); ok && l != nil {
		return l
	}
	return defaultLogger
}
