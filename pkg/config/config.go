// Package config provides a layered configuration manager for the Weavr
// daemon: struct defaults, overlaid by an optional YAML file, overlaid by
// environment variables.
package config

import (
	"time"

	"github.com/openweavr/openweavr/engine/core"
)

// ServerConfig carries the HTTP gateway's listen settings. The engine
// itself never binds a socket; the section exists so the gateway and the
// daemon read one config file.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// StoreConfig controls the embedded sqlite store.
type StoreConfig struct {
	Path          string        `koanf:"path"`
	BusyTimeout   time.Duration `koanf:"busy_timeout"`
	WALEnabled    bool          `koanf:"wal_enabled"`
	StaleRunGrace time.Duration `koanf:"stale_run_grace"`
}

// SchedulerConfig controls the worker pool and cron catch-up.
type SchedulerConfig struct {
	PollInterval      time.Duration `koanf:"poll_interval"`
	MaxConcurrency    int           `koanf:"max_concurrency"`
	MaxAttempts       int           `koanf:"max_attempts"`
	RetryDelay        time.Duration `koanf:"retry_delay"`
	CatchUpWindow     time.Duration `koanf:"catch_up_window"`
	MaxCatchUpRuns    int           `koanf:"max_catch_up_runs"`
	CleanupInterval   time.Duration `koanf:"cleanup_interval"`
	CleanupDaysToKeep int           `koanf:"cleanup_days_to_keep"`
}

// WorkflowsConfig controls where workflow documents are loaded from.
type WorkflowsConfig struct {
	Dir   string `koanf:"dir"`
	Watch bool   `koanf:"watch"`
}

// WebSearchConfig controls the memory-source web_search provider fallback
// chain (Brave > Tavily > DuckDuckGo).
type WebSearchConfig struct {
	BraveAPIKey  string        `koanf:"brave_api_key"`
	TavilyAPIKey string        `koanf:"tavily_api_key"`
	Timeout      time.Duration `koanf:"timeout"`
}

// EmailConfig controls outbound SMTP for email.inbound-adjacent plugin use
// (not part of the core trigger path, which only receives inbound email).
type EmailConfig struct {
	SMTPHost   string `koanf:"smtp_host"`
	SMTPPort   int    `koanf:"smtp_port"`
	SMTPUser   string `koanf:"smtp_user"`
	SMTPPass   string `koanf:"smtp_pass"`
	SMTPSecure bool   `koanf:"smtp_secure"`
	From       string `koanf:"from"`
}

// AIConfig only carries credentials through for plugins; the engine never
// calls a model itself.
type AIConfig struct {
	OpenAIAPIKey    string `koanf:"openai_api_key"`
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
}

// Config is the full daemon configuration tree.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Workflows WorkflowsConfig `koanf:"workflows"`
	WebSearch WebSearchConfig `koanf:"web_search"`
	Email     EmailConfig     `koanf:"email"`
	AI        AIConfig        `koanf:"ai"`
	Timezone  string          `koanf:"timezone"`
}

// RedactedFields returns the config as a flat key-value list safe to pass
// to a structured logger: API keys and the SMTP password are masked via
// core.RedactSecret instead of printed in full.
func (c *Config) RedactedFields() []any {
	return []any{
		"store_path", c.Store.Path,
		"workflows_dir", c.Workflows.Dir,
		"timezone", c.Timezone,
		"openai_api_key", core.RedactSecret(c.AI.OpenAIAPIKey),
		"anthropic_api_key", core.RedactSecret(c.AI.AnthropicAPIKey),
		"brave_api_key", core.RedactSecret(c.WebSearch.BraveAPIKey),
		"tavily_api_key", core.RedactSecret(c.WebSearch.TavilyAPIKey),
		"smtp_pass", core.RedactSecret(c.Email.SMTPPass),
	}
}

// Default returns the baseline configuration: a 1s poll interval, 5
// concurrent runs, 3 queue attempts with a 5s backoff root, and a 24h/10
// run catch-up bound.
func Default() *Config {
	home, err := userHomeDir()
	if err != nil {
		home = "."
	}
	base := home + "/.weavr"
	return &Config{
		Server: ServerConfig{
			Host:    "127.0.0.1",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path:          base + "/scheduler.db",
			BusyTimeout:   5 * time.Second,
			WALEnabled:    true,
			StaleRunGrace: 5 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			PollInterval:      1 * time.Second,
			MaxConcurrency:    5,
			MaxAttempts:       3,
			RetryDelay:        5 * time.Second,
			CatchUpWindow:     24 * time.Hour,
			MaxCatchUpRuns:    10,
			CleanupInterval:   1 * time.Hour,
			CleanupDaysToKeep: 90,
		},
		Workflows: WorkflowsConfig{
			Dir:   base + "/workflows",
			Watch: false,
		},
		WebSearch: WebSearchConfig{
			Timeout: 15 * time.Second,
		},
		Timezone: "UTC",
	}
}
