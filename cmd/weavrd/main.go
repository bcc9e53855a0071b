// Command weavrd is the Weavr daemon entrypoint: it wires the store,
// plugin registry, trigger scheduler/manager, run queue worker pool and
// workflow executor together and runs until signaled to stop. The HTTP
// gateway binds to this engine through the exported trigger/callback
// surface; weavrd itself serves nothing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openweavr/openweavr/engine/core"
	"github.com/openweavr/openweavr/engine/executor"
	"github.com/openweavr/openweavr/engine/queue"
	"github.com/openweavr/openweavr/engine/registry"
	"github.com/openweavr/openweavr/engine/store"
	"github.com/openweavr/openweavr/engine/trigger"
	"github.com/openweavr/openweavr/pkg/config"
	"github.com/openweavr/openweavr/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "weavrd",
		Short: "Weavr workflow automation daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "path to config.yaml (default <home>/.weavr/config.yaml)")
	return root
}

func runDaemon(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.NewLogger(logger.Config{Level: logger.InfoLevel})
	ctx = logger.ContextWithLogger(ctx, log)

	applyEnvFallbacks(cfg, log)

	st, err := store.Open(ctx, store.Config{Path: cfg.Store.Path, BusyTimeout: cfg.Store.BusyTimeout})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if n, err := st.RecoverStaleRuns(ctx, cfg.Store.StaleRunGrace); err != nil {
		log.Error("recover stale runs failed", "error", err)
	} else if n > 0 {
		log.Info("recovered stale running rows", "count", n)
	}

	reg := registry.New()
	if err := executor.RegisterBuiltins(reg); err != nil {
		return fmt.Errorf("register builtin actions: %w", err)
	}
	// Built-in plugin and dynamic loaders register their action/trigger
	// descriptors here; the engine itself ships only the generic built-ins.

	exec := executor.New(reg, executor.WebSearchConfig{
		BraveAPIKey:  cfg.WebSearch.BraveAPIKey,
		TavilyAPIKey: cfg.WebSearch.TavilyAPIKey,
		Timeout:      cfg.WebSearch.Timeout,
	})

	mgr := trigger.NewManager(reg)
	sched := trigger.NewScheduler(st, reg, mgr, trigger.Config{
		WorkflowsDir:    cfg.Workflows.Dir,
		DefaultTimezone: cfg.Timezone,
		CatchUpWindow:   cfg.Scheduler.CatchUpWindow,
		MaxCatchUpRuns:  cfg.Scheduler.MaxCatchUpRuns,
		OnTriggered: func(workflowName, runID string) {
			log.Info("workflow run triggered", "workflow", workflowName, "run_id", runID)
		},
	})

	if err := sched.LoadAndSchedule(ctx); err != nil {
		return fmt.Errorf("load and schedule workflows: %w", err)
	}
	sched.Start()
	if cfg.Workflows.Watch {
		if err := sched.WatchWorkflowsDir(ctx); err != nil {
			log.Error("watch workflows dir failed", "error", err)
		}
	}

	pool := queue.New(st, exec, queue.Config{
		PollInterval:   cfg.Scheduler.PollInterval,
		MaxConcurrency: cfg.Scheduler.MaxConcurrency,
		MaxAttempts:    cfg.Scheduler.MaxAttempts,
		RetryDelay:     cfg.Scheduler.RetryDelay,
	}, func(workflowName, runID string, status store.HistoryStatus, runErr string) {
		log.Info("workflow run completed", "workflow", workflowName, "run_id", runID, "status", status, "error", runErr)
	})

	stopCleanup := startCleanupLoop(ctx, st, log, cfg.Scheduler.CleanupInterval, cfg.Scheduler.CleanupDaysToKeep)
	defer stopCleanup()

	log.Info("weavrd starting", cfg.RedactedFields()...)
	pool.Run(ctx)

	if err := sched.StopAll(); err != nil {
		log.Error("stop triggers failed", "error", err)
	}
	log.Info("weavrd stopped")
	return nil
}

// loadConfig layers Default() < config.yaml < WEAVR_-prefixed env vars.
func loadConfig(ctx context.Context, explicitPath string) (*config.Config, error) {
	path := explicitPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		path = filepath.Join(home, ".weavr", "config.yaml")
	}
	m := config.NewManager(config.NewService())
	return m.Load(ctx, config.NewDefaultProvider(), config.NewFileProvider(path), config.NewEnvProvider())
}

// applyEnvFallbacks fills credentials from the conventional plain
// environment variables (BRAVE_API_KEY, SMTP_PASS, ...), but only where
// the layered config left the field empty: config.yaml and WEAVR_* env
// always win. Every fallback actually applied is logged at Debug with its
// value masked via core.IsSensitiveKey/core.RedactSecret.
func applyEnvFallbacks(cfg *config.Config, log logger.Logger) {
	apply := func(field *string, envKey string) {
		if *field != "" {
			return
		}
		v := os.Getenv(envKey)
		if v == "" {
			return
		}
		*field = v
		shown := v
		if core.IsSensitiveKey(envKey) {
			shown = core.RedactSecret(v)
		}
		log.Debug("applied env fallback", "var", envKey, "value", shown)
	}

	apply(&cfg.WebSearch.BraveAPIKey, "BRAVE_API_KEY")
	apply(&cfg.WebSearch.TavilyAPIKey, "TAVILY_API_KEY")
	apply(&cfg.AI.OpenAIAPIKey, "OPENAI_API_KEY")
	apply(&cfg.AI.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	apply(&cfg.Email.From, "EMAIL_FROM")
	apply(&cfg.Email.SMTPHost, "SMTP_HOST")
	apply(&cfg.Email.SMTPUser, "SMTP_USER")
	apply(&cfg.Email.SMTPPass, "SMTP_PASS")
}

// startCleanupLoop periodically deletes history/token rows older than
// daysToKeep.
func startCleanupLoop(ctx context.Context, st *store.Store, log logger.Logger, interval time.Duration, daysToKeep int) func() {
	if interval <= 0 {
		interval = time.Hour
	}
	stopCh := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				n, err := st.CleanupOldData(ctx, daysToKeep)
				if err != nil {
					log.Error("cleanup old data failed", "error", err)
					continue
				}
				if n > 0 {
					log.Info("cleaned up old history data", "rows", n)
				}
			}
		}
	}()
	return func() { close(stopCh) }
}
