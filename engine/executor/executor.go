// Package executor runs a single claimed workflow run to completion: it
// assembles memory blocks, computes readiness waves over the step graph,
// interpolates each step's config, dispatches to the resolved action, and
// enforces per-step retry.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/openweavr/openweavr/engine/core"
	"github.com/openweavr/openweavr/engine/registry"
	"github.com/openweavr/openweavr/engine/store"
	"github.com/openweavr/openweavr/engine/workflow"
	"github.com/openweavr/openweavr/pkg/logger"
	"github.com/openweavr/openweavr/pkg/tplengine"
)

// urlSourceUserAgent is the User-Agent sent on memory `url` source fetches.
const urlSourceUserAgent = "Weavr/1.0"

// WebSearchConfig configures the memory `web_search` source's provider
// fallback chain.
type WebSearchConfig struct {
	BraveAPIKey  string
	TavilyAPIKey string
	Timeout      time.Duration
}

// Hooks carry the gateway's step-lifecycle callbacks for WebSocket
// broadcast. All fields are optional.
type Hooks struct {
	OnStepStart    func(runID, stepID string)
	OnStepComplete func(runID, stepID, status string)
	OnLog          func(runID, level, stepID, message string)
}

// Executor drives a single claimed run to completion and satisfies
// engine/queue.Executor.
type Executor struct {
	registry     *registry.Registry
	tpl          *tplengine.Engine
	http         *resty.Client
	log          logger.Logger
	webSearchCfg WebSearchConfig
	hooks        Hooks
}

// SetHooks installs the gateway callbacks. Call before the first Execute;
// the hooks are read concurrently by step goroutines afterwards.
func (e *Executor) SetHooks(h Hooks) { e.hooks = h }

// New builds an Executor. reg must already have the built-in actions
// registered (see RegisterBuiltins) before any run is executed.
func New(reg *registry.Registry, webSearchCfg WebSearchConfig) *Executor {
	if webSearchCfg.Timeout <= 0 {
		webSearchCfg.Timeout = 15 * time.Second
	}
	return &Executor{
		registry:     reg,
		tpl:          tplengine.NewEngine(),
		http:         resty.New().SetTimeout(30 * time.Second),
		log:          logger.FromContext(context.Background()),
		webSearchCfg: webSearchCfg,
	}
}

// Execute parses run's embedded workflow content, runs its DAG to
// completion, and returns the history/log/step rows for persistence.
// The returned error is non-nil whenever the run's overall status
// would be "failed" — the caller (engine/queue.Pool) uses it to decide
// between queue-level retry and a terminal failed transition.
func (e *Executor) Execute(ctx context.Context, run store.QueuedRun) (store.CompletedRun, error) {
	startedAt := time.Now().UTC()

	wf, err := workflow.Parse(run.WorkflowContent, "")
	if err != nil {
		return e.abortedRun(startedAt, fmt.Errorf("parse workflow: %w", err))
	}
	if wf.Name == "" {
		wf.Name = run.WorkflowName
	}

	var triggerData map[string]any
	if run.TriggerData != "" {
		if err := json.Unmarshal([]byte(run.TriggerData), &triggerData); err != nil {
			return e.abortedRun(startedAt, fmt.Errorf("unmarshal trigger data: %w", err))
		}
	}
	if triggerData == nil {
		triggerData = map[string]any{}
	}

	rs := newRunState(wf.Steps)
	deps := make(map[string][]string, len(wf.Steps))
	stepsByID := make(map[string]workflow.Step, len(wf.Steps))
	for _, s := range wf.Steps {
		deps[s.ID] = s.DependsOn
		stepsByID[s.ID] = s
	}

	envCtx := wf.Env.AsMap()
	mem := newMemoryAssembler(e, wf.Memory)

	runErr := e.runWaves(ctx, run.ID, stepsByID, rs, deps, triggerData, envCtx, mem)

	completedAt := time.Now().UTC()
	completed := store.CompletedRun{
		History: store.HistoryRecord{
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			Duration:    completedAt.Sub(startedAt),
			CreatedAt:   completedAt,
		},
		Logs:  rs.storeLogs(run.ID),
		Steps: rs.storeSteps(run.ID),
	}
	return completed, runErr
}

// runWaves loops computing the ready set, executing it concurrently, and
// waiting for the whole wave to finish before recomputing readiness.
func (e *Executor) runWaves(
	ctx context.Context,
	runID string,
	stepsByID map[string]workflow.Step,
	rs *runState,
	deps map[string][]string,
	triggerData map[string]any,
	envCtx map[string]any,
	mem *memoryAssembler,
) error {
	for rs.hasPending() {
		ready := rs.readySteps(deps)
		if len(ready) == 0 {
			// Defensive: the validator's acyclic check should make this
			// unreachable, but a hard failure beats an infinite loop if
			// it ever is.
			return core.NewError(
				fmt.Errorf("no ready steps remain with pending steps outstanding"),
				core.CodeCircularDependency,
				nil,
			)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range ready {
			step := stepsByID[id]
			g.Go(func() error {
				e.executeStep(gctx, runID, rs, step, triggerData, envCtx, mem)
				return nil
			})
		}
		_ = g.Wait()

		if rs.anyFailed() {
			if msg := rs.firstError(); msg != "" {
				return core.NewError(fmt.Errorf("%s", msg), core.CodeStepFailed, nil)
			}
			return core.NewError(fmt.Errorf("a step failed"), core.CodeStepFailed, nil)
		}
	}
	return nil
}

// executeStep interpolates step's config, dispatches to its resolved
// action with per-step retry, and records the outcome in rs. It never
// returns an error directly — failures are recorded on rs and surfaced by
// runWaves after the wave completes, so one step's panic-free failure
// never stops its wave-siblings mid-flight.
func (e *Executor) executeStep(
	ctx context.Context,
	runID string,
	rs *runState,
	step workflow.Step,
	triggerData map[string]any,
	envCtx map[string]any,
	mem *memoryAssembler,
) {
	rs.markRunning(step.ID)
	if e.hooks.OnStepStart != nil {
		e.hooks.OnStepStart(runID, step.ID)
	}
	start := time.Now()

	runCtx := buildContext(triggerData, envCtx, map[string]any{}, rs.completedOutputs())
	if mem.neededBy(step.Config) {
		runCtx["memory"] = mem.assemble(ctx, runCtx)
	}
	config, _ := e.tpl.Interpolate(step.Config, runCtx).(map[string]any)

	desc, ok := e.registry.GetAction(step.Action)
	if !ok {
		err := core.NewError(
			fmt.Errorf("unknown action %q", step.Action),
			core.CodeUnknownAction,
			map[string]any{"step": step.ID},
		)
		e.failStep(runID, rs, step.ID, err, time.Since(start))
		return
	}

	var output any
	attempts := step.Retry.Attempts
	delay := time.Duration(step.Retry.DelayMS) * time.Millisecond
	err := callWithRetry(ctx, attempts, delay, func() error {
		out, execErr := desc.Execute(registry.ActionContext{Context: ctx, Config: config, Run: runCtx})
		if execErr != nil {
			return execErr
		}
		output = out
		return nil
	})

	duration := time.Since(start)
	if err != nil {
		stepErr := core.NewError(err, core.CodeStepFailed, map[string]any{"step": step.ID})
		e.failStep(runID, rs, step.ID, stepErr, duration)
		return
	}
	rs.complete(step.ID, output, duration)
	if e.hooks.OnStepComplete != nil {
		e.hooks.OnStepComplete(runID, step.ID, string(stepCompleted))
	}
}

// failStep records a step failure and fans it out to the log buffer and
// the gateway hooks.
func (e *Executor) failStep(runID string, rs *runState, stepID string, err error, duration time.Duration) {
	rs.fail(stepID, err, duration)
	rs.log("error", stepID, err.Error(), time.Now())
	if e.hooks.OnLog != nil {
		e.hooks.OnLog(runID, "error", stepID, err.Error())
	}
	if e.hooks.OnStepComplete != nil {
		e.hooks.OnStepComplete(runID, stepID, string(stepFailed))
	}
}

// abortedRun builds a terminal CompletedRun for failures that occur before
// any step can run (parse/unmarshal errors).
func (e *Executor) abortedRun(startedAt time.Time, err error) (store.CompletedRun, error) {
	completedAt := time.Now().UTC()
	return store.CompletedRun{
		History: store.HistoryRecord{
			StartedAt:   startedAt,
			CompletedAt: completedAt,
			Duration:    completedAt.Sub(startedAt),
			CreatedAt:   completedAt,
		},
	}, err
}
