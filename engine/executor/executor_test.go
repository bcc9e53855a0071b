package executor

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openweavr/openweavr/engine/registry"
	"github.com/openweavr/openweavr/engine/store"
)

func newTestExecutor(t *testing.T) (*Executor, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, RegisterBuiltins(reg))
	return New(reg, WebSearchConfig{}), reg
}

func runWorkflow(t *testing.T, e *Executor, content string, triggerData string) (store.CompletedRun, error) {
	t.Helper()
	return e.Execute(context.Background(), store.QueuedRun{
		ID:              "run-1",
		WorkflowName:    "wf",
		WorkflowContent: content,
		TriggerData:     triggerData,
	})
}

func TestExecutor_LinearDAG(t *testing.T) {
	t.Run("Should thread trigger data through a->b->c transforms", func(t *testing.T) {
		e, _ := newTestExecutor(t)
		content := `
name: linear
steps:
  - id: a
    action: transform
    config:
      template: "{{ trigger.x }}"
  - id: b
    action: transform
    depends_on: [a]
    config:
      template: "{{ steps.a }}!"
  - id: c
    action: transform
    depends_on: [b]
    config:
      template: "{{ steps.b }}?"
`
		completed, err := runWorkflow(t, e, content, `{"x":"hi"}`)
		require.NoError(t, err)

		byID := stepsByID(completed.Steps)
		assert.Equal(t, "completed", byID["a"].Status)
		assert.Equal(t, "completed", byID["b"].Status)
		assert.Equal(t, "completed", byID["c"].Status)
		assert.Contains(t, byID["a"].Output, `"hi"`)
		assert.Contains(t, byID["b"].Output, `"hi!"`)
		assert.Contains(t, byID["c"].Output, `"hi!?"`)
	})
}

func TestExecutor_DiamondWaveIsConcurrent(t *testing.T) {
	t.Run("Should start b and c within the same wave after a completes", func(t *testing.T) {
		e, reg := newTestExecutor(t)
		var bStart, cStart atomic.Int64
		require.NoError(t, reg.RegisterAction(&registry.ActionDescriptor{
			Name: "mark.b",
			Execute: func(registry.ActionContext) (any, error) {
				bStart.Store(time.Now().UnixNano())
				time.Sleep(20 * time.Millisecond)
				return "b", nil
			},
		}))
		require.NoError(t, reg.RegisterAction(&registry.ActionDescriptor{
			Name: "mark.c",
			Execute: func(registry.ActionContext) (any, error) {
				cStart.Store(time.Now().UnixNano())
				time.Sleep(20 * time.Millisecond)
				return "c", nil
			},
		}))

		content := `
name: diamond
steps:
  - id: a
    action: transform
    config:
      template: "go"
  - id: b
    action: mark.b
    depends_on: [a]
  - id: c
    action: mark.c
    depends_on: [a]
  - id: d
    action: transform
    depends_on: [b, c]
    config:
      template: "done"
`
		completed, err := runWorkflow(t, e, content, "")
		require.NoError(t, err)

		byID := stepsByID(completed.Steps)
		assert.Equal(t, "completed", byID["d"].Status)

		delta := bStart.Load() - cStart.Load()
		if delta < 0 {
			delta = -delta
		}
		assert.Less(t, delta, int64(10*time.Millisecond), "b and c should start within the same wave")
	})
}

func TestExecutor_RetryThenSucceed(t *testing.T) {
	t.Run("Should call the action exactly attempts times when it fails then succeeds", func(t *testing.T) {
		e, reg := newTestExecutor(t)
		var calls atomic.Int32
		require.NoError(t, reg.RegisterAction(&registry.ActionDescriptor{
			Name: "flaky.call",
			Execute: func(registry.ActionContext) (any, error) {
				n := calls.Add(1)
				if n < 3 {
					return nil, fmt.Errorf("transient failure #%d", n)
				}
				return map[string]any{"ok": true}, nil
			},
		}))

		content := `
name: retry
steps:
  - id: a
    action: flaky.call
    retry:
      attempts: 3
      delay_ms: 1
`
		completed, err := runWorkflow(t, e, content, "")
		require.NoError(t, err)

		byID := stepsByID(completed.Steps)
		assert.Equal(t, "completed", byID["a"].Status)
		assert.Equal(t, int32(3), calls.Load())
	})
}

func TestExecutor_StepFailureAbortsRun(t *testing.T) {
	t.Run("Should mark the run failed when a step exhausts its retries", func(t *testing.T) {
		e, reg := newTestExecutor(t)
		require.NoError(t, reg.RegisterAction(&registry.ActionDescriptor{
			Name: "always.fail",
			Execute: func(registry.ActionContext) (any, error) {
				return nil, fmt.Errorf("boom")
			},
		}))

		content := `
name: always-fails
steps:
  - id: a
    action: always.fail
`
		completed, err := runWorkflow(t, e, content, "")
		require.Error(t, err)

		byID := stepsByID(completed.Steps)
		assert.Equal(t, "failed", byID["a"].Status)
	})
}

func TestExecutor_UnknownActionFailsStep(t *testing.T) {
	t.Run("Should fail a step whose action has no registry entry", func(t *testing.T) {
		e, _ := newTestExecutor(t)
		content := `
name: unknown-action
steps:
  - id: a
    action: nonexistent.thing
`
		completed, err := runWorkflow(t, e, content, "")
		require.Error(t, err)
		byID := stepsByID(completed.Steps)
		assert.Equal(t, "failed", byID["a"].Status)
	})
}

func TestExecutor_ConditionBuiltinFalsySet(t *testing.T) {
	t.Run("Should treat empty, false and 0 strings as falsy", func(t *testing.T) {
		e, _ := newTestExecutor(t)
		content := `
name: condition
steps:
  - id: a
    action: condition
    config:
      if: "{{ trigger.flag }}"
`
		completed, err := runWorkflow(t, e, content, `{"flag":"0"}`)
		require.NoError(t, err)
		byID := stepsByID(completed.Steps)
		assert.Contains(t, byID["a"].Output, `"result":false`)
	})
}

func TestExecutor_MemoryBlocks(t *testing.T) {
	t.Run("Should expose composed block text under memory.blocks", func(t *testing.T) {
		e, _ := newTestExecutor(t)
		content := `
name: memory-blocks
memory:
  - id: notes
    dedupe: true
    sources:
      - id: first
        type: text
        text: "alpha"
      - id: second
        type: text
        text: "alpha"
steps:
  - id: use
    action: transform
    config:
      template: "{{ memory.blocks.notes }}"
`
		completed, err := runWorkflow(t, e, content, "")
		require.NoError(t, err)
		byID := stepsByID(completed.Steps)
		assert.Equal(t, "completed", byID["use"].Status)
		assert.Equal(t, 1, strings.Count(byID["use"].Output, "alpha"), "dedupe keeps only the first occurrence")
	})

	t.Run("Should see a dependency's output through a step source", func(t *testing.T) {
		e, _ := newTestExecutor(t)
		content := `
name: memory-step-source
memory:
  - id: carry
    sources:
      - id: from-a
        type: step
        step_id: a
steps:
  - id: a
    action: transform
    config:
      template: "{{ trigger.x }}"
  - id: b
    action: transform
    depends_on: [a]
    config:
      template: "carried: {{ memory.blocks.carry }}"
`
		completed, err := runWorkflow(t, e, content, `{"x":"hi"}`)
		require.NoError(t, err)
		byID := stepsByID(completed.Steps)
		assert.Contains(t, byID["b"].Output, "carried: hi")
	})

	t.Run("Should substitute an error marker for a failing source", func(t *testing.T) {
		e, _ := newTestExecutor(t)
		content := `
name: memory-bad-file
memory:
  - id: doc
    sources:
      - id: missing
        type: file
        path: /nonexistent/weavr-test-file
steps:
  - id: use
    action: transform
    config:
      template: "{{ memory.blocks.doc }}"
`
		completed, err := runWorkflow(t, e, content, "")
		require.NoError(t, err)
		byID := stepsByID(completed.Steps)
		assert.Contains(t, byID["use"].Output, "[memory:doc] Failed to load file source")
	})
}

func stepsByID(steps []store.RunStep) map[string]store.RunStep {
	out := make(map[string]store.RunStep, len(steps))
	for _, s := range steps {
		out[s.StepID] = s
	}
	return out
}
