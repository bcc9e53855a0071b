package queue

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openweavr/openweavr/engine/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scheduler.db")
	s, err := store.Open(context.Background(), store.Config{Path: path, BusyTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *fakeExecutor) Execute(_ context.Context, run store.QueuedRun) (store.CompletedRun, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	now := time.Now().UTC()
	completed := store.CompletedRun{
		History: store.HistoryRecord{StartedAt: now, CompletedAt: now, Duration: time.Millisecond},
		Steps:   []store.RunStep{{RunID: run.ID, StepID: "a", Status: "completed"}},
	}
	if f.fail {
		return completed, fmt.Errorf("boom")
	}
	return completed, nil
}

func TestPool_SuccessfulRunReportsCompletion(t *testing.T) {
	t.Run("Should claim, execute, persist history and call onDone", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s := openTestStore(t)
		require.NoError(t, s.EnqueueRun(ctx, store.EnqueueInput{ID: "run-1", WorkflowName: "wf"}))

		var doneStatus store.HistoryStatus
		var once sync.Once
		doneCh := make(chan struct{})
		exec := &fakeExecutor{}
		pool := New(s, exec, Config{PollInterval: 10 * time.Millisecond, MaxConcurrency: 2, MaxAttempts: 3}, func(
			_, _ string, status store.HistoryStatus, _ string,
		) {
			doneStatus = status
			once.Do(func() { close(doneCh) })
		})

		go pool.Run(ctx)
		select {
		case <-doneCh:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for completion callback")
		}
		cancel()

		assert.Equal(t, store.HistoryStatusSuccess, doneStatus)
		rec, err := s.GetRunByID(context.Background(), "run-1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, store.HistoryStatusSuccess, rec.Status)
	})
}

func TestPool_FailedRunRetriesThenGivesUp(t *testing.T) {
	t.Run("Should reschedule up to maxAttempts then mark failed", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s := openTestStore(t)
		require.NoError(t, s.EnqueueRun(ctx, store.EnqueueInput{ID: "run-1", WorkflowName: "wf"}))

		var finalStatus atomic.Value
		doneCh := make(chan struct{})
		exec := &fakeExecutor{fail: true}
		pool := New(s, exec, Config{PollInterval: 5 * time.Millisecond, MaxConcurrency: 1, MaxAttempts: 2, RetryDelay: time.Millisecond}, func(
			_, _ string, status store.HistoryStatus, _ string,
		) {
			finalStatus.Store(status)
			close(doneCh)
		})

		go pool.Run(ctx)
		select {
		case <-doneCh:
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for terminal completion")
		}
		cancel()

		assert.Equal(t, store.HistoryStatusFailed, finalStatus.Load())
		assert.GreaterOrEqual(t, exec.calls, 2)
	})
}

func TestBackoffDelay(t *testing.T) {
	t.Run("Should double per attempt, rooted at base", func(t *testing.T) {
		base := 5 * time.Second
		assert.Equal(t, 5*time.Second, backoffDelay(base, 1))
		assert.Equal(t, 10*time.Second, backoffDelay(base, 2))
		assert.Equal(t, 20*time.Second, backoffDelay(base, 3))
	})
}
