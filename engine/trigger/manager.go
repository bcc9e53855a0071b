// Package trigger owns the lifecycle of plugin-defined trigger sources
// (long-poll loops, message-bus subscribers) and the scheduler that loads
// workflow files, installs cron jobs, performs missed-tick catch-up, and
// dispatches inbound webhook/GitHub events into the run queue.
package trigger

import (
	"context"
	"fmt"
	"sync"

	"github.com/openweavr/openweavr/engine/registry"
	"github.com/openweavr/openweavr/pkg/logger"
)

// Manager owns plugin trigger lifecycles keyed by a stable schedule id
// (name::triggerType::index).
type Manager struct {
	mu       sync.Mutex
	handles  map[string]registry.CleanupFunc
	registry *registry.Registry
	log      logger.Logger
}

func NewManager(reg *registry.Registry) *Manager {
	return &Manager{
		handles:  make(map[string]registry.CleanupFunc),
		registry: reg,
		log:      logger.FromContext(context.Background()),
	}
}

// SetupTrigger installs a plugin trigger for id, tearing down any prior
// handle for the same id first so re-registration is idempotent.
func (m *Manager) SetupTrigger(
	ctx context.Context,
	id string,
	triggerType string,
	config map[string]any,
	emit registry.EmitFunc,
) error {
	desc, ok := m.registry.GetTrigger(triggerType)
	if !ok {
		return fmt.Errorf("unknown trigger %q", triggerType)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cleanup, exists := m.handles[id]; exists && cleanup != nil {
		if err := cleanup(); err != nil {
			m.log.Warn("cleanup of previous trigger handle failed", "id", id, "error", err)
		}
		delete(m.handles, id)
	}

	cleanup, err := desc.Setup(ctx, config, emit)
	if err != nil {
		return fmt.Errorf("setup trigger %q: %w", id, err)
	}
	m.handles[id] = cleanup
	return nil
}

// StopTrigger tears down the handle for id, if any.
func (m *Manager) StopTrigger(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cleanup, exists := m.handles[id]
	if !exists {
		return nil
	}
	delete(m.handles, id)
	if cleanup == nil {
		return nil
	}
	return cleanup()
}

// StopAll tears down every registered trigger handle.
func (m *Manager) StopAll() error {
	m.mu.Lock()
	handles := m.handles
	m.handles = make(map[string]registry.CleanupFunc)
	m.mu.Unlock()

	var firstErr error
	for id, cleanup := range handles {
		if cleanup == nil {
			continue
		}
		if err := cleanup(); err != nil {
			m.log.Error("cleanup failed during stopAll", "id", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
