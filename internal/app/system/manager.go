package system

import (
	"context"
	"fmt"
	"sync"

	"github.com/relayline/chathub/pkg/logger"
)

// Manager starts registered services in order and stops them in reverse.
type Manager struct {
	mu       sync.Mutex
	services []Service
	started  []Service
	log      *logger.Logger
}

// NewManager constructs a manager.
func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("system")
	}
	return &Manager{log: log}
}

// Register appends a service. Registration order is start order.
func (m *Manager) Register(svc Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, svc)
}

// Start starts all registered services. On failure, services already started
// are stopped before returning.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, svc := range m.services {
		m.log.WithField("service", svc.Name()).Info("starting service")
		if err := svc.Start(ctx); err != nil {
			m.stopLocked(ctx)
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		m.started = append(m.started, svc)
	}
	return nil
}

// Stop stops started services in reverse order. All services are stopped
// even when some report errors; the first error is returned.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked(ctx)
}

func (m *Manager) stopLocked(ctx context.Context) error {
	var firstErr error
	for i := len(m.started) - 1; i >= 0; i-- {
		svc := m.started[i]
		m.log.WithField("service", svc.Name()).Info("stopping service")
		if err := svc.Stop(ctx); err != nil {
			m.log.WithError(err).WithField("service", svc.Name()).Error("service stop failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("stop %s: %w", svc.Name(), err)
			}
		}
	}
	m.started = nil
	return firstErr
}
