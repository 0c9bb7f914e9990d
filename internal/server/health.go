package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HealthMonitor periodically runs a check and logs state transitions.
type HealthMonitor struct {
	name     string
	check    func(ctx context.Context) error
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	healthy bool
}

// NewHealthMonitor creates a monitor that runs check every interval.
//
// Precondition: check and logger must be non-nil; interval and timeout must be positive.
func NewHealthMonitor(name string, check func(ctx context.Context) error, interval, timeout time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		name:     name,
		check:    check,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		stop:     make(chan struct{}),
		healthy:  true,
	}
}

// Healthy reports the result of the most recent check.
func (m *HealthMonitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// Start runs checks until Stop is called.
func (m *HealthMonitor) Start() error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.probe()
		select {
		case <-m.stop:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop ends the check loop. It is safe to call more than once.
func (m *HealthMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *HealthMonitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	err := m.check(ctx)

	m.mu.Lock()
	was := m.healthy
	m.healthy = err == nil
	m.mu.Unlock()

	switch {
	case err != nil && was:
		m.logger.Error("dependency unhealthy", zap.String("dependency", m.name), zap.Error(err))
	case err == nil && !was:
		m.logger.Info("dependency recovered", zap.String("dependency", m.name))
	}
}
