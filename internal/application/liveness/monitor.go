package liveness

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reason explains why a monitor terminated its target
type Reason string

const (
	ReasonMissedAck  Reason = "missed_ack"
	ReasonPingFailed Reason = "ping_failed"
)

// Target is a connection that can be probed and terminated
type Target interface {
	ID() string
	// Ping sends a liveness probe.
	Ping() error
	// Terminate closes the connection.
	Terminate(reason Reason)
}

// Monitor probes a single connection on a fixed period
type Monitor struct {
	target   Target
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	running  bool
	stopped  bool
	awaiting bool
	stopCh   chan struct{}
}

// NewMonitor creates a new liveness monitor
func NewMonitor(target Target, interval time.Duration, logger *zap.Logger) *Monitor {
	return &Monitor{
		target:   target,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start starts probing. A stopped monitor cannot be restarted.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running || m.stopped {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.run()
}

// Stop cancels the probe timer. Safe to call from any goroutine, any
// number of times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
}

// Ack records that the target answered the outstanding probe
func (m *Monitor) Ack() {
	m.mu.Lock()
	m.awaiting = false
	m.mu.Unlock()
}

// Awaiting reports whether a probe is outstanding
func (m *Monitor) Awaiting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.awaiting
}

// run is the main probe loop
func (m *Monitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if alive := m.check(); !alive {
				return
			}
		}
	}
}

// check runs one probe period and reports whether the target is alive
func (m *Monitor) check() bool {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	missed := m.awaiting
	m.awaiting = true
	m.mu.Unlock()

	if missed {
		m.logger.Info("connection missed liveness probe",
			zap.String("connection_id", m.target.ID()))
		m.terminate(ReasonMissedAck)
		return false
	}

	if err := m.target.Ping(); err != nil {
		m.logger.Debug("failed to send liveness probe",
			zap.String("connection_id", m.target.ID()),
			zap.Error(err))
		m.terminate(ReasonPingFailed)
		return false
	}

	return true
}

func (m *Monitor) terminate(reason Reason) {
	m.Stop()
	m.target.Terminate(reason)
}
