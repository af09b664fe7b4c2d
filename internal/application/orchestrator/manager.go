package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/aescanero/shiptrack/pkg/ports"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcaster delivers tracking updates to an order's watchers
type Broadcaster interface {
	Broadcast(orderID domain.OrderID, update domain.TrackingUpdate) int
}

// Endpoints are the route endpoints of a fresh simulation
type Endpoints struct {
	Origin      domain.GeoPoint `json:"origin"`
	Destination domain.GeoPoint `json:"destination"`
}

// Manager drives polling for watched orders
type Manager struct {
	simulations ports.SimulationService
	orders      ports.OrderStore
	eventBus    ports.EventBus
	metrics     ports.MetricsCollector
	validator   *Validator
	logger      *zap.Logger
	now         func() time.Time

	broadcasterMu sync.RWMutex
	broadcaster   Broadcaster

	mu         sync.Mutex
	pollers    map[domain.OrderID]*poller
	finalizing map[domain.OrderID]finalizeState

	// Configuration
	pollInterval time.Duration
	callTimeout  time.Duration
}

// finalizeState tracks delivery handling of an order
type finalizeState int

const (
	finalizeRunning finalizeState = iota + 1
	finalizeDiscardPending
)

// poller holds state for a single polled order
type poller struct {
	orderID   domain.OrderID
	ctx       context.Context
	cancel    context.CancelFunc
	completed bool
}

// Config holds manager dependencies and tuning
type Config struct {
	Simulations  ports.SimulationService
	Orders       ports.OrderStore
	EventBus     ports.EventBus
	Metrics      ports.MetricsCollector
	Validator    *Validator
	Logger       *zap.Logger
	PollInterval time.Duration
	CallTimeout  time.Duration
	Clock        func() time.Time
}

// NewManager creates a new tracking manager
func NewManager(cfg *Config) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	v := cfg.Validator
	if v == nil {
		v = NewValidator()
	}

	return &Manager{
		simulations:  cfg.Simulations,
		orders:       cfg.Orders,
		eventBus:     cfg.EventBus,
		metrics:      cfg.Metrics,
		validator:    v,
		logger:       cfg.Logger,
		now:          clock,
		pollers:      make(map[domain.OrderID]*poller),
		finalizing:   make(map[domain.OrderID]finalizeState),
		pollInterval: cfg.PollInterval,
		callTimeout:  cfg.CallTimeout,
	}
}

// SetBroadcaster attaches the component that fans updates out to watchers
func (m *Manager) SetBroadcaster(b Broadcaster) {
	m.broadcasterMu.Lock()
	defer m.broadcasterMu.Unlock()
	m.broadcaster = b
}

// BeginOrResume starts a fresh simulation when route is given and resumes
// an existing one otherwise.
func (m *Manager) BeginOrResume(ctx context.Context, orderID domain.OrderID, route *Endpoints, cfg *domain.SimulationConfig) (*domain.ShipmentSnapshot, error) {
	if route != nil {
		return m.Begin(ctx, orderID, *route, cfg)
	}
	return m.Resume(ctx, orderID)
}

// Begin creates a simulation for orderID and starts polling it. The
// returned snapshot is nil when the engine could not be read right after
// creation; the first poll tick delivers it instead.
func (m *Manager) Begin(ctx context.Context, orderID domain.OrderID, route Endpoints, cfg *domain.SimulationConfig) (*domain.ShipmentSnapshot, error) {
	if err := m.validator.ValidateBegin(orderID, route, cfg); err != nil {
		return nil, err
	}

	if err := m.simulations.Create(ctx, orderID, route.Origin, route.Destination, cfg); err != nil {
		m.logger.Warn("failed to start simulation",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to start simulation: %w", err)
	}
	m.forgetFinalize(orderID)

	if err := m.orders.AppendMilestone(ctx, domain.Milestone{
		OrderID:   orderID,
		Status:    domain.StatusPacking,
		Location:  route.Origin,
		Note:      "tracking started",
		ReachedAt: m.now(),
	}); err != nil {
		m.logger.Warn("failed to append start milestone",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}

	m.startPolling(orderID)
	m.publish(ctx, ports.EventTrackingStarted, orderID, map[string]interface{}{
		"origin":      route.Origin,
		"destination": route.Destination,
	})

	m.logger.Info("tracking started",
		zap.String("order_id", orderID.String()),
		zap.String("origin", route.Origin.String()),
		zap.String("destination", route.Destination.String()))

	snap, err := m.read(ctx, orderID)
	if err != nil {
		m.logger.Debug("no snapshot after start",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		return nil, nil
	}
	return snap, nil
}

// Resume looks up an existing run for orderID and starts polling it
// without restarting the simulation. It fails with
// domain.ErrMissingRouteEndpoints when no run exists. When the engine
// cannot be reached polling starts anyway and the snapshot is nil.
func (m *Manager) Resume(ctx context.Context, orderID domain.OrderID) (*domain.ShipmentSnapshot, error) {
	if err := m.validator.ValidateOrderID(orderID); err != nil {
		return nil, err
	}

	snap, err := m.read(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no simulation for order %s", domain.ErrMissingRouteEndpoints, orderID)
		}
		// The engine is unreachable, not the run missing. Poll through the
		// outage so the watcher gets updates once the engine answers.
		m.logger.Warn("failed to read simulation on resume",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		m.startPolling(orderID)
		return nil, nil
	}

	if snap.Delivered() {
		// The run finished while nobody was polling it.
		m.finalize(ctx, orderID, snap)
		return snap, nil
	}

	if m.startPolling(orderID) {
		m.publish(ctx, ports.EventTrackingResumed, orderID, map[string]interface{}{
			"progress": snap.Progress,
		})
		m.logger.Info("tracking resumed",
			zap.String("order_id", orderID.String()),
			zap.Float64("progress", snap.Progress))
	}

	return snap, nil
}

// Snapshot reads the current snapshot without touching polling state
func (m *Manager) Snapshot(ctx context.Context, orderID domain.OrderID) (*domain.ShipmentSnapshot, error) {
	return m.read(ctx, orderID)
}

// Cancel stops polling and discards the run without marking the order
// delivered.
func (m *Manager) Cancel(ctx context.Context, orderID domain.OrderID) error {
	m.StopPollingFor(orderID)

	if err := m.simulations.Delete(ctx, orderID); err != nil {
		return fmt.Errorf("failed to delete simulation: %w", err)
	}

	m.logger.Info("tracking cancelled", zap.String("order_id", orderID.String()))
	return nil
}

// StopPollingFor cancels polling for orderID. Safe to call repeatedly.
func (m *Manager) StopPollingFor(orderID domain.OrderID) {
	m.mu.Lock()
	p, ok := m.pollers[orderID]
	if ok {
		delete(m.pollers, orderID)
	}
	active := len(m.pollers)
	m.mu.Unlock()

	if !ok {
		return
	}

	p.cancel()
	m.metrics.SetActivePollers(active)
	m.logger.Debug("polling stopped", zap.String("order_id", orderID.String()))
}

// IsPolling reports whether orderID is being polled
func (m *Manager) IsPolling(orderID domain.OrderID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pollers[orderID]
	return ok
}

// Shutdown stops polling for every order
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("shutting down tracking manager")

	m.mu.Lock()
	pollers := m.pollers
	m.pollers = make(map[domain.OrderID]*poller)
	m.mu.Unlock()

	for _, p := range pollers {
		p.cancel()
	}
	m.metrics.SetActivePollers(0)

	m.logger.Info("tracking manager shut down complete", zap.Int("stopped_pollers", len(pollers)))
	return nil
}

// startPolling registers a poller for orderID. It returns false when one
// is already running.
func (m *Manager) startPolling(orderID domain.OrderID) bool {
	m.mu.Lock()
	if _, ok := m.pollers[orderID]; ok {
		m.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{orderID: orderID, ctx: ctx, cancel: cancel}
	m.pollers[orderID] = p
	active := len(m.pollers)
	m.mu.Unlock()

	m.metrics.SetActivePollers(active)
	go m.poll(p)
	return true
}

// poll runs the fixed-interval poll loop for one order
func (m *Manager) poll(p *poller) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if done := m.pollOnce(p); done {
				return
			}
		}
	}
}

// pollOnce performs one tick. It returns true when polling should end.
func (m *Manager) pollOnce(p *poller) bool {
	if p.completed {
		return true
	}

	start := time.Now()
	snap, err := m.read(p.ctx, p.orderID)
	m.metrics.ObservePollLatency(time.Since(start))

	if p.ctx.Err() != nil {
		return true
	}

	if err != nil {
		reason := "engine_error"
		if errors.Is(err, domain.ErrNotFound) {
			reason = "not_found"
		} else if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		m.metrics.RecordPollFailure(reason)
		m.logger.Warn("poll tick failed",
			zap.String("order_id", p.orderID.String()),
			zap.String("reason", reason),
			zap.Error(err))
		return false
	}

	update := domain.NewTrackingUpdate(snap, m.now())
	m.broadcast(p.orderID, update)

	if snap.Delivered() {
		p.completed = true
		m.finalize(p.ctx, p.orderID, snap)
		return true
	}

	return false
}

// finalize marks the order delivered, records the terminal milestone, stops
// polling and discards the run.
func (m *Manager) finalize(ctx context.Context, orderID domain.OrderID, snap *domain.ShipmentSnapshot) {
	retry, ok := m.claimFinalize(orderID)
	if !ok {
		return
	}

	// Persistence must not be cut short by StopPollingFor cancelling ctx.
	ctx = context.WithoutCancel(ctx)

	if !retry {
		m.persistDelivery(ctx, orderID, snap)
	}

	m.StopPollingFor(orderID)

	simCtx, cancel := m.callContext(ctx)
	err := m.simulations.Delete(simCtx, orderID)
	cancel()
	discarded := err == nil || errors.Is(err, domain.ErrNotFound)
	if !discarded {
		m.logger.Error("failed to discard completed simulation",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}
	m.settleFinalize(orderID, discarded)

	if retry {
		m.logger.Info("completed simulation discarded",
			zap.String("order_id", orderID.String()),
			zap.Bool("discarded", discarded))
		return
	}

	m.metrics.RecordDelivery()
	m.publish(ctx, ports.EventShipmentDelivered, orderID, map[string]interface{}{
		"location":            snap.Location,
		"totalDistanceMeters": snap.TotalDistanceMeters,
		"plannedArrival":      snap.PlannedArrivalTimestamp,
	})

	m.logger.Info("order delivered",
		zap.String("order_id", orderID.String()),
		zap.Float64("total_distance_m", snap.TotalDistanceMeters))
}

// persistDelivery marks the order delivered and records the terminal milestone
func (m *Manager) persistDelivery(ctx context.Context, orderID domain.OrderID, snap *domain.ShipmentSnapshot) {
	at := m.now()

	storeCtx, cancel := m.callContext(ctx)
	if err := m.orders.MarkDelivered(storeCtx, orderID, at); err != nil {
		m.logger.Error("failed to mark order delivered",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}
	cancel()

	storeCtx, cancel = m.callContext(ctx)
	if err := m.orders.AppendMilestone(storeCtx, domain.Milestone{
		OrderID:   orderID,
		Status:    domain.StatusDelivered,
		Location:  snap.Location,
		Note:      "shipment arrived at destination",
		ReachedAt: at,
	}); err != nil {
		m.logger.Error("failed to append delivery milestone",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
	}
	cancel()
}

// claimFinalize reserves finalization of orderID for the caller. retry is
// true when the order was already persisted as delivered and only the
// run discard is outstanding.
func (m *Manager) claimFinalize(orderID domain.OrderID) (retry, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.finalizing[orderID] {
	case finalizeRunning:
		return false, false
	case finalizeDiscardPending:
		m.finalizing[orderID] = finalizeRunning
		return true, true
	}
	m.finalizing[orderID] = finalizeRunning
	return false, true
}

// settleFinalize ends a finalization. The claim is kept until the run has
// been discarded so a lingering completed run is never persisted twice.
func (m *Manager) settleFinalize(orderID domain.OrderID, discarded bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if discarded {
		delete(m.finalizing, orderID)
		return
	}
	m.finalizing[orderID] = finalizeDiscardPending
}

// forgetFinalize drops a pending discard once a new run replaced the old one
func (m *Manager) forgetFinalize(orderID domain.OrderID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalizing[orderID] == finalizeDiscardPending {
		delete(m.finalizing, orderID)
	}
}

func (m *Manager) read(ctx context.Context, orderID domain.OrderID) (*domain.ShipmentSnapshot, error) {
	callCtx, cancel := m.callContext(ctx)
	defer cancel()
	return m.simulations.Read(callCtx, orderID)
}

func (m *Manager) broadcast(orderID domain.OrderID, update domain.TrackingUpdate) {
	m.broadcasterMu.RLock()
	b := m.broadcaster
	m.broadcasterMu.RUnlock()

	if b == nil {
		return
	}
	b.Broadcast(orderID, update)
}

func (m *Manager) publish(ctx context.Context, eventType ports.EventType, orderID domain.OrderID, data map[string]interface{}) {
	if m.eventBus == nil {
		return
	}

	event := ports.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		OrderID:   orderID,
		Timestamp: m.now(),
		Data:      data,
	}

	if err := m.eventBus.Publish(ctx, ports.TrackingTopic, event); err != nil {
		m.logger.Error("failed to publish tracking event",
			zap.String("order_id", orderID.String()),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

func (m *Manager) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, m.callTimeout)
}
