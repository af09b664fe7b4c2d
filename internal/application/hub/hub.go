package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/shiptrack/internal/application/orchestrator"
	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/aescanero/shiptrack/pkg/ports"
	"go.uber.org/zap"
)

// Tracker is the part of the tracking orchestrator the hub drives
type Tracker interface {
	Resume(ctx context.Context, orderID domain.OrderID) (*domain.ShipmentSnapshot, error)
	Snapshot(ctx context.Context, orderID domain.OrderID) (*domain.ShipmentSnapshot, error)
	StopPollingFor(orderID domain.OrderID)
}

// Watcher is a connection that receives tracking updates
type Watcher interface {
	ID() string
	// Ready reports whether the connection is open.
	Ready() bool
	// Send queues a frame without blocking.
	Send(frame []byte) error
}

// Hub maps orders to the connections watching them
type Hub struct {
	tracker Tracker
	metrics ports.MetricsCollector
	logger  *zap.Logger
	now     func() time.Time

	mu     sync.RWMutex
	orders map[domain.OrderID]map[string]Watcher
	conns  map[string]map[domain.OrderID]struct{}
}

// New creates a new subscription hub
func New(tracker Tracker, metrics ports.MetricsCollector, logger *zap.Logger) *Hub {
	return &Hub{
		tracker: tracker,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		orders:  make(map[domain.OrderID]map[string]Watcher),
		conns:   make(map[string]map[domain.OrderID]struct{}),
	}
}

// Subscribe adds w to the watchers of orderID. The first watcher of an
// order makes the tracker resume observing it; later watchers get the
// current snapshot. A nil update with a nil error means no snapshot is
// available yet, including when no simulation exists for the order. Only
// an invalid order ID is rejected.
func (h *Hub) Subscribe(ctx context.Context, w Watcher, orderID domain.OrderID) (*domain.TrackingUpdate, error) {
	h.mu.Lock()
	set, exists := h.orders[orderID]
	if exists {
		if _, already := set[w.ID()]; already {
			h.mu.Unlock()
			return h.snapshot(ctx, orderID)
		}
	}
	if !exists {
		set = make(map[string]Watcher)
		h.orders[orderID] = set
	}
	set[w.ID()] = w
	h.index(w.ID(), orderID)
	watched := len(h.orders)
	h.mu.Unlock()

	h.metrics.SetWatchedOrders(watched)
	h.logger.Debug("watcher subscribed",
		zap.String("connection_id", w.ID()),
		zap.String("order_id", orderID.String()),
		zap.Bool("first", !exists))

	if exists {
		return h.snapshot(ctx, orderID)
	}

	snap, err := h.tracker.Resume(ctx, orderID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrInvalidRequest) {
			h.detach(w.ID(), orderID)
			return nil, fmt.Errorf("failed to resume tracking: %w", err)
		}
		// No position yet. The watcher stays subscribed and receives
		// updates once tracking for the order starts.
		h.logger.Info("no simulation to resume yet",
			zap.String("connection_id", w.ID()),
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		snap = nil
	}

	// Everyone may have left while Resume was running.
	h.mu.RLock()
	_, still := h.orders[orderID]
	h.mu.RUnlock()
	if !still {
		h.tracker.StopPollingFor(orderID)
	}

	return h.updateFrom(snap), nil
}

// Unsubscribe removes w from the watchers of orderID. When the set becomes
// empty the tracker stops polling before Unsubscribe returns.
func (h *Hub) Unsubscribe(w Watcher, orderID domain.OrderID) {
	h.mu.Lock()
	emptied := h.remove(w.ID(), orderID)
	watched := len(h.orders)
	if emptied {
		// Stop under the lock so no broadcast can observe the order after
		// the last watcher leaves.
		h.tracker.StopPollingFor(orderID)
	}
	h.mu.Unlock()

	h.metrics.SetWatchedOrders(watched)
	h.logger.Debug("watcher unsubscribed",
		zap.String("connection_id", w.ID()),
		zap.String("order_id", orderID.String()),
		zap.Bool("last", emptied))
}

// Broadcast sends update to every ready watcher of orderID. Closed watchers
// are skipped and left in place for CleanupConnection. It returns the
// number of watchers that accepted the frame.
func (h *Hub) Broadcast(orderID domain.OrderID, update domain.TrackingUpdate) int {
	frame, err := json.Marshal(domain.NewUpdateFrame(orderID, update))
	if err != nil {
		h.logger.Error("failed to encode update frame",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	set, ok := h.orders[orderID]
	if !ok {
		return 0
	}

	delivered, skipped := 0, 0
	for id, w := range set {
		if !w.Ready() {
			skipped++
			continue
		}
		if err := w.Send(frame); err != nil {
			skipped++
			h.logger.Debug("failed to deliver update",
				zap.String("connection_id", id),
				zap.String("order_id", orderID.String()),
				zap.Error(err))
			continue
		}
		delivered++
	}

	h.metrics.RecordBroadcast(delivered, skipped)
	return delivered
}

// CleanupConnection removes the connection from every order it watches.
// It is idempotent.
func (h *Hub) CleanupConnection(w Watcher) {
	h.mu.Lock()
	orders := h.conns[w.ID()]
	var emptied []domain.OrderID
	for orderID := range orders {
		if h.remove(w.ID(), orderID) {
			emptied = append(emptied, orderID)
		}
	}
	for _, orderID := range emptied {
		h.tracker.StopPollingFor(orderID)
	}
	watched := len(h.orders)
	h.mu.Unlock()

	h.metrics.SetWatchedOrders(watched)
	if len(orders) > 0 {
		h.logger.Debug("connection cleaned up",
			zap.String("connection_id", w.ID()),
			zap.Int("orders", len(orders)),
			zap.Int("stopped", len(emptied)))
	}
}

// Watchers returns the number of watchers of orderID
func (h *Hub) Watchers(orderID domain.OrderID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.orders[orderID])
}

// WatchedOrders returns the number of orders with at least one watcher
func (h *Hub) WatchedOrders() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.orders)
}

// detach drops a subscription that failed to start
func (h *Hub) detach(connID string, orderID domain.OrderID) {
	h.mu.Lock()
	h.remove(connID, orderID)
	watched := len(h.orders)
	h.mu.Unlock()
	h.metrics.SetWatchedOrders(watched)
}

// index records orderID under connID. Caller holds h.mu.
func (h *Hub) index(connID string, orderID domain.OrderID) {
	orders, ok := h.conns[connID]
	if !ok {
		orders = make(map[domain.OrderID]struct{})
		h.conns[connID] = orders
	}
	orders[orderID] = struct{}{}
}

// remove deletes one subscription and reports whether the order's set
// became empty. Caller holds h.mu.
func (h *Hub) remove(connID string, orderID domain.OrderID) bool {
	if orders, ok := h.conns[connID]; ok {
		delete(orders, orderID)
		if len(orders) == 0 {
			delete(h.conns, connID)
		}
	}

	set, ok := h.orders[orderID]
	if !ok {
		return false
	}
	if _, member := set[connID]; !member {
		return false
	}
	delete(set, connID)
	if len(set) > 0 {
		return false
	}
	delete(h.orders, orderID)
	return true
}

func (h *Hub) snapshot(ctx context.Context, orderID domain.OrderID) (*domain.TrackingUpdate, error) {
	snap, err := h.tracker.Snapshot(ctx, orderID)
	if err != nil {
		// The next poll tick delivers the state instead.
		h.logger.Debug("no snapshot for late subscriber",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		return nil, nil
	}
	return h.updateFrom(snap), nil
}

func (h *Hub) updateFrom(snap *domain.ShipmentSnapshot) *domain.TrackingUpdate {
	if snap == nil {
		return nil
	}
	update := domain.NewTrackingUpdate(snap, h.now())
	return &update
}
