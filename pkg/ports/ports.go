package ports

import (
	"context"
	"net/http"
	"time"

	"github.com/aescanero/shiptrack/pkg/domain"
)

// Router resolves a road route between two points.
type Router interface {
	Route(ctx context.Context, origin, destination domain.GeoPoint) ([]domain.GeoPoint, error)
}

// SimulationService is the engine control surface used by the orchestrator.
// Read and Delete return domain.ErrNotFound when no run exists.
type SimulationService interface {
	Create(ctx context.Context, orderID domain.OrderID, origin, destination domain.GeoPoint, cfg *domain.SimulationConfig) error
	Read(ctx context.Context, orderID domain.OrderID) (*domain.ShipmentSnapshot, error)
	Delete(ctx context.Context, orderID domain.OrderID) error
}

// RunStore persists simulation runs so an engine restart can restore them.
type RunStore interface {
	Save(ctx context.Context, run *domain.SimulationRun) error
	Load(ctx context.Context, orderID domain.OrderID) (*domain.SimulationRun, error)
	Delete(ctx context.Context, orderID domain.OrderID) error
	List(ctx context.Context) ([]domain.OrderID, error)
}

// OrderStore is the order-persistence collaborator.
type OrderStore interface {
	MarkDelivered(ctx context.Context, orderID domain.OrderID, at time.Time) error
	AppendMilestone(ctx context.Context, m domain.Milestone) error
	Milestones(ctx context.Context, orderID domain.OrderID) ([]domain.Milestone, error)
}

// EventType names a tracking event.
type EventType string

const (
	EventTrackingStarted   EventType = "tracking.started"
	EventTrackingResumed   EventType = "tracking.resumed"
	EventShipmentDelivered EventType = "shipment.delivered"
)

// TrackingTopic is the topic tracking events are published on.
const TrackingTopic = "tracking.events"

// Event is a message on the event bus.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	OrderID   domain.OrderID         `json:"orderId"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler consumes events delivered by a subscription.
type EventHandler func(ctx context.Context, event Event) error

// EventBus publishes and subscribes to tracking events.
type EventBus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// MetricsCollector records tracking metrics.
type MetricsCollector interface {
	SetActiveSimulations(count int)
	RecordSimulationStarted(status string)
	RecordSimulationCompleted()
	SetActivePollers(count int)
	RecordPollFailure(reason string)
	ObservePollLatency(duration time.Duration)
	RecordDelivery()
	SetWatchedOrders(count int)
	RecordBroadcast(delivered, skipped int)
	RecordFrameDropped()
	SetConnections(count int)
	RecordDeadConnection()
}

// Identity is the principal bound to an accepted connection.
type Identity struct {
	Subject string
	Role    string
}

// SessionValidator binds a connection to an identity and decides which
// orders it may watch.
type SessionValidator interface {
	Validate(ctx context.Context, r *http.Request) (*Identity, error)
	CanWatch(ctx context.Context, identity *Identity, orderID domain.OrderID) (bool, error)
}
