package domain

import "time"

// Status is the customer-facing label derived from progress.
type Status string

const (
	StatusPacking   Status = "packing"
	StatusInTransit Status = "in transit"
	StatusDelivered Status = "delivered"
)

// StatusForProgress maps progress to a status label.
func StatusForProgress(progress float64) Status {
	switch {
	case progress <= 0:
		return StatusPacking
	case progress < 1:
		return StatusInTransit
	default:
		return StatusDelivered
	}
}

// TrackingUpdate is the payload pushed to watchers on every poll tick.
type TrackingUpdate struct {
	Location  GeoPoint `json:"location"`
	Timestamp int64    `json:"timestamp"`
	Status    Status   `json:"status"`
	Progress  float64  `json:"progress"`
}

// NewTrackingUpdate builds an update from a snapshot observed at now.
func NewTrackingUpdate(s *ShipmentSnapshot, now time.Time) TrackingUpdate {
	return TrackingUpdate{
		Location:  s.Location,
		Timestamp: now.UnixMilli(),
		Status:    StatusForProgress(s.Progress),
		Progress:  s.Progress,
	}
}

// Milestone is an entry in an order's tracking history.
type Milestone struct {
	OrderID   OrderID   `json:"orderId"`
	Status    Status    `json:"status"`
	Location  GeoPoint  `json:"location"`
	Note      string    `json:"note,omitempty"`
	ReachedAt time.Time `json:"reachedAt"`
}
