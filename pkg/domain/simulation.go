package domain

// Default simulation parameters used when a caller supplies no config.
const (
	DefaultSpeedKmh         = 40.0
	DefaultTickIntervalMs   = 2000
	DefaultVarianceFraction = 0.1

	// MinTickIntervalMs is the finest subdivision a caller may request.
	MinTickIntervalMs = 100
	// MaxEventsPerRun caps the precomputed trajectory size. Longer runs
	// are subdivided more coarsely than requested.
	MaxEventsPerRun = 50000
)

// SimulationConfig tunes how a run is generated.
type SimulationConfig struct {
	SpeedKmh         float64 `json:"speedKmh" validate:"gt=0"`
	TickIntervalMs   int64   `json:"tickIntervalMs" validate:"gte=100"`
	VarianceFraction float64 `json:"varianceFraction" validate:"gte=0,lte=1"`
}

// DefaultSimulationConfig returns the defaults.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		SpeedKmh:         DefaultSpeedKmh,
		TickIntervalMs:   DefaultTickIntervalMs,
		VarianceFraction: DefaultVarianceFraction,
	}
}

// WaypointEvent is one precomputed, time-indexed position of a run.
type WaypointEvent struct {
	Position           GeoPoint `json:"position"`
	TargetTimestamp    int64    `json:"targetTimestamp"`
	CumulativeProgress float64  `json:"cumulativeProgress"`
}

// RunState is the lifecycle state of a simulation run.
type RunState string

const (
	RunStateCreated   RunState = "created"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateStopped   RunState = "stopped"
)

// IsTerminal reports whether no further transitions are possible.
func (s RunState) IsTerminal() bool {
	return s == RunStateCompleted || s == RunStateStopped
}

// SimulationRun is the precomputed trajectory of a single order.
// Events are sorted ascending by timestamp and progress.
type SimulationRun struct {
	OrderID             OrderID         `json:"orderId"`
	State               RunState        `json:"state"`
	StartedAt           int64           `json:"startedAt"`
	BaseSpeedKmh        float64         `json:"baseSpeedKmh"`
	TotalDistanceMeters float64         `json:"totalDistanceMeters"`
	Events              []WaypointEvent `json:"events"`
	ReadCursor          int             `json:"readCursor"`
	CompletedAt         int64           `json:"completedAt,omitempty"`
}

// PlannedArrival is the timestamp of the final event.
func (r *SimulationRun) PlannedArrival() int64 {
	if len(r.Events) == 0 {
		return r.StartedAt
	}
	return r.Events[len(r.Events)-1].TargetTimestamp
}

// Snapshot derives the read-only view at the current cursor.
func (r *SimulationRun) Snapshot() *ShipmentSnapshot {
	ev := r.Events[r.ReadCursor]
	remaining := r.TotalDistanceMeters * (1 - ev.CumulativeProgress)
	if remaining < 0 {
		remaining = 0
	}
	return &ShipmentSnapshot{
		Location:                ev.Position,
		Progress:                ev.CumulativeProgress,
		TotalDistanceMeters:     r.TotalDistanceMeters,
		RemainingDistanceMeters: remaining,
		StartedAt:               r.StartedAt,
		BaseSpeedKmh:            r.BaseSpeedKmh,
		PlannedArrivalTimestamp: r.PlannedArrival(),
	}
}

// ShipmentSnapshot answers "where is this shipment right now".
type ShipmentSnapshot struct {
	Location                GeoPoint `json:"location"`
	Progress                float64  `json:"progress"`
	TotalDistanceMeters     float64  `json:"totalDistanceMeters"`
	RemainingDistanceMeters float64  `json:"remainingDistanceMeters"`
	StartedAt               int64    `json:"startedAt"`
	BaseSpeedKmh            float64  `json:"baseSpeedKmh"`
	PlannedArrivalTimestamp int64    `json:"plannedArrivalTimestamp"`
}

// Delivered reports whether the shipment reached its destination.
func (s *ShipmentSnapshot) Delivered() bool {
	return s.Progress >= 1
}
