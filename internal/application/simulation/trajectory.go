package simulation

import (
	"math"
	"math/rand/v2"

	"github.com/aescanero/shiptrack/pkg/domain"
)

// minSpeedFactor bounds a jittered segment speed away from zero.
const minSpeedFactor = 0.05

// buildTrajectory precomputes the waypoint events for route starting at
// startedAt (epoch ms). It returns the events and the raw route length.
func buildTrajectory(route []domain.GeoPoint, cfg domain.SimulationConfig, startedAt int64, rng *rand.Rand) ([]domain.WaypointEvent, float64) {
	total := domain.PathLength(route)
	destination := route[len(route)-1]

	events := []domain.WaypointEvent{{
		Position:           route[0],
		TargetTimestamp:    startedAt,
		CumulativeProgress: 0,
	}}

	if total <= 0 {
		return append(events, domain.WaypointEvent{
			Position:           destination,
			TargetTimestamp:    startedAt,
			CumulativeProgress: 1,
		}), 0
	}

	// Speeds are drawn once per segment in route order.
	segments := make([]float64, len(route))
	durations := make([]float64, len(route))
	var totalMs float64
	for i := 1; i < len(route); i++ {
		segments[i] = route[i-1].DistanceTo(route[i])
		if segments[i] == 0 {
			continue
		}
		durations[i] = segments[i] * 3600 / segmentSpeed(cfg, rng)
		totalMs += durations[i]
	}
	tickMs := effectiveTick(cfg.TickIntervalMs, totalMs)

	elapsed := float64(startedAt)
	traveled := 0.0
	for i := 1; i < len(route); i++ {
		from, to := route[i-1], route[i]
		segment, durationMs := segments[i], durations[i]
		if segment == 0 {
			continue
		}

		steps := int(math.Ceil(durationMs / tickMs))
		if steps < 1 {
			steps = 1
		}

		for j := 1; j <= steps; j++ {
			f := float64(j) / float64(steps)
			events = append(events, domain.WaypointEvent{
				Position:           from.Interpolate(to, f),
				TargetTimestamp:    int64(math.Round(elapsed + durationMs*f)),
				CumulativeProgress: (traveled + segment*f) / total,
			})
		}

		traveled += segment
		elapsed += durationMs
	}

	// Only the final event may report full progress.
	last := len(events) - 1
	below := math.Nextafter(1, 0)
	for i := 0; i < last; i++ {
		if events[i].CumulativeProgress > below {
			events[i].CumulativeProgress = below
		}
	}
	events[last].CumulativeProgress = 1
	events[last].Position = destination

	return events, total
}

// effectiveTick widens the requested tick so a run of totalMs stays within
// domain.MaxEventsPerRun subdivisions.
func effectiveTick(requestedMs int64, totalMs float64) float64 {
	tick := float64(requestedMs)
	if floor := totalMs / domain.MaxEventsPerRun; tick < floor {
		tick = floor
	}
	return tick
}

// segmentSpeed draws base × (1 ± variance) uniformly, in km/h.
func segmentSpeed(cfg domain.SimulationConfig, rng *rand.Rand) float64 {
	speed := cfg.SpeedKmh
	if cfg.VarianceFraction > 0 {
		speed *= 1 + cfg.VarianceFraction*(2*rng.Float64()-1)
	}
	if floor := cfg.SpeedKmh * minSpeedFactor; speed < floor {
		speed = floor
	}
	return speed
}
