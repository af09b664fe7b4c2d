package domain

import "errors"

var (
	// ErrRouteUnavailable is returned when routing yields fewer than two points.
	ErrRouteUnavailable = errors.New("route unavailable")

	// ErrDuplicateSimulation is returned when a run already exists for the order.
	ErrDuplicateSimulation = errors.New("simulation already exists")

	// ErrMissingRouteEndpoints is returned when a resume finds no run and no
	// endpoints were supplied to start one.
	ErrMissingRouteEndpoints = errors.New("missing route endpoints")

	// ErrNotFound is returned when no run exists for the order.
	ErrNotFound = errors.New("simulation not found")

	// ErrInvalidConfig is returned for out-of-range simulation parameters.
	ErrInvalidConfig = errors.New("invalid simulation config")
)
