// Package simulation implements the route-simulation engine.
//
// Starting a run resolves a route through the routing port and precomputes
// a time-indexed trajectory of waypoint events. Queries move a read cursor
// forward to the last event whose timestamp has passed and derive a
// snapshot from it, so answers always reflect wall-clock time no matter how
// often the background tick runs.
//
// The background tick (robfig/cron) advances every run's cursor and reaps
// runs that completed and were never collected. Runs are written through to
// a RunStore so a restarted engine can restore them.
package simulation
