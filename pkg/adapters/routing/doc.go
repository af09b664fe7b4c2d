// Package routing provides Router implementations.
//
// The factory creates a router based on provider configuration.
// Currently supports:
//   - osrm: OSRM HTTP route service
//   - direct: straight line from origin to destination
package routing
