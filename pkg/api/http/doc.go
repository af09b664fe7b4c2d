// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Starting, inspecting and cancelling shipment tracking
//   - Order milestone history
//   - Health checks
//   - Prometheus metrics
//
// The WebSocket tracking stream is mounted with SetupWebSocket.
package http
