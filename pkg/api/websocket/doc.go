// Package websocket provides real-time shipment tracking via WebSocket.
//
// Clients connect to /api/v1/track/ws and send
//
//	{"type": "subscribe", "orderId": "42"}
//	{"type": "unsubscribe", "orderId": "42"}
//
// Each subscription is acknowledged and followed by update frames carrying
// {location, timestamp, status, progress}. Malformed frames are answered
// with {"error": "..."} and the connection stays open. Every connection is
// probed with WebSocket pings and closed when a probe goes unanswered.
//
// /api/v1/events/ws streams the tracking event feed (tracking.started,
// tracking.resumed, shipment.delivered).
package websocket
