// Package events provides event bus implementations for the tracking feed.
//
// Implementations:
//   - redis: Redis Streams with consumer groups
//   - memory: In-memory fan-out for single-process use and testing
package events
