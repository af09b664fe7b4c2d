// Package storage provides simulation run storage implementations.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: In-memory for single-process use and testing
package storage
