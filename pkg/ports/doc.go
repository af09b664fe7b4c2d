// Package ports declares the interfaces the tracking core depends on.
//
// Adapters under pkg/adapters implement them:
//   - Router: routing collaborator (OSRM, direct)
//   - SimulationService: engine control surface (in-process, gRPC)
//   - RunStore: simulation run persistence (redis, memory)
//   - OrderStore: order completion and milestones (postgres, memory)
//   - EventBus: tracking event feed (redis streams, memory)
//   - MetricsCollector: prometheus
//   - SessionValidator: connection identity
package ports
