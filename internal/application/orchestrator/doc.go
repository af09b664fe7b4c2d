// Package orchestrator implements the tracking orchestrator.
//
// The manager bridges the order domain and the simulation engine by:
//   - Starting a simulation when both route endpoints are known (Begin)
//   - Resuming observation of a run that already exists (Resume)
//   - Polling the engine on a fixed cadence per watched order
//   - Broadcasting tracking updates and finalizing delivered orders
//
// Polling for an order runs in its own goroutine, so a slow or failing
// engine call for one order never delays another. Engine errors during a
// poll are logged and the tick is skipped; only StopPollingFor or delivery
// ends polling.
package orchestrator
