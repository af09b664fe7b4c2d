// Package liveness implements the per-connection liveness monitor.
//
// A monitor probes its connection once per period. If the probe sent in
// the previous period was never acknowledged, or a probe cannot be sent,
// the connection is terminated. Terminating a connection is what triggers
// cleanup of its subscriptions.
package liveness
