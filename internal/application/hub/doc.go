// Package hub implements the subscription hub.
//
// The hub keeps, per order, the set of connections watching it and fans
// tracking updates out to them. It asks the tracker to start observing an
// order on the first subscription and to stop on the last unsubscription.
package hub
