// Package orderstore provides implementations of ports.OrderStore.
//
// Available implementations:
//   - postgres: GORM-backed store for production use
//   - memory: in-process store for tests and single-node setups
package orderstore
