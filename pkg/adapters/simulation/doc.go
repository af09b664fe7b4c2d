// Package simulation provides remote implementations of the simulation
// engine control surface.
package simulation
