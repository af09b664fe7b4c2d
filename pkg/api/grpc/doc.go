// Package grpc exposes the simulation engine over gRPC.
//
// The service is shiptrack.simulation.v1.SimulationService with unary
// Create, Read and Delete methods. Messages are JSON encoded with the
// codec in this package, so clients must force the same codec. Domain
// errors travel as status codes and are mapped back by FromStatus.
package grpc
