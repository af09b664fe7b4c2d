package grpc

import (
	"context"

	"github.com/aescanero/shiptrack/pkg/domain"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified simulation service name
const ServiceName = "shiptrack.simulation.v1.SimulationService"

// Full method names
const (
	MethodCreate = "/" + ServiceName + "/Create"
	MethodRead   = "/" + ServiceName + "/Read"
	MethodDelete = "/" + ServiceName + "/Delete"
)

// CreateRequest starts a simulation
type CreateRequest struct {
	OrderID     domain.OrderID           `json:"orderId"`
	Origin      domain.GeoPoint          `json:"origin"`
	Destination domain.GeoPoint          `json:"destination"`
	Config      *domain.SimulationConfig `json:"config,omitempty"`
}

// OrderRequest addresses an existing simulation
type OrderRequest struct {
	OrderID domain.OrderID `json:"orderId"`
}

// Empty is the response of calls without a result
type Empty struct{}

// SimulationServer is the server side of the simulation service
type SimulationServer interface {
	Create(ctx context.Context, req *CreateRequest) (*Empty, error)
	Read(ctx context.Context, req *OrderRequest) (*domain.ShipmentSnapshot, error)
	Delete(ctx context.Context, req *OrderRequest) (*Empty, error)
}

// ServiceDesc describes the simulation service for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Create", Handler: createHandler},
		{MethodName: "Read", Handler: readHandler},
		{MethodName: "Delete", Handler: deleteHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "shiptrack/simulation/v1/simulation.proto",
}

func createHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulationServer).Create(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodCreate}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SimulationServer).Create(ctx, req.(*CreateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func readHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(OrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulationServer).Read(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodRead}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SimulationServer).Read(ctx, req.(*OrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(OrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulationServer).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodDelete}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SimulationServer).Delete(ctx, req.(*OrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}
