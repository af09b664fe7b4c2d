package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/aescanero/shiptrack/pkg/ports"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server represents the gRPC API server
type Server struct {
	server      *grpc.Server
	simulations ports.SimulationService
	port        int
	logger      *zap.Logger
}

// Config holds gRPC server configuration
type Config struct {
	Port        int
	Simulations ports.SimulationService
	Logger      *zap.Logger
}

// NewServer creates a new gRPC server
func NewServer(cfg *Config) *Server {
	s := &Server{
		simulations: cfg.Simulations,
		port:        cfg.Port,
		logger:      cfg.Logger,
	}

	s.server = grpc.NewServer(
		grpc.ForceServerCodec(JSONCodec{}),
		grpc.UnaryInterceptor(s.logCalls),
	)
	s.server.RegisterService(&ServiceDesc, s)

	return s
}

// Start listens on the configured port and serves until Shutdown
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}
	return s.Serve(listener)
}

// Serve serves on an existing listener
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("starting gRPC server", zap.String("addr", listener.Addr().String()))

	if err := s.server.Serve(listener); err != nil {
		return fmt.Errorf("failed to serve gRPC: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gRPC server")

	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
	}

	s.logger.Info("gRPC server shut down complete")
	return nil
}

// Create starts a simulation
func (s *Server) Create(ctx context.Context, req *CreateRequest) (*Empty, error) {
	if err := s.simulations.Create(ctx, req.OrderID, req.Origin, req.Destination, req.Config); err != nil {
		return nil, ToStatus(err)
	}
	return &Empty{}, nil
}

// Read returns the current snapshot
func (s *Server) Read(ctx context.Context, req *OrderRequest) (*domain.ShipmentSnapshot, error) {
	snap, err := s.simulations.Read(ctx, req.OrderID)
	if err != nil {
		return nil, ToStatus(err)
	}
	return snap, nil
}

// Delete discards a simulation
func (s *Server) Delete(ctx context.Context, req *OrderRequest) (*Empty, error) {
	if err := s.simulations.Delete(ctx, req.OrderID); err != nil {
		return nil, ToStatus(err)
	}
	return &Empty{}, nil
}

// logCalls logs every unary call with its outcome
func (s *Server) logCalls(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.String("code", status.Code(err).String()),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil && status.Code(err) != codes.NotFound {
		s.logger.Warn("gRPC call failed", append(fields, zap.Error(err))...)
	} else {
		s.logger.Debug("gRPC call", fields...)
	}

	return resp, err
}
