package grpc

import (
	"context"
	"fmt"

	simrpc "github.com/aescanero/shiptrack/pkg/api/grpc"
	"github.com/aescanero/shiptrack/pkg/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls a remote simulation engine
type Client struct {
	conn   *grpc.ClientConn
	owned  bool
	logger *zap.Logger
}

// NewClient connects to the engine at addr
func NewClient(addr string, logger *zap.Logger) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine client: %w", err)
	}

	logger.Info("engine client created", zap.String("addr", addr))
	return &Client{conn: conn, owned: true, logger: logger}, nil
}

// NewClientWithConn wraps an existing connection. Close leaves it open.
func NewClientWithConn(conn *grpc.ClientConn, logger *zap.Logger) *Client {
	return &Client{conn: conn, logger: logger}
}

// Create starts a simulation on the remote engine
func (c *Client) Create(ctx context.Context, orderID domain.OrderID, origin, destination domain.GeoPoint, cfg *domain.SimulationConfig) error {
	req := &simrpc.CreateRequest{
		OrderID:     orderID,
		Origin:      origin,
		Destination: destination,
		Config:      cfg,
	}
	if err := c.invoke(ctx, simrpc.MethodCreate, req, &simrpc.Empty{}); err != nil {
		return err
	}
	return nil
}

// Read fetches the current snapshot from the remote engine
func (c *Client) Read(ctx context.Context, orderID domain.OrderID) (*domain.ShipmentSnapshot, error) {
	snap := &domain.ShipmentSnapshot{}
	if err := c.invoke(ctx, simrpc.MethodRead, &simrpc.OrderRequest{OrderID: orderID}, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Delete discards a simulation on the remote engine
func (c *Client) Delete(ctx context.Context, orderID domain.OrderID) error {
	return c.invoke(ctx, simrpc.MethodDelete, &simrpc.OrderRequest{OrderID: orderID}, &simrpc.Empty{})
}

// Close closes the underlying connection when the client owns it
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}) error {
	err := c.conn.Invoke(ctx, method, req, resp, grpc.ForceCodec(simrpc.JSONCodec{}))
	return simrpc.FromStatus(err)
}
