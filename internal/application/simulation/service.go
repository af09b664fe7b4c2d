package simulation

import (
	"context"

	"github.com/aescanero/shiptrack/pkg/domain"
)

// LocalService exposes an in-process Engine as a ports.SimulationService.
type LocalService struct {
	engine *Engine
}

// NewLocalService wraps engine.
func NewLocalService(engine *Engine) *LocalService {
	return &LocalService{engine: engine}
}

// Create starts a simulation run for orderID.
func (s *LocalService) Create(ctx context.Context, orderID domain.OrderID, origin, destination domain.GeoPoint, cfg *domain.SimulationConfig) error {
	return s.engine.Start(ctx, orderID, origin, destination, cfg)
}

// Read returns the current snapshot of orderID.
func (s *LocalService) Read(ctx context.Context, orderID domain.OrderID) (*domain.ShipmentSnapshot, error) {
	return s.engine.Query(ctx, orderID)
}

// Delete discards the run of orderID.
func (s *LocalService) Delete(ctx context.Context, orderID domain.OrderID) error {
	return s.engine.Stop(ctx, orderID)
}
