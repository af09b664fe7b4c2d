package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aescanero/shiptrack/pkg/domain"
)

// InMemoryRunStorage implements RunStore using an in-memory map.
// Runs do not survive a process restart.
type InMemoryRunStorage struct {
	runs map[domain.OrderID]domain.SimulationRun
	mu   sync.RWMutex
}

// NewInMemoryRunStorage creates a new in-memory run storage
func NewInMemoryRunStorage() *InMemoryRunStorage {
	return &InMemoryRunStorage{
		runs: make(map[domain.OrderID]domain.SimulationRun),
	}
}

// Save persists a copy of the run
func (s *InMemoryRunStorage) Save(ctx context.Context, run *domain.SimulationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *run
	stored.Events = append([]domain.WaypointEvent(nil), run.Events...)
	s.runs[run.OrderID] = stored
	return nil
}

// Load returns a copy of the stored run
func (s *InMemoryRunStorage) Load(ctx context.Context, orderID domain.OrderID) (*domain.SimulationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.runs[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}

	run := stored
	run.Events = append([]domain.WaypointEvent(nil), stored.Events...)
	return &run, nil
}

// Delete removes the run
func (s *InMemoryRunStorage) Delete(ctx context.Context, orderID domain.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, orderID)
	return nil
}

// List returns the order IDs of all stored runs
func (s *InMemoryRunStorage) List(ctx context.Context) ([]domain.OrderID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]domain.OrderID, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}

	return ids, nil
}
