// Package memory provides an in-memory order store.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aescanero/shiptrack/pkg/domain"
)

// InMemoryOrderStore implements ports.OrderStore in memory
type InMemoryOrderStore struct {
	mu         sync.RWMutex
	delivered  map[domain.OrderID]time.Time
	milestones map[domain.OrderID][]domain.Milestone
}

// NewInMemoryOrderStore creates a new in-memory order store
func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		delivered:  make(map[domain.OrderID]time.Time),
		milestones: make(map[domain.OrderID][]domain.Milestone),
	}
}

// MarkDelivered records the order as delivered; the first call wins
func (s *InMemoryOrderStore) MarkDelivered(ctx context.Context, orderID domain.OrderID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.delivered[orderID]; !ok {
		s.delivered[orderID] = at
	}
	return nil
}

// AppendMilestone adds an entry to the order's history
func (s *InMemoryOrderStore) AppendMilestone(ctx context.Context, m domain.Milestone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.milestones[m.OrderID] = append(s.milestones[m.OrderID], m)
	return nil
}

// Milestones returns a copy of the order's history
func (s *InMemoryOrderStore) Milestones(ctx context.Context, orderID domain.OrderID) ([]domain.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.Milestone{}, s.milestones[orderID]...), nil
}

// DeliveredAt returns when the order was delivered
func (s *InMemoryOrderStore) DeliveredAt(ctx context.Context, orderID domain.OrderID) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.delivered[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderID)
	}
	return &at, nil
}
