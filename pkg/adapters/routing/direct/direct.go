package direct

import (
	"context"

	"github.com/aescanero/shiptrack/pkg/domain"
)

// Router returns the straight segment between the endpoints.
type Router struct{}

// NewRouter creates a direct router
func NewRouter() *Router {
	return &Router{}
}

// Route returns [origin, destination]
func (r *Router) Route(ctx context.Context, origin, destination domain.GeoPoint) ([]domain.GeoPoint, error) {
	return []domain.GeoPoint{origin, destination}, nil
}
