package orchestrator

import (
	"errors"
	"fmt"

	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidRequest marks a tracking request rejected before reaching the engine.
var ErrInvalidRequest = errors.New("invalid tracking request")

const maxOrderIDLength = 128

// Validator validates tracking requests before they reach the engine
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new request validator
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateOrderID checks that an order id is usable as a key
func (v *Validator) ValidateOrderID(orderID domain.OrderID) error {
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrInvalidRequest)
	}
	if len(orderID) > maxOrderIDLength {
		return fmt.Errorf("%w: order id too long: %d characters", ErrInvalidRequest, len(orderID))
	}
	return nil
}

// ValidateBegin checks the endpoints and optional config of a fresh start
func (v *Validator) ValidateBegin(orderID domain.OrderID, route Endpoints, cfg *domain.SimulationConfig) error {
	if err := v.ValidateOrderID(orderID); err != nil {
		return err
	}
	if err := route.Origin.Validate(); err != nil {
		return fmt.Errorf("%w: invalid origin: %v", ErrInvalidRequest, err)
	}
	if err := route.Destination.Validate(); err != nil {
		return fmt.Errorf("%w: invalid destination: %v", ErrInvalidRequest, err)
	}
	if cfg != nil {
		if err := v.validate.Struct(cfg); err != nil {
			return fmt.Errorf("%w: %w: %v", ErrInvalidRequest, domain.ErrInvalidConfig, err)
		}
	}
	return nil
}
