package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aescanero/shiptrack/internal/application/orchestrator"
	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BeginTrackingRequest starts tracking a shipment
type BeginTrackingRequest struct {
	Origin      *domain.GeoPoint         `json:"origin" binding:"required"`
	Destination *domain.GeoPoint         `json:"destination" binding:"required"`
	Config      *domain.SimulationConfig `json:"config"`
}

// TrackingResponse describes the tracking state of a shipment
type TrackingResponse struct {
	OrderID  domain.OrderID           `json:"orderId"`
	Status   domain.Status            `json:"status"`
	Snapshot *domain.ShipmentSnapshot `json:"snapshot,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	healthy := true
	checks := gin.H{}
	if s.orchestrator != nil {
		checks["tracking"] = "ok"
	}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			healthy = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleBeginTracking starts a simulation and polling for a shipment
func (s *Server) handleBeginTracking(c *gin.Context) {
	orderID := domain.OrderID(c.Param("id"))

	var req BeginTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("invalid request", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	route := orchestrator.Endpoints{Origin: *req.Origin, Destination: *req.Destination}
	snap, err := s.orchestrator.Begin(c.Request.Context(), orderID, route, req.Config)
	if err != nil {
		s.logger.Warn("failed to begin tracking",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		s.writeError(c, err)
		return
	}

	resp := TrackingResponse{OrderID: orderID, Status: domain.StatusPacking, Snapshot: snap}
	if snap != nil {
		resp.Status = domain.StatusForProgress(snap.Progress)
	}
	c.JSON(http.StatusCreated, resp)
}

// handleGetPosition returns the current snapshot of a shipment
func (s *Server) handleGetPosition(c *gin.Context) {
	orderID := domain.OrderID(c.Param("id"))

	snap, err := s.orchestrator.Snapshot(c.Request.Context(), orderID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, TrackingResponse{
		OrderID:  orderID,
		Status:   domain.StatusForProgress(snap.Progress),
		Snapshot: snap,
	})
}

// handleCancelTracking stops tracking and discards the simulation
func (s *Server) handleCancelTracking(c *gin.Context) {
	orderID := domain.OrderID(c.Param("id"))

	if err := s.orchestrator.Cancel(c.Request.Context(), orderID); err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId":      orderID,
		"status":       "cancelled",
		"cancelled_at": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleGetMilestones returns the tracking history of an order
func (s *Server) handleGetMilestones(c *gin.Context) {
	orderID := domain.OrderID(c.Param("id"))

	if identity := identityFrom(c); identity != nil && s.sessions != nil {
		allowed, err := s.sessions.CanWatch(c.Request.Context(), identity, orderID)
		if err != nil || !allowed {
			c.JSON(http.StatusForbidden, ErrorResponse{
				Error: ErrorDetail{
					Code:    "FORBIDDEN",
					Message: "Not allowed to read this order",
				},
			})
			return
		}
	}

	milestones, err := s.orders.Milestones(c.Request.Context(), orderID)
	if err != nil {
		s.logger.Error("failed to list milestones",
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orderId":    orderID,
		"milestones": milestones,
	})
}

// writeError maps domain errors to HTTP responses
func (s *Server) writeError(c *gin.Context, err error) {
	var code int
	var detail ErrorDetail

	switch {
	case errors.Is(err, orchestrator.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidConfig):
		code, detail = http.StatusBadRequest, ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		code, detail = http.StatusNotFound, ErrorDetail{Code: "NOT_FOUND", Message: "Shipment is not being tracked"}
	case errors.Is(err, domain.ErrDuplicateSimulation):
		code, detail = http.StatusConflict, ErrorDetail{Code: "ALREADY_TRACKING", Message: err.Error()}
	case errors.Is(err, domain.ErrRouteUnavailable):
		code, detail = http.StatusUnprocessableEntity, ErrorDetail{Code: "ROUTE_UNAVAILABLE", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		code, detail = http.StatusGatewayTimeout, ErrorDetail{Code: "ENGINE_TIMEOUT", Message: "Simulation engine did not answer in time"}
	default:
		code, detail = http.StatusInternalServerError, ErrorDetail{Code: "INTERNAL", Message: "Internal error", Details: err.Error()}
	}

	c.JSON(code, ErrorResponse{Error: detail})
}
