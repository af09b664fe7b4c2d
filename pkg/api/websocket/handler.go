package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aescanero/shiptrack/internal/application/hub"
	"github.com/aescanero/shiptrack/internal/application/liveness"
	"github.com/aescanero/shiptrack/pkg/domain"
	"github.com/aescanero/shiptrack/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const maxFrameSize = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Subscriptions is the subscription hub as seen by the endpoint
type Subscriptions interface {
	Subscribe(ctx context.Context, w hub.Watcher, orderID domain.OrderID) (*domain.TrackingUpdate, error)
	Unsubscribe(w hub.Watcher, orderID domain.OrderID)
	CleanupConnection(w hub.Watcher)
}

// Handler handles WebSocket connections
type Handler struct {
	hub          Subscriptions
	sessions     ports.SessionValidator
	eventBus     ports.EventBus
	metrics      ports.MetricsCollector
	validate     *validator.Validate
	logger       *zap.Logger
	pingInterval time.Duration
	sendBuffer   int

	feed *feed

	mu    sync.Mutex
	conns map[string]*Conn
}

// Config holds handler dependencies
type Config struct {
	Hub          Subscriptions
	Sessions     ports.SessionValidator
	EventBus     ports.EventBus
	Metrics      ports.MetricsCollector
	Logger       *zap.Logger
	PingInterval time.Duration
	SendBuffer   int
}

// NewHandler creates a new WebSocket handler
func NewHandler(cfg *Config) *Handler {
	sendBuffer := cfg.SendBuffer
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Handler{
		hub:          cfg.Hub,
		sessions:     cfg.Sessions,
		eventBus:     cfg.EventBus,
		metrics:      cfg.Metrics,
		validate:     validator.New(),
		logger:       cfg.Logger,
		pingInterval: pingInterval,
		sendBuffer:   sendBuffer,
		feed:         newFeed(),
		conns:        make(map[string]*Conn),
	}
}

// HandleTrack serves the shipment tracking stream
func (h *Handler) HandleTrack(c *gin.Context) {
	identity, err := h.sessions.Validate(c.Request.Context(), c.Request)
	if err != nil {
		h.logger.Info("rejected watcher session",
			zap.String("client", c.ClientIP()),
			zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	conn := newConn(ws, identity, h.sendBuffer, h.metrics, h.logger)
	conn.onClose = h.release
	conn.monitor = liveness.NewMonitor(conn, h.pingInterval, h.logger)
	h.register(conn)

	h.logger.Info("WebSocket connection established",
		zap.String("connection_id", conn.ID()),
		zap.String("subject", identity.Subject),
		zap.String("client", c.ClientIP()))

	go conn.writePump()
	conn.monitor.Start()
	h.readPump(conn)
}

// Connections returns the number of open connections
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// CloseAll closes every open connection
func (h *Handler) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// readPump handles inbound frames until the connection fails
func (h *Handler) readPump(conn *Conn) {
	defer conn.Close()

	conn.ws.SetReadLimit(maxFrameSize)
	conn.ws.SetPongHandler(func(string) error {
		conn.monitor.Ack()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("connection read failed",
					zap.String("connection_id", conn.ID()),
					zap.Error(err))
			}
			return
		}
		h.handleFrame(ctx, conn, data)
	}
}

// handleFrame dispatches one inbound frame
func (h *Handler) handleFrame(ctx context.Context, conn *Conn, data []byte) {
	var frame domain.InboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.reply(conn, domain.ErrorFrame{Error: fmt.Sprintf("invalid frame: %v", err)})
		return
	}
	if err := h.validate.Struct(frame); err != nil {
		h.reply(conn, domain.ErrorFrame{Error: fmt.Sprintf("invalid frame: %v", err)})
		return
	}

	switch frame.Type {
	case domain.FrameSubscribe:
		h.subscribe(ctx, conn, frame.OrderID)
	case domain.FrameUnsubscribe:
		h.hub.Unsubscribe(conn, frame.OrderID)
		h.reply(conn, domain.AckFrame{Type: domain.FrameUnsubscribed, OrderID: frame.OrderID})
	}
}

func (h *Handler) subscribe(ctx context.Context, conn *Conn, orderID domain.OrderID) {
	allowed, err := h.sessions.CanWatch(ctx, conn.identity, orderID)
	if err != nil {
		h.logger.Warn("failed to authorize watcher",
			zap.String("connection_id", conn.ID()),
			zap.String("order_id", orderID.String()),
			zap.Error(err))
		h.reply(conn, domain.ErrorFrame{Error: "authorization failed"})
		return
	}
	if !allowed {
		h.reply(conn, domain.ErrorFrame{Error: fmt.Sprintf("not allowed to watch order %s", orderID)})
		return
	}

	update, err := h.hub.Subscribe(ctx, conn, orderID)
	if err != nil {
		h.reply(conn, domain.ErrorFrame{Error: err.Error()})
		return
	}

	h.reply(conn, domain.AckFrame{Type: domain.FrameSubscribed, OrderID: orderID})
	if update != nil {
		h.reply(conn, domain.NewUpdateFrame(orderID, *update))
	}
}

func (h *Handler) reply(conn *Conn, frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal frame", zap.Error(err))
		return
	}
	if err := conn.Send(data); err != nil {
		h.logger.Debug("failed to queue frame",
			zap.String("connection_id", conn.ID()),
			zap.Error(err))
	}
}

func (h *Handler) register(conn *Conn) {
	h.mu.Lock()
	h.conns[conn.ID()] = conn
	count := len(h.conns)
	h.mu.Unlock()
	h.metrics.SetConnections(count)
}

// release runs once when a connection closes
func (h *Handler) release(conn *Conn, reason liveness.Reason) {
	h.hub.CleanupConnection(conn)

	h.mu.Lock()
	delete(h.conns, conn.ID())
	count := len(h.conns)
	h.mu.Unlock()
	h.metrics.SetConnections(count)

	if reason != "" {
		h.metrics.RecordDeadConnection()
	}
	h.logger.Info("WebSocket connection closed",
		zap.String("connection_id", conn.ID()),
		zap.String("reason", string(reason)))
}
