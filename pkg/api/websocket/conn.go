package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aescanero/shiptrack/internal/application/liveness"
	"github.com/aescanero/shiptrack/pkg/ports"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrConnClosed is returned when sending on a closed connection.
	ErrConnClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned when a slow client cannot keep up.
	ErrSendBufferFull = errors.New("send buffer full")
)

const writeWait = 10 * time.Second

// Conn is a single watcher connection
type Conn struct {
	id       string
	ws       *websocket.Conn
	identity *ports.Identity
	metrics  ports.MetricsCollector
	logger   *zap.Logger

	send    chan []byte
	done    chan struct{}
	closed  atomic.Bool
	once    sync.Once
	monitor *liveness.Monitor
	onClose func(c *Conn, reason liveness.Reason)

	mu     sync.Mutex
	reason liveness.Reason
}

func newConn(ws *websocket.Conn, identity *ports.Identity, sendBuffer int, metrics ports.MetricsCollector, logger *zap.Logger) *Conn {
	return &Conn{
		id:       uuid.New().String(),
		ws:       ws,
		identity: identity,
		metrics:  metrics,
		logger:   logger,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Conn) ID() string {
	return c.id
}

// Ready reports whether the connection is open
func (c *Conn) Ready() bool {
	return !c.closed.Load()
}

// Send queues a frame for the write pump without blocking
func (c *Conn) Send(frame []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.metrics.RecordFrameDropped()
		return ErrSendBufferFull
	}
}

// Ping sends a liveness probe
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Terminate closes the connection on behalf of the liveness monitor
func (c *Conn) Terminate(reason liveness.Reason) {
	c.mu.Lock()
	c.reason = reason
	c.mu.Unlock()
	c.Close()
}

// Close closes the connection. Safe to call repeatedly.
func (c *Conn) Close() {
	c.once.Do(func() {
		c.closed.Store(true)
		close(c.done)
		if c.monitor != nil {
			c.monitor.Stop()
		}
		_ = c.ws.Close()

		c.mu.Lock()
		reason := c.reason
		c.mu.Unlock()
		if c.onClose != nil {
			c.onClose(c, reason)
		}
	})
}

// writePump drains the send queue onto the socket
func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("failed to write frame",
					zap.String("connection_id", c.id),
					zap.Error(err))
				c.Close()
				return
			}
		}
	}
}
