package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/aescanero/shiptrack/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// feed fans events from a single bus subscription out to stream clients
type feed struct {
	mu      sync.RWMutex
	clients map[chan ports.Event]string
}

func newFeed() *feed {
	return &feed{clients: make(map[chan ports.Event]string)}
}

func (f *feed) add(orderID string) chan ports.Event {
	ch := make(chan ports.Event, 10)
	f.mu.Lock()
	f.clients[ch] = orderID
	f.mu.Unlock()
	return ch
}

func (f *feed) remove(ch chan ports.Event) {
	f.mu.Lock()
	delete(f.clients, ch)
	f.mu.Unlock()
}

// dispatch delivers event without blocking and returns the drop count
func (f *feed) dispatch(event ports.Event) int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	dropped := 0
	for ch, orderID := range f.clients {
		if orderID != "" && event.OrderID.String() != orderID {
			continue
		}
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	return dropped
}

// StartEventFeed subscribes to the tracking topic until ctx is cancelled
func (h *Handler) StartEventFeed(ctx context.Context) error {
	err := h.eventBus.Subscribe(ctx, ports.TrackingTopic, func(ctx context.Context, event ports.Event) error {
		if dropped := h.feed.dispatch(event); dropped > 0 {
			h.logger.Warn("event channel full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Int("clients", dropped))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}
	return nil
}

// HandleEvents streams the tracking event feed. An optional orderId query
// parameter restricts the stream to one order.
func (h *Handler) HandleEvents(c *gin.Context) {
	if _, err := h.sessions.Validate(c.Request.Context(), c.Request); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
		return
	}
	orderID := c.Query("orderId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	h.logger.Info("event stream connection established",
		zap.String("order_id", orderID),
		zap.String("client", c.ClientIP()))

	events := h.feed.add(orderID)
	defer h.feed.remove(events)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The client never sends; a read error means it went away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-events:
			data, err := json.Marshal(event)
			if err != nil {
				h.logger.Error("failed to marshal event", zap.Error(err))
				continue
			}

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Error("failed to write message", zap.Error(err))
				return
			}
		}
	}
}
