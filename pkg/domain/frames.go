package domain

// FrameType discriminates streaming protocol frames.
type FrameType string

const (
	FrameSubscribe    FrameType = "subscribe"
	FrameUnsubscribe  FrameType = "unsubscribe"
	FrameSubscribed   FrameType = "subscribed"
	FrameUnsubscribed FrameType = "unsubscribed"
	FrameUpdate       FrameType = "update"
)

// InboundFrame is a request sent by a watcher.
type InboundFrame struct {
	Type    FrameType `json:"type" validate:"required,oneof=subscribe unsubscribe"`
	OrderID OrderID   `json:"orderId" validate:"required"`
}

// AckFrame confirms a subscribe or unsubscribe.
type AckFrame struct {
	Type    FrameType `json:"type"`
	OrderID OrderID   `json:"orderId"`
}

// UpdateFrame carries a tracking update for one order.
type UpdateFrame struct {
	Type    FrameType      `json:"type"`
	OrderID OrderID        `json:"orderId"`
	Data    TrackingUpdate `json:"data"`
}

// NewUpdateFrame wraps an update for delivery.
func NewUpdateFrame(orderID OrderID, u TrackingUpdate) UpdateFrame {
	return UpdateFrame{Type: FrameUpdate, OrderID: orderID, Data: u}
}

// ErrorFrame reports a rejected inbound frame.
type ErrorFrame struct {
	Error string `json:"error"`
}
