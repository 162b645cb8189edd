package domain

import "time"

// Event types published on the group order topic.
const (
	EventOrderConfirmation = "order_confirmation"
	EventOrderOpened       = "order_opened"
	EventOrderClosed       = "order_closed"
)

// Envelope is the message shape on the wire. EventID is the outbox row id
// and is filled in by the outbox worker.
type Envelope[T any] struct {
	Event   string `json:"event"`
	EventID int64  `json:"event_id"`
	Payload T      `json:"payload"`
}

type ConfirmationItem struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int32  `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	TotalPrice  int64  `json:"total_price"`
}

type OrderConfirmationEvent struct {
	ParticipationID int64              `json:"participation_id"`
	GroupOrderID    int64              `json:"group_order_id"`
	GroupOrderTitle string             `json:"group_order_title"`
	UserID          int64              `json:"user_id"`
	Deadline        time.Time          `json:"deadline"`
	Items           []ConfirmationItem `json:"items"`
	TotalAmount     int64              `json:"total_amount"`
	Updated         bool               `json:"updated"`
}

// GroupOrderStatusEvent is the payload of order_opened and order_closed.
type GroupOrderStatusEvent struct {
	GroupOrderID int64      `json:"group_order_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	OpeningTime  *time.Time `json:"opening_time,omitempty"`
	Deadline     time.Time  `json:"deadline"`
	Status       string     `json:"status"`
	ChangedAt    time.Time  `json:"changed_at"`
}
