package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event type names published to the event stream.
const (
	TypeOrderPlaced            = "order.placed"
	TypeOrderStatusChanged     = "order.status_changed"
	TypeOrderItemStatusChanged = "order.item_status_changed"
	TypeOrderCancelled         = "order.cancelled"
	TypeOrderPaid              = "order.paid"
	TypeUserLoggedIn           = "user.logged_in"
	TypeUserLoggedOut          = "user.logged_out"
)

// Envelope wraps a typed payload for publication.
type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// New builds an envelope around a payload.
func New(eventType string, data any) Envelope {
	return Envelope{
		ID:         uuid.New().String(),
		Type:       eventType,
		OccurredAt: time.Now(),
		Data:       data,
	}
}

// Publisher delivers envelopes to the event stream. Publication is advisory
// for every caller in this codebase: a failed publish is logged and never
// fails the enclosing operation.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
}

// NopPublisher discards all events. Used in tests and in deployments without
// an event stream configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, key string, env Envelope) error { return nil }

// OrderPlaced is emitted after an order and its children are persisted.
type OrderPlaced struct {
	OrderID     string    `json:"order_id"`
	UserID      string    `json:"user_id"`
	OrderNumber int64     `json:"order_number"`
	GrandTotal  int64     `json:"grand_total"`
	PlacedAt    time.Time `json:"placed_at"`
}

// OrderStatusChanged is emitted after an order-level status transition.
type OrderStatusChanged struct {
	OrderID   string    `json:"order_id"`
	UserID    string    `json:"user_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

// OrderItemStatusChanged is emitted after a line-item status transition.
type OrderItemStatusChanged struct {
	OrderID   string    `json:"order_id"`
	ItemID    string    `json:"item_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

// OrderPaid is emitted when a payment record is stamped.
type OrderPaid struct {
	OrderID  string    `json:"order_id"`
	UserID   string    `json:"user_id"`
	Amount   int64     `json:"amount"`
	Provider string    `json:"provider"`
	PaidAt   time.Time `json:"paid_at"`
}

// UserLoggedIn is emitted after a successful login.
type UserLoggedIn struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	LoggedAt  time.Time `json:"logged_at"`
}

// UserLoggedOut is emitted after a logout.
type UserLoggedOut struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	LoggedAt  time.Time `json:"logged_at"`
}
