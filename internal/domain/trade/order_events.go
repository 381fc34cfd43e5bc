package trade

import (
	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeOrder = "Order"

// Event type constants
const (
	EventTypeOrderPlaced        = "OrderPlaced"
	EventTypeOrderStatusChanged = "OrderStatusChanged"
)

// OrderPlacedEvent is raised when checkout creates an order
type OrderPlacedEvent struct {
	shared.BaseDomainEvent
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ItemCount   int             `json:"item_count"`
}

// NewOrderPlacedEvent creates a new OrderPlacedEvent
func NewOrderPlacedEvent(order *Order) *OrderPlacedEvent {
	return &OrderPlacedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeOrderPlaced, AggregateTypeOrder, order.ID),
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		TotalAmount:     order.TotalAmount,
		ItemCount:       len(order.Items),
	}
}

// EventType returns the event type name
func (e *OrderPlacedEvent) EventType() string {
	return EventTypeOrderPlaced
}

// OrderStatusChangedEvent is raised for every audited state change.
// Notification dispatch and the activity log subscribe to it.
type OrderStatusChangedEvent struct {
	shared.BaseDomainEvent
	OrderID           uuid.UUID     `json:"order_id"`
	OrderNumber       string        `json:"order_number"`
	CustomerID        uuid.UUID     `json:"customer_id"`
	FromStatus        OrderStatus   `json:"from_status"`
	ToStatus          OrderStatus   `json:"to_status"`
	FromPaymentStatus PaymentStatus `json:"from_payment_status"`
	ToPaymentStatus   PaymentStatus `json:"to_payment_status"`
	Actor             Actor         `json:"actor"`
	Note              string        `json:"note,omitempty"`
}

// NewOrderStatusChangedEvent creates a new OrderStatusChangedEvent
func NewOrderStatusChangedEvent(order *Order, tr *StatusTransition) *OrderStatusChangedEvent {
	return &OrderStatusChangedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeOrderStatusChanged, AggregateTypeOrder, order.ID),
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		CustomerID:        order.CustomerID,
		FromStatus:        tr.From.Status,
		ToStatus:          tr.To.Status,
		FromPaymentStatus: tr.From.Payment,
		ToPaymentStatus:   tr.To.Payment,
		Actor:             tr.Actor,
		Note:              tr.Note,
	}
}

// EventType returns the event type name
func (e *OrderStatusChangedEvent) EventType() string {
	return EventTypeOrderStatusChanged
}
