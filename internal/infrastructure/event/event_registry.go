package event

import (
	"github.com/invitely/backend/internal/domain/trade"
)

// RegisterAllEvents registers every event the order ledger writes to the
// outbox. The outbox processor cannot deliver an unregistered type.
func RegisterAllEvents(serializer *EventSerializer) {
	// Orders
	serializer.Register(trade.EventTypeOrderPlaced, &trade.OrderPlacedEvent{})
	serializer.Register(trade.EventTypeOrderStatusChanged, &trade.OrderStatusChangedEvent{})

	// Cancellation requests
	serializer.Register(trade.EventTypeCancellationRequested, &trade.CancellationRequestedEvent{})
	serializer.Register(trade.EventTypeCancellationApproved, &trade.CancellationApprovedEvent{})
	serializer.Register(trade.EventTypeCancellationRejected, &trade.CancellationRejectedEvent{})
	serializer.Register(trade.EventTypeCancellationRefundCompleted, &trade.CancellationRefundCompletedEvent{})
	serializer.Register(trade.EventTypeCancellationRefundFailed, &trade.CancellationRefundFailedEvent{})
}
