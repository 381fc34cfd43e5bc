package trade

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/format"
)

// Notification is a customer-facing message derived from a domain event.
// Delivery (email, WhatsApp) belongs to the Notifier implementation.
type Notification struct {
	Kind        string
	EventID     uuid.UUID
	OrderID     uuid.UUID
	OrderNumber string
	CustomerID  uuid.UUID
	Subject     string
	Message     string
}

// Notifier delivers notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification
func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	n.logger.Info("Notification",
		zap.String("kind", notification.Kind),
		zap.String("event_id", notification.EventID.String()),
		zap.String("order_number", notification.OrderNumber),
		zap.String("customer_id", notification.CustomerID.String()),
		zap.String("subject", notification.Subject),
		zap.String("message", notification.Message))
	return nil
}

// NotificationHandler turns order and cancellation events into notifications
type NotificationHandler struct {
	notifier Notifier
	logger   *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifier Notifier, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{notifier: notifier, logger: logger}
}

// EventTypes returns the event types this handler is interested in
func (h *NotificationHandler) EventTypes() []string {
	return []string{
		trade.EventTypeOrderPlaced,
		trade.EventTypeOrderStatusChanged,
		trade.EventTypeCancellationRequested,
		trade.EventTypeCancellationApproved,
		trade.EventTypeCancellationRejected,
		trade.EventTypeCancellationRefundCompleted,
	}
}

// Handle builds and sends the notification for event
func (h *NotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	n, ok := buildNotification(event)
	if !ok {
		return nil
	}
	n.EventID = event.EventID()
	if err := h.notifier.Notify(ctx, n); err != nil {
		h.logger.Error("failed to send notification",
			zap.String("kind", n.Kind),
			zap.String("order_number", n.OrderNumber),
			zap.Error(err))
		return fmt.Errorf("notify %s for %s: %w", n.Kind, n.OrderNumber, err)
	}
	return nil
}

func buildNotification(event shared.DomainEvent) (Notification, bool) {
	switch e := event.(type) {
	case *trade.OrderPlacedEvent:
		return Notification{
			Kind:        "order_placed",
			OrderID:     e.OrderID,
			OrderNumber: e.OrderNumber,
			CustomerID:  e.CustomerID,
			Subject:     "Order " + e.OrderNumber + " received",
			Message:     "We have received your order and are waiting for payment.",
		}, true
	case *trade.OrderStatusChangedEvent:
		if e.FromStatus == e.ToStatus {
			if e.ToPaymentStatus != trade.PaymentStatusPaid && e.ToPaymentStatus != trade.PaymentStatusRefunded {
				return Notification{}, false
			}
			return Notification{
				Kind:        "payment_" + string(e.ToPaymentStatus),
				OrderID:     e.OrderID,
				OrderNumber: e.OrderNumber,
				CustomerID:  e.CustomerID,
				Subject:     "Order " + e.OrderNumber + " payment update",
				Message:     fmt.Sprintf("Payment for order %s is now %s.", e.OrderNumber, e.ToPaymentStatus),
			}, true
		}
		return Notification{
			Kind:        "order_status_changed",
			OrderID:     e.OrderID,
			OrderNumber: e.OrderNumber,
			CustomerID:  e.CustomerID,
			Subject:     "Order " + e.OrderNumber + " is now " + e.ToStatus.Label(),
			Message:     fmt.Sprintf("Your order moved from %s to %s.", e.FromStatus.Label(), e.ToStatus.Label()),
		}, true
	case *trade.CancellationRequestedEvent:
		return Notification{
			Kind:        "cancellation_requested",
			OrderID:     e.OrderID,
			OrderNumber: e.OrderNumber,
			CustomerID:  e.RequestedBy,
			Subject:     "Cancellation request for " + e.OrderNumber,
			Message:     "Your cancellation request is waiting for review.",
		}, true
	case *trade.CancellationApprovedEvent:
		msg := "Your cancellation request was approved."
		if e.RefundInitiated {
			msg = fmt.Sprintf("Your cancellation request was approved. A refund of %s is on its way.", format.FormatAmount(e.RefundAmount))
		}
		return Notification{
			Kind:        "cancellation_approved",
			OrderID:     e.OrderID,
			OrderNumber: e.OrderNumber,
			Subject:     "Order " + e.OrderNumber + " cancelled",
			Message:     msg,
		}, true
	case *trade.CancellationRejectedEvent:
		return Notification{
			Kind:        "cancellation_rejected",
			OrderID:     e.OrderID,
			OrderNumber: e.OrderNumber,
			CustomerID:  e.RequestedBy,
			Subject:     "Cancellation request for " + e.OrderNumber + " declined",
			Message:     e.AdminNotes,
		}, true
	case *trade.CancellationRefundCompletedEvent:
		return Notification{
			Kind:        "refund_completed",
			OrderID:     e.OrderID,
			OrderNumber: e.OrderNumber,
			Subject:     "Refund for " + e.OrderNumber + " completed",
			Message:     fmt.Sprintf("Refund reference %s.", e.RefundTransactionID),
		}, true
	}
	return Notification{}, false
}

var (
	_ shared.EventHandler = (*NotificationHandler)(nil)
	_ Notifier            = (*LogNotifier)(nil)
)
