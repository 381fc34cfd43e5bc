package trade

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
)

// LedgerRecorder receives business counters derived from domain events
type LedgerRecorder interface {
	RecordOrderPlaced(ctx context.Context, amount decimal.Decimal)
	RecordStatusChange(ctx context.Context, from, to string)
	RecordCancellation(ctx context.Context, outcome string)
	RecordRefund(ctx context.Context, outcome string)
}

// Cancellation and refund outcome labels
const (
	MetricOutcomeRequested = "requested"
	MetricOutcomeApproved  = "approved"
	MetricOutcomeRejected  = "rejected"
	MetricOutcomeCompleted = "completed"
	MetricOutcomeFailed    = "failed"
)

// MetricsHandler counts orders, state changes and cancellations as their
// events leave the outbox. It never fails, so a metrics outage cannot
// hold back event delivery.
type MetricsHandler struct {
	recorder LedgerRecorder
}

// NewMetricsHandler creates a MetricsHandler
func NewMetricsHandler(recorder LedgerRecorder) *MetricsHandler {
	return &MetricsHandler{recorder: recorder}
}

// EventTypes returns the event types this handler is interested in
func (h *MetricsHandler) EventTypes() []string {
	return []string{
		trade.EventTypeOrderPlaced,
		trade.EventTypeOrderStatusChanged,
		trade.EventTypeCancellationRequested,
		trade.EventTypeCancellationApproved,
		trade.EventTypeCancellationRejected,
		trade.EventTypeCancellationRefundCompleted,
		trade.EventTypeCancellationRefundFailed,
	}
}

// Handle records the counters for event
func (h *MetricsHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.recorder == nil {
		return nil
	}
	switch e := event.(type) {
	case *trade.OrderPlacedEvent:
		h.recorder.RecordOrderPlaced(ctx, e.TotalAmount)
	case *trade.OrderStatusChangedEvent:
		if e.FromStatus != e.ToStatus {
			h.recorder.RecordStatusChange(ctx, string(e.FromStatus), string(e.ToStatus))
		}
	case *trade.CancellationRequestedEvent:
		h.recorder.RecordCancellation(ctx, MetricOutcomeRequested)
	case *trade.CancellationApprovedEvent:
		h.recorder.RecordCancellation(ctx, MetricOutcomeApproved)
	case *trade.CancellationRejectedEvent:
		h.recorder.RecordCancellation(ctx, MetricOutcomeRejected)
	case *trade.CancellationRefundCompletedEvent:
		h.recorder.RecordRefund(ctx, MetricOutcomeCompleted)
	case *trade.CancellationRefundFailedEvent:
		h.recorder.RecordRefund(ctx, MetricOutcomeFailed)
	}
	return nil
}

var _ shared.EventHandler = (*MetricsHandler)(nil)
