package trade

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
)

// CancellationApprovedHandler runs refund and stock restoration once an
// approval has been committed.
type CancellationApprovedHandler struct {
	sideEffects *CancellationSideEffects
	logger      *zap.Logger
}

// NewCancellationApprovedHandler creates a new handler for cancellation approved events
func NewCancellationApprovedHandler(sideEffects *CancellationSideEffects, logger *zap.Logger) *CancellationApprovedHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CancellationApprovedHandler{
		sideEffects: sideEffects,
		logger:      logger,
	}
}

// EventTypes returns the event types this handler is interested in
func (h *CancellationApprovedHandler) EventTypes() []string {
	return []string{trade.EventTypeCancellationApproved}
}

// Handle processes a CancellationApprovedEvent. Side-effect failures are
// recorded on the request and left to the retry job, so they do not fail
// event delivery.
func (h *CancellationApprovedHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	approved, ok := event.(*trade.CancellationApprovedEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", trade.EventTypeCancellationApproved),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			trade.EventTypeCancellationApproved, event.EventType())
	}

	if !approved.RefundInitiated && !approved.RestoreStock {
		return nil
	}

	h.logger.Info("processing cancellation approved event",
		zap.String("cancellation_id", approved.CancellationID.String()),
		zap.String("order_id", approved.OrderID.String()),
		zap.Bool("refund_initiated", approved.RefundInitiated),
		zap.Bool("restore_stock", approved.RestoreStock),
	)

	if _, err := h.sideEffects.Process(ctx, approved.CancellationID); err != nil {
		h.logger.Warn("cancellation side effects deferred to retry job",
			zap.String("cancellation_id", approved.CancellationID.String()),
			zap.Error(err),
		)
	}
	return nil
}

var _ shared.EventHandler = (*CancellationApprovedHandler)(nil)
