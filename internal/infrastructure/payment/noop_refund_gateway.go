package payment

import (
	"context"
	"time"

	"github.com/invitely/backend/internal/domain/finance"
)

// NoopRefundGateway completes refunds immediately with a manual reference.
// It is used when refunds are paid out by bank transfer outside the system.
type NoopRefundGateway struct{}

// NewNoopRefundGateway creates a NoopRefundGateway
func NewNoopRefundGateway() *NoopRefundGateway {
	return &NoopRefundGateway{}
}

// Refund implements finance.RefundGateway
func (NoopRefundGateway) Refund(_ context.Context, req finance.RefundRequest) (*finance.RefundResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := time.Now()
	return &finance.RefundResult{
		RefundTransactionID: "MANUAL-" + req.IdempotencyKey,
		Amount:              req.Amount,
		Completed:           true,
		RefundedAt:          &now,
	}, nil
}

var _ finance.RefundGateway = NoopRefundGateway{}
