package finance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrGatewayNotConfigured   = errors.New("payment: gateway not configured")
	ErrGatewayUnavailable     = errors.New("payment: gateway temporarily unavailable")
	ErrGatewayRequestFailed   = errors.New("payment: gateway request failed")
	ErrGatewayInvalidResponse = errors.New("payment: invalid gateway response")
	ErrGatewayInvalidCallback = errors.New("payment: invalid callback signature")

	ErrRefundInvalidAmount  = errors.New("refund: invalid refund amount")
	ErrRefundInvalidOrder   = errors.New("refund: missing order reference")
	ErrRefundInvalidRequest = errors.New("refund: missing idempotency key")
)

// PaymentNotification is a verified, gateway-neutral payment webhook
type PaymentNotification struct {
	Gateway       string
	OrderNumber   string
	TransactionID string
	Amount        decimal.Decimal
	Status        PaymentStatus
	Plan          PaymentPlan // from the gateway order id suffix; empty when unknown
	PaymentType   string      // gateway payment method, e.g. bank_transfer
	FraudStatus   string
	OccurredAt    *time.Time
	RawPayload    json.RawMessage
}

// DedupKey identifies one delivery of one status for one transaction
func (n *PaymentNotification) DedupKey() string {
	return "payment:" + n.Gateway + ":" + n.TransactionID + ":" + string(n.Status)
}

// NotificationVerifier authenticates and parses gateway webhooks
type NotificationVerifier interface {
	// Name returns the gateway identifier, e.g. "midtrans"
	Name() string
	// VerifyNotification checks the payload signature and maps it to a notification
	VerifyNotification(ctx context.Context, payload []byte) (*PaymentNotification, error)
}

// RefundRequest asks a gateway to return money for a cancelled order
type RefundRequest struct {
	// IdempotencyKey must be stable across retries of the same refund
	IdempotencyKey string
	OrderID        uuid.UUID
	OrderNumber    string
	TransactionID  string
	Amount         decimal.Decimal
	Reason         string
}

// Validate checks the request before it leaves the process
func (r *RefundRequest) Validate() error {
	if r.IdempotencyKey == "" {
		return ErrRefundInvalidRequest
	}
	if r.OrderNumber == "" {
		return ErrRefundInvalidOrder
	}
	if !r.Amount.IsPositive() {
		return ErrRefundInvalidAmount
	}
	return nil
}

// RefundResult is the gateway's answer to a refund request
type RefundResult struct {
	RefundTransactionID string
	Amount              decimal.Decimal
	// Completed is false when the gateway accepted the refund asynchronously
	Completed   bool
	RefundedAt  *time.Time
	RawResponse json.RawMessage
}

// RefundGateway issues refunds. Implementations must treat IdempotencyKey as
// the deduplication key so retries never pay out twice.
type RefundGateway interface {
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}
