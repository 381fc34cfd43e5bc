package finance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PaymentPlan is the payment arrangement chosen at checkout, and the type of
// an individual payment against it.
type PaymentPlan string

const (
	// PaymentPlanFull settles the whole order in one payment
	PaymentPlanFull PaymentPlan = "full"
	// PaymentPlanDownPayment is the first instalment of a split payment
	PaymentPlanDownPayment PaymentPlan = "dp"
	// PaymentPlanFinal settles what remains after a down payment
	PaymentPlanFinal PaymentPlan = "final"
)

// IsValid returns true if the plan is a known value
func (p PaymentPlan) IsValid() bool {
	switch p {
	case PaymentPlanFull, PaymentPlanDownPayment, PaymentPlanFinal:
		return true
	}
	return false
}

// String returns the string representation of PaymentPlan
func (p PaymentPlan) String() string {
	return string(p)
}

// ParsePaymentPlan parses a plan, accepting the common long spellings
func ParsePaymentPlan(s string) (PaymentPlan, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "full_payment":
		return PaymentPlanFull, nil
	case "dp", "down_payment", "downpayment":
		return PaymentPlanDownPayment, nil
	case "final", "final_payment":
		return PaymentPlanFinal, nil
	}
	return "", shared.NewValidationError("INVALID_PAYMENT_TYPE", "unknown payment type %q", s)
}

// PaymentStatus is the status of a single ledger row
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// IsValid returns true if the status is a known value
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed,
		PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusCancelled || s == PaymentStatusRefunded
}

// CanTransitionTo checks the ledger row lifecycle:
// pending -> paid|failed|cancelled, paid -> refunded.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return target == PaymentStatusPaid || target == PaymentStatusFailed || target == PaymentStatusCancelled
	case PaymentStatusPaid:
		return target == PaymentStatusRefunded
	default:
		return false
	}
}

// Payment is one row of the payment ledger
type Payment struct {
	shared.BaseEntity
	OrderID       uuid.UUID
	TransactionID string
	Amount        decimal.Decimal
	Type          PaymentPlan
	Status        PaymentStatus
	RawResponse   json.RawMessage
	PaidAt        *time.Time
	Backfilled    bool
}

// NewPayment validates and builds a ledger row
func NewPayment(orderID uuid.UUID, transactionID string, amount decimal.Decimal, paymentType PaymentPlan, status PaymentStatus, raw json.RawMessage) (*Payment, error) {
	if orderID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_ORDER", "order id is required")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, shared.NewValidationError("INVALID_TRANSACTION_ID", "transaction id is required")
	}
	if len(transactionID) > 100 {
		return nil, shared.NewValidationError("INVALID_TRANSACTION_ID", "transaction id cannot exceed 100 characters")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "payment amount must be positive")
	}
	if !paymentType.IsValid() {
		return nil, shared.NewValidationError("INVALID_PAYMENT_TYPE", "unknown payment type %q", paymentType)
	}
	if !status.IsValid() {
		return nil, shared.NewValidationError("INVALID_PAYMENT_STATUS", "unknown payment status %q", status)
	}

	p := &Payment{
		BaseEntity:    shared.NewBaseEntity(),
		OrderID:       orderID,
		TransactionID: transactionID,
		Amount:        amount,
		Type:          paymentType,
		Status:        status,
		RawResponse:   raw,
	}
	if status == PaymentStatusPaid {
		paidAt := p.CreatedAt
		p.PaidAt = &paidAt
	}
	return p, nil
}

// NewBackfilledPayment builds the synthetic paid row used to repair an order
// that is marked paid but has no ledger entry.
func NewBackfilledPayment(orderID uuid.UUID, orderNumber string, amount decimal.Decimal, paymentType PaymentPlan, paidAt time.Time) (*Payment, error) {
	raw, err := json.Marshal(map[string]string{
		"source":       "backfill",
		"order_number": orderNumber,
	})
	if err != nil {
		return nil, err
	}
	p, err := NewPayment(orderID, BackfillTransactionID(orderNumber), amount, paymentType, PaymentStatusPaid, raw)
	if err != nil {
		return nil, err
	}
	p.Backfilled = true
	p.PaidAt = &paidAt
	return p, nil
}

// BackfillTransactionID is the deterministic transaction id of a backfilled row.
// Re-running the repair hits the same key.
func BackfillTransactionID(orderNumber string) string {
	return "BACKFILL-" + orderNumber
}

// IsPaid reports whether the row counts toward amount paid
func (p *Payment) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

// ApplyUpdate merges a redelivered record for the same transaction into p.
// It returns false when nothing changed. Only a pending row may change amount.
func (p *Payment) ApplyUpdate(incoming *Payment) (bool, error) {
	if incoming.TransactionID != p.TransactionID {
		return false, shared.NewValidationError("TRANSACTION_MISMATCH",
			"transaction %s cannot update %s", incoming.TransactionID, p.TransactionID)
	}
	if incoming.OrderID != p.OrderID {
		return false, shared.NewConsistencyError("PAYMENT_ORDER_MISMATCH",
			"transaction %s belongs to order %s, not %s", p.TransactionID, p.OrderID, incoming.OrderID)
	}

	amountChanged := !incoming.Amount.Equal(p.Amount)
	if amountChanged && p.Status != PaymentStatusPending {
		return false, shared.NewStateError("PAYMENT_AMOUNT_IMMUTABLE",
			"amount of %s payment %s cannot change from %s to %s",
			p.Status, p.TransactionID, p.Amount.String(), incoming.Amount.String())
	}

	statusChanged := incoming.Status != p.Status
	if statusChanged && !p.Status.CanTransitionTo(incoming.Status) {
		return false, shared.NewStateError("INVALID_PAYMENT_TRANSITION",
			"payment %s cannot move from %s to %s", p.TransactionID, p.Status, incoming.Status)
	}

	if !amountChanged && !statusChanged {
		return false, nil
	}

	if amountChanged {
		p.Amount = incoming.Amount
	}
	if statusChanged {
		p.Status = incoming.Status
		if incoming.Status == PaymentStatusPaid {
			now := time.Now()
			p.PaidAt = &now
		}
	}
	if len(incoming.RawResponse) > 0 {
		p.RawResponse = incoming.RawResponse
	}
	p.Touch()
	return true, nil
}

// String is used in log lines
func (p *Payment) String() string {
	return fmt.Sprintf("%s[%s %s %s]", p.TransactionID, p.Type, p.Status, p.Amount.String())
}
