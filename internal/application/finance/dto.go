package finance

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/format"
)

// ==================== Payment Ledger DTOs ====================

// RecordPaymentRequest records or updates one ledger row
type RecordPaymentRequest struct {
	OrderID       uuid.UUID       `json:"order_id" binding:"required"`
	TransactionID string          `json:"transaction_id" binding:"required,min=1,max=100"`
	Amount        decimal.Decimal `json:"amount" binding:"required"`
	Type          string          `json:"type" binding:"required,payment_plan"`
	Status        string          `json:"status" binding:"required,oneof=pending paid failed cancelled refunded"`
	RawResponse   json.RawMessage `json:"raw_response"`
}

// PaymentResponse is one ledger row as returned by the API.
// Created is true when the call inserted a new row.
type PaymentResponse struct {
	ID            uuid.UUID       `json:"id"`
	OrderID       uuid.UUID       `json:"order_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	AmountDisplay string          `json:"amount_display"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	MethodLabel   string          `json:"method_label"`
	Backfilled    bool            `json:"backfilled"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Created       bool            `json:"created"`
}

// ToPaymentResponse converts a ledger row to its response
func ToPaymentResponse(p *finance.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		TransactionID: p.TransactionID,
		Amount:        p.Amount,
		AmountDisplay: format.FormatAmount(p.Amount),
		Type:          string(p.Type),
		Status:        string(p.Status),
		MethodLabel:   format.PaymentMethodLabel(p.RawResponse),
		Backfilled:    p.Backfilled,
		PaidAt:        p.PaidAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// ToPaymentResponses converts ledger rows to responses
func ToPaymentResponses(payments []*finance.Payment) []PaymentResponse {
	responses := make([]PaymentResponse, len(payments))
	for i, p := range payments {
		responses[i] = ToPaymentResponse(p)
	}
	return responses
}

// BalanceResponse is the derived financial position of an order
type BalanceResponse struct {
	OrderID          uuid.UUID       `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	OrderStatus      string          `json:"order_status"`
	PaymentStatus    string          `json:"payment_status"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	AmountPending    decimal.Decimal `json:"amount_pending"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Overpaid         bool            `json:"overpaid"`
	OverpaidAmount   decimal.Decimal `json:"overpaid_amount"`
	PaymentCount     int             `json:"payment_count"`
	Display          BalanceDisplay  `json:"display"`
}

// BalanceDisplay carries pre-formatted rupiah strings
type BalanceDisplay struct {
	TotalAmount      string `json:"total_amount"`
	AmountPaid       string `json:"amount_paid"`
	RemainingBalance string `json:"remaining_balance"`
}

// ToBalanceResponse builds the balance of order from its ledger totals
func ToBalanceResponse(order *trade.Order, totals finance.PaymentTotals) BalanceResponse {
	b := order.Balance(totals)
	return BalanceResponse{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		OrderStatus:      string(order.Status()),
		PaymentStatus:    string(order.PaymentStatus()),
		TotalAmount:      b.TotalAmount,
		AmountPaid:       b.AmountPaid,
		AmountPending:    totals.AmountPending,
		RemainingBalance: b.RemainingBalance,
		Overpaid:         b.Overpaid,
		OverpaidAmount:   b.OverpaidAmount,
		PaymentCount:     totals.PaymentCount,
		Display: BalanceDisplay{
			TotalAmount:      format.FormatAmount(b.TotalAmount),
			AmountPaid:       format.FormatAmount(b.AmountPaid),
			RemainingBalance: format.FormatAmount(b.RemainingBalance),
		},
	}
}

// ==================== Webhook DTOs ====================

// WebhookResult is the outcome of one gateway notification.
// Ignored is set for stale notifications the ledger refused, e.g. pending after paid.
type WebhookResult struct {
	Success          bool      `json:"success"`
	AlreadyProcessed bool      `json:"already_processed"`
	Ignored          bool      `json:"ignored"`
	OrderID          uuid.UUID `json:"order_id"`
	OrderNumber      string    `json:"order_number"`
	TransactionID    string    `json:"transaction_id"`
	PaymentStatus    string    `json:"payment_status"`
	OrderStatus      string    `json:"order_status,omitempty"`
	Transitioned     bool      `json:"transitioned"`
}
