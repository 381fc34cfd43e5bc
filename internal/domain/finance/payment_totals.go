package finance

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentTotals is the per-order aggregate of the ledger.
// AmountPaid only ever counts rows with status paid.
type PaymentTotals struct {
	OrderID       uuid.UUID
	AmountPaid    decimal.Decimal
	AmountPending decimal.Decimal
	PaidCount     int
	PaymentCount  int
}

// EmptyTotals is the aggregate of an order with no ledger rows
func EmptyTotals(orderID uuid.UUID) PaymentTotals {
	return PaymentTotals{
		OrderID:       orderID,
		AmountPaid:    decimal.Zero,
		AmountPending: decimal.Zero,
	}
}

// SumTotals folds ledger rows into totals. Used for in-memory checks; the
// repository computes the same figure with a single aggregate query.
func SumTotals(orderID uuid.UUID, payments []*Payment) PaymentTotals {
	totals := EmptyTotals(orderID)
	for _, p := range payments {
		if p.OrderID != orderID {
			continue
		}
		totals.PaymentCount++
		switch p.Status {
		case PaymentStatusPaid:
			totals.PaidCount++
			totals.AmountPaid = totals.AmountPaid.Add(p.Amount)
		case PaymentStatusPending:
			totals.AmountPending = totals.AmountPending.Add(p.Amount)
		}
	}
	return totals
}

// HasPayments reports whether any ledger row exists
func (t PaymentTotals) HasPayments() bool {
	return t.PaymentCount > 0
}

// Balance is the derived financial position of an order
type Balance struct {
	TotalAmount      decimal.Decimal `json:"total_amount"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
	Overpaid         bool            `json:"overpaid"`
	OverpaidAmount   decimal.Decimal `json:"overpaid_amount"`
}

// ComputeBalance derives remaining balance from an order total and the
// amount paid. RemainingBalance is total - paid and is allowed to go
// negative, in which case Overpaid is set so callers can flag it.
func ComputeBalance(total, paid decimal.Decimal) Balance {
	remaining := total.Sub(paid)
	b := Balance{
		TotalAmount:      total,
		AmountPaid:       paid,
		RemainingBalance: remaining,
		OverpaidAmount:   decimal.Zero,
	}
	if remaining.IsNegative() {
		b.Overpaid = true
		b.OverpaidAmount = remaining.Neg()
	}
	return b
}

// IsSettled reports whether nothing remains to be paid
func (b Balance) IsSettled() bool {
	return !b.RemainingBalance.IsPositive()
}
