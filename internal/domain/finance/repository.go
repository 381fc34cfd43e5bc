package finance

import (
	"context"

	"github.com/google/uuid"
)

// PaymentRepository persists the payment ledger
type PaymentRepository interface {
	// Upsert inserts p or merges it into the row with the same transaction id.
	// It returns the stored row and whether a new row was inserted.
	Upsert(ctx context.Context, p *Payment) (*Payment, bool, error)
	// InsertIfAbsent inserts p unless its transaction id exists; returns whether it inserted
	InsertIfAbsent(ctx context.Context, p *Payment) (bool, error)
	// FindByTransactionID finds a ledger row by gateway transaction id
	FindByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	// FindByOrder lists all ledger rows of an order, oldest first
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*Payment, error)
	// FindEarliestByOrder returns the first ledger row of an order, or ErrNotFound
	FindEarliestByOrder(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	// SumPaid returns the paid total of one order with a single aggregate query
	SumPaid(ctx context.Context, orderID uuid.UUID) (PaymentTotals, error)
	// SumPaidBulk returns totals for many orders with a single grouped query.
	// Orders without rows are present with zero totals.
	SumPaidBulk(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]PaymentTotals, error)
	// ExistsForOrder reports whether any ledger row exists for the order
	ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	// MarkRefunded moves every paid row of the order to refunded and
	// returns how many rows moved
	MarkRefunded(ctx context.Context, orderID uuid.UUID) (int64, error)
}
