package trade

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
)

// ErrCancellationAlreadyPending is returned when an order already has a
// pending cancellation request. The repository maps the unique index
// violation to this error as well.
var ErrCancellationAlreadyPending = &shared.DomainError{
	Code:    "CANCELLATION_ALREADY_PENDING",
	Message: "order already has a pending cancellation request",
	Kind:    shared.KindState,
}

// OrderWithTotals is an order together with its ledger aggregate, loaded in
// one repository call so no caller computes totals on its own.
type OrderWithTotals struct {
	Order  *Order
	Totals finance.PaymentTotals
}

// Balance derives the financial position of the order
func (o OrderWithTotals) Balance() finance.Balance {
	return o.Order.Balance(o.Totals)
}

// OrderRepository defines the interface for order persistence.
// Status fields are only written through SaveWithLock/SaveWithLockAndEvents.
type OrderRepository interface {
	// FindByID finds an order with its items
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByOrderNumber finds an order by its human-readable number
	FindByOrderNumber(ctx context.Context, orderNumber string) (*Order, error)

	// FindWithTotals loads an order and its payment aggregate
	FindWithTotals(ctx context.Context, id uuid.UUID) (*OrderWithTotals, error)

	// FindAllWithTotals lists orders with totals computed by one grouped query
	FindAllWithTotals(ctx context.Context, filter shared.Filter) ([]OrderWithTotals, int64, error)

	// Create inserts a new order with its items and writes events to the outbox
	Create(ctx context.Context, order *Order, events []shared.DomainEvent) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, order *Order) error

	// SaveWithLockAndEvents saves with optimistic locking and persists domain events atomically
	SaveWithLockAndEvents(ctx context.Context, order *Order, events []shared.DomainEvent) error

	// FindOrphanedPaid returns orders marked paid (or further along) that have
	// no payment rows, ordered by id and starting after afterID.
	FindOrphanedPaid(ctx context.Context, afterID uuid.UUID, limit int) ([]*Order, error)

	// FindMissingPaymentOption returns orders without a payment option,
	// ordered by id and starting after afterID.
	FindMissingPaymentOption(ctx context.Context, afterID uuid.UUID, limit int) ([]*Order, error)

	// NextOrderNumber generates the next order number for the given day
	NextOrderNumber(ctx context.Context, at time.Time) (string, error)
}

// CancellationRequestRepository defines the interface for cancellation request persistence
type CancellationRequestRepository interface {
	// FindByID finds a cancellation request
	FindByID(ctx context.Context, id uuid.UUID) (*CancellationRequest, error)

	// FindByOrder lists all requests of an order, newest first
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*CancellationRequest, error)

	// FindPendingByOrder returns the pending request of an order or ErrNotFound
	FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*CancellationRequest, error)

	// Create inserts a new request. A second pending request for the same
	// order yields ErrCancellationAlreadyPending.
	Create(ctx context.Context, req *CancellationRequest, events []shared.DomainEvent) error

	// SaveWithLock saves with optimistic locking (version check)
	SaveWithLock(ctx context.Context, req *CancellationRequest) error

	// SaveWithLockAndEvents saves with optimistic locking and persists domain events atomically
	SaveWithLockAndEvents(ctx context.Context, req *CancellationRequest, events []shared.DomainEvent) error

	// FindNeedingSideEffects returns approved requests whose refund is still
	// retryable or whose stock has not been restored.
	FindNeedingSideEffects(ctx context.Context, maxRefundAttempts, limit int) ([]*CancellationRequest, error)
}
