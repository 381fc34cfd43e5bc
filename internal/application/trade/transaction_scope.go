package trade

import (
	"context"

	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/trade"
)

// TransactionScope runs a unit of work in one database transaction.
// If fn returns an error the transaction is rolled back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories gives access to repositories bound to the
// current transaction. Outbox writes made through them commit with it.
type TransactionalRepositories interface {
	OrderRepo() trade.OrderRepository
	CancellationRepo() trade.CancellationRequestRepository
	PaymentRepo() finance.PaymentRepository
}

// NoOpTransactionScope runs fn against plain repositories without a
// transaction. Used by tests and single-repository callers.
type NoOpTransactionScope struct {
	orderRepo        trade.OrderRepository
	cancellationRepo trade.CancellationRequestRepository
	paymentRepo      finance.PaymentRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	orderRepo trade.OrderRepository,
	cancellationRepo trade.CancellationRequestRepository,
	paymentRepo finance.PaymentRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		orderRepo:        orderRepo,
		cancellationRepo: cancellationRepo,
		paymentRepo:      paymentRepo,
	}
}

// Execute runs fn without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// OrderRepo returns the order repository.
func (s *NoOpTransactionScope) OrderRepo() trade.OrderRepository {
	return s.orderRepo
}

// CancellationRepo returns the cancellation request repository.
func (s *NoOpTransactionScope) CancellationRepo() trade.CancellationRequestRepository {
	return s.cancellationRepo
}

// PaymentRepo returns the payment repository.
func (s *NoOpTransactionScope) PaymentRepo() finance.PaymentRepository {
	return s.paymentRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
