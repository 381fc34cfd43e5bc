package testutil

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
)

// =============================================================================
// Order Repository
// =============================================================================

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*trade.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trade.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*trade.Order, error) {
	args := m.Called(ctx, orderNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trade.Order), args.Error(1)
}

func (m *MockOrderRepository) FindWithTotals(ctx context.Context, id uuid.UUID) (*trade.OrderWithTotals, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trade.OrderWithTotals), args.Error(1)
}

func (m *MockOrderRepository) FindAllWithTotals(ctx context.Context, filter shared.Filter) ([]trade.OrderWithTotals, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]trade.OrderWithTotals), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) Create(ctx context.Context, order *trade.Order, events []shared.DomainEvent) error {
	args := m.Called(ctx, order, events)
	return args.Error(0)
}

func (m *MockOrderRepository) SaveWithLock(ctx context.Context, order *trade.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) SaveWithLockAndEvents(ctx context.Context, order *trade.Order, events []shared.DomainEvent) error {
	args := m.Called(ctx, order, events)
	return args.Error(0)
}

func (m *MockOrderRepository) FindOrphanedPaid(ctx context.Context, afterID uuid.UUID, limit int) ([]*trade.Order, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*trade.Order), args.Error(1)
}

func (m *MockOrderRepository) FindMissingPaymentOption(ctx context.Context, afterID uuid.UUID, limit int) ([]*trade.Order, error) {
	args := m.Called(ctx, afterID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*trade.Order), args.Error(1)
}

func (m *MockOrderRepository) NextOrderNumber(ctx context.Context, at time.Time) (string, error) {
	args := m.Called(ctx, at)
	return args.String(0), args.Error(1)
}

// =============================================================================
// Cancellation Request Repository
// =============================================================================

type MockCancellationRequestRepository struct {
	mock.Mock
}

func (m *MockCancellationRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*trade.CancellationRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trade.CancellationRequest), args.Error(1)
}

func (m *MockCancellationRequestRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*trade.CancellationRequest, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*trade.CancellationRequest), args.Error(1)
}

func (m *MockCancellationRequestRepository) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*trade.CancellationRequest, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trade.CancellationRequest), args.Error(1)
}

func (m *MockCancellationRequestRepository) Create(ctx context.Context, req *trade.CancellationRequest, events []shared.DomainEvent) error {
	args := m.Called(ctx, req, events)
	return args.Error(0)
}

func (m *MockCancellationRequestRepository) SaveWithLock(ctx context.Context, req *trade.CancellationRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockCancellationRequestRepository) SaveWithLockAndEvents(ctx context.Context, req *trade.CancellationRequest, events []shared.DomainEvent) error {
	args := m.Called(ctx, req, events)
	return args.Error(0)
}

func (m *MockCancellationRequestRepository) FindNeedingSideEffects(ctx context.Context, maxRefundAttempts, limit int) ([]*trade.CancellationRequest, error) {
	args := m.Called(ctx, maxRefundAttempts, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*trade.CancellationRequest), args.Error(1)
}

// =============================================================================
// Payment Repository
// =============================================================================

type MockPaymentRepository struct {
	mock.Mock
}

// Upsert also accepts a func(ctx, p) *finance.Payment as first return value
// so a test can echo the row it was given.
func (m *MockPaymentRepository) Upsert(ctx context.Context, p *finance.Payment) (*finance.Payment, bool, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	if fn, ok := args.Get(0).(func(context.Context, *finance.Payment) *finance.Payment); ok {
		return fn(ctx, p), args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*finance.Payment), args.Bool(1), args.Error(2)
}

func (m *MockPaymentRepository) InsertIfAbsent(ctx context.Context, p *finance.Payment) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*finance.Payment, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finance.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*finance.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*finance.Payment), args.Error(1)
}

func (m *MockPaymentRepository) FindEarliestByOrder(ctx context.Context, orderID uuid.UUID) (*finance.Payment, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finance.Payment), args.Error(1)
}

func (m *MockPaymentRepository) SumPaid(ctx context.Context, orderID uuid.UUID) (finance.PaymentTotals, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(finance.PaymentTotals), args.Error(1)
}

func (m *MockPaymentRepository) SumPaidBulk(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]finance.PaymentTotals, error) {
	args := m.Called(ctx, orderIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]finance.PaymentTotals), args.Error(1)
}

func (m *MockPaymentRepository) ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func (m *MockPaymentRepository) MarkRefunded(ctx context.Context, orderID uuid.UUID) (int64, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(int64), args.Error(1)
}

// =============================================================================
// Gateways and collaborators
// =============================================================================

type MockRefundGateway struct {
	mock.Mock
}

func (m *MockRefundGateway) Refund(ctx context.Context, req finance.RefundRequest) (*finance.RefundResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finance.RefundResult), args.Error(1)
}

type MockNotificationVerifier struct {
	mock.Mock
}

func (m *MockNotificationVerifier) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockNotificationVerifier) VerifyNotification(ctx context.Context, payload []byte) (*finance.PaymentNotification, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*finance.PaymentNotification), args.Error(1)
}

type MockStockRestorer struct {
	mock.Mock
}

func (m *MockStockRestorer) RestoreStock(ctx context.Context, restoration trade.StockRestoration) error {
	args := m.Called(ctx, restoration)
	return args.Error(0)
}

type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Forget(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

// compile-time checks
var (
	_ trade.OrderRepository               = (*MockOrderRepository)(nil)
	_ trade.CancellationRequestRepository = (*MockCancellationRequestRepository)(nil)
	_ finance.PaymentRepository           = (*MockPaymentRepository)(nil)
	_ finance.RefundGateway               = (*MockRefundGateway)(nil)
	_ finance.NotificationVerifier        = (*MockNotificationVerifier)(nil)
	_ trade.StockRestorer                 = (*MockStockRestorer)(nil)
	_ shared.IdempotencyStore             = (*MockIdempotencyStore)(nil)
	_ shared.EventPublisher               = (*MockEventPublisher)(nil)
	_ shared.EventHandler                 = (*MockEventHandler)(nil)
)
