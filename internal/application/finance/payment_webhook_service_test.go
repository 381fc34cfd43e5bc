package finance

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/testutil"
)

type mockOrderSyncer struct {
	mock.Mock
}

func (m *mockOrderSyncer) SyncPaymentState(ctx context.Context, orderID uuid.UUID) (*trade.StatusTransition, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trade.StatusTransition), args.Error(1)
}

type webhookFixture struct {
	verifier    *testutil.MockNotificationVerifier
	orderRepo   *testutil.MockOrderRepository
	paymentRepo *testutil.MockPaymentRepository
	syncer      *mockOrderSyncer
	store       *testutil.MockIdempotencyStore
	svc         *PaymentWebhookService
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		verifier:    new(testutil.MockNotificationVerifier),
		orderRepo:   new(testutil.MockOrderRepository),
		paymentRepo: new(testutil.MockPaymentRepository),
		syncer:      new(mockOrderSyncer),
		store:       new(testutil.MockIdempotencyStore),
	}
	f.verifier.On("Name").Return("midtrans")
	f.svc = NewPaymentWebhookService(PaymentWebhookServiceConfig{
		Verifiers:   []finance.NotificationVerifier{f.verifier},
		Ledger:      newLedgerService(f.orderRepo, f.paymentRepo),
		OrderRepo:   f.orderRepo,
		OrderSyncer: f.syncer,
		Idempotency: f.store,
	})
	return f
}

func settlementFor(order *trade.Order, amount int64) *finance.PaymentNotification {
	return &finance.PaymentNotification{
		Gateway:       "midtrans",
		OrderNumber:   order.OrderNumber,
		TransactionID: "tx-" + order.OrderNumber,
		Amount:        decimal.NewFromInt(amount),
		Status:        finance.PaymentStatusPaid,
		RawPayload:    []byte(`{"payment_type":"gopay"}`),
	}
}

func TestPaymentWebhookService_HandleNotification(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"order_id":"INV-20260101-00001"}`)

	t.Run("records the payment and syncs the order", func(t *testing.T) {
		f := newWebhookFixture()
		order := createTestOrder(t, 500000)
		n := settlementFor(order, 500000)
		paid := trade.PaymentStatusPaid
		next, err := order.State.Next(trade.OrderStatusPaid, &paid)
		require.NoError(t, err)

		f.verifier.On("VerifyNotification", mock.Anything, payload).Return(n, nil)
		f.store.On("MarkProcessed", mock.Anything, n.DedupKey(), mock.Anything).Return(true, nil)
		f.orderRepo.On("FindByOrderNumber", mock.Anything, order.OrderNumber).Return(order, nil)
		f.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.paymentRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(p *finance.Payment) bool {
			return p.Type == finance.PaymentPlanFull && p.Status == finance.PaymentStatusPaid
		})).Return(func(_ context.Context, p *finance.Payment) *finance.Payment { return p }, true, nil)
		f.syncer.On("SyncPaymentState", mock.Anything, order.ID).
			Return(&trade.StatusTransition{From: order.State, To: next}, nil)

		result, err := f.svc.HandleNotification(ctx, "midtrans", payload)

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.False(t, result.AlreadyProcessed)
		assert.True(t, result.Transitioned)
		assert.Equal(t, "paid", result.OrderStatus)
		assert.Equal(t, order.ID, result.OrderID)
		f.syncer.AssertExpectations(t)
		f.store.AssertNotCalled(t, "Forget", mock.Anything, mock.Anything)
	})

	t.Run("uses the plan from the gateway order id", func(t *testing.T) {
		f := newWebhookFixture()
		order := createTestOrder(t, 500000)
		n := settlementFor(order, 200000)
		n.Plan = finance.PaymentPlanDownPayment

		f.verifier.On("VerifyNotification", mock.Anything, payload).Return(n, nil)
		f.store.On("MarkProcessed", mock.Anything, n.DedupKey(), mock.Anything).Return(true, nil)
		f.orderRepo.On("FindByOrderNumber", mock.Anything, order.OrderNumber).Return(order, nil)
		f.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.paymentRepo.On("Upsert", mock.Anything, mock.MatchedBy(func(p *finance.Payment) bool {
			return p.Type == finance.PaymentPlanDownPayment
		})).Return(func(_ context.Context, p *finance.Payment) *finance.Payment { return p }, true, nil)
		f.syncer.On("SyncPaymentState", mock.Anything, order.ID).Return(nil, nil)

		result, err := f.svc.HandleNotification(ctx, "midtrans", payload)

		require.NoError(t, err)
		assert.False(t, result.Transitioned)
		assert.Equal(t, "pending_payment", result.OrderStatus)
		f.paymentRepo.AssertExpectations(t)
	})

	t.Run("duplicate delivery is acknowledged without side effects", func(t *testing.T) {
		f := newWebhookFixture()
		order := createTestOrder(t, 500000)
		n := settlementFor(order, 500000)

		f.verifier.On("VerifyNotification", mock.Anything, payload).Return(n, nil)
		f.store.On("MarkProcessed", mock.Anything, n.DedupKey(), mock.Anything).Return(false, nil)

		result, err := f.svc.HandleNotification(ctx, "midtrans", payload)

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.True(t, result.AlreadyProcessed)
		f.orderRepo.AssertNotCalled(t, "FindByOrderNumber", mock.Anything, mock.Anything)
		f.paymentRepo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("sync failure releases the key and returns the error", func(t *testing.T) {
		f := newWebhookFixture()
		order := createTestOrder(t, 500000)
		n := settlementFor(order, 500000)

		f.verifier.On("VerifyNotification", mock.Anything, payload).Return(n, nil)
		f.store.On("MarkProcessed", mock.Anything, n.DedupKey(), mock.Anything).Return(true, nil)
		f.store.On("Forget", mock.Anything, n.DedupKey()).Return(nil)
		f.orderRepo.On("FindByOrderNumber", mock.Anything, order.OrderNumber).Return(order, nil)
		f.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.paymentRepo.On("Upsert", mock.Anything, mock.Anything).
			Return(func(_ context.Context, p *finance.Payment) *finance.Payment { return p }, true, nil)
		f.syncer.On("SyncPaymentState", mock.Anything, order.ID).Return(nil, shared.ErrConcurrencyConflict)

		_, err := f.svc.HandleNotification(ctx, "midtrans", payload)

		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		f.paymentRepo.AssertCalled(t, "Upsert", mock.Anything, mock.Anything)
		f.store.AssertCalled(t, "Forget", mock.Anything, n.DedupKey())
	})

	t.Run("stale notification is ignored", func(t *testing.T) {
		f := newWebhookFixture()
		order := createTestOrder(t, 500000)
		n := settlementFor(order, 500000)
		n.Status = finance.PaymentStatusPending

		f.verifier.On("VerifyNotification", mock.Anything, payload).Return(n, nil)
		f.store.On("MarkProcessed", mock.Anything, n.DedupKey(), mock.Anything).Return(true, nil)
		f.orderRepo.On("FindByOrderNumber", mock.Anything, order.OrderNumber).Return(order, nil)
		f.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.paymentRepo.On("Upsert", mock.Anything, mock.Anything).Return(nil, false,
			shared.NewStateError("INVALID_PAYMENT_TRANSITION", "payment cannot move from paid to pending"))

		result, err := f.svc.HandleNotification(ctx, "midtrans", payload)

		require.NoError(t, err)
		assert.True(t, result.Ignored)
		f.syncer.AssertNotCalled(t, "SyncPaymentState", mock.Anything, mock.Anything)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newWebhookFixture()
		order := createTestOrder(t, 500000)
		n := settlementFor(order, 500000)

		f.verifier.On("VerifyNotification", mock.Anything, payload).Return(n, nil)
		f.store.On("MarkProcessed", mock.Anything, n.DedupKey(), mock.Anything).Return(true, nil)
		f.store.On("Forget", mock.Anything, n.DedupKey()).Return(nil)
		f.orderRepo.On("FindByOrderNumber", mock.Anything, order.OrderNumber).Return(nil, shared.ErrNotFound)

		_, err := f.svc.HandleNotification(ctx, "midtrans", payload)

		assert.ErrorIs(t, err, ErrWebhookOrderNotFound)
	})

	t.Run("idempotency store outage falls back to the ledger upsert", func(t *testing.T) {
		f := newWebhookFixture()
		order := createTestOrder(t, 500000)
		n := settlementFor(order, 500000)

		f.verifier.On("VerifyNotification", mock.Anything, payload).Return(n, nil)
		f.store.On("MarkProcessed", mock.Anything, n.DedupKey(), mock.Anything).Return(false, errors.New("redis down"))
		f.orderRepo.On("FindByOrderNumber", mock.Anything, order.OrderNumber).Return(order, nil)
		f.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.paymentRepo.On("Upsert", mock.Anything, mock.Anything).
			Return(func(_ context.Context, p *finance.Payment) *finance.Payment { return p }, false, nil)
		f.syncer.On("SyncPaymentState", mock.Anything, order.ID).Return(nil, nil)

		result, err := f.svc.HandleNotification(ctx, "midtrans", payload)

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.False(t, result.AlreadyProcessed)
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newWebhookFixture()
		f.verifier.On("VerifyNotification", mock.Anything, payload).Return(nil, finance.ErrGatewayInvalidCallback)

		_, err := f.svc.HandleNotification(ctx, "midtrans", payload)

		assert.ErrorIs(t, err, ErrWebhookVerificationFailed)
		f.store.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unregistered gateway", func(t *testing.T) {
		f := newWebhookFixture()

		_, err := f.svc.HandleNotification(ctx, "xendit", payload)

		assert.ErrorIs(t, err, ErrWebhookGatewayNotRegistered)
	})
}
