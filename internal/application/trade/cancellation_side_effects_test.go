package trade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/testutil"
)

type sideEffectsFixture struct {
	orderRepo        *testutil.MockOrderRepository
	cancellationRepo *testutil.MockCancellationRequestRepository
	paymentRepo      *testutil.MockPaymentRepository
	gateway          *testutil.MockRefundGateway
	restorer         *testutil.MockStockRestorer
	svc              *CancellationSideEffects
}

func newSideEffectsFixture() *sideEffectsFixture {
	f := &sideEffectsFixture{
		orderRepo:        new(testutil.MockOrderRepository),
		cancellationRepo: new(testutil.MockCancellationRequestRepository),
		paymentRepo:      new(testutil.MockPaymentRepository),
		gateway:          new(testutil.MockRefundGateway),
		restorer:         new(testutil.MockStockRestorer),
	}
	f.svc = NewCancellationSideEffects(CancellationSideEffectsConfig{
		CancellationRepo:  f.cancellationRepo,
		OrderRepo:         f.orderRepo,
		PaymentRepo:       f.paymentRepo,
		RefundGateway:     f.gateway,
		StockRestorer:     f.restorer,
		MaxRefundAttempts: 2,
	})
	return f
}

func TestCancellationSideEffects_ProcessRefund(t *testing.T) {
	ctx := context.Background()

	t.Run("refunds the latest paid transaction and marks the order refunded", func(t *testing.T) {
		f := newSideEffectsFixture()
		order := createTestOrder(t, 600000)
		markPaid(t, order)
		req := approvedCancellation(t, order, decimal.NewFromInt(600000), false)
		refundedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

		f.cancellationRepo.On("FindByID", mock.Anything, req.ID).Return(req, nil)
		f.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.paymentRepo.On("FindByOrder", mock.Anything, order.ID).Return([]*finance.Payment{
			paidPayment(t, order, "TX-OLD"),
			paidPayment(t, order, "TX-NEW"),
		}, nil)
		f.gateway.On("Refund", mock.Anything, mock.MatchedBy(func(r finance.RefundRequest) bool {
			return r.IdempotencyKey == "refund-"+req.ID.String() &&
				r.TransactionID == "TX-NEW" &&
				r.OrderNumber == order.OrderNumber &&
				r.Amount.Equal(decimal.NewFromInt(600000))
		})).Return(&finance.RefundResult{
			RefundTransactionID: "RF-1",
			Amount:              decimal.NewFromInt(600000),
			Completed:           true,
			RefundedAt:          &refundedAt,
		}, nil)
		f.cancellationRepo.On("SaveWithLockAndEvents", mock.Anything, req, mock.MatchedBy(func(events []shared.DomainEvent) bool {
			return len(events) == 1 && events[0].EventType() == trade.EventTypeCancellationRefundCompleted
		})).Return(nil)
		f.orderRepo.On("SaveWithLockAndEvents", mock.Anything, order, mock.Anything).Return(nil)
		f.paymentRepo.On("MarkRefunded", mock.Anything, order.ID).Return(int64(2), nil)

		resp, err := f.svc.ProcessRefund(ctx, req.ID)

		require.NoError(t, err)
		f.paymentRepo.AssertCalled(t, "MarkRefunded", mock.Anything, order.ID)
		assert.Equal(t, "completed", resp.RefundStatus)
		assert.Equal(t, "RF-1", resp.RefundTransactionID)
		assert.Equal(t, 1, resp.RefundAttempts)
		require.NotNil(t, resp.RefundedAt)
		assert.True(t, resp.RefundedAt.Equal(refundedAt))
		assert.Equal(t, trade.OrderStatusCancelled, order.Status())
		assert.Equal(t, trade.PaymentStatusRefunded, order.PaymentStatus())
		f.gateway.AssertExpectations(t)
		f.orderRepo.AssertExpectations(t)
	})

	t.Run("gateway failure is recorded and the approval stands", func(t *testing.T) {
		f := newSideEffectsFixture()
		order := createTestOrder(t, 600000)
		markPaid(t, order)
		req := approvedCancellation(t, order, decimal.NewFromInt(600000), false)

		f.cancellationRepo.On("FindByID", mock.Anything, req.ID).Return(req, nil)
		f.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.paymentRepo.On("FindByOrder", mock.Anything, order.ID).Return([]*finance.Payment{paidPayment(t, order, "TX-1")}, nil)
		f.gateway.On("Refund", mock.Anything, mock.Anything).Return(nil, finance.ErrGatewayUnavailable)
		f.cancellationRepo.On("SaveWithLockAndEvents", mock.Anything, req, mock.MatchedBy(func(events []shared.DomainEvent) bool {
			return len(events) == 1 && events[0].EventType() == trade.EventTypeCancellationRefundFailed
		})).Return(nil)

		resp, err := f.svc.ProcessRefund(ctx, req.ID)

		require.Error(t, err)
		assert.Equal(t, shared.KindExternal, shared.KindOf(err))
		require.NotNil(t, resp)
		assert.Equal(t, "failed", resp.RefundStatus)
		assert.Equal(t, "approved", resp.Status)
		assert.Contains(t, resp.RefundError, "temporarily unavailable")
		assert.Equal(t, trade.PaymentStatusCancelled, order.PaymentStatus())
		f.orderRepo.AssertNotCalled(t, "SaveWithLockAndEvents", mock.Anything, mock.Anything, mock.Anything)
		f.paymentRepo.AssertNotCalled(t, "MarkRefunded", mock.Anything, mock.Anything)
	})

	t.Run("exhausted attempts are not retried", func(t *testing.T) {
		f := newSideEffectsFixture()
		order := createTestOrder(t, 600000)
		markPaid(t, order)
		req := approvedCancellation(t, order, decimal.NewFromInt(600000), false)
		for i := 0; i < 2; i++ {
			require.NoError(t, req.StartRefund(2))
			require.NoError(t, req.FailRefund("timeout"))
		}
		req.ClearDomainEvents()

		f.cancellationRepo.On("FindByID", mock.Anything, req.ID).Return(req, nil)

		resp, err := f.svc.ProcessRefund(ctx, req.ID)

		require.NoError(t, err)
		assert.Equal(t, "failed", resp.RefundStatus)
		f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	})

	t.Run("completed refund is a no-op", func(t *testing.T) {
		f := newSideEffectsFixture()
		order := createTestOrder(t, 600000)
		markPaid(t, order)
		req := approvedCancellation(t, order, decimal.NewFromInt(600000), false)
		require.NoError(t, req.StartRefund(0))
		require.NoError(t, req.CompleteRefund("RF-9", time.Now()))
		req.ClearDomainEvents()

		f.cancellationRepo.On("FindByID", mock.Anything, req.ID).Return(req, nil)

		resp, err := f.svc.ProcessRefund(ctx, req.ID)

		require.NoError(t, err)
		assert.Equal(t, "RF-9", resp.RefundTransactionID)
		f.gateway.AssertNotCalled(t, "Refund", mock.Anything, mock.Anything)
	})

	t.Run("no paid ledger row is a consistency error", func(t *testing.T) {
		f := newSideEffectsFixture()
		order := createTestOrder(t, 600000)
		markPaid(t, order)
		req := approvedCancellation(t, order, decimal.NewFromInt(600000), false)

		f.cancellationRepo.On("FindByID", mock.Anything, req.ID).Return(req, nil)
		f.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.paymentRepo.On("FindByOrder", mock.Anything, order.ID).Return([]*finance.Payment{}, nil)

		_, err := f.svc.ProcessRefund(ctx, req.ID)

		assert.Equal(t, shared.KindConsistency, shared.KindOf(err))
		assert.Equal(t, trade.RefundStatusPending, req.RefundStatus)
	})
}

func TestCancellationSideEffects_RestoreStock(t *testing.T) {
	ctx := context.Background()

	t.Run("restores every product line once", func(t *testing.T) {
		f := newSideEffectsFixture()
		order := createTestOrder(t, 600000)
		req := approvedCancellation(t, order, decimal.Zero, true)

		f.cancellationRepo.On("FindByID", mock.Anything, req.ID).Return(req, nil)
		f.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.restorer.On("RestoreStock", mock.Anything, mock.MatchedBy(func(r trade.StockRestoration) bool {
			return r.CancellationID == req.ID && len(r.Lines) == 1 && r.Lines[0].Quantity == 2
		})).Return(nil)
		f.cancellationRepo.On("SaveWithLock", mock.Anything, req).Return(nil)

		resp, err := f.svc.RestoreStock(ctx, req.ID)

		require.NoError(t, err)
		assert.True(t, resp.StockRestored)
		assert.NotNil(t, resp.StockRestoredAt)
		f.restorer.AssertExpectations(t)
	})

	t.Run("restorer failure leaves the flag unset", func(t *testing.T) {
		f := newSideEffectsFixture()
		order := createTestOrder(t, 600000)
		req := approvedCancellation(t, order, decimal.Zero, true)

		f.cancellationRepo.On("FindByID", mock.Anything, req.ID).Return(req, nil)
		f.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
		f.restorer.On("RestoreStock", mock.Anything, mock.Anything).Return(errors.New("deadlock detected"))

		resp, err := f.svc.RestoreStock(ctx, req.ID)

		assert.Equal(t, shared.KindExternal, shared.KindOf(err))
		assert.False(t, resp.StockRestored)
		f.cancellationRepo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("not requested means nothing to do", func(t *testing.T) {
		f := newSideEffectsFixture()
		order := createTestOrder(t, 600000)
		req := approvedCancellation(t, order, decimal.Zero, false)

		f.cancellationRepo.On("FindByID", mock.Anything, req.ID).Return(req, nil)

		resp, err := f.svc.RestoreStock(ctx, req.ID)

		require.NoError(t, err)
		assert.False(t, resp.StockRestored)
		f.restorer.AssertNotCalled(t, "RestoreStock", mock.Anything, mock.Anything)
	})
}

func TestCancellationSideEffects_RetryPending(t *testing.T) {
	f := newSideEffectsFixture()
	order := createTestOrder(t, 600000)
	req := approvedCancellation(t, order, decimal.Zero, true)

	f.cancellationRepo.On("FindNeedingSideEffects", mock.Anything, 2, 50).Return([]*trade.CancellationRequest{req}, nil)
	f.cancellationRepo.On("FindByID", mock.Anything, req.ID).Return(req, nil)
	f.orderRepo.On("FindByID", mock.Anything, order.ID).Return(order, nil)
	f.restorer.On("RestoreStock", mock.Anything, mock.Anything).Return(nil)
	f.cancellationRepo.On("SaveWithLock", mock.Anything, req).Return(nil)

	report, err := f.svc.RetryPending(context.Background(), 50)

	require.NoError(t, err)
	assert.Equal(t, &SideEffectReport{Scanned: 1, Restored: 1}, report)
}
