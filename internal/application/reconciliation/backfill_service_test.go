package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

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

func paidOrder(t *testing.T, number string, total int64) *trade.Order {
	t.Helper()
	item, err := trade.NewOrderItem(uuid.New(), "Laser Cut Invitation", 1, decimal.NewFromInt(total))
	require.NoError(t, err)
	order, err := trade.NewOrder(trade.NewOrderInput{
		OrderNumber: number,
		CustomerID:  testutil.TestCustomerID(),
		Items:       []trade.OrderItem{item},
	})
	require.NoError(t, err)
	_, err = order.TransitionTo(trade.OrderStatusPaid, trade.TransitionCommand{Actor: trade.SystemActor()})
	require.NoError(t, err)
	order.ClearDomainEvents()
	return order
}

func newBackfillService(orderRepo *testutil.MockOrderRepository, paymentRepo *testutil.MockPaymentRepository) *BackfillService {
	return NewBackfillService(BackfillServiceConfig{
		OrderRepo:   orderRepo,
		PaymentRepo: paymentRepo,
	})
}

func TestBackfillService_BackfillOrphanedPayments(t *testing.T) {
	ctx := context.Background()

	t.Run("creates one synthetic row per orphaned order", func(t *testing.T) {
		orderRepo := new(testutil.MockOrderRepository)
		paymentRepo := new(testutil.MockPaymentRepository)
		svc := newBackfillService(orderRepo, paymentRepo)
		order := paidOrder(t, "INV-20250101-00001", 750000)

		orderRepo.On("FindOrphanedPaid", mock.Anything, uuid.Nil, DefaultChunkSize).Return([]*trade.Order{order}, nil)
		paymentRepo.On("ExistsForOrder", mock.Anything, order.ID).Return(false, nil)
		paymentRepo.On("InsertIfAbsent", mock.Anything, mock.MatchedBy(func(p *finance.Payment) bool {
			return p.TransactionID == "BACKFILL-INV-20250101-00001" &&
				p.Backfilled &&
				p.Status == finance.PaymentStatusPaid &&
				p.Type == finance.PaymentPlanFull &&
				p.Amount.Equal(decimal.NewFromInt(750000)) &&
				p.PaidAt != nil && p.PaidAt.Equal(*order.PaidAt)
		})).Return(true, nil)

		report, err := svc.BackfillOrphanedPayments(ctx, BackfillOptions{})

		require.NoError(t, err)
		assert.Equal(t, 1, report.Scanned)
		assert.Equal(t, 1, report.Changed)
		require.Len(t, report.Changes, 1)
		assert.Equal(t, "create_payment", report.Changes[0].Action)
		paymentRepo.AssertExpectations(t)
	})

	t.Run("order that gained a payment meanwhile is a no-op", func(t *testing.T) {
		orderRepo := new(testutil.MockOrderRepository)
		paymentRepo := new(testutil.MockPaymentRepository)
		svc := newBackfillService(orderRepo, paymentRepo)
		order := paidOrder(t, "INV-20250101-00002", 750000)

		orderRepo.On("FindOrphanedPaid", mock.Anything, uuid.Nil, DefaultChunkSize).Return([]*trade.Order{order}, nil)
		paymentRepo.On("ExistsForOrder", mock.Anything, order.ID).Return(true, nil)

		report, err := svc.BackfillOrphanedPayments(ctx, BackfillOptions{})

		require.NoError(t, err)
		assert.Equal(t, 0, report.Changed)
		assert.Equal(t, 1, report.Skipped)
		paymentRepo.AssertNotCalled(t, "InsertIfAbsent", mock.Anything, mock.Anything)
	})

	t.Run("dry run writes nothing", func(t *testing.T) {
		orderRepo := new(testutil.MockOrderRepository)
		paymentRepo := new(testutil.MockPaymentRepository)
		svc := newBackfillService(orderRepo, paymentRepo)
		order := paidOrder(t, "INV-20250101-00003", 100000)

		orderRepo.On("FindOrphanedPaid", mock.Anything, uuid.Nil, DefaultChunkSize).Return([]*trade.Order{order}, nil)

		report, err := svc.BackfillOrphanedPayments(ctx, BackfillOptions{DryRun: true})

		require.NoError(t, err)
		assert.True(t, report.DryRun)
		assert.Equal(t, 1, report.Changed)
		paymentRepo.AssertNotCalled(t, "ExistsForOrder", mock.Anything, mock.Anything)
		paymentRepo.AssertNotCalled(t, "InsertIfAbsent", mock.Anything, mock.Anything)
	})

	t.Run("walks chunks by the last seen id", func(t *testing.T) {
		orderRepo := new(testutil.MockOrderRepository)
		paymentRepo := new(testutil.MockPaymentRepository)
		svc := newBackfillService(orderRepo, paymentRepo)
		first := paidOrder(t, "INV-20250101-00004", 100000)
		second := paidOrder(t, "INV-20250101-00005", 100000)

		orderRepo.On("FindOrphanedPaid", mock.Anything, uuid.Nil, 1).Return([]*trade.Order{first}, nil)
		orderRepo.On("FindOrphanedPaid", mock.Anything, first.ID, 1).Return([]*trade.Order{second}, nil)
		orderRepo.On("FindOrphanedPaid", mock.Anything, second.ID, 1).Return([]*trade.Order{}, nil)

		report, err := svc.BackfillOrphanedPayments(ctx, BackfillOptions{DryRun: true, ChunkSize: 1})

		require.NoError(t, err)
		assert.Equal(t, 2, report.Scanned)
		orderRepo.AssertExpectations(t)
	})

	t.Run("limit caps the scan", func(t *testing.T) {
		orderRepo := new(testutil.MockOrderRepository)
		svc := newBackfillService(orderRepo, new(testutil.MockPaymentRepository))
		first := paidOrder(t, "INV-20250101-00006", 100000)

		orderRepo.On("FindOrphanedPaid", mock.Anything, uuid.Nil, 1).Return([]*trade.Order{first}, nil)

		report, err := svc.BackfillOrphanedPayments(ctx, BackfillOptions{DryRun: true, ChunkSize: 10, Limit: 1})

		require.NoError(t, err)
		assert.Equal(t, 1, report.Scanned)
		orderRepo.AssertNumberOfCalls(t, "FindOrphanedPaid", 1)
	})

	t.Run("cancelled context stops before the first chunk", func(t *testing.T) {
		orderRepo := new(testutil.MockOrderRepository)
		svc := newBackfillService(orderRepo, new(testutil.MockPaymentRepository))
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := svc.BackfillOrphanedPayments(cancelled, BackfillOptions{})

		assert.ErrorIs(t, err, context.Canceled)
		orderRepo.AssertNotCalled(t, "FindOrphanedPaid", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBackfillService_BackfillOrphanedPayments_AxisDrift(t *testing.T) {
	orderRepo := new(testutil.MockOrderRepository)
	paymentRepo := new(testutil.MockPaymentRepository)
	svc := newBackfillService(orderRepo, paymentRepo)
	drifted := paidOrder(t, "INV-20250101-00030", 400000)
	drifted.State = trade.OrderState{Status: trade.OrderStatusPaid, Payment: trade.PaymentStatusPending}

	orderRepo.On("FindOrphanedPaid", mock.Anything, uuid.Nil, DefaultChunkSize).Return([]*trade.Order{drifted}, nil)

	report, err := svc.BackfillOrphanedPayments(context.Background(), BackfillOptions{})

	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Failed)
	assert.Zero(t, report.Changed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "INV-20250101-00030")
	assert.Contains(t, report.Errors[0], "payment status pending")
	paymentRepo.AssertNotCalled(t, "InsertIfAbsent", mock.Anything, mock.Anything)
}

func TestBackfillService_BackfillPaymentOptions(t *testing.T) {
	ctx := context.Background()

	t.Run("infers the option from the earliest payment", func(t *testing.T) {
		orderRepo := new(testutil.MockOrderRepository)
		paymentRepo := new(testutil.MockPaymentRepository)
		svc := newBackfillService(orderRepo, paymentRepo)
		order := paidOrder(t, "INV-20250101-00010", 1000000)
		earliest, err := finance.NewPayment(order.ID, "TX-DP", decimal.NewFromInt(500000), finance.PaymentPlanDownPayment, finance.PaymentStatusPaid, nil)
		require.NoError(t, err)

		orderRepo.On("FindMissingPaymentOption", mock.Anything, uuid.Nil, DefaultChunkSize).Return([]*trade.Order{order}, nil)
		paymentRepo.On("FindEarliestByOrder", mock.Anything, order.ID).Return(earliest, nil)
		orderRepo.On("SaveWithLock", mock.Anything, order).Return(nil)

		report, err := svc.BackfillPaymentOptions(ctx, BackfillOptions{})

		require.NoError(t, err)
		assert.Equal(t, 1, report.Changed)
		require.NotNil(t, order.PaymentOption)
		assert.Equal(t, finance.PaymentPlanDownPayment, *order.PaymentOption)
	})

	t.Run("second run finds nothing to change", func(t *testing.T) {
		orderRepo := new(testutil.MockOrderRepository)
		paymentRepo := new(testutil.MockPaymentRepository)
		svc := newBackfillService(orderRepo, paymentRepo)
		order := paidOrder(t, "INV-20250101-00011", 1000000)
		full := finance.PaymentPlanFull
		order.PaymentOption = &full
		earliest, err := finance.NewPayment(order.ID, "TX-FULL", decimal.NewFromInt(1000000), finance.PaymentPlanFull, finance.PaymentStatusPaid, nil)
		require.NoError(t, err)

		orderRepo.On("FindMissingPaymentOption", mock.Anything, uuid.Nil, DefaultChunkSize).Return([]*trade.Order{order}, nil)
		paymentRepo.On("FindEarliestByOrder", mock.Anything, order.ID).Return(earliest, nil)

		report, err := svc.BackfillPaymentOptions(ctx, BackfillOptions{})

		require.NoError(t, err)
		assert.Equal(t, 0, report.Changed)
		assert.Equal(t, 1, report.Skipped)
		assert.Equal(t, finance.PaymentPlanFull, *order.PaymentOption)
		orderRepo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("orphaned paid order defaults to full only when asked", func(t *testing.T) {
		for _, include := range []bool{false, true} {
			orderRepo := new(testutil.MockOrderRepository)
			paymentRepo := new(testutil.MockPaymentRepository)
			svc := newBackfillService(orderRepo, paymentRepo)
			order := paidOrder(t, "INV-20250101-00012", 1000000)

			orderRepo.On("FindMissingPaymentOption", mock.Anything, uuid.Nil, DefaultChunkSize).Return([]*trade.Order{order}, nil)
			paymentRepo.On("FindEarliestByOrder", mock.Anything, order.ID).Return(nil, shared.ErrNotFound)
			orderRepo.On("SaveWithLock", mock.Anything, order).Return(nil).Maybe()

			report, err := svc.BackfillPaymentOptions(ctx, BackfillOptions{IncludeOrphaned: include})

			require.NoError(t, err)
			if include {
				assert.Equal(t, 1, report.Changed)
				assert.Equal(t, finance.PaymentPlanFull, *order.PaymentOption)
			} else {
				assert.Equal(t, 1, report.Skipped)
				assert.Nil(t, order.PaymentOption)
			}
		}
	})
}

func TestBackfillService_Run(t *testing.T) {
	t.Run("rejects an unknown job", func(t *testing.T) {
		svc := newBackfillService(new(testutil.MockOrderRepository), new(testutil.MockPaymentRepository))

		_, err := svc.Run(context.Background(), RunOptions{Job: "everything"})

		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	})

	t.Run("runs both jobs and merges the reports", func(t *testing.T) {
		orderRepo := new(testutil.MockOrderRepository)
		paymentRepo := new(testutil.MockPaymentRepository)
		svc := newBackfillService(orderRepo, paymentRepo)
		orphan := paidOrder(t, "INV-20250101-00020", 300000)

		orderRepo.On("FindOrphanedPaid", mock.Anything, uuid.Nil, DefaultChunkSize).Return([]*trade.Order{orphan}, nil)
		orderRepo.On("FindMissingPaymentOption", mock.Anything, uuid.Nil, DefaultChunkSize).Return([]*trade.Order{orphan}, nil)
		paymentRepo.On("FindEarliestByOrder", mock.Anything, orphan.ID).Return(nil, shared.ErrNotFound)

		report, err := svc.Run(context.Background(), RunOptions{
			BackfillOptions: BackfillOptions{DryRun: true, IncludeOrphaned: true},
		})

		require.NoError(t, err)
		assert.Equal(t, 2, report.Scanned)
		assert.Equal(t, 2, report.Changed)
		require.Len(t, report.Changes, 2)
		assert.Equal(t, JobOrphanedPayments, report.Changes[0].Job)
		assert.Equal(t, JobPaymentOptions, report.Changes[1].Job)
	})
}

type fakeReportStore struct {
	key  string
	body []byte
	err  error
}

func (f *fakeReportStore) Put(_ context.Context, key string, body []byte, contentType string) error {
	if f.err != nil {
		return f.err
	}
	f.key, f.body = key, body
	return nil
}

func TestBackfillService_RunArchivesReport(t *testing.T) {
	finished := time.Date(2025, 3, 4, 3, 0, 12, 0, time.UTC)

	newArchivingService := func(store ReportStore) (*BackfillService, *testutil.MockOrderRepository) {
		orderRepo := new(testutil.MockOrderRepository)
		svc := NewBackfillService(BackfillServiceConfig{
			OrderRepo:   orderRepo,
			PaymentRepo: new(testutil.MockPaymentRepository),
			Archive:     store,
		})
		svc.now = func() time.Time { return finished }
		orderRepo.On("FindOrphanedPaid", mock.Anything, uuid.Nil, DefaultChunkSize).Return([]*trade.Order{}, nil)
		return svc, orderRepo
	}

	t.Run("stores the report under a dated key", func(t *testing.T) {
		store := &fakeReportStore{}
		svc, _ := newArchivingService(store)

		report, err := svc.Run(context.Background(), RunOptions{Job: JobOrphanedPayments, BackfillOptions: BackfillOptions{DryRun: true}})

		require.NoError(t, err)
		assert.Equal(t, "reconciliation/2025/03/04/030012-orphaned-payments.json", store.key)
		assert.Equal(t, store.key, report.ArchiveKey)

		var stored Report
		require.NoError(t, json.Unmarshal(store.body, &stored))
		assert.True(t, stored.DryRun)
	})

	t.Run("archive failure does not fail the run", func(t *testing.T) {
		svc, _ := newArchivingService(&fakeReportStore{err: errors.New("bucket unreachable")})

		report, err := svc.Run(context.Background(), RunOptions{Job: JobOrphanedPayments})

		require.NoError(t, err)
		assert.Empty(t, report.ArchiveKey)
	})
}

func TestArchiveKey(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)

	key := ArchiveKey(JobAll, time.Date(2025, 1, 1, 2, 30, 0, 0, jakarta))

	assert.Equal(t, "reconciliation/2024/12/31/193000-all.json", key)
}
