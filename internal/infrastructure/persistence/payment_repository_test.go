package persistence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormPaymentRepository_Upsert(t *testing.T) {
	db := newLedgerDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := testContext(t)
	orderID := uuid.New()

	pending := newTestPayment(t, orderID, "MID-TX-001", 500000, finance.PaymentStatusPending)
	stored, inserted, err := repo.Upsert(ctx, pending)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, pending.ID, stored.ID)

	t.Run("redelivery without change", func(t *testing.T) {
		again := newTestPayment(t, orderID, "MID-TX-001", 500000, finance.PaymentStatusPending)
		stored, inserted, err := repo.Upsert(ctx, again)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Equal(t, pending.ID, stored.ID)
	})

	t.Run("settlement updates the same row", func(t *testing.T) {
		settled := newTestPayment(t, orderID, "MID-TX-001", 500000, finance.PaymentStatusPaid)
		settled.RawResponse = json.RawMessage(`{"transaction_status":"settlement"}`)

		stored, inserted, err := repo.Upsert(ctx, settled)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Equal(t, pending.ID, stored.ID)
		assert.Equal(t, finance.PaymentStatusPaid, stored.Status)

		rows, err := repo.FindByOrder(ctx, orderID)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, finance.PaymentStatusPaid, rows[0].Status)
		assert.NotNil(t, rows[0].PaidAt)
		assert.JSONEq(t, `{"transaction_status":"settlement"}`, string(rows[0].RawResponse))
	})

	t.Run("paid amount is immutable", func(t *testing.T) {
		changed := newTestPayment(t, orderID, "MID-TX-001", 400000, finance.PaymentStatusPaid)
		_, _, err := repo.Upsert(ctx, changed)
		assert.Equal(t, shared.KindState, shared.KindOf(err))

		row, err := repo.FindByTransactionID(ctx, "MID-TX-001")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(500000).Equal(row.Amount))
	})

	t.Run("transaction of another order", func(t *testing.T) {
		foreign := newTestPayment(t, uuid.New(), "MID-TX-001", 500000, finance.PaymentStatusPaid)
		_, _, err := repo.Upsert(ctx, foreign)
		assert.Equal(t, shared.KindConsistency, shared.KindOf(err))
	})
}

func TestGormPaymentRepository_InsertIfAbsent(t *testing.T) {
	db := newLedgerDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := testContext(t)
	orderID := uuid.New()

	ok, err := repo.InsertIfAbsent(ctx, newTestPayment(t, orderID, "BACKFILL-INV-1", 100000, finance.PaymentStatusPaid))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.InsertIfAbsent(ctx, newTestPayment(t, orderID, "BACKFILL-INV-1", 100000, finance.PaymentStatusPaid))
	require.NoError(t, err)
	assert.False(t, ok)

	exists, err := repo.ExistsForOrder(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForOrder(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGormPaymentRepository_FindEarliestByOrder(t *testing.T) {
	db := newLedgerDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := testContext(t)
	orderID := uuid.New()

	_, err := repo.FindEarliestByOrder(ctx, orderID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	dp := newTestPayment(t, orderID, "ORDER-DP", 300000, finance.PaymentStatusPaid)
	final := newTestPayment(t, orderID, "ORDER-FINAL", 300000, finance.PaymentStatusPending)
	final.CreatedAt = dp.CreatedAt.Add(time.Second)
	for _, p := range []*finance.Payment{final, dp} {
		_, err := repo.InsertIfAbsent(ctx, p)
		require.NoError(t, err)
	}

	earliest, err := repo.FindEarliestByOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "ORDER-DP", earliest.TransactionID)
}

func TestGormPaymentRepository_SumPaid(t *testing.T) {
	db := newLedgerDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := testContext(t)
	orderA, orderB, empty := uuid.New(), uuid.New(), uuid.New()

	for _, p := range []*finance.Payment{
		newTestPayment(t, orderA, "A-1", 250000, finance.PaymentStatusPaid),
		newTestPayment(t, orderA, "A-2", 250000, finance.PaymentStatusPaid),
		newTestPayment(t, orderA, "A-3", 90000, finance.PaymentStatusFailed),
		newTestPayment(t, orderB, "B-1", 120000, finance.PaymentStatusPending),
	} {
		_, err := repo.InsertIfAbsent(ctx, p)
		require.NoError(t, err)
	}

	totals, err := repo.SumPaid(ctx, orderA)
	require.NoError(t, err)
	assert.Equal(t, orderA, totals.OrderID)
	assert.True(t, decimal.NewFromInt(500000).Equal(totals.AmountPaid), totals.AmountPaid.String())
	assert.Equal(t, 2, totals.PaidCount)
	assert.Equal(t, 3, totals.PaymentCount)

	bulk, err := repo.SumPaidBulk(ctx, []uuid.UUID{orderA, orderB, empty})
	require.NoError(t, err)
	require.Len(t, bulk, 3)
	assert.True(t, bulk[orderB].AmountPaid.IsZero())
	assert.True(t, decimal.NewFromInt(120000).Equal(bulk[orderB].AmountPending))
	assert.Equal(t, empty, bulk[empty].OrderID)
	assert.Equal(t, 0, bulk[empty].PaymentCount)

	none, err := repo.SumPaidBulk(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGormPaymentRepository_MarkRefunded(t *testing.T) {
	db := newLedgerDB(t)
	repo := NewGormPaymentRepository(db)
	ctx := testContext(t)
	orderA, orderB := uuid.New(), uuid.New()

	for _, p := range []*finance.Payment{
		newTestPayment(t, orderA, "R-DP", 300000, finance.PaymentStatusPaid),
		newTestPayment(t, orderA, "R-FINAL", 300000, finance.PaymentStatusPaid),
		newTestPayment(t, orderA, "R-FAILED", 300000, finance.PaymentStatusFailed),
		newTestPayment(t, orderB, "R-OTHER", 150000, finance.PaymentStatusPaid),
	} {
		_, err := repo.InsertIfAbsent(ctx, p)
		require.NoError(t, err)
	}

	moved, err := repo.MarkRefunded(ctx, orderA)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)

	rows, err := repo.FindByOrder(ctx, orderA)
	require.NoError(t, err)
	statuses := map[string]finance.PaymentStatus{}
	for _, p := range rows {
		statuses[p.TransactionID] = p.Status
	}
	assert.Equal(t, map[string]finance.PaymentStatus{
		"R-DP":     finance.PaymentStatusRefunded,
		"R-FINAL":  finance.PaymentStatusRefunded,
		"R-FAILED": finance.PaymentStatusFailed,
	}, statuses)

	totals, err := repo.SumPaid(ctx, orderA)
	require.NoError(t, err)
	assert.True(t, totals.AmountPaid.IsZero())

	other, err := repo.FindByTransactionID(ctx, "R-OTHER")
	require.NoError(t, err)
	assert.Equal(t, finance.PaymentStatusPaid, other.Status)

	again, err := repo.MarkRefunded(ctx, orderA)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestAggregatePayments_SingleGroupedQuery(t *testing.T) {
	mockDB := testutil.NewMockDB(t)
	orderA, orderB := uuid.New(), uuid.New()

	mockDB.Mock.ExpectQuery(`(?s)SELECT order_id,.*FROM "payments" WHERE order_id IN \(\$4,\$5\) GROUP BY "order_id"`).
		WithArgs(finance.PaymentStatusPaid, finance.PaymentStatusPending, finance.PaymentStatusPaid, orderA, orderB).
		WillReturnRows(sqlmock.NewRows([]string{"order_id", "amount_paid", "amount_pending", "paid_count", "payment_count"}).
			AddRow(orderA.String(), "150000.00", "0", 1, 1))

	totals, err := aggregatePayments(mockDB.DB, []uuid.UUID{orderA, orderB})
	require.NoError(t, err)
	assert.Equal(t, "150000", totals[orderA].AmountPaid.String())
	assert.Equal(t, 1, totals[orderA].PaidCount)
	assert.Equal(t, orderB, totals[orderB].OrderID)
	assert.True(t, totals[orderB].AmountPaid.IsZero())
	mockDB.ExpectationsWereMet(t)
}
