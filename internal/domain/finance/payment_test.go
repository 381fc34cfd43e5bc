package finance_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	orderID := uuid.New()

	tests := []struct {
		name          string
		orderID       uuid.UUID
		transactionID string
		amount        decimal.Decimal
		paymentType   finance.PaymentPlan
		status        finance.PaymentStatus
		expectedCode  string
	}{
		{
			name:          "valid paid payment",
			orderID:       orderID,
			transactionID: "TX-1",
			amount:        decimal.NewFromInt(200000),
			paymentType:   finance.PaymentPlanDownPayment,
			status:        finance.PaymentStatusPaid,
		},
		{
			name:          "missing order",
			orderID:       uuid.Nil,
			transactionID: "TX-1",
			amount:        decimal.NewFromInt(1),
			paymentType:   finance.PaymentPlanFull,
			status:        finance.PaymentStatusPending,
			expectedCode:  "INVALID_ORDER",
		},
		{
			name:          "blank transaction id",
			orderID:       orderID,
			transactionID: "   ",
			amount:        decimal.NewFromInt(1),
			paymentType:   finance.PaymentPlanFull,
			status:        finance.PaymentStatusPending,
			expectedCode:  "INVALID_TRANSACTION_ID",
		},
		{
			name:          "zero amount",
			orderID:       orderID,
			transactionID: "TX-1",
			amount:        decimal.Zero,
			paymentType:   finance.PaymentPlanFull,
			status:        finance.PaymentStatusPending,
			expectedCode:  "INVALID_AMOUNT",
		},
		{
			name:          "unknown type",
			orderID:       orderID,
			transactionID: "TX-1",
			amount:        decimal.NewFromInt(1),
			paymentType:   "installment",
			status:        finance.PaymentStatusPending,
			expectedCode:  "INVALID_PAYMENT_TYPE",
		},
		{
			name:          "unknown status",
			orderID:       orderID,
			transactionID: "TX-1",
			amount:        decimal.NewFromInt(1),
			paymentType:   finance.PaymentPlanFull,
			status:        "settled",
			expectedCode:  "INVALID_PAYMENT_STATUS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := finance.NewPayment(tt.orderID, tt.transactionID, tt.amount, tt.paymentType, tt.status, nil)
			if tt.expectedCode != "" {
				require.Error(t, err)
				var de *shared.DomainError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, tt.expectedCode, de.Code)
				assert.Equal(t, shared.KindValidation, de.Kind)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.transactionID, p.TransactionID)
			assert.True(t, p.IsPaid())
			assert.NotNil(t, p.PaidAt)
		})
	}
}

func TestParsePaymentPlan(t *testing.T) {
	cases := map[string]finance.PaymentPlan{
		"full":         finance.PaymentPlanFull,
		"FULL_PAYMENT": finance.PaymentPlanFull,
		"dp":           finance.PaymentPlanDownPayment,
		"down_payment": finance.PaymentPlanDownPayment,
		" final ":      finance.PaymentPlanFinal,
	}
	for in, want := range cases {
		got, err := finance.ParsePaymentPlan(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := finance.ParsePaymentPlan("weekly")
	assert.Error(t, err)
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	assert.True(t, finance.PaymentStatusPending.CanTransitionTo(finance.PaymentStatusPaid))
	assert.True(t, finance.PaymentStatusPending.CanTransitionTo(finance.PaymentStatusFailed))
	assert.True(t, finance.PaymentStatusPending.CanTransitionTo(finance.PaymentStatusCancelled))
	assert.True(t, finance.PaymentStatusPaid.CanTransitionTo(finance.PaymentStatusRefunded))

	assert.False(t, finance.PaymentStatusPaid.CanTransitionTo(finance.PaymentStatusFailed))
	assert.False(t, finance.PaymentStatusPaid.CanTransitionTo(finance.PaymentStatusPending))
	assert.False(t, finance.PaymentStatusFailed.CanTransitionTo(finance.PaymentStatusPaid))
	assert.False(t, finance.PaymentStatusRefunded.CanTransitionTo(finance.PaymentStatusPaid))
	assert.False(t, finance.PaymentStatusPending.CanTransitionTo(finance.PaymentStatusRefunded))
}

func newPayment(t *testing.T, orderID uuid.UUID, tx string, amount int64, status finance.PaymentStatus) *finance.Payment {
	t.Helper()
	p, err := finance.NewPayment(orderID, tx, decimal.NewFromInt(amount), finance.PaymentPlanFull, status, nil)
	require.NoError(t, err)
	return p
}

func TestPayment_ApplyUpdate(t *testing.T) {
	orderID := uuid.New()

	t.Run("pending to paid stamps paid_at", func(t *testing.T) {
		existing := newPayment(t, orderID, "TX-1", 100, finance.PaymentStatusPending)
		incoming := newPayment(t, orderID, "TX-1", 100, finance.PaymentStatusPaid)
		incoming.RawResponse = json.RawMessage(`{"transaction_status":"settlement"}`)

		changed, err := existing.ApplyUpdate(incoming)

		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, finance.PaymentStatusPaid, existing.Status)
		assert.NotNil(t, existing.PaidAt)
		assert.JSONEq(t, `{"transaction_status":"settlement"}`, string(existing.RawResponse))
	})

	t.Run("duplicate delivery is a no-op", func(t *testing.T) {
		existing := newPayment(t, orderID, "TX-2", 100, finance.PaymentStatusPaid)
		incoming := newPayment(t, orderID, "TX-2", 100, finance.PaymentStatusPaid)

		changed, err := existing.ApplyUpdate(incoming)

		require.NoError(t, err)
		assert.False(t, changed)
	})

	t.Run("paid amount is immutable", func(t *testing.T) {
		existing := newPayment(t, orderID, "TX-3", 100, finance.PaymentStatusPaid)
		incoming := newPayment(t, orderID, "TX-3", 150, finance.PaymentStatusPaid)

		_, err := existing.ApplyUpdate(incoming)

		require.Error(t, err)
		assert.Equal(t, shared.KindState, shared.KindOf(err))
		assert.True(t, existing.Amount.Equal(decimal.NewFromInt(100)))
	})

	t.Run("pending amount may be corrected", func(t *testing.T) {
		existing := newPayment(t, orderID, "TX-4", 100, finance.PaymentStatusPending)
		incoming := newPayment(t, orderID, "TX-4", 120, finance.PaymentStatusPaid)

		changed, err := existing.ApplyUpdate(incoming)

		require.NoError(t, err)
		assert.True(t, changed)
		assert.True(t, existing.Amount.Equal(decimal.NewFromInt(120)))
	})

	t.Run("paid cannot go back to failed", func(t *testing.T) {
		existing := newPayment(t, orderID, "TX-5", 100, finance.PaymentStatusPaid)
		incoming := newPayment(t, orderID, "TX-5", 100, finance.PaymentStatusFailed)

		_, err := existing.ApplyUpdate(incoming)

		require.Error(t, err)
		assert.Equal(t, finance.PaymentStatusPaid, existing.Status)
	})

	t.Run("transaction reused by another order", func(t *testing.T) {
		existing := newPayment(t, orderID, "TX-6", 100, finance.PaymentStatusPending)
		incoming := newPayment(t, uuid.New(), "TX-6", 100, finance.PaymentStatusPaid)

		_, err := existing.ApplyUpdate(incoming)

		assert.Equal(t, shared.KindConsistency, shared.KindOf(err))
	})
}

func TestNewBackfilledPayment(t *testing.T) {
	orderID := uuid.New()
	paidAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	p, err := finance.NewBackfilledPayment(orderID, "INV-20240501-00001", decimal.NewFromInt(500000), finance.PaymentPlanFull, paidAt)

	require.NoError(t, err)
	assert.True(t, p.Backfilled)
	assert.True(t, p.IsPaid())
	assert.Equal(t, "BACKFILL-INV-20240501-00001", p.TransactionID)
	assert.Equal(t, paidAt, *p.PaidAt)
	assert.Contains(t, string(p.RawResponse), `"source":"backfill"`)
}

func TestRefundRequest_Validate(t *testing.T) {
	valid := finance.RefundRequest{IdempotencyKey: "k", OrderNumber: "INV-1", Amount: decimal.NewFromInt(1)}
	assert.NoError(t, valid.Validate())

	noKey := valid
	noKey.IdempotencyKey = ""
	assert.ErrorIs(t, noKey.Validate(), finance.ErrRefundInvalidRequest)

	noOrder := valid
	noOrder.OrderNumber = ""
	assert.ErrorIs(t, noOrder.Validate(), finance.ErrRefundInvalidOrder)

	zero := valid
	zero.Amount = decimal.Zero
	assert.ErrorIs(t, zero.Validate(), finance.ErrRefundInvalidAmount)
}
