package trade

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestCancellation(t *testing.T, order *Order) *CancellationRequest {
	t.Helper()
	req, err := NewCancellationRequest(order, CustomerActor(order.CustomerID), "Wedding date moved")
	require.NoError(t, err)
	req.ClearDomainEvents()
	return req
}

func TestNewCancellationRequest(t *testing.T) {
	t.Run("allowed while processing", func(t *testing.T) {
		order := createTestOrder(t, 500000)
		moveTo(t, order, OrderStatusPaid, OrderStatusProcessing)

		req, err := NewCancellationRequest(order, CustomerActor(order.CustomerID), "Wedding date moved")

		require.NoError(t, err)
		assert.Equal(t, CancellationStatusPending, req.Status)
		assert.Equal(t, order.ID, req.OrderID)
		assert.Equal(t, ActorCustomer, req.RequesterRole)
		assert.Equal(t, RefundStatusNone, req.RefundStatus)
		require.Len(t, req.GetDomainEvents(), 1)
		assert.Equal(t, EventTypeCancellationRequested, req.GetDomainEvents()[0].EventType())
	})

	t.Run("rejected once shipped", func(t *testing.T) {
		order := createTestOrder(t, 500000)
		moveTo(t, order, OrderStatusPaid, OrderStatusProcessing, OrderStatusInProduction, OrderStatusShipped)

		req, err := NewCancellationRequest(order, CustomerActor(order.CustomerID), "Wedding date moved")

		assert.Nil(t, req)
		var de *shared.DomainError
		require.ErrorAs(t, err, &de)
		assert.Equal(t, "ORDER_NOT_CANCELLABLE", de.Code)
		assert.Equal(t, shared.KindState, de.Kind)
	})

	t.Run("reason length is validated", func(t *testing.T) {
		order := createTestOrder(t, 500000)

		_, err := NewCancellationRequest(order, CustomerActor(order.CustomerID), "  no ")
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))

		_, err = NewCancellationRequest(order, CustomerActor(order.CustomerID), strings.Repeat("x", 1001))
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
	})

	t.Run("customer must own the order", func(t *testing.T) {
		order := createTestOrder(t, 500000)
		_, err := NewCancellationRequest(order, CustomerActor(uuid.New()), "Wedding date moved")
		assert.Equal(t, shared.KindState, shared.KindOf(err))
	})

	t.Run("admin may request for any order", func(t *testing.T) {
		order := createTestOrder(t, 500000)
		req, err := NewCancellationRequest(order, AdminActor(uuid.New()), "Customer called support")
		require.NoError(t, err)
		assert.Equal(t, ActorAdmin, req.RequesterRole)
	})
}

func TestCancellationRequest_Approve(t *testing.T) {
	t.Run("with refund and stock", func(t *testing.T) {
		order := createTestOrder(t, 500000)
		req := createTestCancellation(t, order)
		admin := uuid.New()

		err := req.Approve(admin, ApprovalDecision{
			Notes:        "ok",
			RefundAmount: decimal.NewFromInt(200000),
			RestoreStock: true,
		})

		require.NoError(t, err)
		assert.Equal(t, CancellationStatusApproved, req.Status)
		assert.Equal(t, admin, *req.ReviewedBy)
		assert.NotNil(t, req.ReviewedAt)
		assert.True(t, req.RefundInitiated)
		assert.Equal(t, RefundStatusPending, req.RefundStatus)
		assert.True(t, req.NeedsRefund(DefaultMaxRefundAttempts))
		assert.True(t, req.NeedsStockRestore())
		require.Len(t, req.GetDomainEvents(), 1)
		evt := req.GetDomainEvents()[0].(*CancellationApprovedEvent)
		assert.True(t, evt.RestoreStock)
		assert.True(t, evt.RefundAmount.Equal(decimal.NewFromInt(200000)))
	})

	t.Run("nothing paid means no refund", func(t *testing.T) {
		order := createTestOrder(t, 500000)
		req := createTestCancellation(t, order)

		require.NoError(t, req.Approve(uuid.New(), ApprovalDecision{}))

		assert.False(t, req.RefundInitiated)
		assert.Equal(t, RefundStatusNone, req.RefundStatus)
		assert.False(t, req.NeedsRefund(DefaultMaxRefundAttempts))
		assert.False(t, req.NeedsStockRestore())
	})

	t.Run("terminal request cannot be approved again", func(t *testing.T) {
		order := createTestOrder(t, 500000)
		req := createTestCancellation(t, order)
		require.NoError(t, req.Approve(uuid.New(), ApprovalDecision{}))

		err := req.Approve(uuid.New(), ApprovalDecision{})
		assert.Equal(t, shared.KindState, shared.KindOf(err))

		err = req.Reject(uuid.New(), "changed my mind after all")
		assert.Equal(t, shared.KindState, shared.KindOf(err))
	})
}

func TestCancellationRequest_Reject(t *testing.T) {
	t.Run("short notes are rejected", func(t *testing.T) {
		order := createTestOrder(t, 500000)
		req := createTestCancellation(t, order)

		err := req.Reject(uuid.New(), "nope!")

		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
		assert.Equal(t, CancellationStatusPending, req.Status)
	})

	t.Run("fifteen character notes succeed and order is untouched", func(t *testing.T) {
		order := createTestOrder(t, 500000)
		moveTo(t, order, OrderStatusPaid, OrderStatusProcessing)
		before := order.State
		req := createTestCancellation(t, order)

		err := req.Reject(uuid.New(), "already printed")

		require.NoError(t, err)
		assert.Equal(t, CancellationStatusRejected, req.Status)
		assert.Equal(t, "already printed", req.AdminNotes)
		assert.NotNil(t, req.ReviewedAt)
		assert.Equal(t, before, order.State)
	})
}

func TestCancellationRequest_FailRefundKeepsValidUTF8(t *testing.T) {
	order := createTestOrder(t, 500000)
	req := createTestCancellation(t, order)
	require.NoError(t, req.Approve(uuid.New(), ApprovalDecision{RefundAmount: decimal.NewFromInt(100000)}))
	require.NoError(t, req.StartRefund(3))

	message := strings.Repeat("x", MaxRefundErrorLength-1) + "é gagal"
	require.NoError(t, req.FailRefund(message))

	assert.True(t, utf8.ValidString(req.RefundError))
	assert.Len(t, req.RefundError, MaxRefundErrorLength-1)
	assert.Equal(t, strings.Repeat("x", MaxRefundErrorLength-1), req.RefundError)
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "short", truncateUTF8("short", 10))
	assert.Equal(t, "Pembayaran ", truncateUTF8("Pembayaran ditolak", 11))
	assert.Equal(t, "ab", truncateUTF8("ab日本", 4))
	assert.Equal(t, "ab日", truncateUTF8("ab日本", 5))
}

func TestCancellationRequest_RefundLifecycle(t *testing.T) {
	order := createTestOrder(t, 500000)
	req := createTestCancellation(t, order)
	require.NoError(t, req.Approve(uuid.New(), ApprovalDecision{RefundAmount: decimal.NewFromInt(100000)}))

	require.NoError(t, req.StartRefund(2))
	assert.Equal(t, RefundStatusProcessing, req.RefundStatus)
	assert.Equal(t, 1, req.RefundAttempts)
	assert.False(t, req.NeedsRefund(2))

	require.NoError(t, req.FailRefund("gateway timeout"))
	assert.Equal(t, RefundStatusFailed, req.RefundStatus)
	assert.Equal(t, "gateway timeout", req.RefundError)
	assert.True(t, req.NeedsRefund(2))

	require.NoError(t, req.StartRefund(2))
	require.NoError(t, req.FailRefund("gateway timeout"))
	assert.False(t, req.NeedsRefund(2))

	err := req.StartRefund(2)
	var de *shared.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "REFUND_ATTEMPTS_EXHAUSTED", de.Code)

	require.NoError(t, req.StartRefund(3))
	at := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, req.CompleteRefund("RF-1", at))
	assert.Equal(t, RefundStatusCompleted, req.RefundStatus)
	assert.Equal(t, "RF-1", req.RefundTransactionID)
	assert.Equal(t, at, *req.RefundedAt)
	assert.Empty(t, req.RefundError)
	assert.Equal(t, "refund-"+req.ID.String(), req.RefundIdempotencyKey())

	assert.Error(t, req.CompleteRefund("RF-2", at))
}

func TestCancellationRequest_MarkStockRestored(t *testing.T) {
	order := createTestOrder(t, 500000)
	req := createTestCancellation(t, order)
	require.NoError(t, req.Approve(uuid.New(), ApprovalDecision{RestoreStock: true}))

	assert.True(t, req.MarkStockRestored())
	first := *req.StockRestoredAt
	assert.False(t, req.MarkStockRestored())
	assert.Equal(t, first, *req.StockRestoredAt)
	assert.False(t, req.NeedsStockRestore())
}

func TestNewStockRestoration(t *testing.T) {
	productID := uuid.New()
	a, _ := NewOrderItem(productID, "Invitation", 100, decimal.NewFromInt(4500))
	b, _ := NewOrderItem(productID, "Invitation", 20, decimal.NewFromInt(4500))
	c, _ := NewOrderItem(uuid.New(), "Envelope", 120, decimal.NewFromInt(500))
	order, err := NewOrder(NewOrderInput{
		OrderNumber: "INV-1",
		CustomerID:  uuid.New(),
		Items:       []OrderItem{a, b, c},
	})
	require.NoError(t, err)
	req := createTestCancellation(t, order)

	restoration := NewStockRestoration(req, order)

	assert.Equal(t, req.ID, restoration.CancellationID)
	require.Len(t, restoration.Lines, 2)
	assert.Equal(t, StockLine{ProductID: productID, Quantity: 120}, restoration.Lines[0])
	assert.Equal(t, 120, restoration.Lines[1].Quantity)
}
