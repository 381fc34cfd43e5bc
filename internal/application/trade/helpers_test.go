package trade

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/testutil"
)

func createTestOrder(t *testing.T, total int64) *trade.Order {
	t.Helper()
	item, err := trade.NewOrderItem(uuid.New(), "Rustic Kraft Invitation", 2, decimal.NewFromInt(total/2))
	require.NoError(t, err)
	order, err := trade.NewOrder(trade.NewOrderInput{
		OrderNumber: "INV-20260101-00042",
		CustomerID:  testutil.TestCustomerID(),
		Items:       []trade.OrderItem{item},
	})
	require.NoError(t, err)
	order.ClearDomainEvents()
	return order
}

func paidTotals(orderID uuid.UUID, amount int64) finance.PaymentTotals {
	return finance.PaymentTotals{
		OrderID:      orderID,
		AmountPaid:   decimal.NewFromInt(amount),
		PaidCount:    1,
		PaymentCount: 1,
	}
}

func markPaid(t *testing.T, order *trade.Order) {
	t.Helper()
	_, _, err := order.ApplyPaymentTotals(paidTotals(order.ID, order.TotalAmount.IntPart()), trade.GatewayActor())
	require.NoError(t, err)
	order.ClearDomainEvents()
}

func paidPayment(t *testing.T, order *trade.Order, transactionID string) *finance.Payment {
	t.Helper()
	p, err := finance.NewPayment(order.ID, transactionID, order.TotalAmount, finance.PaymentPlanFull, finance.PaymentStatusPaid, nil)
	require.NoError(t, err)
	return p
}

// approvedCancellation returns an approved request and the cancelled order it belongs to
func approvedCancellation(t *testing.T, order *trade.Order, refund decimal.Decimal, restore bool) *trade.CancellationRequest {
	t.Helper()
	req, err := trade.NewCancellationRequest(order, trade.CustomerActor(order.CustomerID), "Wedding date moved to next year")
	require.NoError(t, err)
	require.NoError(t, req.Approve(testutil.TestAdminID(), trade.ApprovalDecision{
		Notes:        "approved",
		RefundAmount: refund,
		RestoreStock: restore,
	}))
	_, err = order.Cancel(req.Reason, trade.AdminActor(testutil.TestAdminID()))
	require.NoError(t, err)
	req.ClearDomainEvents()
	order.ClearDomainEvents()
	return req
}
