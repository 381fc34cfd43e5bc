package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	financeapp "github.com/invitely/backend/internal/application/finance"
	tradeapp "github.com/invitely/backend/internal/application/trade"
	"github.com/invitely/backend/internal/infrastructure/logger"
)

// PaymentHandler serves manual ledger entries
type PaymentHandler struct {
	BaseHandler
	ledger PaymentLedgerUseCase
	orders OrderUseCase
}

// NewPaymentHandler creates a PaymentHandler
func NewPaymentHandler(ledger PaymentLedgerUseCase, orders OrderUseCase) *PaymentHandler {
	return &PaymentHandler{ledger: ledger, orders: orders}
}

// RecordPaymentResult is the stored row and the order state it led to
type RecordPaymentResult struct {
	Payment    *financeapp.PaymentResponse  `json:"payment"`
	Transition *tradeapp.TransitionResponse `json:"transition,omitempty"`
}

// Record handles POST /admin/payments, used for bank transfers confirmed
// by hand. The order is resynced from the ledger afterwards.
func (h *PaymentHandler) Record(c *gin.Context) {
	var req financeapp.RecordPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	payment, err := h.ledger.RecordPayment(ctx, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	tr, err := h.orders.SyncPaymentState(ctx, req.OrderID)
	if err != nil {
		// The ledger row is durable; the next notification or reconciliation run resyncs
		logger.L(ctx).Warn("Payment recorded but order sync failed",
			zap.String("order_id", req.OrderID.String()),
			zap.String("transaction_id", req.TransactionID),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}

	result := RecordPaymentResult{Payment: payment, Transition: tradeapp.ToTransitionResponse(tr)}
	if payment.Created {
		h.Created(c, result)
		return
	}
	h.Success(c, result)
}
