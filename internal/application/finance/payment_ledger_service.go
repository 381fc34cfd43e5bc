// Package finance holds the payment ledger use cases: recording gateway and
// manual payments, and deriving amount paid and balances from the ledger.
package finance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/telemetry"
)

// PaymentLedgerService records payments and answers amount-paid queries.
// It never writes order fields; order status follows through SyncPaymentState.
type PaymentLedgerService struct {
	paymentRepo finance.PaymentRepository
	orderRepo   trade.OrderRepository
	logger      *zap.Logger
}

// PaymentLedgerServiceConfig holds the dependencies of the ledger service
type PaymentLedgerServiceConfig struct {
	PaymentRepo finance.PaymentRepository
	OrderRepo   trade.OrderRepository
	Logger      *zap.Logger
}

// NewPaymentLedgerService creates a new PaymentLedgerService
func NewPaymentLedgerService(config PaymentLedgerServiceConfig) *PaymentLedgerService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentLedgerService{
		paymentRepo: config.PaymentRepo,
		orderRepo:   config.OrderRepo,
		logger:      logger,
	}
}

// RecordPayment upserts a ledger row keyed by transaction id. A redelivery of
// the same status is a no-op; a paid row's amount never changes.
func (s *PaymentLedgerService) RecordPayment(ctx context.Context, req RecordPaymentRequest) (*PaymentResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "record_payment")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, req.OrderID.String(),
		telemetry.SpanAttrTransactionID, req.TransactionID,
		telemetry.SpanAttrAmount, req.Amount.String(),
	)

	plan, err := finance.ParsePaymentPlan(req.Type)
	if err != nil {
		return nil, err
	}
	payment, err := finance.NewPayment(req.OrderID, req.TransactionID, req.Amount, plan,
		finance.PaymentStatus(req.Status), req.RawResponse)
	if err != nil {
		return nil, err
	}

	if _, err := s.orderRepo.FindByID(ctx, req.OrderID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	stored, inserted, err := s.paymentRepo.Upsert(ctx, payment)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn("Failed to record payment",
			zap.String("order_id", req.OrderID.String()),
			zap.String("transaction_id", req.TransactionID),
			zap.String("status", req.Status),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Payment recorded",
		zap.String("order_id", stored.OrderID.String()),
		zap.String("transaction_id", stored.TransactionID),
		zap.String("status", string(stored.Status)),
		zap.String("amount", stored.Amount.String()),
		zap.Bool("inserted", inserted))
	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentStatus, string(stored.Status))
	telemetry.SetOK(span)

	response := ToPaymentResponse(stored)
	response.Created = inserted
	return &response, nil
}

// SumPaid returns the amount paid for one order. Only paid rows count.
func (s *PaymentLedgerService) SumPaid(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error) {
	totals, err := s.paymentRepo.SumPaid(ctx, orderID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum paid for order %s: %w", orderID, err)
	}
	return totals.AmountPaid, nil
}

// SumPaidBulk returns ledger totals for many orders in one query
func (s *PaymentLedgerService) SumPaidBulk(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]finance.PaymentTotals, error) {
	if len(orderIDs) == 0 {
		return map[uuid.UUID]finance.PaymentTotals{}, nil
	}
	totals, err := s.paymentRepo.SumPaidBulk(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("sum paid for %d orders: %w", len(orderIDs), err)
	}
	return totals, nil
}

// GetBalance derives amount paid and remaining balance of an order.
// Overpayment is reported, never clamped.
func (s *PaymentLedgerService) GetBalance(ctx context.Context, orderID uuid.UUID) (*BalanceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_ledger", "get_balance",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID.String()))
	defer span.End()

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	totals, err := s.paymentRepo.SumPaid(ctx, orderID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	response := ToBalanceResponse(order, totals)
	if response.Overpaid {
		s.logger.Warn("Order is overpaid",
			zap.String("order_id", order.ID.String()),
			zap.String("order_number", order.OrderNumber),
			zap.String("total_amount", response.TotalAmount.String()),
			zap.String("amount_paid", response.AmountPaid.String()))
	}
	return &response, nil
}

// ListPayments lists the ledger rows of an order, oldest first
func (s *PaymentLedgerService) ListPayments(ctx context.Context, orderID uuid.UUID) ([]PaymentResponse, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		return nil, err
	}
	payments, err := s.paymentRepo.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ToPaymentResponses(payments), nil
}
