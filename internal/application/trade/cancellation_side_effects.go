package trade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/telemetry"
)

// CancellationSideEffects performs the refund and stock restoration of
// approved cancellations. Both steps are idempotent and safe to retry; a
// failure is recorded on the request and never undoes the approval.
type CancellationSideEffects struct {
	cancellationRepo  trade.CancellationRequestRepository
	orderRepo         trade.OrderRepository
	paymentRepo       finance.PaymentRepository
	refundGateway     finance.RefundGateway
	stockRestorer     trade.StockRestorer
	txScope           TransactionScope
	maxRefundAttempts int
	logger            *zap.Logger
}

// CancellationSideEffectsConfig holds the dependencies of CancellationSideEffects
type CancellationSideEffectsConfig struct {
	CancellationRepo  trade.CancellationRequestRepository
	OrderRepo         trade.OrderRepository
	PaymentRepo       finance.PaymentRepository
	RefundGateway     finance.RefundGateway
	StockRestorer     trade.StockRestorer
	TxScope           TransactionScope
	MaxRefundAttempts int
	Logger            *zap.Logger
}

// NewCancellationSideEffects creates a new CancellationSideEffects
func NewCancellationSideEffects(config CancellationSideEffectsConfig) *CancellationSideEffects {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := config.MaxRefundAttempts
	if maxAttempts <= 0 {
		maxAttempts = trade.DefaultMaxRefundAttempts
	}
	txScope := config.TxScope
	if txScope == nil {
		txScope = NewNoOpTransactionScope(config.OrderRepo, config.CancellationRepo, config.PaymentRepo)
	}
	return &CancellationSideEffects{
		cancellationRepo:  config.CancellationRepo,
		orderRepo:         config.OrderRepo,
		paymentRepo:       config.PaymentRepo,
		refundGateway:     config.RefundGateway,
		stockRestorer:     config.StockRestorer,
		txScope:           txScope,
		maxRefundAttempts: maxAttempts,
		logger:            logger,
	}
}

// Process runs every outstanding side effect of one request
func (s *CancellationSideEffects) Process(ctx context.Context, requestID uuid.UUID) (*CancellationResponse, error) {
	_, refundErr := s.ProcessRefund(ctx, requestID)
	resp, stockErr := s.RestoreStock(ctx, requestID)
	if err := errors.Join(refundErr, stockErr); err != nil {
		return resp, err
	}
	return resp, nil
}

// ProcessRefund issues the refund of an approved request. The gateway call
// is made before anything is persisted; the stable idempotency key makes a
// repeated call after a crash safe.
func (s *CancellationSideEffects) ProcessRefund(ctx context.Context, requestID uuid.UUID) (*CancellationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cancellation", "process_refund",
		telemetry.WithAttribute(telemetry.SpanAttrCancellationID, requestID.String()))
	defer span.End()

	request, err := s.cancellationRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !request.NeedsRefund(s.maxRefundAttempts) {
		response := ToCancellationResponse(request)
		return &response, nil
	}
	if s.refundGateway == nil {
		return nil, finance.ErrGatewayNotConfigured
	}

	order, err := s.orderRepo.FindByID(ctx, request.OrderID)
	if err != nil {
		return nil, err
	}
	transactionID, err := s.refundableTransaction(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	if err := request.StartRefund(s.maxRefundAttempts); err != nil {
		return nil, err
	}

	result, refundErr := s.refundGateway.Refund(ctx, finance.RefundRequest{
		IdempotencyKey: request.RefundIdempotencyKey(),
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		TransactionID:  transactionID,
		Amount:         request.RefundAmount,
		Reason:         request.Reason,
	})

	if refundErr != nil {
		if err := request.FailRefund(refundErr.Error()); err != nil {
			return nil, err
		}
		if err := s.cancellationRepo.SaveWithLockAndEvents(ctx, request, request.PullDomainEvents()); err != nil {
			return nil, err
		}
		s.logger.Warn("Refund attempt failed",
			zap.String("cancellation_id", request.ID.String()),
			zap.String("order_id", order.ID.String()),
			zap.Int("attempts", request.RefundAttempts),
			zap.Error(refundErr))
		telemetry.RecordError(span, refundErr)
		response := ToCancellationResponse(request)
		return &response, shared.NewExternalError("REFUND_FAILED",
			"refund for order %s failed: %v", order.OrderNumber, refundErr)
	}

	if !result.Completed {
		s.logger.Info("Refund accepted asynchronously by gateway",
			zap.String("cancellation_id", request.ID.String()),
			zap.String("refund_transaction_id", result.RefundTransactionID))
	}
	refundedAt := time.Now()
	if result.RefundedAt != nil {
		refundedAt = *result.RefundedAt
	}
	if err := request.CompleteRefund(result.RefundTransactionID, refundedAt); err != nil {
		return nil, err
	}
	if _, err := order.MarkRefunded(trade.SystemActor()); err != nil {
		return nil, err
	}

	var ledgerRefunded int64
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if err := repos.CancellationRepo().SaveWithLockAndEvents(ctx, request, request.PullDomainEvents()); err != nil {
			return err
		}
		if err := repos.OrderRepo().SaveWithLockAndEvents(ctx, order, order.PullDomainEvents()); err != nil {
			return err
		}
		moved, err := repos.PaymentRepo().MarkRefunded(ctx, order.ID)
		if err != nil {
			return err
		}
		ledgerRefunded = moved
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("persist completed refund %s: %w", result.RefundTransactionID, err)
	}

	s.logger.Info("Refund completed",
		zap.String("cancellation_id", request.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("refund_transaction_id", request.RefundTransactionID),
		zap.String("amount", request.RefundAmount.String()),
		zap.Int64("ledger_rows_refunded", ledgerRefunded))
	telemetry.SetOK(span)

	response := ToCancellationResponse(request)
	return &response, nil
}

// refundableTransaction picks the most recent paid ledger row of the order
func (s *CancellationSideEffects) refundableTransaction(ctx context.Context, orderID uuid.UUID) (string, error) {
	payments, err := s.paymentRepo.FindByOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	for i := len(payments) - 1; i >= 0; i-- {
		if payments[i].IsPaid() {
			return payments[i].TransactionID, nil
		}
	}
	return "", shared.NewConsistencyError("NO_REFUNDABLE_PAYMENT", "order %s has no paid payment to refund", orderID)
}

// RestoreStock puts the order's items back into stock once per request
func (s *CancellationSideEffects) RestoreStock(ctx context.Context, requestID uuid.UUID) (*CancellationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cancellation", "restore_stock",
		telemetry.WithAttribute(telemetry.SpanAttrCancellationID, requestID.String()))
	defer span.End()

	request, err := s.cancellationRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !request.NeedsStockRestore() {
		response := ToCancellationResponse(request)
		return &response, nil
	}

	order, err := s.orderRepo.FindByID(ctx, request.OrderID)
	if err != nil {
		return nil, err
	}
	if err := s.stockRestorer.RestoreStock(ctx, trade.NewStockRestoration(request, order)); err != nil {
		s.logger.Warn("Stock restoration failed",
			zap.String("cancellation_id", request.ID.String()),
			zap.Error(err))
		telemetry.RecordError(span, err)
		response := ToCancellationResponse(request)
		return &response, shared.NewExternalError("STOCK_RESTORE_FAILED",
			"restoring stock for order %s failed: %v", order.OrderNumber, err)
	}

	request.MarkStockRestored()
	if err := s.cancellationRepo.SaveWithLock(ctx, request); err != nil {
		// The restorer is idempotent per cancellation, the next pass sets the flag
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Stock restored",
		zap.String("cancellation_id", request.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.Int("lines", len(order.Items)))
	telemetry.SetOK(span)

	response := ToCancellationResponse(request)
	return &response, nil
}

// RetryPending retries outstanding side effects of up to limit requests
func (s *CancellationSideEffects) RetryPending(ctx context.Context, limit int) (*SideEffectReport, error) {
	requests, err := s.cancellationRepo.FindNeedingSideEffects(ctx, s.maxRefundAttempts, limit)
	if err != nil {
		return nil, err
	}

	report := &SideEffectReport{}
	for _, request := range requests {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++
		needsRefund := request.NeedsRefund(s.maxRefundAttempts)
		needsStock := request.NeedsStockRestore()

		resp, err := s.Process(ctx, request.ID)
		if err != nil {
			report.Failed++
			s.logger.Warn("Cancellation side effects still pending",
				zap.String("cancellation_id", request.ID.String()),
				zap.Error(err))
		}
		if resp == nil {
			continue
		}
		if needsRefund && resp.RefundStatus == string(trade.RefundStatusCompleted) {
			report.Refunded++
		}
		if needsStock && resp.StockRestored {
			report.Restored++
		}
	}

	if report.Scanned > 0 {
		s.logger.Info("Cancellation side effects retried",
			zap.Int("scanned", report.Scanned),
			zap.Int("refunded", report.Refunded),
			zap.Int("restored", report.Restored),
			zap.Int("failed", report.Failed))
	}
	return report, nil
}
