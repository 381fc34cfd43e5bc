package trade

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/telemetry"
)

// CancellationService runs the request / approve / reject workflow.
// Refunds and stock restoration happen afterwards in CancellationSideEffects.
type CancellationService struct {
	orderRepo        trade.OrderRepository
	cancellationRepo trade.CancellationRequestRepository
	paymentRepo      finance.PaymentRepository
	txScope          TransactionScope
	logger           *zap.Logger
}

// CancellationServiceConfig holds the dependencies of CancellationService
type CancellationServiceConfig struct {
	OrderRepo        trade.OrderRepository
	CancellationRepo trade.CancellationRequestRepository
	PaymentRepo      finance.PaymentRepository
	TxScope          TransactionScope
	Logger           *zap.Logger
}

// NewCancellationService creates a new CancellationService
func NewCancellationService(config CancellationServiceConfig) *CancellationService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	txScope := config.TxScope
	if txScope == nil {
		txScope = NewNoOpTransactionScope(config.OrderRepo, config.CancellationRepo, config.PaymentRepo)
	}
	return &CancellationService{
		orderRepo:        config.OrderRepo,
		cancellationRepo: config.CancellationRepo,
		paymentRepo:      config.PaymentRepo,
		txScope:          txScope,
		logger:           logger,
	}
}

// Request opens a cancellation request for an order
func (s *CancellationService) Request(ctx context.Context, orderID uuid.UUID, actor trade.Actor, req RequestCancellationRequest) (*CancellationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cancellation", "request",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID.String()))
	defer span.End()

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	pending, err := s.cancellationRepo.FindPendingByOrder(ctx, orderID)
	switch {
	case err == nil && pending != nil:
		return nil, trade.ErrCancellationAlreadyPending
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	request, err := trade.NewCancellationRequest(order, actor, req.Reason)
	if err != nil {
		return nil, err
	}

	// The partial unique index closes the race between the check above and this insert
	if err := s.cancellationRepo.Create(ctx, request, request.PullDomainEvents()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Cancellation requested",
		zap.String("cancellation_id", request.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.String("requester_role", string(actor.Role)))
	telemetry.SetAttributes(span, telemetry.SpanAttrCancellationID, request.ID.String())

	response := ToCancellationResponse(request)
	return &response, nil
}

// Approve approves a pending request and cancels the order in one transaction.
// The events written with it drive the refund and stock side effects.
func (s *CancellationService) Approve(ctx context.Context, requestID uuid.UUID, req ApproveCancellationRequest) (*ApprovalResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cancellation", "approve",
		telemetry.WithAttribute(telemetry.SpanAttrCancellationID, requestID.String()))
	defer span.End()

	var (
		request *trade.CancellationRequest
		order   *trade.Order
		totals  finance.PaymentTotals
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		request, err = repos.CancellationRepo().FindByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != request.Version {
			return shared.ErrConcurrencyConflict
		}

		order, err = repos.OrderRepo().FindByID(ctx, request.OrderID)
		if err != nil {
			return err
		}
		totals, err = repos.PaymentRepo().SumPaid(ctx, order.ID)
		if err != nil {
			return err
		}

		refund, err := refundAmount(req, totals)
		if err != nil {
			return err
		}

		if err := request.Approve(req.AdminID, trade.ApprovalDecision{
			Notes:        req.Notes,
			RefundAmount: refund,
			RestoreStock: req.RestoreStock,
		}); err != nil {
			return err
		}
		if _, err := order.Cancel(request.Reason, trade.AdminActor(req.AdminID)); err != nil {
			return err
		}

		if err := repos.OrderRepo().SaveWithLockAndEvents(ctx, order, order.PullDomainEvents()); err != nil {
			return err
		}
		return repos.CancellationRepo().SaveWithLockAndEvents(ctx, request, request.PullDomainEvents())
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Cancellation approved",
		zap.String("cancellation_id", request.ID.String()),
		zap.String("order_id", order.ID.String()),
		zap.Bool("refund_initiated", request.RefundInitiated),
		zap.String("refund_amount", request.RefundAmount.String()),
		zap.Bool("restore_stock", request.RestoreStock))
	telemetry.SetOK(span)

	return &ApprovalResult{
		Cancellation: ToCancellationResponse(request),
		Order:        ToOrderResponse(order, totals),
	}, nil
}

// refundAmount resolves the refund of an approval. It defaults to the amount
// paid and may not exceed it.
func refundAmount(req ApproveCancellationRequest, totals finance.PaymentTotals) (decimal.Decimal, error) {
	if !req.InitiateRefund {
		return decimal.Zero, nil
	}
	amount := totals.AmountPaid
	if req.RefundAmount != nil {
		amount = *req.RefundAmount
	}
	if amount.IsNegative() {
		return decimal.Zero, shared.NewValidationError("INVALID_REFUND_AMOUNT", "refund amount cannot be negative")
	}
	if amount.GreaterThan(totals.AmountPaid) {
		return decimal.Zero, shared.NewValidationError("INVALID_REFUND_AMOUNT",
			"refund amount %s exceeds amount paid %s", amount.String(), totals.AmountPaid.String())
	}
	return amount, nil
}

// Reject closes a pending request. The order is untouched.
func (s *CancellationService) Reject(ctx context.Context, requestID uuid.UUID, req RejectCancellationRequest) (*CancellationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "cancellation", "reject",
		telemetry.WithAttribute(telemetry.SpanAttrCancellationID, requestID.String()))
	defer span.End()

	request, err := s.cancellationRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := request.Reject(req.AdminID, req.Notes); err != nil {
		return nil, err
	}
	if err := s.cancellationRepo.SaveWithLockAndEvents(ctx, request, request.PullDomainEvents()); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Cancellation rejected",
		zap.String("cancellation_id", request.ID.String()),
		zap.String("order_id", request.OrderID.String()))

	response := ToCancellationResponse(request)
	return &response, nil
}

// GetCancellation returns one request
func (s *CancellationService) GetCancellation(ctx context.Context, requestID uuid.UUID) (*CancellationResponse, error) {
	request, err := s.cancellationRepo.FindByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	response := ToCancellationResponse(request)
	return &response, nil
}

// ListCancellations lists the requests of an order, newest first
func (s *CancellationService) ListCancellations(ctx context.Context, orderID uuid.UUID) ([]CancellationResponse, error) {
	requests, err := s.cancellationRepo.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ToCancellationResponses(requests), nil
}
