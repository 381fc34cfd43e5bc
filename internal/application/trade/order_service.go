// Package trade holds the order and cancellation use cases.
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

// maxSyncAttempts bounds the reload-and-retry loop of SyncPaymentState
const maxSyncAttempts = 3

// maxOrderNumberAttempts bounds how often CreateOrder draws a new number
// after losing a race on the unique order number
const maxOrderNumberAttempts = 3

// OrderService handles order placement, status changes and payment sync
type OrderService struct {
	orderRepo   trade.OrderRepository
	paymentRepo finance.PaymentRepository
	logger      *zap.Logger
}

// OrderServiceConfig holds the dependencies of OrderService
type OrderServiceConfig struct {
	OrderRepo   trade.OrderRepository
	PaymentRepo finance.PaymentRepository
	Logger      *zap.Logger
}

// NewOrderService creates a new OrderService
func NewOrderService(config OrderServiceConfig) *OrderService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OrderService{
		orderRepo:   config.OrderRepo,
		paymentRepo: config.PaymentRepo,
		logger:      logger,
	}
}

// CreateOrder places an order from a priced cart. The total is fixed here.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "create_order")
	defer span.End()

	items := make([]trade.OrderItem, 0, len(req.Items))
	for _, in := range req.Items {
		item, err := trade.NewOrderItem(in.ProductID, in.ProductName, in.Quantity, in.UnitPrice)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	var option *finance.PaymentPlan
	if req.PaymentOption != nil && *req.PaymentOption != "" {
		plan, err := finance.ParsePaymentPlan(*req.PaymentOption)
		if err != nil {
			return nil, err
		}
		option = &plan
	}

	var invitation *trade.InvitationDetail
	if req.Invitation != nil {
		invitation = &trade.InvitationDetail{
			Kind:    trade.InvitationKind(req.Invitation.Kind),
			Payload: req.Invitation.Payload,
		}
	}

	var order *trade.Order
	for attempt := 1; ; attempt++ {
		orderNumber, err := s.orderRepo.NextOrderNumber(ctx, time.Now())
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("generate order number: %w", err)
		}

		order, err = trade.NewOrder(trade.NewOrderInput{
			OrderNumber:    orderNumber,
			CustomerID:     req.CustomerID,
			Items:          items,
			ShippingCost:   req.ShippingCost,
			DiscountAmount: req.DiscountAmount,
			PromoCode:      req.PromoCode,
			PaymentOption:  option,
			Invitation:     invitation,
			Notes:          req.Notes,
		})
		if err != nil {
			return nil, err
		}

		err = s.orderRepo.Create(ctx, order, order.PullDomainEvents())
		if err == nil {
			break
		}
		// A concurrent checkout took the same number; the next count skips it.
		if errors.Is(err, shared.ErrAlreadyExists) && attempt < maxOrderNumberAttempts {
			s.logger.Warn("Order number taken, retrying",
				zap.String("order_number", orderNumber),
				zap.Int("attempt", attempt))
			continue
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, order.ID.String(),
		telemetry.SpanAttrOrderNumber, order.OrderNumber,
		telemetry.SpanAttrAmount, order.TotalAmount.String(),
	)
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("total_amount", order.TotalAmount.String()))

	response := ToOrderResponse(order, finance.EmptyTotals(order.ID))
	return &response, nil
}

// GetOrder returns an order with its ledger totals
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	owt, err := s.orderRepo.FindWithTotals(ctx, orderID)
	if err != nil {
		return nil, err
	}
	response := ToOrderResponse(owt.Order, owt.Totals)
	return &response, nil
}

// ListOrders returns a page of orders with totals from one grouped query
func (s *OrderService) ListOrders(ctx context.Context, filter OrderListFilter) ([]OrderResponse, int64, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.OrderBy == "" {
		filter.OrderBy = "created_at"
	}
	if filter.OrderDir == "" {
		filter.OrderDir = "desc"
	}

	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
		Search:   filter.Search,
		Filters:  make(map[string]interface{}),
	}
	if filter.Status != "" {
		status, err := trade.ParseOrderStatus(filter.Status)
		if err != nil {
			return nil, 0, err
		}
		domainFilter.Filters["status"] = string(status)
	}
	if filter.PaymentStatus != "" {
		ps := trade.PaymentStatus(filter.PaymentStatus)
		if !ps.IsValid() {
			return nil, 0, shared.NewValidationError("INVALID_PAYMENT_STATUS", "unknown payment status %q", filter.PaymentStatus)
		}
		domainFilter.Filters["payment_status"] = string(ps)
	}
	if filter.CustomerID != nil {
		domainFilter.Filters["customer_id"] = *filter.CustomerID
	}

	orders, total, err := s.orderRepo.FindAllWithTotals(ctx, domainFilter)
	if err != nil {
		return nil, 0, err
	}
	return ToOrderResponses(orders), total, nil
}

// UpdateStatus performs an audited status change
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, actor trade.Actor, req UpdateStatusRequest) (*TransitionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "update_status",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID.String()))
	defer span.End()

	target, err := trade.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, err
	}
	var payment *trade.PaymentStatus
	if req.PaymentStatus != nil && *req.PaymentStatus != "" {
		ps := trade.PaymentStatus(*req.PaymentStatus)
		payment = &ps
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if req.ExpectedVersion != nil && *req.ExpectedVersion != order.Version {
		return nil, shared.ErrConcurrencyConflict
	}

	transition, err := order.TransitionTo(target, trade.TransitionCommand{
		Actor:         actor,
		Note:          req.Note,
		PaymentStatus: payment,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	events := order.PullDomainEvents()
	if err := s.orderRepo.SaveWithLockAndEvents(ctx, order, events); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	totals, err := s.paymentRepo.SumPaid(ctx, order.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", order.ID.String()),
		zap.String("from", transition.From.String()),
		zap.String("to", transition.To.String()),
		zap.String("actor_role", string(actor.Role)))
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderStatus, string(transition.To.Status))
	telemetry.SetOK(span)

	return &TransitionResult{
		Order:      ToOrderResponse(order, totals),
		Transition: ToTransitionResponse(transition),
		Events:     eventTypes(events),
	}, nil
}

// SyncPaymentState re-derives the order's payment progress from the ledger.
// A concurrent save reloads the order and tries again.
func (s *OrderService) SyncPaymentState(ctx context.Context, orderID uuid.UUID) (*trade.StatusTransition, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order", "sync_payment_state",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID.String()))
	defer span.End()

	var lastErr error
	for attempt := 1; attempt <= maxSyncAttempts; attempt++ {
		transition, err := s.syncOnce(ctx, orderID)
		if err == nil {
			telemetry.SetOK(span)
			return transition, nil
		}
		if !errors.Is(err, shared.ErrConcurrencyConflict) {
			telemetry.RecordError(span, err)
			return nil, err
		}
		lastErr = err
		s.logger.Debug("Order changed concurrently, retrying payment sync",
			zap.String("order_id", orderID.String()),
			zap.Int("attempt", attempt))
	}
	telemetry.RecordError(span, lastErr)
	return nil, lastErr
}

func (s *OrderService) syncOnce(ctx context.Context, orderID uuid.UUID) (*trade.StatusTransition, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	totals, err := s.paymentRepo.SumPaid(ctx, orderID)
	if err != nil {
		return nil, err
	}

	transition, balance, err := order.ApplyPaymentTotals(totals, trade.GatewayActor())
	if err != nil {
		return nil, err
	}
	if balance.Overpaid {
		s.logger.Warn("Order is overpaid",
			zap.String("order_id", order.ID.String()),
			zap.String("order_number", order.OrderNumber),
			zap.String("total_amount", balance.TotalAmount.String()),
			zap.String("amount_paid", balance.AmountPaid.String()),
			zap.String("overpaid_amount", balance.OverpaidAmount.String()))
	}
	if transition == nil {
		return nil, nil
	}

	if err := s.orderRepo.SaveWithLockAndEvents(ctx, order, order.PullDomainEvents()); err != nil {
		return nil, err
	}
	s.logger.Info("Order payment state synced",
		zap.String("order_id", order.ID.String()),
		zap.String("from", transition.From.String()),
		zap.String("to", transition.To.String()),
		zap.String("amount_paid", totals.AmountPaid.String()))
	return transition, nil
}

func eventTypes(events []shared.DomainEvent) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.EventType()
	}
	return types
}
