package finance

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

var (
	// ErrWebhookGatewayNotRegistered is returned when no verifier is registered for the gateway
	ErrWebhookGatewayNotRegistered = errors.New("payment webhook: gateway not registered")
	// ErrWebhookVerificationFailed is returned when the payload signature does not verify
	ErrWebhookVerificationFailed = errors.New("payment webhook: signature verification failed")
	// ErrWebhookInvalidPayload is returned when the verifier yields nothing usable
	ErrWebhookInvalidPayload = errors.New("payment webhook: invalid payload")
	// ErrWebhookOrderNotFound is returned when the notification names an unknown order
	ErrWebhookOrderNotFound = errors.New("payment webhook: order not found")
)

// OrderPaymentSyncer re-derives an order's payment state from the ledger.
// It returns a nil transition when the order did not move.
type OrderPaymentSyncer interface {
	SyncPaymentState(ctx context.Context, orderID uuid.UUID) (*trade.StatusTransition, error)
}

// PaymentWebhookService turns verified gateway notifications into ledger
// rows and then resyncs the order.
type PaymentWebhookService struct {
	verifiers      map[string]finance.NotificationVerifier
	ledger         *PaymentLedgerService
	orderRepo      trade.OrderRepository
	orderSyncer    OrderPaymentSyncer
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	logger         *zap.Logger
}

// PaymentWebhookServiceConfig holds configuration for the webhook service.
// Idempotency is optional; the ledger upsert is idempotent on its own.
type PaymentWebhookServiceConfig struct {
	Verifiers      []finance.NotificationVerifier
	Ledger         *PaymentLedgerService
	OrderRepo      trade.OrderRepository
	OrderSyncer    OrderPaymentSyncer
	Idempotency    shared.IdempotencyStore
	IdempotencyTTL time.Duration
	Logger         *zap.Logger
}

// NewPaymentWebhookService creates a new PaymentWebhookService
func NewPaymentWebhookService(config PaymentWebhookServiceConfig) *PaymentWebhookService {
	verifiers := make(map[string]finance.NotificationVerifier, len(config.Verifiers))
	for _, v := range config.Verifiers {
		verifiers[v.Name()] = v
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := config.IdempotencyTTL
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyConfig().TTL
	}

	return &PaymentWebhookService{
		verifiers:      verifiers,
		ledger:         config.Ledger,
		orderRepo:      config.OrderRepo,
		orderSyncer:    config.OrderSyncer,
		idempotency:    config.Idempotency,
		idempotencyTTL: ttl,
		logger:         logger,
	}
}

// RegisterVerifier registers a gateway verifier
func (s *PaymentWebhookService) RegisterVerifier(v finance.NotificationVerifier) {
	s.verifiers[v.Name()] = v
}

// HandleNotification processes one raw webhook delivery from gateway
func (s *PaymentWebhookService) HandleNotification(ctx context.Context, gateway string, payload []byte) (*WebhookResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment_webhook", "handle_notification",
		telemetry.WithAttribute(telemetry.SpanAttrPaymentGateway, gateway))
	defer span.End()

	verifier, ok := s.verifiers[gateway]
	if !ok {
		s.logger.Error("Gateway not registered", zap.String("gateway", gateway))
		return nil, ErrWebhookGatewayNotRegistered
	}

	notification, err := verifier.VerifyNotification(ctx, payload)
	if err != nil {
		s.logger.Warn("Webhook verification failed",
			zap.String("gateway", gateway),
			zap.Error(err))
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("%w: %v", ErrWebhookVerificationFailed, err)
	}
	if notification == nil {
		return nil, ErrWebhookInvalidPayload
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderNumber, notification.OrderNumber,
		telemetry.SpanAttrTransactionID, notification.TransactionID,
		telemetry.SpanAttrPaymentStatus, string(notification.Status),
	)
	s.logger.Info("Payment notification received",
		zap.String("gateway", gateway),
		zap.String("order_number", notification.OrderNumber),
		zap.String("transaction_id", notification.TransactionID),
		zap.String("status", string(notification.Status)),
		zap.String("amount", notification.Amount.String()))

	result := &WebhookResult{
		OrderNumber:   notification.OrderNumber,
		TransactionID: notification.TransactionID,
		PaymentStatus: string(notification.Status),
	}

	key := notification.DedupKey()
	if s.idempotency != nil {
		fresh, err := s.idempotency.MarkProcessed(ctx, key, s.idempotencyTTL)
		switch {
		case err != nil:
			s.logger.Warn("Idempotency store unavailable, relying on ledger upsert",
				zap.String("idempotency_key", key),
				zap.Error(err))
		case !fresh:
			s.logger.Info("Notification already processed",
				zap.String("idempotency_key", key))
			result.Success = true
			result.AlreadyProcessed = true
			return result, nil
		}
	}

	if err := s.handle(ctx, notification, result); err != nil {
		// Remove the key so the gateway's retry is processed again
		if s.idempotency != nil {
			if ferr := s.idempotency.Forget(ctx, key); ferr != nil {
				s.logger.Warn("Failed to release idempotency key",
					zap.String("idempotency_key", key),
					zap.Error(ferr))
			}
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	result.Success = true
	telemetry.SetOK(span)
	return result, nil
}

func (s *PaymentWebhookService) handle(ctx context.Context, n *finance.PaymentNotification, result *WebhookResult) error {
	order, err := s.orderRepo.FindByOrderNumber(ctx, n.OrderNumber)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("Notification for unknown order",
				zap.String("order_number", n.OrderNumber),
				zap.String("transaction_id", n.TransactionID))
			return fmt.Errorf("%w: %s", ErrWebhookOrderNotFound, n.OrderNumber)
		}
		return err
	}
	result.OrderID = order.ID

	_, err = s.ledger.RecordPayment(ctx, RecordPaymentRequest{
		OrderID:       order.ID,
		TransactionID: n.TransactionID,
		Amount:        n.Amount,
		Type:          string(planFor(n, order)),
		Status:        string(n.Status),
		RawResponse:   n.RawPayload,
	})
	if err != nil {
		if isStaleNotification(err) {
			s.logger.Warn("Ignoring stale payment notification",
				zap.String("order_id", order.ID.String()),
				zap.String("transaction_id", n.TransactionID),
				zap.String("status", string(n.Status)),
				zap.Error(err))
			result.Ignored = true
			result.OrderStatus = string(order.Status())
			return nil
		}
		return err
	}

	transition, err := s.orderSyncer.SyncPaymentState(ctx, order.ID)
	if err != nil {
		s.logger.Error("Payment recorded but order sync failed",
			zap.String("order_id", order.ID.String()),
			zap.String("transaction_id", n.TransactionID),
			zap.Error(err))
		return fmt.Errorf("sync order %s after payment %s: %w", order.OrderNumber, n.TransactionID, err)
	}

	result.OrderStatus = string(order.Status())
	if transition != nil {
		result.Transitioned = true
		result.OrderStatus = string(transition.To.Status)
	}
	return nil
}

// planFor picks the payment type of a notification: the gateway order id
// suffix wins, then the order's payment option, then full.
func planFor(n *finance.PaymentNotification, order *trade.Order) finance.PaymentPlan {
	if n.Plan.IsValid() {
		return n.Plan
	}
	if order.PaymentOption != nil && order.PaymentOption.IsValid() {
		return *order.PaymentOption
	}
	return finance.PaymentPlanFull
}

// isStaleNotification matches ledger refusals caused by out-of-order
// deliveries, which the gateway should not retry.
func isStaleNotification(err error) bool {
	var de *shared.DomainError
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == "INVALID_PAYMENT_TRANSITION"
}
