package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	financeapp "github.com/invitely/backend/internal/application/finance"
	"github.com/invitely/backend/internal/infrastructure/logger"
	"github.com/invitely/backend/internal/infrastructure/telemetry"
	"github.com/invitely/backend/internal/interfaces/http/dto"
)

// GatewayMidtrans is the gateway name used in the webhook route
const GatewayMidtrans = "midtrans"

// WebhookHandler receives payment gateway notifications. It is not behind
// JWT auth; the payload signature is the credential.
type WebhookHandler struct {
	BaseHandler
	webhooks WebhookUseCase
	metrics  NotificationRecorder
}

// NewWebhookHandler creates a WebhookHandler. metrics may be nil.
func NewWebhookHandler(webhooks WebhookUseCase, metrics NotificationRecorder) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, metrics: metrics}
}

// Midtrans handles POST /webhooks/payments/midtrans
func (h *WebhookHandler) Midtrans(c *gin.Context) {
	h.handle(c, GatewayMidtrans)
}

func (h *WebhookHandler) handle(c *gin.Context, gateway string) {
	ctx := c.Request.Context()
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(payload) == 0 {
		h.BadRequest(c, "Empty notification body")
		return
	}

	result, err := h.webhooks.HandleNotification(ctx, gateway, payload)
	h.record(c, gateway, result, err)
	if err != nil {
		switch {
		case errors.Is(err, financeapp.ErrWebhookVerificationFailed):
			h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidSignature, "Notification signature is invalid")
		case errors.Is(err, financeapp.ErrWebhookInvalidPayload):
			h.BadRequest(c, "Invalid notification payload")
		case errors.Is(err, financeapp.ErrWebhookOrderNotFound):
			h.NotFound(c, "Order not found")
		case errors.Is(err, financeapp.ErrWebhookGatewayNotRegistered):
			h.NotFound(c, "Unknown payment gateway")
		default:
			logger.L(ctx).Error("Payment notification failed", zap.String("gateway", gateway), zap.Error(err))
			h.HandleError(c, err)
		}
		return
	}
	h.Success(c, result)
}

func (h *WebhookHandler) record(c *gin.Context, gateway string, result *financeapp.WebhookResult, err error) {
	if h.metrics == nil {
		return
	}
	status, outcome := "", telemetry.OutcomeApplied
	if result != nil {
		status = result.PaymentStatus
	}
	switch {
	case errors.Is(err, financeapp.ErrWebhookVerificationFailed), errors.Is(err, financeapp.ErrWebhookInvalidPayload):
		outcome = telemetry.OutcomeRejected
	case err != nil:
		outcome = telemetry.OutcomeFailed
	case result != nil && (result.AlreadyProcessed || result.Ignored):
		outcome = telemetry.OutcomeDuplicate
	}
	h.metrics.RecordPaymentNotification(c.Request.Context(), gateway, status, outcome)
}
