package handler

import (
	"context"

	"github.com/google/uuid"

	financeapp "github.com/invitely/backend/internal/application/finance"
	"github.com/invitely/backend/internal/application/reconciliation"
	tradeapp "github.com/invitely/backend/internal/application/trade"
	"github.com/invitely/backend/internal/domain/trade"
)

// OrderUseCase is the order side of the API
type OrderUseCase interface {
	CreateOrder(ctx context.Context, req tradeapp.CreateOrderRequest) (*tradeapp.OrderResponse, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*tradeapp.OrderResponse, error)
	ListOrders(ctx context.Context, filter tradeapp.OrderListFilter) ([]tradeapp.OrderResponse, int64, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, actor trade.Actor, req tradeapp.UpdateStatusRequest) (*tradeapp.TransitionResult, error)
	SyncPaymentState(ctx context.Context, orderID uuid.UUID) (*trade.StatusTransition, error)
}

// PaymentLedgerUseCase is the ledger side of the API
type PaymentLedgerUseCase interface {
	RecordPayment(ctx context.Context, req financeapp.RecordPaymentRequest) (*financeapp.PaymentResponse, error)
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]financeapp.PaymentResponse, error)
	GetBalance(ctx context.Context, orderID uuid.UUID) (*financeapp.BalanceResponse, error)
}

// CancellationUseCase is the cancellation workflow
type CancellationUseCase interface {
	Request(ctx context.Context, orderID uuid.UUID, actor trade.Actor, req tradeapp.RequestCancellationRequest) (*tradeapp.CancellationResponse, error)
	Approve(ctx context.Context, requestID uuid.UUID, req tradeapp.ApproveCancellationRequest) (*tradeapp.ApprovalResult, error)
	Reject(ctx context.Context, requestID uuid.UUID, req tradeapp.RejectCancellationRequest) (*tradeapp.CancellationResponse, error)
	GetCancellation(ctx context.Context, requestID uuid.UUID) (*tradeapp.CancellationResponse, error)
	ListCancellations(ctx context.Context, orderID uuid.UUID) ([]tradeapp.CancellationResponse, error)
}

// SideEffectProcessor reruns the refund and stock side effects of an approval
type SideEffectProcessor interface {
	Process(ctx context.Context, requestID uuid.UUID) (*tradeapp.CancellationResponse, error)
}

// WebhookUseCase handles raw gateway notifications
type WebhookUseCase interface {
	HandleNotification(ctx context.Context, gateway string, payload []byte) (*financeapp.WebhookResult, error)
}

// ReconciliationRunner runs the backfill jobs
type ReconciliationRunner interface {
	Run(ctx context.Context, opts reconciliation.RunOptions) (*reconciliation.Report, error)
}

// NotificationRecorder counts gateway notifications by outcome
type NotificationRecorder interface {
	RecordPaymentNotification(ctx context.Context, gateway, status, outcome string)
}
