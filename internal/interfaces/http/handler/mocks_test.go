package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	financeapp "github.com/invitely/backend/internal/application/finance"
	"github.com/invitely/backend/internal/application/reconciliation"
	tradeapp "github.com/invitely/backend/internal/application/trade"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/interfaces/http/dto"
	"github.com/invitely/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

type mockOrderUseCase struct {
	mock.Mock
}

func (m *mockOrderUseCase) CreateOrder(ctx context.Context, req tradeapp.CreateOrderRequest) (*tradeapp.OrderResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tradeapp.OrderResponse), args.Error(1)
}

func (m *mockOrderUseCase) GetOrder(ctx context.Context, orderID uuid.UUID) (*tradeapp.OrderResponse, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tradeapp.OrderResponse), args.Error(1)
}

func (m *mockOrderUseCase) ListOrders(ctx context.Context, filter tradeapp.OrderListFilter) ([]tradeapp.OrderResponse, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]tradeapp.OrderResponse), args.Get(1).(int64), args.Error(2)
}

func (m *mockOrderUseCase) UpdateStatus(ctx context.Context, orderID uuid.UUID, actor trade.Actor, req tradeapp.UpdateStatusRequest) (*tradeapp.TransitionResult, error) {
	args := m.Called(ctx, orderID, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tradeapp.TransitionResult), args.Error(1)
}

func (m *mockOrderUseCase) SyncPaymentState(ctx context.Context, orderID uuid.UUID) (*trade.StatusTransition, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*trade.StatusTransition), args.Error(1)
}

type mockLedgerUseCase struct {
	mock.Mock
}

func (m *mockLedgerUseCase) RecordPayment(ctx context.Context, req financeapp.RecordPaymentRequest) (*financeapp.PaymentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*financeapp.PaymentResponse), args.Error(1)
}

func (m *mockLedgerUseCase) ListPayments(ctx context.Context, orderID uuid.UUID) ([]financeapp.PaymentResponse, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]financeapp.PaymentResponse), args.Error(1)
}

func (m *mockLedgerUseCase) GetBalance(ctx context.Context, orderID uuid.UUID) (*financeapp.BalanceResponse, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*financeapp.BalanceResponse), args.Error(1)
}

type mockCancellationUseCase struct {
	mock.Mock
}

func (m *mockCancellationUseCase) Request(ctx context.Context, orderID uuid.UUID, actor trade.Actor, req tradeapp.RequestCancellationRequest) (*tradeapp.CancellationResponse, error) {
	args := m.Called(ctx, orderID, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tradeapp.CancellationResponse), args.Error(1)
}

func (m *mockCancellationUseCase) Approve(ctx context.Context, requestID uuid.UUID, req tradeapp.ApproveCancellationRequest) (*tradeapp.ApprovalResult, error) {
	args := m.Called(ctx, requestID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tradeapp.ApprovalResult), args.Error(1)
}

func (m *mockCancellationUseCase) Reject(ctx context.Context, requestID uuid.UUID, req tradeapp.RejectCancellationRequest) (*tradeapp.CancellationResponse, error) {
	args := m.Called(ctx, requestID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tradeapp.CancellationResponse), args.Error(1)
}

func (m *mockCancellationUseCase) GetCancellation(ctx context.Context, requestID uuid.UUID) (*tradeapp.CancellationResponse, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tradeapp.CancellationResponse), args.Error(1)
}

func (m *mockCancellationUseCase) ListCancellations(ctx context.Context, orderID uuid.UUID) ([]tradeapp.CancellationResponse, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).([]tradeapp.CancellationResponse), args.Error(1)
}

type mockSideEffects struct {
	mock.Mock
}

func (m *mockSideEffects) Process(ctx context.Context, requestID uuid.UUID) (*tradeapp.CancellationResponse, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tradeapp.CancellationResponse), args.Error(1)
}

type mockWebhookUseCase struct {
	mock.Mock
}

func (m *mockWebhookUseCase) HandleNotification(ctx context.Context, gateway string, payload []byte) (*financeapp.WebhookResult, error) {
	args := m.Called(ctx, gateway, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*financeapp.WebhookResult), args.Error(1)
}

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, opts reconciliation.RunOptions) (*reconciliation.Report, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reconciliation.Report), args.Error(1)
}

type mockNotificationRecorder struct {
	mock.Mock
}

func (m *mockNotificationRecorder) RecordPaymentNotification(ctx context.Context, gateway, status, outcome string) {
	m.Called(ctx, gateway, status, outcome)
}

// newTestRouter returns an engine that authenticates every request as actor
func newTestRouter(actor *trade.Actor) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	if actor != nil {
		a := *actor
		r.Use(func(c *gin.Context) {
			c.Set(middleware.ActorKey, a)
			c.Next()
		})
	}
	return r
}

func performRequest(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	case []byte:
		buf.Write(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func customerActor() *trade.Actor {
	a := trade.CustomerActor(uuid.New())
	return &a
}

func adminActor() *trade.Actor {
	a := trade.AdminActor(uuid.New())
	return &a
}
