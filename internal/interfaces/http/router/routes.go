package router

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/config"
	"github.com/invitely/backend/internal/infrastructure/logger"
	"github.com/invitely/backend/internal/interfaces/http/handler"
	"github.com/invitely/backend/internal/interfaces/http/middleware"
)

// Handlers are the endpoint groups served by the API
type Handlers struct {
	Health         *handler.HealthHandler
	Orders         *handler.OrderHandler
	Payments       *handler.PaymentHandler
	Cancellations  *handler.CancellationHandler
	Webhooks       *handler.WebhookHandler
	Reconciliation *handler.ReconciliationHandler
}

// EngineConfig holds what the middleware chain needs
type EngineConfig struct {
	HTTP           config.HTTPConfig
	ServiceName    string
	TracingEnabled bool
	// Meter may be nil, in which case HTTP metrics are not recorded
	Meter  metric.Meter
	Tokens middleware.TokenValidator
	Logger *zap.Logger
}

// NewEngine builds the gin engine with the full middleware chain and every route
func NewEngine(cfg EngineConfig, h Handlers) (*gin.Engine, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, err
	}
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.Secure(),
		middleware.CORS(cfg.HTTP),
		middleware.Tracing(cfg.ServiceName, cfg.TracingEnabled),
		middleware.SpanEnricher(),
		middleware.HTTPMetrics(cfg.Meter),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)

	engine.GET("/health", h.Health.Live)
	engine.GET("/health/ready", h.Health.Ready)

	NewRouter(engine).Register(Routes(cfg.Tokens, log, h)...).Setup()
	return engine, nil
}

// Routes returns the /api/v1 route groups
func Routes(tokens middleware.TokenValidator, log *zap.Logger, h Handlers) []RouteRegistrar {
	webhooks := NewDomainGroup("webhooks", "/webhooks")
	webhooks.POST("/payments/midtrans", h.Webhooks.Midtrans)

	auth := middleware.JWTAuth(tokens, log)

	orders := NewDomainGroup("orders", "/orders").
		Use(auth, middleware.RequireRole(trade.ActorCustomer, trade.ActorAdmin))
	orders.POST("", h.Orders.Create).
		GET("", h.Orders.List).
		GET("/:id", h.Orders.Get).
		GET("/:id/payments", h.Orders.ListPayments).
		GET("/:id/balance", h.Orders.Balance).
		GET("/:id/cancellations", h.Cancellations.ListForOrder).
		POST("/:id/cancellations", h.Cancellations.Request)

	admin := NewDomainGroup("admin", "/admin").
		Use(auth, middleware.RequireRole(trade.ActorAdmin))
	admin.Group("orders", "/orders").
		PATCH("/:id/status", h.Orders.UpdateStatus)
	admin.Group("payments", "/payments").
		POST("", h.Payments.Record)
	admin.Group("cancellations", "/cancellations").
		GET("/:id", h.Cancellations.Get).
		POST("/:id/approve", h.Cancellations.Approve).
		POST("/:id/reject", h.Cancellations.Reject).
		POST("/:id/retry", h.Cancellations.Retry)
	admin.Group("reconciliation", "/reconciliation").
		POST("/run", h.Reconciliation.Run)

	return []RouteRegistrar{webhooks, orders, admin}
}
