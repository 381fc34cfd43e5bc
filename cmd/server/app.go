package main

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	financeapp "github.com/invitely/backend/internal/application/finance"
	"github.com/invitely/backend/internal/application/reconciliation"
	tradeapp "github.com/invitely/backend/internal/application/trade"
	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/infrastructure/auth"
	"github.com/invitely/backend/internal/infrastructure/cache"
	"github.com/invitely/backend/internal/infrastructure/config"
	"github.com/invitely/backend/internal/infrastructure/event"
	"github.com/invitely/backend/internal/infrastructure/payment"
	"github.com/invitely/backend/internal/infrastructure/persistence"
	"github.com/invitely/backend/internal/infrastructure/scheduler"
	"github.com/invitely/backend/internal/infrastructure/storage"
	"github.com/invitely/backend/internal/infrastructure/telemetry"
	"github.com/invitely/backend/internal/interfaces/http/handler"
	"github.com/invitely/backend/internal/interfaces/http/router"
)

// app is everything the server runs besides the HTTP listener
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	engine *gin.Engine

	db          *persistence.Database
	idempotency shared.IdempotencyStore
	bus         *event.InMemoryEventBus
	outbox      *event.OutboxProcessor
	scheduler   *scheduler.Scheduler
	cron        *scheduler.CronTrigger
	ledger      *telemetry.LedgerMetrics
	dbMetrics   *telemetry.DBMetrics
}

func buildApp(ctx context.Context, cfg *config.Config, tel *telemetryProviders, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	db, err := persistence.NewDatabase(&cfg.Database, cfg.Log, log)
	if err != nil {
		return nil, err
	}
	a.db = db
	log.Info("Database connected")

	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled,
		LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBName:          cfg.Database.DBName,
	}, log); err != nil {
		log.Warn("Database tracing disabled", zap.Error(err))
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("access sql.DB: %w", err)
	}
	meter := tel.meter.Meter(cfg.Telemetry.ServiceName)
	if tel.meter.IsEnabled() {
		if a.dbMetrics, err = telemetry.NewDBMetrics(meter, sqlDB, telemetry.DBMetricsConfig{
			SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
		}, log); err != nil {
			log.Warn("Database pool metrics disabled", zap.Error(err))
		} else if err := db.DB.Use(a.dbMetrics.Plugin()); err != nil {
			log.Warn("Database query metrics disabled", zap.Error(err))
		}
	}

	a.idempotency, err = cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		return nil, err
	}
	idemCfg := shared.IdempotencyConfig{TTL: cfg.Idempotency.TTL, Enabled: cfg.Idempotency.Enabled}

	// Outbox: repositories write events in the same transaction as the state change
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	outboxSaver := event.NewOutboxPublisher(serializer)

	orderRepo := persistence.NewGormOrderRepository(db.DB)
	orderRepo.SetOutboxEventSaver(outboxSaver)
	cancellationRepo := persistence.NewGormCancellationRequestRepository(db.DB)
	cancellationRepo.SetOutboxEventSaver(outboxSaver)
	paymentRepo := persistence.NewGormPaymentRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB, outboxSaver)

	refunds, verifiers, err := paymentGateways(cfg.Midtrans, log)
	if err != nil {
		return nil, err
	}

	orders := tradeapp.NewOrderService(tradeapp.OrderServiceConfig{
		OrderRepo:   orderRepo,
		PaymentRepo: paymentRepo,
		Logger:      log.Named("orders"),
	})
	ledgerService := financeapp.NewPaymentLedgerService(financeapp.PaymentLedgerServiceConfig{
		PaymentRepo: paymentRepo,
		OrderRepo:   orderRepo,
		Logger:      log.Named("ledger"),
	})
	webhooks := financeapp.NewPaymentWebhookService(financeapp.PaymentWebhookServiceConfig{
		Verifiers:      verifiers,
		Ledger:         ledgerService,
		OrderRepo:      orderRepo,
		OrderSyncer:    orders,
		Idempotency:    a.idempotency,
		IdempotencyTTL: cfg.Idempotency.TTL,
		Logger:         log.Named("webhook"),
	})
	cancellations := tradeapp.NewCancellationService(tradeapp.CancellationServiceConfig{
		OrderRepo:        orderRepo,
		CancellationRepo: cancellationRepo,
		PaymentRepo:      paymentRepo,
		TxScope:          txScope,
		Logger:           log.Named("cancellations"),
	})
	sideEffects := tradeapp.NewCancellationSideEffects(tradeapp.CancellationSideEffectsConfig{
		CancellationRepo:  cancellationRepo,
		OrderRepo:         orderRepo,
		PaymentRepo:       paymentRepo,
		RefundGateway:     refunds,
		StockRestorer:     persistence.NewGormStockRestorer(db.DB),
		TxScope:           txScope,
		MaxRefundAttempts: cfg.Cancellation.MaxRefundAttempts,
		Logger:            log.Named("side_effects"),
	})
	archive, err := storage.OpenReportArchive(ctx, cfg.Storage, log.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("report archive: %w", err)
	}
	backfill := reconciliation.NewBackfillService(reconciliation.BackfillServiceConfig{
		OrderRepo:   orderRepo,
		PaymentRepo: paymentRepo,
		TxScope:     txScope,
		Archive:     archive,
		Logger:      log.Named("reconciliation"),
	})

	a.ledger, err = telemetry.NewLedgerMetrics(telemetry.LedgerMetricsConfig{
		Meter:   meter,
		Logger:  log,
		Backlog: persistence.NewGormBacklogCounter(db.DB, cfg.Cancellation.MaxRefundAttempts),
	})
	if err != nil {
		return nil, fmt.Errorf("create ledger metrics: %w", err)
	}

	// Event handlers behind the outbox
	a.bus = event.NewInMemoryEventBus(log.Named("events"))
	a.bus.Subscribe(event.NewIdempotentHandler("cancellation-approved",
		tradeapp.NewCancellationApprovedHandler(sideEffects, log), a.idempotency, idemCfg, log))
	a.bus.Subscribe(event.NewIdempotentHandler("notifications",
		tradeapp.NewNotificationHandler(tradeapp.NewLogNotifier(log.Named("notify")), log), a.idempotency, idemCfg, log))
	a.bus.Subscribe(tradeapp.NewMetricsHandler(a.ledger))

	outboxCfg := event.DefaultOutboxProcessorConfig()
	outboxCfg.BatchSize = cfg.Event.BatchSize
	outboxCfg.PollInterval = cfg.Event.PollInterval
	outboxCfg.CleanupEnabled = cfg.Event.CleanupEnabled
	outboxCfg.CleanupRetention = cfg.Event.CleanupRetention
	if cfg.Event.ProcessorEnabled {
		a.outbox = event.NewOutboxProcessor(event.NewGormOutboxRepository(db.DB), a.bus, serializer, outboxCfg, log.Named("outbox"))
	}

	// Background jobs
	if cfg.Scheduler.Enabled {
		dispatcher := scheduler.NewDispatcher().
			Register(scheduler.JobKindReconciliation, scheduler.ReconciliationRunner(backfill, reconciliation.BackfillOptions{
				DryRun:          cfg.Reconciliation.DryRun,
				ChunkSize:       cfg.Reconciliation.ChunkSize,
				IncludeOrphaned: cfg.Reconciliation.IncludeOrphaned,
			}, log)).
			Register(scheduler.JobKindCancellationRetry, scheduler.CancellationRetryRunner(sideEffects, cfg.Cancellation.RetryBatchSize)).
			WithRecorder(a.ledger)
		a.scheduler = scheduler.NewScheduler(scheduler.SchedulerConfig{
			MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
			JobTimeout:        cfg.Scheduler.JobTimeout,
		}, dispatcher, log.Named("scheduler"))
		a.cron = scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
			DailyEnabled:  cfg.Reconciliation.Enabled,
			DailyHour:     cfg.Reconciliation.Hour,
			DailyMinute:   cfg.Reconciliation.Minute,
			RetryInterval: cfg.Cancellation.RetryInterval,
			CheckInterval: cfg.Scheduler.CheckInterval,
		}, a.scheduler, log.Named("cron"))
	}

	a.engine, err = router.NewEngine(router.EngineConfig{
		HTTP:           cfg.HTTP,
		ServiceName:    cfg.Telemetry.ServiceName,
		TracingEnabled: tel.tracer.IsEnabled(),
		Meter:          meter,
		Tokens:         auth.NewJWTService(cfg.JWT),
		Logger:         log,
	}, router.Handlers{
		Health:         handler.NewHealthHandler(sqlDB, version),
		Orders:         handler.NewOrderHandler(orders, ledgerService),
		Payments:       handler.NewPaymentHandler(ledgerService, orders),
		Cancellations:  handler.NewCancellationHandler(cancellations, sideEffects, orders),
		Webhooks:       handler.NewWebhookHandler(webhooks, a.ledger),
		Reconciliation: handler.NewReconciliationHandler(backfill),
	})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	return a, nil
}

// paymentGateways builds the Midtrans adapter when a server key is configured.
// Without one, notifications cannot be verified and refunds are recorded
// for manual processing.
func paymentGateways(cfg config.MidtransConfig, log *zap.Logger) (finance.RefundGateway, []finance.NotificationVerifier, error) {
	if cfg.ServerKey == "" {
		log.Warn("Midtrans server key not set: payment notifications are disabled")
		return payment.NewNoopRefundGateway(), nil, nil
	}
	adapter, err := payment.NewMidtransAdapter(&payment.MidtransConfig{
		ServerKey: cfg.ServerKey,
		BaseURL:   cfg.BaseURL,
		IsSandbox: cfg.Sandbox,
		Timeout:   cfg.Timeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("configure midtrans: %w", err)
	}
	verifiers := []finance.NotificationVerifier{adapter}
	if !cfg.RefundsEnabled {
		log.Info("Gateway refunds disabled: refunds are recorded for manual processing")
		return payment.NewNoopRefundGateway(), verifiers, nil
	}
	return adapter, verifiers, nil
}

func (a *app) start(ctx context.Context) error {
	if err := a.bus.Start(ctx); err != nil {
		return fmt.Errorf("start event bus: %w", err)
	}
	if a.outbox != nil {
		if err := a.outbox.Start(ctx); err != nil {
			return fmt.Errorf("start outbox processor: %w", err)
		}
	}
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		if err := a.cron.Start(ctx); err != nil {
			return fmt.Errorf("start cron trigger: %w", err)
		}
	}
	a.ledger.StartBacklogCollection(ctx, a.cfg.Telemetry.BacklogInterval)
	if a.dbMetrics != nil {
		a.dbMetrics.StartPoolStatsCollection(ctx)
	}
	return nil
}

// stop shuts down in reverse dependency order: producers of work first,
// then the consumers, then storage
func (a *app) stop(ctx context.Context) {
	if a.cron != nil {
		a.logStop("cron trigger", a.cron.Stop(ctx))
	}
	if a.scheduler != nil {
		a.logStop("scheduler", a.scheduler.Stop(ctx))
	}
	if a.outbox != nil {
		a.logStop("outbox processor", a.outbox.Stop(ctx))
	}
	if a.bus != nil {
		a.logStop("event bus", a.bus.Stop(ctx))
	}
	if a.ledger != nil {
		a.ledger.Stop()
	}
	if a.dbMetrics != nil {
		a.dbMetrics.Stop()
	}
	if a.idempotency != nil {
		a.logStop("idempotency store", a.idempotency.Close())
	}
	if a.db != nil {
		a.logStop("database", a.db.Close())
	}
}

func (a *app) logStop(component string, err error) {
	if err != nil {
		a.log.Warn("Shutdown step failed", zap.String("component", component), zap.Error(err))
		return
	}
	a.log.Debug("Stopped", zap.String("component", component))
}
