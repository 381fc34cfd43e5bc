package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMeterNil is returned when no meter is supplied
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Outcome labels
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeCompleted = "completed"
)

// BacklogProvider reports work waiting for the background jobs
type BacklogProvider interface {
	PendingCancellationCount(ctx context.Context) (int64, error)
	RetryableSideEffectCount(ctx context.Context) (int64, error)
}

// LedgerMetrics records order, payment and cancellation activity
type LedgerMetrics struct {
	logger *zap.Logger

	ordersPlaced         *Counter
	orderAmountTotal     *Counter
	statusChanges        *Counter
	paymentNotifications *Counter
	cancellations        *Counter
	refunds              *Counter
	reconciliationFixes  *Counter
	jobDuration          *Histogram

	pendingCancellations *Gauge
	retryableSideEffects *Gauge

	backlog     BacklogProvider
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// LedgerMetricsConfig configures LedgerMetrics
type LedgerMetricsConfig struct {
	Meter   metric.Meter
	Logger  *zap.Logger
	Backlog BacklogProvider
}

// NewLedgerMetrics registers the ledger instruments on the meter
func NewLedgerMetrics(cfg LedgerMetricsConfig) (*LedgerMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lm := &LedgerMetrics{logger: logger, backlog: cfg.Backlog, stopChan: make(chan struct{})}

	counters := []struct {
		target **Counter
		name   string
		desc   string
		unit   string
	}{
		{&lm.ordersPlaced, "invitely_orders_placed_total", "Orders created at checkout", "{orders}"},
		{&lm.orderAmountTotal, "invitely_order_amount_total", "Order value placed, in rupiah", "{IDR}"},
		{&lm.statusChanges, "invitely_order_status_changes_total", "Audited order state changes", "{changes}"},
		{&lm.paymentNotifications, "invitely_payment_notifications_total", "Gateway payment notifications received", "{notifications}"},
		{&lm.cancellations, "invitely_cancellations_total", "Cancellation request decisions", "{requests}"},
		{&lm.refunds, "invitely_refunds_total", "Refund attempts by outcome", "{refunds}"},
		{&lm.reconciliationFixes, "invitely_reconciliation_fixes_total", "Rows changed by reconciliation jobs", "{rows}"},
	}
	for _, c := range counters {
		counter, err := NewCounter(cfg.Meter, c.name, c.desc, c.unit)
		if err != nil {
			return nil, err
		}
		*c.target = counter
	}

	var err error
	lm.jobDuration, err = NewHistogram(cfg.Meter, HistogramOpts{
		Name:        "invitely_job_duration_seconds",
		Description: "Background job run time",
		Unit:        "s",
		Boundaries:  JobDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	lm.pendingCancellations, err = NewGauge(cfg.Meter, "invitely_cancellations_pending", "Cancellation requests awaiting review", "{requests}")
	if err != nil {
		return nil, err
	}
	lm.retryableSideEffects, err = NewGauge(cfg.Meter, "invitely_cancellation_side_effects_retryable", "Approved cancellations with an unfinished refund or restock", "{requests}")
	if err != nil {
		return nil, err
	}
	return lm, nil
}

// RecordOrderPlaced counts a checkout and its value
func (lm *LedgerMetrics) RecordOrderPlaced(ctx context.Context, amount decimal.Decimal) {
	lm.ordersPlaced.Inc(ctx)
	lm.orderAmountTotal.Add(ctx, amount.Round(0).IntPart())
}

// RecordStatusChange counts an order state change
func (lm *LedgerMetrics) RecordStatusChange(ctx context.Context, from, to string) {
	lm.statusChanges.Inc(ctx, AttrFromStatus.String(from), AttrToStatus.String(to))
}

// RecordPaymentNotification counts a gateway notification and what became of it
func (lm *LedgerMetrics) RecordPaymentNotification(ctx context.Context, gateway, status, outcome string) {
	lm.paymentNotifications.Inc(ctx,
		AttrGateway.String(gateway),
		AttrPaymentStatus.String(status),
		AttrOutcome.String(outcome))
}

// RecordCancellation counts a cancellation request event (requested, approved, rejected)
func (lm *LedgerMetrics) RecordCancellation(ctx context.Context, outcome string) {
	lm.cancellations.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordRefund counts a refund attempt
func (lm *LedgerMetrics) RecordRefund(ctx context.Context, outcome string) {
	lm.refunds.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordJob records a reconciliation or retry job run
func (lm *LedgerMetrics) RecordJob(ctx context.Context, job string, d time.Duration, fixed int) {
	lm.jobDuration.RecordDuration(ctx, d, AttrJob.String(job))
	if fixed > 0 {
		lm.reconciliationFixes.Add(ctx, int64(fixed), AttrJob.String(job))
	}
}

// StartBacklogCollection samples the backlog gauges every interval until
// ctx is done or Stop is called
func (lm *LedgerMetrics) StartBacklogCollection(ctx context.Context, interval time.Duration) {
	if lm.backlog == nil {
		return
	}
	lm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = 5 * time.Minute
		}
		go lm.runBacklogCollection(ctx, interval)
	})
}

func (lm *LedgerMetrics) runBacklogCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lm.collectBacklog(ctx)
	for {
		select {
		case <-lm.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			lm.collectBacklog(ctx)
		}
	}
}

func (lm *LedgerMetrics) collectBacklog(ctx context.Context) {
	if n, err := lm.backlog.PendingCancellationCount(ctx); err != nil {
		lm.logger.Warn("Failed to count pending cancellations", zap.Error(err))
	} else {
		lm.pendingCancellations.Record(ctx, n)
	}
	if n, err := lm.backlog.RetryableSideEffectCount(ctx); err != nil {
		lm.logger.Warn("Failed to count retryable side effects", zap.Error(err))
	} else {
		lm.retryableSideEffects.Record(ctx, n)
	}
}

// Stop ends backlog collection
func (lm *LedgerMetrics) Stop() {
	lm.stopOnce.Do(func() { close(lm.stopChan) })
}
