// Package reconciliation repairs historical order data that drifted from the
// payment ledger.
package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apptrade "github.com/invitely/backend/internal/application/trade"
	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/telemetry"
)

// Job names
const (
	JobOrphanedPayments = "orphaned-payments"
	JobPaymentOptions   = "payment-options"
	JobAll              = "all"
)

// DefaultChunkSize is used when BackfillOptions.ChunkSize is not set
const DefaultChunkSize = 200

// BackfillOptions controls one backfill pass
type BackfillOptions struct {
	DryRun    bool
	ChunkSize int
	// Limit caps the number of scanned orders, 0 means no cap
	Limit           int
	IncludeOrphaned bool
}

func (o BackfillOptions) chunkSize() int {
	if o.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return o.ChunkSize
}

// RunOptions selects which jobs Run executes
type RunOptions struct {
	BackfillOptions
	Job string
}

// Change is one repair, applied or (in dry run) intended
type Change struct {
	Job         string    `json:"job"`
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Action      string    `json:"action"`
	Detail      string    `json:"detail,omitempty"`
}

// Report summarizes a backfill run
type Report struct {
	DryRun  bool     `json:"dry_run"`
	Scanned int      `json:"scanned"`
	Changed int      `json:"changed"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Changes []Change `json:"changes"`
	Errors  []string `json:"errors,omitempty"`
	// ArchiveKey is the object key of the archived copy, empty when not archived
	ArchiveKey string `json:"archive_key,omitempty"`
}

// ReportStore keeps a copy of every run report outside the database
type ReportStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// ArchiveKey names the object a report of job finished at t is stored under
func ArchiveKey(job string, t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("reconciliation/%s/%s-%s.json", t.Format("2006/01/02"), t.Format("150405"), job)
}

func (r *Report) merge(other *Report) {
	if other == nil {
		return
	}
	r.Scanned += other.Scanned
	r.Changed += other.Changed
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Changes = append(r.Changes, other.Changes...)
	r.Errors = append(r.Errors, other.Errors...)
}

func (r *Report) fail(order *trade.Order, err error) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", order.OrderNumber, err))
}

// BackfillService runs the orphaned-payment and payment-option repairs
type BackfillService struct {
	orderRepo   trade.OrderRepository
	paymentRepo finance.PaymentRepository
	txScope     apptrade.TransactionScope
	archive     ReportStore
	logger      *zap.Logger
	now         func() time.Time
}

// BackfillServiceConfig holds the dependencies of BackfillService
type BackfillServiceConfig struct {
	OrderRepo   trade.OrderRepository
	PaymentRepo finance.PaymentRepository
	TxScope     apptrade.TransactionScope
	// Archive is optional; when set every Run report is stored there
	Archive ReportStore
	Logger  *zap.Logger
}

// NewBackfillService creates a new BackfillService
func NewBackfillService(config BackfillServiceConfig) *BackfillService {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	txScope := config.TxScope
	if txScope == nil {
		txScope = apptrade.NewNoOpTransactionScope(config.OrderRepo, nil, config.PaymentRepo)
	}
	return &BackfillService{
		orderRepo:   config.OrderRepo,
		paymentRepo: config.PaymentRepo,
		txScope:     txScope,
		archive:     config.Archive,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes the selected jobs, orphaned payments first so the option
// backfill can read the rows it creates.
func (s *BackfillService) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	job := opts.Job
	if job == "" {
		job = JobAll
	}
	if job != JobAll && job != JobOrphanedPayments && job != JobPaymentOptions {
		return nil, shared.NewValidationError("INVALID_JOB", "unknown reconciliation job %q", opts.Job)
	}

	report := &Report{DryRun: opts.DryRun, Changes: []Change{}}
	err := s.runJobs(ctx, job, opts.BackfillOptions, report)
	s.archiveReport(ctx, job, report)
	return report, err
}

func (s *BackfillService) runJobs(ctx context.Context, job string, opts BackfillOptions, report *Report) error {
	if job == JobAll || job == JobOrphanedPayments {
		r, err := s.BackfillOrphanedPayments(ctx, opts)
		report.merge(r)
		if err != nil {
			return err
		}
	}
	if job == JobAll || job == JobPaymentOptions {
		r, err := s.BackfillPaymentOptions(ctx, opts)
		report.merge(r)
		if err != nil {
			return err
		}
	}
	return nil
}

// archiveReport stores report when an archive is configured. Archive
// failures are logged and never fail the run.
func (s *BackfillService) archiveReport(ctx context.Context, job string, report *Report) {
	if s.archive == nil {
		return
	}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		s.logger.Warn("Failed to encode reconciliation report", zap.Error(err))
		return
	}
	key := ArchiveKey(job, s.now())
	if err := s.archive.Put(ctx, key, body, "application/json"); err != nil {
		s.logger.Warn("Failed to archive reconciliation report",
			zap.String("key", key), zap.Error(err))
		return
	}
	report.ArchiveKey = key
	s.logger.Info("Reconciliation report archived", zap.String("key", key))
}

// BackfillOrphanedPayments creates the synthetic ledger row for paid orders
// that have none. The deterministic transaction id makes reruns no-ops.
func (s *BackfillService) BackfillOrphanedPayments(ctx context.Context, opts BackfillOptions) (*Report, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "backfill_orphaned_payments",
		telemetry.WithAttribute(telemetry.SpanAttrDryRun, opts.DryRun))
	defer span.End()

	report := &Report{DryRun: opts.DryRun, Changes: []Change{}}
	err := s.scan(ctx, opts, report, s.orderRepo.FindOrphanedPaid, func(order *trade.Order) {
		switch order.PaymentStatus() {
		case trade.PaymentStatusPaid:
		case trade.PaymentStatusPartiallyPaid:
			// The paid amount of a partially paid order cannot be reconstructed
			report.Skipped++
			s.logger.Warn("Partially paid order has no ledger rows",
				zap.String("order_id", order.ID.String()),
				zap.String("order_number", order.OrderNumber))
			return
		default:
			// The two axes disagree; left for an admin to resolve
			err := shared.NewConsistencyError("PAYMENT_AXIS_DRIFT",
				"order status %s but payment status %s and no ledger rows",
				order.Status(), order.PaymentStatus())
			report.fail(order, err)
			s.logger.Warn("Order status ahead of payment status",
				zap.String("order_id", order.ID.String()),
				zap.String("order_number", order.OrderNumber),
				zap.String("status", string(order.Status())),
				zap.String("payment_status", string(order.PaymentStatus())))
			return
		}

		plan := finance.PaymentPlanFull
		if order.PaymentOption != nil && *order.PaymentOption == finance.PaymentPlanDownPayment {
			plan = finance.PaymentPlanDownPayment
		}
		paidAt := order.UpdatedAt
		if order.PaidAt != nil {
			paidAt = *order.PaidAt
		}
		payment, err := finance.NewBackfilledPayment(order.ID, order.OrderNumber, order.TotalAmount, plan, paidAt)
		if err != nil {
			report.fail(order, err)
			return
		}
		change := Change{
			Job:         JobOrphanedPayments,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Action:      "create_payment",
			Detail:      fmt.Sprintf("%s %s %s", payment.TransactionID, plan, order.TotalAmount.String()),
		}
		if opts.DryRun {
			report.Changed++
			report.Changes = append(report.Changes, change)
			return
		}

		var inserted bool
		err = s.txScope.Execute(ctx, func(repos apptrade.TransactionalRepositories) error {
			exists, err := repos.PaymentRepo().ExistsForOrder(ctx, order.ID)
			if err != nil || exists {
				return err
			}
			inserted, err = repos.PaymentRepo().InsertIfAbsent(ctx, payment)
			return err
		})
		switch {
		case err != nil:
			report.fail(order, err)
			s.logger.Error("Failed to backfill payment",
				zap.String("order_id", order.ID.String()),
				zap.Error(err))
		case !inserted:
			report.Skipped++
		default:
			report.Changed++
			report.Changes = append(report.Changes, change)
			s.logger.Info("Backfilled orphaned payment",
				zap.String("order_id", order.ID.String()),
				zap.String("transaction_id", payment.TransactionID),
				zap.String("amount", payment.Amount.String()))
		}
	})
	if err != nil {
		telemetry.RecordError(span, err)
	}
	s.logReport("orphaned payments", report)
	return report, err
}

// BackfillPaymentOptions infers the missing payment option of orders from
// their earliest payment. Orders that already have one are never touched.
func (s *BackfillService) BackfillPaymentOptions(ctx context.Context, opts BackfillOptions) (*Report, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "reconciliation", "backfill_payment_options",
		telemetry.WithAttribute(telemetry.SpanAttrDryRun, opts.DryRun))
	defer span.End()

	report := &Report{DryRun: opts.DryRun, Changes: []Change{}}
	err := s.scan(ctx, opts, report, s.orderRepo.FindMissingPaymentOption, func(order *trade.Order) {
		plan, source, err := s.inferPaymentOption(ctx, order, opts.IncludeOrphaned)
		if err != nil {
			report.fail(order, err)
			return
		}
		if plan == "" {
			report.Skipped++
			return
		}

		changed, err := order.AssignPaymentOption(plan)
		if err != nil {
			report.fail(order, err)
			return
		}
		if !changed {
			report.Skipped++
			return
		}
		change := Change{
			Job:         JobPaymentOptions,
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			Action:      "set_payment_option",
			Detail:      fmt.Sprintf("%s (%s)", plan, source),
		}
		if !opts.DryRun {
			if err := s.orderRepo.SaveWithLock(ctx, order); err != nil {
				report.fail(order, err)
				s.logger.Error("Failed to save payment option",
					zap.String("order_id", order.ID.String()),
					zap.Error(err))
				return
			}
		}
		report.Changed++
		report.Changes = append(report.Changes, change)
	})
	if err != nil {
		telemetry.RecordError(span, err)
	}
	s.logReport("payment options", report)
	return report, err
}

// inferPaymentOption returns an empty plan when nothing can be inferred
func (s *BackfillService) inferPaymentOption(ctx context.Context, order *trade.Order, includeOrphaned bool) (finance.PaymentPlan, string, error) {
	earliest, err := s.paymentRepo.FindEarliestByOrder(ctx, order.ID)
	switch {
	case err == nil:
		if earliest.Type == finance.PaymentPlanFinal {
			// A final instalment implies a split plan
			return finance.PaymentPlanDownPayment, "earliest payment " + earliest.TransactionID, nil
		}
		return earliest.Type, "earliest payment " + earliest.TransactionID, nil
	case errors.Is(err, shared.ErrNotFound):
		if includeOrphaned && order.PaymentStatus().HasReceivedMoney() {
			return finance.PaymentPlanFull, "orphaned paid order", nil
		}
		return "", "", nil
	default:
		return "", "", err
	}
}

type chunkFinder func(ctx context.Context, afterID uuid.UUID, limit int) ([]*trade.Order, error)

// scan walks the finder with keyset pagination over order id. The context is
// checked between chunks so a run can be interrupted and resumed.
func (s *BackfillService) scan(ctx context.Context, opts BackfillOptions, report *Report, find chunkFinder, visit func(*trade.Order)) error {
	after := uuid.Nil
	chunk := opts.chunkSize()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		size := chunk
		if opts.Limit > 0 {
			remaining := opts.Limit - report.Scanned
			if remaining <= 0 {
				return nil
			}
			if remaining < size {
				size = remaining
			}
		}

		orders, err := find(ctx, after, size)
		if err != nil {
			return fmt.Errorf("load chunk after %s: %w", after, err)
		}
		for _, order := range orders {
			report.Scanned++
			visit(order)
			after = order.ID
		}
		if len(orders) < size {
			return nil
		}
	}
}

func (s *BackfillService) logReport(job string, report *Report) {
	s.logger.Info("Backfill finished",
		zap.String("job", job),
		zap.Bool("dry_run", report.DryRun),
		zap.Int("scanned", report.Scanned),
		zap.Int("changed", report.Changed),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Time("finished_at", time.Now()))
}
