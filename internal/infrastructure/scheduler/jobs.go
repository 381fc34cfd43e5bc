package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/invitely/backend/internal/application/reconciliation"
	apptrade "github.com/invitely/backend/internal/application/trade"
	"github.com/invitely/backend/internal/infrastructure/telemetry"
)

// Runner is the body of one job kind. It returns how many rows it changed.
type Runner func(ctx context.Context) (int, error)

// JobRecorder observes finished runs
type JobRecorder interface {
	RecordJob(ctx context.Context, job string, d time.Duration, changed int)
}

// Dispatcher executes a job by looking up the runner of its kind
type Dispatcher struct {
	runners  map[JobKind]Runner
	recorder JobRecorder
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher() *Dispatcher {
	return &Dispatcher{runners: make(map[JobKind]Runner)}
}

// Register binds kind to run
func (d *Dispatcher) Register(kind JobKind, run Runner) *Dispatcher {
	d.runners[kind] = run
	return d
}

// WithRecorder reports every run to recorder
func (d *Dispatcher) WithRecorder(recorder JobRecorder) *Dispatcher {
	d.recorder = recorder
	return d
}

// Kinds lists the registered kinds
func (d *Dispatcher) Kinds() []JobKind {
	kinds := make([]JobKind, 0, len(d.runners))
	for k := range d.runners {
		kinds = append(kinds, k)
	}
	return kinds
}

// Execute implements JobExecutor
func (d *Dispatcher) Execute(ctx context.Context, job *Job) error {
	run, ok := d.runners[job.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobKind, job.Kind)
	}

	start := time.Now()
	var (
		changed int
		err     error
	)
	telemetry.ProfileJob(ctx, string(job.Kind), func(ctx context.Context) {
		changed, err = run(ctx)
	})
	if d.recorder != nil {
		d.recorder.RecordJob(ctx, string(job.Kind), time.Since(start), changed)
	}
	return err
}

var _ JobExecutor = (*Dispatcher)(nil)

// Reconciler runs the backfill jobs
type Reconciler interface {
	Run(ctx context.Context, opts reconciliation.RunOptions) (*reconciliation.Report, error)
}

// ReconciliationRunner runs every backfill job with opts. Per-order
// failures are reported, not returned, so they do not trigger a retry of
// the whole pass.
func ReconciliationRunner(reconciler Reconciler, opts reconciliation.BackfillOptions, logger *zap.Logger) Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) (int, error) {
		report, err := reconciler.Run(ctx, reconciliation.RunOptions{
			BackfillOptions: opts,
			Job:             reconciliation.JobAll,
		})
		if err != nil {
			return 0, err
		}
		logger.Info("Scheduled reconciliation finished",
			zap.Bool("dry_run", report.DryRun),
			zap.Int("scanned", report.Scanned),
			zap.Int("changed", report.Changed),
			zap.Int("failed", report.Failed),
		)
		if report.DryRun {
			return 0, nil
		}
		return report.Changed, nil
	}
}

// SideEffectRetrier retries outstanding cancellation side effects
type SideEffectRetrier interface {
	RetryPending(ctx context.Context, limit int) (*apptrade.SideEffectReport, error)
}

// CancellationRetryRunner retries up to batchSize cancellations per run
func CancellationRetryRunner(retrier SideEffectRetrier, batchSize int) Runner {
	if batchSize <= 0 {
		batchSize = 50
	}
	return func(ctx context.Context) (int, error) {
		report, err := retrier.RetryPending(ctx, batchSize)
		if err != nil {
			return 0, err
		}
		return report.Refunded + report.Restored, nil
	}
}
