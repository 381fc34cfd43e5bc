// Command reconcile runs the ledger backfill jobs once, outside the server.
// It defaults to a dry run; pass -apply to write.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/invitely/backend/internal/application/reconciliation"
	"github.com/invitely/backend/internal/infrastructure/config"
	"github.com/invitely/backend/internal/infrastructure/event"
	"github.com/invitely/backend/internal/infrastructure/logger"
	"github.com/invitely/backend/internal/infrastructure/persistence"
	"github.com/invitely/backend/internal/infrastructure/storage"
)

func main() {
	var (
		job             string
		apply           bool
		chunkSize       int
		limit           int
		includeOrphaned bool
		archive         bool
		logLevel        string
	)
	flag.StringVar(&job, "job", reconciliation.JobAll, "Job to run: all, orphaned-payments, payment-options")
	flag.BoolVar(&apply, "apply", false, "Write changes (default is a dry run)")
	flag.IntVar(&chunkSize, "chunk-size", reconciliation.DefaultChunkSize, "Orders loaded per batch")
	flag.IntVar(&limit, "limit", 0, "Stop after this many orders, 0 for no limit")
	flag.BoolVar(&includeOrphaned, "include-orphaned", false, "Infer payment options for paid orders without ledger rows")
	flag.BoolVar(&archive, "archive", false, "Store the report in the configured object storage")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	log, err := logger.New(&logger.Config{Level: logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(job, reconciliation.BackfillOptions{
		DryRun:          !apply,
		ChunkSize:       chunkSize,
		Limit:           limit,
		IncludeOrphaned: includeOrphaned,
	}, archive, log); err != nil {
		log.Error("Reconciliation failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(job string, opts reconciliation.BackfillOptions, archive bool, log *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := persistence.NewDatabase(&cfg.Database, cfg.Log, log)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	// Repairs emit the same outbox events as the server; its processor delivers them
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	outboxSaver := event.NewOutboxPublisher(serializer)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	orderRepo.SetOutboxEventSaver(outboxSaver)

	var store reconciliation.ReportStore
	if archive {
		storageCfg := cfg.Storage
		storageCfg.Enabled = true
		if store, err = storage.OpenReportArchive(ctx, storageCfg, log); err != nil {
			return fmt.Errorf("report archive: %w", err)
		}
	}

	service := reconciliation.NewBackfillService(reconciliation.BackfillServiceConfig{
		OrderRepo:   orderRepo,
		PaymentRepo: persistence.NewGormPaymentRepository(db.DB),
		TxScope:     persistence.NewGormTransactionScope(db.DB, outboxSaver),
		Archive:     store,
		Logger:      log,
	})

	log.Info("Reconciliation starting",
		zap.String("job", job),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("chunk_size", opts.ChunkSize),
		zap.Int("limit", opts.Limit))

	report, runErr := service.Run(ctx, reconciliation.RunOptions{Job: job, BackfillOptions: opts})
	if report != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d orders failed", report.Failed)
	}
	return nil
}
