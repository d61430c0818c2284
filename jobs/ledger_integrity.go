package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/conectell/livrocaixa/internal/jobs"
	"github.com/conectell/livrocaixa/internal/ledger"
)

// Reconciler recomputes account balances from postings.
type Reconciler interface {
	ReconcileAll(ctx context.Context) ([]ledger.Reconciliation, error)
}

// LedgerIntegrityJob reports accounts whose balance drifted from their postings.
type LedgerIntegrityJob struct {
	Ledger  Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerIntegrityJob constructs the job handler.
func NewLedgerIntegrityJob(ledger Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Ledger: ledger, Logger: logger, Metrics: metrics}
}

// Handle executes the scan. Drift is logged and counted; it never fails the task.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() { err = tracker.End(err) }()

	start := time.Now()
	results, err := j.Ledger.ReconcileAll(ctx)
	if err != nil {
		j.logger().Error("ledger integrity scan failed", slog.Any("error", err))
		return err
	}
	drifted := 0
	for _, rec := range results {
		if rec.Balanced {
			continue
		}
		drifted++
		j.logger().Error("account balance drift",
			slog.String("account_id", rec.AccountID.String()),
			slog.String("company_id", rec.CompanyID.String()),
			slog.String("balance", rec.Balance.String()),
			slog.String("postings_total", rec.PostingsTotal.String()),
			slog.String("drift", rec.Drift.String()),
		)
		j.Metrics.AddDrift(rec.CompanyID, 1)
	}
	j.logger().Info("ledger integrity scan completed",
		slog.Int("accounts", len(results)),
		slog.Int("drifted", drifted),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
