package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/conectell/livrocaixa/internal/jobs"
	"github.com/conectell/livrocaixa/internal/platform/httpx"
	"github.com/conectell/livrocaixa/report"
)

// ReportGenerator renders and stores a report.
type ReportGenerator interface {
	GenerateAndStore(ctx context.Context, req report.Request) (report.GeneratedReport, error)
}

// ReportGenerateJob runs queued report requests.
type ReportGenerateJob struct {
	Reports ReportGenerator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReportGenerateJob constructs the job handler.
func NewReportGenerateJob(reports ReportGenerator, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReportGenerateJob {
	return &ReportGenerateJob{Reports: reports, Logger: logger, Metrics: metrics}
}

// Handle renders the report of the task payload. Requests that can never
// succeed skip retries.
func (j *ReportGenerateJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Reports == nil {
		return errors.New("report generate: handler not configured")
	}
	var req report.Request
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		return fmt.Errorf("report generate: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskReportGenerate)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(
		slog.String("report_id", req.ID.String()),
		slog.String("type", string(req.Type)),
		slog.String("company_id", req.CompanyID.String()),
	)
	g, err := j.Reports.GenerateAndStore(ctx, req)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) || errors.Is(err, httpx.ErrValidation) {
			logger.Warn("report request rejected", slog.Any("error", err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		logger.Error("report generation failed", slog.Any("error", err))
		return err
	}
	logger.Info("report generated", slog.String("file_name", g.FileName))
	return nil
}

func (j *ReportGenerateJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
