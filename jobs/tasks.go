package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/conectell/livrocaixa/report"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueReports holds report rendering, which can be slow.
	QueueReports = "reports"

	// TaskLedgerIntegrity reconciles every active account against its postings.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReportGenerate renders a report and keeps the PDF for download.
	TaskReportGenerate = "report:generate"
	// TaskIdempotencyCleanup deletes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NewLedgerIntegrityTask builds the integrity scan task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil, asynq.Queue(QueueDefault))
}

// NewReportGenerateTask builds a report task. The report id doubles as the
// task id so a request is never rendered twice.
func NewReportGenerateTask(req report.Request) (*asynq.Task, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportGenerate, body, asynq.Queue(QueueReports), asynq.TaskID(req.ID.String()), asynq.MaxRetry(3)), nil
}

// NewIdempotencyCleanupTask builds the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil, asynq.Queue(QueueDefault))
}
