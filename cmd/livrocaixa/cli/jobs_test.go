package cli

import (
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conectell/livrocaixa/jobs"
)

type recordingClient struct {
	tasks []*asynq.Task
}

func (r *recordingClient) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

type stubInspector map[string]*asynq.QueueInfo

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestTriggerKnownJobs(t *testing.T) {
	client := &recordingClient{}
	c := &JobsCLI{client: client}

	for _, name := range []string{jobs.TaskLedgerIntegrity, jobs.TaskIdempotencyCleanup} {
		info, err := c.Trigger(context.Background(), name)
		require.NoError(t, err)
		assert.Equal(t, name, info.Type)
	}
	assert.Len(t, client.tasks, 2)
}

func TestTriggerRejectsUnknownJob(t *testing.T) {
	c := &JobsCLI{client: &recordingClient{}}
	_, err := c.Trigger(context.Background(), jobs.TaskReportGenerate)
	assert.Error(t, err)
}

func TestInspectQueuesFillsMissingQueues(t *testing.T) {
	c := &JobsCLI{inspector: stubInspector{jobs.QueueDefault: {Queue: jobs.QueueDefault, Pending: 4, Retry: 1}}}
	stats, err := c.InspectQueues()
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 4, stats[0].Pending)
	assert.Equal(t, 1, stats[0].Retry)
	assert.Equal(t, jobs.QueueReports, stats[1].Queue)
	assert.Zero(t, stats[1].Pending)
}
