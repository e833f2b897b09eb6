package usecase_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimusrun/optimus/internal/adapter/redisq"
	"github.com/optimusrun/optimus/internal/config"
	"github.com/optimusrun/optimus/internal/domain"
	"github.com/optimusrun/optimus/internal/usecase"
)

func newResultService(t *testing.T) (*usecase.ResultService, *redisq.Store, *redisq.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := redisq.NewStore(rdb)
	queue := redisq.NewQueue(rdb)
	return usecase.NewResultService(store, queue, config.DefaultRegistry()), store, queue
}

func TestFetchPendingReturnsNil(t *testing.T) {
	svc, _, _ := newResultService(t)
	res, err := svc.Fetch(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestFetchReturnsStoredResult(t *testing.T) {
	svc, store, _ := newResultService(t)
	ctx := context.Background()

	want := domain.ExecutionResult{
		JobID:         uuid.New(),
		OverallStatus: domain.JobCompleted,
		Score:         10,
		MaxScore:      10,
		Results:       []domain.TestResult{{TestID: 1, Status: domain.TestPassed, Stdout: "ok"}},
	}
	require.NoError(t, store.SaveResult(ctx, want))

	got, err := svc.Fetch(ctx, want.JobID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}

func TestCancelBeforeTerminalResult(t *testing.T) {
	svc, store, _ := newResultService(t)
	ctx := context.Background()
	jobID := uuid.New()

	require.NoError(t, svc.Cancel(ctx, jobID))
	ctl, err := store.GetControl(ctx, jobID)
	require.NoError(t, err)
	assert.True(t, ctl.Cancelled)

	// Cancelling again before a result exists is idempotent.
	require.NoError(t, svc.Cancel(ctx, jobID))
}

func TestCancelAfterTerminalResultConflicts(t *testing.T) {
	svc, store, _ := newResultService(t)
	ctx := context.Background()
	jobID := uuid.New()

	require.NoError(t, store.SaveResult(ctx, domain.ExecutionResult{
		JobID:         jobID,
		OverallStatus: domain.JobCompleted,
		Score:         10,
		MaxScore:      10,
		Results:       []domain.TestResult{},
	}))

	err := svc.Cancel(ctx, jobID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDebugReportsQueuePosition(t *testing.T) {
	svc, _, queue := newResultService(t)
	ctx := context.Background()

	job := domain.JobRequest{
		ID:        uuid.New(),
		Language:  domain.LangJava,
		TestCases: []domain.TestCase{{ID: 1, Weight: 10}},
		Metadata:  domain.JobMetadata{Attempts: 1, MaxAttempts: 3, LastFailureReason: "docker daemon unreachable"},
	}
	require.NoError(t, queue.PushRetry(ctx, job))

	report, err := svc.Debug(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, report.InMainQueue)
	assert.True(t, report.InRetryQueue)
	assert.False(t, report.InDLQ)
	assert.Equal(t, uint8(1), report.Attempts)
	assert.Equal(t, uint8(3), report.MaxAttempts)
	assert.Equal(t, "docker daemon unreachable", report.LastFailureReason)
	assert.Equal(t, domain.JobQueued, report.Status)
	assert.Nil(t, report.Result)
}

func TestDebugUnknownJobDefaultsToQueued(t *testing.T) {
	svc, _, _ := newResultService(t)
	report, err := svc.Debug(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, report.Status)
	assert.False(t, report.InMainQueue)
	assert.Nil(t, report.Result)
}
