package usecase_test

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimusrun/optimus/internal/adapter/redisq"
	"github.com/optimusrun/optimus/internal/config"
	"github.com/optimusrun/optimus/internal/domain"
	"github.com/optimusrun/optimus/internal/usecase"
	"github.com/optimusrun/optimus/pkg/keyspace"
)

func newSubmitService(t *testing.T) (*usecase.SubmitService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	queue := redisq.NewQueue(rdb)
	store := redisq.NewStore(rdb)
	return usecase.NewSubmitService(queue, store, config.DefaultRegistry()), mr
}

func validInput() usecase.SubmitInput {
	return usecase.SubmitInput{
		Language:   "python",
		SourceCode: "print(input())",
		TestCases: []usecase.SubmitTestCase{
			{Input: "hello\n", ExpectedOutput: "hello", Weight: 10},
		},
		TimeoutMS: 5000,
	}
}

func TestSubmitEnqueuesJob(t *testing.T) {
	svc, mr := newSubmitService(t)

	jobID, err := svc.Submit(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", jobID.String())

	entries, err := mr.List(keyspace.Queue("python"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], jobID.String())
	assert.Contains(t, entries[0], `"max_attempts":3`)
}

func TestSubmitAssignsSequentialTestIDs(t *testing.T) {
	svc, mr := newSubmitService(t)

	in := validInput()
	in.TestCases = []usecase.SubmitTestCase{
		{Input: "a", ExpectedOutput: "a", Weight: 1},
		{Input: "b", ExpectedOutput: "b", Weight: 2},
		{Input: "c", ExpectedOutput: "c", Weight: 3},
	}
	_, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)

	entries, err := mr.List(keyspace.Queue("python"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], `"id":1`)
	assert.Contains(t, entries[0], `"id":2`)
	assert.Contains(t, entries[0], `"id":3`)
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newSubmitService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*usecase.SubmitInput)
		reason string
	}{
		{"unknown language", func(in *usecase.SubmitInput) { in.Language = "cobol" }, "unknown_language"},
		{"no test cases", func(in *usecase.SubmitInput) { in.TestCases = nil }, "no_test_cases"},
		{"too many test cases", func(in *usecase.SubmitInput) {
			in.TestCases = make([]usecase.SubmitTestCase, 101)
		}, "too_many_test_cases"},
		{"source too large", func(in *usecase.SubmitInput) {
			in.SourceCode = strings.Repeat("x", 100_001)
		}, "source_too_large"},
		{"whitespace source", func(in *usecase.SubmitInput) { in.SourceCode = " \n\t " }, "source_empty"},
		{"timeout zero", func(in *usecase.SubmitInput) { in.TimeoutMS = 0 }, "timeout_out_of_range"},
		{"timeout too large", func(in *usecase.SubmitInput) { in.TimeoutMS = 60_001 }, "timeout_out_of_range"},
		{"input too large", func(in *usecase.SubmitInput) {
			in.TestCases[0].Input = strings.Repeat("x", 10*1024+1)
		}, "input_too_large"},
		{"expected output too large", func(in *usecase.SubmitInput) {
			in.TestCases[0].ExpectedOutput = strings.Repeat("x", 10*1024+1)
		}, "expected_output_too_large"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.Submit(ctx, in)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.reason, verr.Reason)
		})
	}
}

func TestSubmitBoundaryValuesAccepted(t *testing.T) {
	svc, _ := newSubmitService(t)
	ctx := context.Background()

	in := validInput()
	in.SourceCode = strings.Repeat("x", 100_000)
	in.TimeoutMS = 60_000
	in.TestCases = make([]usecase.SubmitTestCase, 100)
	for i := range in.TestCases {
		in.TestCases[i] = usecase.SubmitTestCase{Input: "a", ExpectedOutput: "a", Weight: 1}
	}
	_, err := svc.Submit(ctx, in)
	require.NoError(t, err)

	in = validInput()
	in.TimeoutMS = 1
	_, err = svc.Submit(ctx, in)
	require.NoError(t, err)
}

func TestSubmitWritesQueuedStatus(t *testing.T) {
	svc, mr := newSubmitService(t)

	jobID, err := svc.Submit(context.Background(), validInput())
	require.NoError(t, err)

	raw, err := mr.Get(keyspace.Status(jobID.String()))
	require.NoError(t, err)
	assert.Equal(t, `"queued"`, raw)
}
