package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimusrun/optimus/internal/adapter/redisq"
	"github.com/optimusrun/optimus/internal/config"
	"github.com/optimusrun/optimus/internal/domain"
	"github.com/optimusrun/optimus/internal/usecase"
	"github.com/optimusrun/optimus/pkg/keyspace"
)

type fixture struct {
	mr     *miniredis.Miniredis
	store  *redisq.Store
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	queue := redisq.NewQueue(rdb)
	store := redisq.NewStore(rdb)
	registry := config.DefaultRegistry()

	submit := usecase.NewSubmitService(queue, store, registry)
	results := usecase.NewResultService(store, queue, registry)
	srv := NewServer(submit, results, rdb, 5000)

	r := chi.NewRouter()
	r.Post("/execute", srv.ExecuteHandler())
	r.Get("/health", srv.HealthHandler())
	r.Get("/job/{id}", srv.JobHandler())
	r.Get("/job/{id}/debug", srv.DebugHandler())
	r.Post("/job/{id}/cancel", srv.CancelHandler())

	return &fixture{mr: mr, store: store, router: r}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func validBody() map[string]any {
	return map[string]any{
		"language":    "python",
		"source_code": "print(input())",
		"test_cases": []map[string]any{
			{"input": "hi\n", "expected_output": "hi", "weight": 10},
		},
		"timeout_ms": 3000,
	}
}

func TestExecuteCreated(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/execute", validBody())
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.JobID)
	require.NoError(t, err)

	entries, err := f.mr.List(keyspace.Queue("python"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], resp.JobID)
	assert.Contains(t, entries[0], `"timeout_ms":3000`)
}

func TestExecuteAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	body := validBody()
	delete(body, "timeout_ms")
	body["test_cases"] = []map[string]any{
		{"input": "hi\n", "expected_output": "hi"},
	}
	rec := f.do(t, http.MethodPost, "/execute", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	entries, err := f.mr.List(keyspace.Queue("python"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], `"timeout_ms":5000`)
	assert.Contains(t, entries[0], `"weight":10`)
}

func TestExecuteRejections(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/execute", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := validBody()
	body["language"] = "cobol"
	rec = f.do(t, http.MethodPost, "/execute", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_language")

	body = validBody()
	body["test_cases"] = []map[string]any{}
	rec = f.do(t, http.MethodPost, "/execute", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = validBody()
	body["source_code"] = "   "
	rec = f.do(t, http.MethodPost, "/execute", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "source_empty")

	body = validBody()
	body["timeout_ms"] = 60001
	rec = f.do(t, http.MethodPost, "/execute", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "timeout_out_of_range")
}

func TestJobPending(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/job/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending"`)
}

func TestJobReturnsResult(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()
	require.NoError(t, f.store.SaveResult(context.Background(), domain.ExecutionResult{
		JobID:         jobID,
		OverallStatus: domain.JobCompleted,
		Score:         10,
		MaxScore:      10,
		Results:       []domain.TestResult{{TestID: 1, Status: domain.TestPassed, Stdout: "hi"}},
	}))

	rec := f.do(t, http.MethodGet, "/job/"+jobID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res domain.ExecutionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, jobID, res.JobID)
	assert.Equal(t, domain.JobCompleted, res.OverallStatus)
	assert.Equal(t, uint32(10), res.Score)
}

func TestJobMalformedID(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/job/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelFlow(t *testing.T) {
	f := newFixture(t)
	jobID := uuid.New()

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/job/%s/cancel", jobID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cancelling"`)
	assert.True(t, f.mr.Exists(keyspace.Control(jobID.String())))

	// A terminal result turns further cancels into conflicts.
	require.NoError(t, f.store.SaveResult(context.Background(), domain.ExecutionResult{
		JobID:         jobID,
		OverallStatus: domain.JobCancelled,
		MaxScore:      10,
		Results:       []domain.TestResult{},
	}))
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/job/%s/cancel", jobID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDebugEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/execute", validBody())
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = f.do(t, http.MethodGet, "/job/"+resp.JobID+"/debug", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"in_main_queue":true`)
	assert.Contains(t, rec.Body.String(), `"queued"`)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis_connected":true`)
	assert.True(t, strings.Contains(rec.Body.String(), `"ok"`))

	f.mr.Close()
	rec = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
}
