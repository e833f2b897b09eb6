package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/optimusrun/optimus/internal/adapter/observability"
	"github.com/optimusrun/optimus/internal/domain"
	"github.com/optimusrun/optimus/internal/usecase"
)

const (
	defaultTestWeight = 10
	maxBodyBytes      = 4 << 20 // generous headroom over the validation limits
)

// Server aggregates the services behind the HTTP API.
type Server struct {
	Submit  *usecase.SubmitService
	Results *usecase.ResultService

	rdb              *redis.Client
	validate         *validator.Validate
	defaultTimeoutMS uint64
	startTime        time.Time
}

// NewServer wires the handler set.
func NewServer(submit *usecase.SubmitService, results *usecase.ResultService, rdb *redis.Client, defaultTimeoutMS uint64) *Server {
	return &Server{
		Submit:           submit,
		Results:          results,
		rdb:              rdb,
		validate:         validator.New(),
		defaultTimeoutMS: defaultTimeoutMS,
		startTime:        time.Now(),
	}
}

type executeTestCase struct {
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expected_output"`
	Weight         *uint32 `json:"weight,omitempty"`
}

type executeRequest struct {
	Language   string            `json:"language" validate:"required"`
	SourceCode string            `json:"source_code" validate:"required"`
	TestCases  []executeTestCase `json:"test_cases" validate:"required,min=1"`
	TimeoutMS  *uint64           `json:"timeout_ms,omitempty"`
}

type executeResponse struct {
	JobID string `json:"job_id"`
}

// ExecuteHandler accepts a submission and responds 201 with the job ID.
func (s *Server) ExecuteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req executeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			observability.JobsRejectedTotal.WithLabelValues("malformed_body").Inc()
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		if err := s.validate.Struct(req); err != nil {
			observability.JobsRejectedTotal.WithLabelValues("missing_fields").Inc()
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		in := usecase.SubmitInput{
			Language:   req.Language,
			SourceCode: req.SourceCode,
			TimeoutMS:  s.defaultTimeoutMS,
		}
		if req.TimeoutMS != nil {
			in.TimeoutMS = *req.TimeoutMS
		}
		for _, tc := range req.TestCases {
			weight := uint32(defaultTestWeight)
			if tc.Weight != nil {
				weight = *tc.Weight
			}
			in.TestCases = append(in.TestCases, usecase.SubmitTestCase{
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
				Weight:         weight,
			})
		}

		jobID, err := s.Submit.Submit(r.Context(), in)
		if err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				observability.JobsRejectedTotal.WithLabelValues(verr.Reason).Inc()
			}
			writeError(w, r, err, nil)
			return
		}
		observability.JobsSubmittedTotal.WithLabelValues(in.Language).Inc()
		LoggerFrom(r).Info("job submitted",
			slog.String("job_id", jobID.String()),
			slog.String("language", in.Language),
			slog.Int("test_cases", len(in.TestCases)))
		writeJSON(w, http.StatusCreated, executeResponse{JobID: jobID.String()})
	}
}

type healthResponse struct {
	Status         string    `json:"status"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	RedisConnected bool      `json:"redis_connected"`
	Timestamp      time.Time `json:"timestamp"`
}

// HealthHandler reports process liveness and Redis reachability.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:        "ok",
			UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
			Timestamp:     time.Now().UTC(),
		}
		if err := s.rdb.Ping(r.Context()).Err(); err != nil {
			resp.Status = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp.RedisConnected = true
		writeJSON(w, http.StatusOK, resp)
	}
}

// JobHandler returns the terminal result, or 202 while the job is pending.
func (s *Server) JobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := parseJobID(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		res, err := s.Results.Fetch(r.Context(), jobID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if res == nil {
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// DebugHandler returns the diagnostic snapshot of a job's lifecycle state.
func (s *Server) DebugHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := parseJobID(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		report, err := s.Results.Debug(r.Context(), jobID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// CancelHandler raises the cooperative cancellation flag.
func (s *Server) CancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := parseJobID(r)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if err := s.Results.Cancel(r.Context(), jobID); err != nil {
			writeError(w, r, err, nil)
			return
		}
		observability.JobsCancelledTotal.WithLabelValues("api").Inc()
		LoggerFrom(r).Info("cancellation requested", slog.String("job_id", jobID.String()))
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
	}
}

func parseJobID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	jobID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed job id %q", domain.ErrInvalidArgument, raw)
	}
	return jobID, nil
}
