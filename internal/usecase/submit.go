package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/optimusrun/optimus/internal/config"
	"github.com/optimusrun/optimus/internal/domain"
)

// Validation limits for submissions. The engine enforces its own looser
// pre-flight bounds independently.
const (
	MaxTestCases     = 100
	MaxSourceBytes   = 100_000
	MaxInputBytes    = 10 * 1024
	MaxExpectedBytes = 10 * 1024
	MinTimeoutMS     = 1
	MaxTimeoutMS     = 60_000
)

// SubmitTestCase is a client-supplied test case. IDs are assigned
// server-side; any client-supplied ID is ignored.
type SubmitTestCase struct {
	Input          string
	ExpectedOutput string
	Weight         uint32
}

// SubmitInput is the validated-to-be submission payload.
type SubmitInput struct {
	Language   string
	SourceCode string
	TestCases  []SubmitTestCase
	TimeoutMS  uint64
}

// SubmitService validates submissions, mints job IDs, and enqueues jobs on
// the canonical main queue for their language.
type SubmitService struct {
	queue    domain.JobQueue
	store    domain.ResultStore
	registry *config.Registry
}

// NewSubmitService wires the submission service.
func NewSubmitService(queue domain.JobQueue, store domain.ResultStore, registry *config.Registry) *SubmitService {
	return &SubmitService{queue: queue, store: store, registry: registry}
}

// Submit validates the input, assigns sequential test IDs from 1, mints a
// fresh job ID, and appends the job to its language's main queue.
func (s *SubmitService) Submit(ctx context.Context, in SubmitInput) (uuid.UUID, error) {
	lang, err := domain.ParseLanguage(in.Language)
	if err != nil {
		return uuid.Nil, domain.NewValidationError("unknown_language", in.Language)
	}
	if _, err := s.registry.Lookup(lang); err != nil {
		return uuid.Nil, domain.NewValidationError("unknown_language", in.Language)
	}
	if len(in.TestCases) == 0 {
		return uuid.Nil, domain.NewValidationError("no_test_cases", "at least one test case is required")
	}
	if len(in.TestCases) > MaxTestCases {
		return uuid.Nil, domain.NewValidationError("too_many_test_cases", fmt.Sprintf("%d > %d", len(in.TestCases), MaxTestCases))
	}
	if len(in.SourceCode) > MaxSourceBytes {
		return uuid.Nil, domain.NewValidationError("source_too_large", fmt.Sprintf("%d > %d bytes", len(in.SourceCode), MaxSourceBytes))
	}
	if strings.TrimSpace(in.SourceCode) == "" {
		return uuid.Nil, domain.NewValidationError("source_empty", "source code must be non-empty")
	}
	if in.TimeoutMS < MinTimeoutMS || in.TimeoutMS > MaxTimeoutMS {
		return uuid.Nil, domain.NewValidationError("timeout_out_of_range", fmt.Sprintf("timeout_ms %d outside [%d, %d]", in.TimeoutMS, MinTimeoutMS, MaxTimeoutMS))
	}

	testCases := make([]domain.TestCase, 0, len(in.TestCases))
	for i, tc := range in.TestCases {
		if len(tc.Input) > MaxInputBytes {
			return uuid.Nil, domain.NewValidationError("input_too_large", fmt.Sprintf("test case %d input exceeds %d bytes", i+1, MaxInputBytes))
		}
		if len(tc.ExpectedOutput) > MaxExpectedBytes {
			return uuid.Nil, domain.NewValidationError("expected_output_too_large", fmt.Sprintf("test case %d expected output exceeds %d bytes", i+1, MaxExpectedBytes))
		}
		testCases = append(testCases, domain.TestCase{
			ID:             uint32(i + 1),
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Weight:         tc.Weight,
		})
	}

	job := domain.JobRequest{
		ID:         uuid.New(),
		Language:   lang,
		SourceCode: in.SourceCode,
		TestCases:  testCases,
		TimeoutMS:  in.TimeoutMS,
		Metadata:   domain.DefaultJobMetadata(),
	}

	// The status mirror is advisory; enqueue failure is the only hard error.
	_ = s.store.SetStatus(ctx, job.ID, domain.JobQueued)
	if err := s.queue.Push(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("op=submit: %w", err)
	}
	return job.ID, nil
}
