// Package usecase contains the submission, result, and scoring services.
package usecase

import (
	"fmt"
	"strings"

	"github.com/optimusrun/optimus/internal/domain"
)

// asciiWhitespace is the cutset for output comparison. Only leading and
// trailing ASCII whitespace is removed; interior whitespace is significant.
const asciiWhitespace = " \t\n\r\v\f"

func trimOutput(s string) string { return strings.Trim(s, asciiWhitespace) }

// Evaluate scores raw engine outputs against the job's test cases. It is a
// pure function: no I/O, deterministic for equal inputs.
//
// Per-test classification precedence: runtime_error, then
// time_limit_exceeded, then trimmed-output comparison. The score is the sum
// of weights of passed tests; MaxScore counts every test case in the job,
// including tests that were never executed (they simply contribute nothing
// to the score). OverallStatus is completed iff the score is positive.
func Evaluate(job domain.JobRequest, outputs []domain.TestExecutionOutput) (domain.ExecutionResult, error) {
	byID := make(map[uint32]domain.TestCase, len(job.TestCases))
	for _, tc := range job.TestCases {
		byID[tc.ID] = tc
	}

	results := make([]domain.TestResult, 0, len(outputs))
	var score uint32
	for _, out := range outputs {
		tc, ok := byID[out.TestID]
		if !ok {
			return domain.ExecutionResult{}, fmt.Errorf("%w: no test case for output id %d", domain.ErrInvalidArgument, out.TestID)
		}

		var status domain.TestStatus
		switch {
		case out.RuntimeError:
			status = domain.TestRuntimeError
		case out.TimedOut:
			status = domain.TestTimeLimitExceeded
		case trimOutput(out.Stdout) == trimOutput(tc.ExpectedOutput):
			status = domain.TestPassed
		default:
			status = domain.TestFailed
		}
		if status == domain.TestPassed {
			score += tc.Weight
		}

		results = append(results, domain.TestResult{
			TestID:          out.TestID,
			Status:          status,
			Stdout:          out.Stdout,
			Stderr:          out.Stderr,
			ExecutionTimeMS: out.ExecutionTimeMS,
		})
	}

	overall := domain.JobFailed
	if score > 0 {
		overall = domain.JobCompleted
	}
	return domain.ExecutionResult{
		JobID:         job.ID,
		OverallStatus: overall,
		Score:         score,
		MaxScore:      job.MaxScore(),
		Results:       results,
	}, nil
}

// CancelledResult builds the terminal result for a job cancelled before any
// test executed: empty results, zero score, full MaxScore.
func CancelledResult(job domain.JobRequest) domain.ExecutionResult {
	return domain.ExecutionResult{
		JobID:         job.ID,
		OverallStatus: domain.JobCancelled,
		Score:         0,
		MaxScore:      job.MaxScore(),
		Results:       []domain.TestResult{},
	}
}
