// Package domain holds the core entities, error taxonomy, and ports of the
// code-execution service. It knows nothing about Redis, Docker, or HTTP.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Language is the closed set of recognized language tags. Extending the set
// goes through the language registry configuration, not through code edits
// at call sites.
type Language string

const (
	LangPython Language = "python"
	LangJava   Language = "java"
	LangRust   Language = "rust"
)

// Languages returns every recognized language tag, in a stable order.
func Languages() []Language {
	return []Language{LangPython, LangJava, LangRust}
}

// ParseLanguage parses a language tag case-insensitively.
func ParseLanguage(s string) (Language, error) {
	switch Language(strings.ToLower(s)) {
	case LangPython:
		return LangPython, nil
	case LangJava:
		return LangJava, nil
	case LangRust:
		return LangRust, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
}

func (l Language) String() string { return string(l) }

// UnmarshalJSON rejects tags outside the closed set so that a malformed job
// never makes it past decoding.
func (l *Language) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseLanguage(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// JobMetadata tracks retry attempts and failure context. It is the only
// mutable part of a JobRequest, and only the worker mutates it when
// re-enqueuing to retry or DLQ.
type JobMetadata struct {
	Attempts          uint8  `json:"attempts"`
	MaxAttempts       uint8  `json:"max_attempts"`
	LastFailureReason string `json:"last_failure_reason,omitempty"`
}

// DefaultJobMetadata returns fresh metadata with the standard retry budget.
func DefaultJobMetadata() JobMetadata {
	return JobMetadata{Attempts: 0, MaxAttempts: 3}
}

// JobControl carries the cooperative cancellation flag. A missing control
// key is equivalent to the zero value.
type JobControl struct {
	Cancelled bool `json:"cancelled"`
}

// TestCase is an immutable test definition. IDs are unique within a job and
// stable across retries; ordering matters because execution is sequential.
type TestCase struct {
	ID             uint32 `json:"id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	Weight         uint32 `json:"weight"`
}

// JobRequest is write-once with respect to user inputs; only Metadata may be
// rewritten, and only by the worker.
type JobRequest struct {
	ID         uuid.UUID   `json:"id"`
	Language   Language    `json:"language"`
	SourceCode string      `json:"source_code"`
	TestCases  []TestCase  `json:"test_cases"`
	TimeoutMS  uint64      `json:"timeout_ms"`
	Metadata   JobMetadata `json:"metadata"`
}

// MaxScore is the sum of all test case weights, including tests that end up
// not being executed.
func (j JobRequest) MaxScore() uint32 {
	var sum uint32
	for _, tc := range j.TestCases {
		sum += tc.Weight
	}
	return sum
}

// Timeout returns the per-test timeout as a duration.
func (j JobRequest) Timeout() time.Duration {
	return time.Duration(j.TimeoutMS) * time.Millisecond
}

// JobStatus models the job lifecycle. Only completed, failed, and cancelled
// are terminal at the result key.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobTimedOut  JobStatus = "timed_out"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status can never change again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// TestStatus distinguishes per-test failure modes.
type TestStatus string

const (
	TestPassed            TestStatus = "passed"
	TestFailed            TestStatus = "failed"
	TestRuntimeError      TestStatus = "runtime_error"
	TestTimeLimitExceeded TestStatus = "time_limit_exceeded"
)

// TestResult captures one test case's scored outcome.
type TestResult struct {
	TestID          uint32     `json:"test_id"`
	Status          TestStatus `json:"status"`
	Stdout          string     `json:"stdout"`
	Stderr          string     `json:"stderr"`
	ExecutionTimeMS uint64     `json:"execution_time_ms"`
}

// ExecutionResult is written by the worker on any terminal outcome and read
// back by the API. Invariants: MaxScore == sum of all weights; Score is the
// sum of weights of passed tests; OverallStatus is completed iff Score > 0,
// except for cancellation.
type ExecutionResult struct {
	JobID         uuid.UUID    `json:"job_id"`
	OverallStatus JobStatus    `json:"overall_status"`
	Score         uint32       `json:"score"`
	MaxScore      uint32       `json:"max_score"`
	Results       []TestResult `json:"results"`
}

// CompletionEvent is the payload published on the completions channel after
// a terminal result has been written. Readers may immediately fetch the
// result key.
type CompletionEvent struct {
	JobID           string    `json:"job_id"`
	Language        Language  `json:"language"`
	Status          JobStatus `json:"status"`
	ExecutionTimeMS uint64    `json:"execution_time_ms"`
	Timestamp       time.Time `json:"timestamp"`
}
