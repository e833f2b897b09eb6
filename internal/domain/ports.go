package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TestExecutionOutput is the engine's raw, unscored view of a single test
// execution. The evaluator turns it into a TestResult.
type TestExecutionOutput struct {
	TestID          uint32
	Stdout          string
	Stderr          string
	ExecutionTimeMS uint64
	TimedOut        bool
	RuntimeError    bool
}

// ExecutionEngine executes one test case in an isolated sandbox. It captures
// raw outputs and flags timeouts and runtime errors; it never judges
// correctness. A returned error is an infrastructure failure (image pull,
// container create), not a property of the submitted code.
type ExecutionEngine interface {
	Execute(ctx context.Context, lang Language, sourceCode, input string, timeout time.Duration) (TestExecutionOutput, error)
}

// JobQueue is the per-language FIFO lane set: main, retry, and dead-letter.
type JobQueue interface {
	// Push appends the job to the tail of its language's main queue.
	Push(ctx context.Context, job JobRequest) error
	// PushRetry appends to the retry lane.
	PushRetry(ctx context.Context, job JobRequest) error
	// PushDLQ appends to the dead-letter lane; the core never consumes it.
	PushDLQ(ctx context.Context, job JobRequest) error
	// PopWithRetry block-pops from [main, retry] with strict priority to
	// main. It returns (nil, nil) when the wait budget elapses with no job.
	PopWithRetry(ctx context.Context, lang Language, wait time.Duration) (*JobRequest, error)
	// Depth returns the current main-queue length for a language.
	Depth(ctx context.Context, lang Language) (int64, error)
}

// QueueLocation is a diagnostic snapshot of where a job sits across the
// three lanes of the enabled languages.
type QueueLocation struct {
	InMainQueue  bool
	InRetryQueue bool
	InDLQ        bool
	Job          *JobRequest
}

// JobLocator scans every lane for a job ID. Linear in total queue depth;
// not for hot paths.
type JobLocator interface {
	Locate(ctx context.Context, langs []Language, jobID string) (QueueLocation, error)
}

// ResultStore persists terminal results, status mirrors, and control flags
// under the 24-hour retention window.
type ResultStore interface {
	SaveResult(ctx context.Context, res ExecutionResult) error
	// GetResult returns (nil, nil) when no result has been written yet.
	GetResult(ctx context.Context, jobID uuid.UUID) (*ExecutionResult, error)
	SetStatus(ctx context.Context, jobID uuid.UUID, status JobStatus) error
	GetStatus(ctx context.Context, jobID uuid.UUID) (JobStatus, bool, error)
	SetCancelled(ctx context.Context, jobID uuid.UUID) error
	// GetControl returns the zero value when the control key is absent.
	GetControl(ctx context.Context, jobID uuid.UUID) (JobControl, error)
}

// CompletionPublisher emits completion events after the result key is
// written, never before.
type CompletionPublisher interface {
	PublishCompletion(ctx context.Context, ev CompletionEvent) error
}
