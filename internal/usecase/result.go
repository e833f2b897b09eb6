package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/optimusrun/optimus/internal/config"
	"github.com/optimusrun/optimus/internal/domain"
)

// DebugReport combines the result key with a scan of every queue lane. Its
// construction is linear in total queue depth and meant for diagnostics.
type DebugReport struct {
	Status            domain.JobStatus        `json:"status"`
	Attempts          uint8                   `json:"attempts"`
	MaxAttempts       uint8                   `json:"max_attempts"`
	LastFailureReason string                  `json:"last_failure_reason,omitempty"`
	InMainQueue       bool                    `json:"in_main_queue"`
	InRetryQueue      bool                    `json:"in_retry_queue"`
	InDLQ             bool                    `json:"in_dlq"`
	Result            *domain.ExecutionResult `json:"result,omitempty"`
}

// ResultService answers result, debug, and cancel requests against the
// shared key schema.
type ResultService struct {
	store    domain.ResultStore
	locator  domain.JobLocator
	registry *config.Registry
}

// NewResultService wires the result service.
func NewResultService(store domain.ResultStore, locator domain.JobLocator, registry *config.Registry) *ResultService {
	return &ResultService{store: store, locator: locator, registry: registry}
}

// Fetch returns the terminal result, or (nil, nil) while the job is still
// pending.
func (s *ResultService) Fetch(ctx context.Context, jobID uuid.UUID) (*domain.ExecutionResult, error) {
	return s.store.GetResult(ctx, jobID)
}

// Debug assembles the diagnostic snapshot for a job.
func (s *ResultService) Debug(ctx context.Context, jobID uuid.UUID) (DebugReport, error) {
	res, err := s.store.GetResult(ctx, jobID)
	if err != nil {
		return DebugReport{}, fmt.Errorf("op=result.Debug: %w", err)
	}
	loc, err := s.locator.Locate(ctx, s.registry.Enabled(), jobID.String())
	if err != nil {
		return DebugReport{}, fmt.Errorf("op=result.Debug: %w", err)
	}

	report := DebugReport{
		InMainQueue:  loc.InMainQueue,
		InRetryQueue: loc.InRetryQueue,
		InDLQ:        loc.InDLQ,
		Result:       res,
	}
	if loc.Job != nil {
		report.Attempts = loc.Job.Metadata.Attempts
		report.MaxAttempts = loc.Job.Metadata.MaxAttempts
		report.LastFailureReason = loc.Job.Metadata.LastFailureReason
	}
	switch {
	case res != nil:
		report.Status = res.OverallStatus
	default:
		status, ok, err := s.store.GetStatus(ctx, jobID)
		if err != nil {
			return DebugReport{}, fmt.Errorf("op=result.Debug: %w", err)
		}
		if ok {
			report.Status = status
		} else {
			report.Status = domain.JobQueued
		}
	}
	return report, nil
}

// Cancel raises the cancellation flag. Idempotent: repeated cancels succeed
// until a terminal result exists, after which it reports a conflict.
func (s *ResultService) Cancel(ctx context.Context, jobID uuid.UUID) error {
	res, err := s.store.GetResult(ctx, jobID)
	if err != nil {
		return fmt.Errorf("op=result.Cancel: %w", err)
	}
	if res != nil && res.OverallStatus.Terminal() {
		return fmt.Errorf("%w: job %s already %s", domain.ErrConflict, jobID, res.OverallStatus)
	}
	if err := s.store.SetCancelled(ctx, jobID); err != nil {
		return fmt.Errorf("op=result.Cancel: %w", err)
	}
	return nil
}
