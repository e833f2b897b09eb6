package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/optimusrun/optimus/internal/domain"
	"github.com/optimusrun/optimus/pkg/keyspace"
)

// Store persists execution results, status mirrors, and control flags as
// JSON strings under the 24-hour TTL from the keyspace contract.
type Store struct {
	rdb *redis.Client
}

// NewStore wraps an existing Redis client.
func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// SaveResult writes the terminal result. Last writer wins within the TTL
// window; retries overwrite earlier attempts' state.
func (s *Store) SaveResult(ctx context.Context, res domain.ExecutionResult) error {
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("op=store.SaveResult: marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, keyspace.Result(res.JobID.String()), b, keyspace.KeyTTL).Err(); err != nil {
		return fmt.Errorf("op=store.SaveResult: %w: %v", domain.ErrInternal, err)
	}
	return nil
}

// GetResult returns (nil, nil) when no result has been written.
func (s *Store) GetResult(ctx context.Context, jobID uuid.UUID) (*domain.ExecutionResult, error) {
	raw, err := s.rdb.Get(ctx, keyspace.Result(jobID.String())).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=store.GetResult: %w: %v", domain.ErrInternal, err)
	}
	var res domain.ExecutionResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("op=store.GetResult: unmarshal: %w", err)
	}
	return &res, nil
}

// SetStatus mirrors the job status.
func (s *Store) SetStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus) error {
	b, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("op=store.SetStatus: marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, keyspace.Status(jobID.String()), b, keyspace.KeyTTL).Err(); err != nil {
		return fmt.Errorf("op=store.SetStatus: %w: %v", domain.ErrInternal, err)
	}
	return nil
}

// GetStatus returns the mirrored status and whether it was present.
func (s *Store) GetStatus(ctx context.Context, jobID uuid.UUID) (domain.JobStatus, bool, error) {
	raw, err := s.rdb.Get(ctx, keyspace.Status(jobID.String())).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("op=store.GetStatus: %w: %v", domain.ErrInternal, err)
	}
	var status domain.JobStatus
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return "", false, fmt.Errorf("op=store.GetStatus: unmarshal: %w", err)
	}
	return status, true, nil
}

// SetCancelled raises the cooperative cancellation flag.
func (s *Store) SetCancelled(ctx context.Context, jobID uuid.UUID) error {
	b, err := json.Marshal(domain.JobControl{Cancelled: true})
	if err != nil {
		return fmt.Errorf("op=store.SetCancelled: marshal: %w", err)
	}
	if err := s.rdb.Set(ctx, keyspace.Control(jobID.String()), b, keyspace.KeyTTL).Err(); err != nil {
		return fmt.Errorf("op=store.SetCancelled: %w: %v", domain.ErrInternal, err)
	}
	return nil
}

// GetControl returns the zero value when the control key is absent.
func (s *Store) GetControl(ctx context.Context, jobID uuid.UUID) (domain.JobControl, error) {
	raw, err := s.rdb.Get(ctx, keyspace.Control(jobID.String())).Result()
	if errors.Is(err, redis.Nil) {
		return domain.JobControl{}, nil
	}
	if err != nil {
		return domain.JobControl{}, fmt.Errorf("op=store.GetControl: %w: %v", domain.ErrInternal, err)
	}
	var ctl domain.JobControl
	if err := json.Unmarshal([]byte(raw), &ctl); err != nil {
		return domain.JobControl{}, fmt.Errorf("op=store.GetControl: unmarshal: %w", err)
	}
	return ctl, nil
}
