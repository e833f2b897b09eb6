// Package redisq implements the queue, result store, and completion-event
// adapters on Redis, following the shared keyspace contract.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/optimusrun/optimus/internal/domain"
	"github.com/optimusrun/optimus/pkg/keyspace"
)

// Queue provides the per-language FIFO lanes. Producers append with RPUSH,
// consumers block-pop the head with BLPOP, so each list behaves as a FIFO.
type Queue struct {
	rdb *redis.Client
}

// NewQueue wraps an existing Redis client.
func NewQueue(rdb *redis.Client) *Queue { return &Queue{rdb: rdb} }

// Push appends the job to the tail of its language's main queue.
func (q *Queue) Push(ctx context.Context, job domain.JobRequest) error {
	return q.push(ctx, keyspace.Queue(job.Language.String()), job)
}

// PushRetry appends the job to the retry lane.
func (q *Queue) PushRetry(ctx context.Context, job domain.JobRequest) error {
	return q.push(ctx, keyspace.RetryQueue(job.Language.String()), job)
}

// PushDLQ appends the job to the dead-letter lane.
func (q *Queue) PushDLQ(ctx context.Context, job domain.JobRequest) error {
	return q.push(ctx, keyspace.DLQ(job.Language.String()), job)
}

func (q *Queue) push(ctx context.Context, key string, job domain.JobRequest) error {
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("op=queue.push: marshal: %w", err)
	}
	if err := q.rdb.RPush(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("op=queue.push: %w: %v", domain.ErrQueueUnavailable, err)
	}
	return nil
}

// PopWithRetry block-pops from [main, retry] in that order. BLPOP checks the
// keys in argument order on every poll, which gives the main queue strict
// priority whenever it is non-empty. Returns (nil, nil) on an idle tick.
func (q *Queue) PopWithRetry(ctx context.Context, lang domain.Language, wait time.Duration) (*domain.JobRequest, error) {
	keys := []string{keyspace.Queue(lang.String()), keyspace.RetryQueue(lang.String())}
	res, err := q.rdb.BLPop(ctx, wait, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("op=queue.pop: %w: %v", domain.ErrQueueUnavailable, err)
	}
	// BLPOP returns [key, value].
	if len(res) != 2 {
		return nil, fmt.Errorf("op=queue.pop: unexpected reply length %d", len(res))
	}
	var job domain.JobRequest
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("op=queue.pop: unmarshal: %w", err)
	}
	return &job, nil
}

// Depth returns the main queue length for a language.
func (q *Queue) Depth(ctx context.Context, lang domain.Language) (int64, error) {
	n, err := q.rdb.LLen(ctx, keyspace.Queue(lang.String())).Result()
	if err != nil {
		return 0, fmt.Errorf("op=queue.depth: %w: %v", domain.ErrQueueUnavailable, err)
	}
	return n, nil
}

// Locate scans the main, retry, and DLQ lanes of the given languages for a
// job ID. Linear in total queue depth; diagnostics only.
func (q *Queue) Locate(ctx context.Context, langs []domain.Language, jobID string) (domain.QueueLocation, error) {
	var loc domain.QueueLocation
	for _, lang := range langs {
		lanes := []struct {
			key  string
			mark *bool
		}{
			{keyspace.Queue(lang.String()), &loc.InMainQueue},
			{keyspace.RetryQueue(lang.String()), &loc.InRetryQueue},
			{keyspace.DLQ(lang.String()), &loc.InDLQ},
		}
		for _, lane := range lanes {
			entries, err := q.rdb.LRange(ctx, lane.key, 0, -1).Result()
			if err != nil {
				return domain.QueueLocation{}, fmt.Errorf("op=queue.locate: %w: %v", domain.ErrQueueUnavailable, err)
			}
			for _, raw := range entries {
				var job domain.JobRequest
				if err := json.Unmarshal([]byte(raw), &job); err != nil {
					continue
				}
				if job.ID.String() == jobID {
					*lane.mark = true
					j := job
					loc.Job = &j
				}
			}
		}
	}
	return loc, nil
}
