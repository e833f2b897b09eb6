package redisq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/optimusrun/optimus/internal/domain"
	"github.com/optimusrun/optimus/pkg/keyspace"
)

// Publisher emits completion events on the shared pub/sub channel. Callers
// publish only after the result key is written so that subscribers can read
// the result immediately.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher wraps an existing Redis client.
func NewPublisher(rdb *redis.Client) *Publisher { return &Publisher{rdb: rdb} }

// PublishCompletion publishes the event; a completion event is advisory, so
// callers typically log rather than fail the job on error.
func (p *Publisher) PublishCompletion(ctx context.Context, ev domain.CompletionEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("op=publisher.PublishCompletion: marshal: %w", err)
	}
	if err := p.rdb.Publish(ctx, keyspace.CompletionChannel, b).Err(); err != nil {
		return fmt.Errorf("op=publisher.PublishCompletion: %w", err)
	}
	return nil
}
