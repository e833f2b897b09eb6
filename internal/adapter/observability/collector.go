package observability

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/optimusrun/optimus/internal/domain"
	"github.com/optimusrun/optimus/pkg/keyspace"
)

// CompletionCollector turns completion events published by workers into the
// job-level metrics exposed by the API process. Pub/sub delivery is fire and
// forget, so the counters are a monitoring signal, not an audit log.
type CompletionCollector struct {
	rdb *redis.Client
}

// NewCompletionCollector wraps an existing Redis client.
func NewCompletionCollector(rdb *redis.Client) *CompletionCollector {
	return &CompletionCollector{rdb: rdb}
}

// Run subscribes to the completions channel and records each event until the
// context is cancelled. Malformed payloads are logged and skipped.
func (c *CompletionCollector) Run(ctx context.Context) {
	sub := c.rdb.Subscribe(ctx, keyspace.CompletionChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev domain.CompletionEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("malformed completion event", slog.Any("error", err))
				continue
			}
			JobsCompletedTotal.WithLabelValues(ev.Language.String(), string(ev.Status)).Inc()
			JobExecutionTimeMS.WithLabelValues(ev.Language.String()).Observe(float64(ev.ExecutionTimeMS))
		}
	}
}

// DepthReader is the slice of the queue port needed for gauge sampling.
type DepthReader interface {
	Depth(ctx context.Context, lang domain.Language) (int64, error)
}

// SampleQueueDepths refreshes the per-language queue depth gauges. Called on
// each metrics scrape so the gauge reflects the moment of observation.
func SampleQueueDepths(ctx context.Context, depth DepthReader, langs []domain.Language) {
	for _, lang := range langs {
		n, err := depth.Depth(ctx, lang)
		if err != nil {
			slog.Warn("queue depth sample failed", slog.String("language", lang.String()), slog.Any("error", err))
			continue
		}
		QueueDepth.WithLabelValues(lang.String()).Set(float64(n))
	}
}
