// Package worker implements the per-language job consumer. One worker binds
// to exactly one language queue and drains it for the life of the process.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/optimusrun/optimus/internal/config"
	"github.com/optimusrun/optimus/internal/domain"
	"github.com/optimusrun/optimus/internal/usecase"
	"github.com/optimusrun/optimus/pkg/keyspace"
)

// popWait is the block budget for a single queue poll. Short enough that
// shutdown is responsive, long enough to avoid hot-looping an idle queue.
const popWait = 5 * time.Second

// Worker consumes one language's queue lanes and drives jobs to a terminal
// result. Job-level concurrency is bounded by a counting semaphore.
type Worker struct {
	lang   domain.Language
	spec   config.LanguageSpec
	queue  domain.JobQueue
	store  domain.ResultStore
	pub    domain.CompletionPublisher
	engine domain.ExecutionEngine

	sem *semaphore.Weighted
	wg  sync.WaitGroup
	log *slog.Logger
}

// New validates the worker's binding against the registry and wires the
// worker. The language, queue name, and image must agree with the registry
// entry; a mismatch is a deployment error and refuses to start.
func New(cfg config.WorkerConfig, registry *config.Registry, queue domain.JobQueue, store domain.ResultStore, pub domain.CompletionPublisher, engine domain.ExecutionEngine, log *slog.Logger) (*Worker, error) {
	lang, err := domain.ParseLanguage(cfg.Language)
	if err != nil {
		return nil, fmt.Errorf("op=worker.New: %w", err)
	}
	spec, err := registry.Lookup(lang)
	if err != nil {
		return nil, fmt.Errorf("op=worker.New: %w", err)
	}
	if cfg.QueueName != spec.QueueName {
		return nil, fmt.Errorf("op=worker.New: queue %q does not match registry queue %q for %s", cfg.QueueName, spec.QueueName, lang)
	}
	if spec.QueueName != keyspace.Queue(lang.String()) {
		return nil, fmt.Errorf("op=worker.New: registry queue %q violates the key schema for %s", spec.QueueName, lang)
	}
	if cfg.Image != spec.Image {
		return nil, fmt.Errorf("op=worker.New: image %q does not match registry image %q for %s", cfg.Image, spec.Image, lang)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		lang:   lang,
		spec:   spec,
		queue:  queue,
		store:  store,
		pub:    pub,
		engine: engine,
		sem:    semaphore.NewWeighted(int64(cfg.MaxParallelJobs)),
		log:    log.With(slog.String("language", lang.String())),
	}, nil
}

// Run drains the queue until the context is cancelled, then waits for
// in-flight jobs to finish. Pop errors back off exponentially; an idle tick
// resets the backoff.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker started", slog.String("queue", w.spec.QueueName), slog.String("image", w.spec.Image))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			break
		}
		job, err := w.queue.PopWithRetry(ctx, w.lang, popWait)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			wait := bo.NextBackOff()
			w.log.Error("queue pop failed", slog.Any("error", err), slog.Duration("backoff", wait))
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
		if job == nil {
			w.log.Debug("idle tick")
			continue
		}

		if err := w.sem.Acquire(ctx, 1); err != nil {
			// Shutting down with a popped job in hand: park it back on the
			// retry lane so another worker picks it up.
			if pushErr := w.queue.PushRetry(context.Background(), *job); pushErr != nil {
				w.log.Error("failed to requeue job on shutdown", slog.String("job_id", job.ID.String()), slog.Any("error", pushErr))
			}
			break
		}
		w.wg.Add(1)
		// In-flight jobs outlive the shutdown signal; the per-test timeout
		// still bounds how long the drain can take.
		jobCtx := context.WithoutCancel(ctx)
		go func(job domain.JobRequest) {
			defer w.wg.Done()
			defer w.sem.Release(1)
			w.processJob(jobCtx, job)
		}(*job)
	}

	w.log.Info("worker draining in-flight jobs")
	w.wg.Wait()
	w.log.Info("worker stopped")
	return nil
}

// processJob drives one job to a terminal result. Every exit path either
// persists a result or re-enqueues the job; nothing is silently dropped.
func (w *Worker) processJob(ctx context.Context, job domain.JobRequest) {
	log := w.log.With(slog.String("job_id", job.ID.String()))

	// Wrong-language jobs indicate a producer or deployment bug. They go
	// straight to the DLQ rather than being executed under the wrong image.
	if job.Language != w.lang {
		log.Error("job routed to wrong queue", slog.String("job_language", job.Language.String()))
		job.Metadata.LastFailureReason = fmt.Sprintf("routing error: %s job on %s queue", job.Language, w.lang)
		if err := w.queue.PushDLQ(ctx, job); err != nil {
			log.Error("dead-letter push failed", slog.Any("error", err))
		}
		return
	}

	// Cancellation raised while the job sat in the queue.
	ctl, err := w.store.GetControl(ctx, job.ID)
	if err != nil {
		log.Warn("control read failed", slog.Any("error", err))
	}
	if ctl.Cancelled {
		w.finish(ctx, job, usecase.CancelledResult(job), 0, log)
		return
	}

	if err := w.store.SetStatus(ctx, job.ID, domain.JobRunning); err != nil {
		log.Warn("status write failed", slog.Any("error", err))
	}
	log.Info("job started", slog.Int("test_cases", len(job.TestCases)))

	start := time.Now()
	outputs := make([]domain.TestExecutionOutput, 0, len(job.TestCases))
	for i, tc := range job.TestCases {
		// Probe the control flag between tests so a cancel lands at the next
		// boundary instead of after the whole job.
		if i > 0 {
			ctl, err := w.store.GetControl(ctx, job.ID)
			if err != nil {
				log.Warn("control read failed", slog.Any("error", err))
			}
			if ctl.Cancelled {
				w.finishCancelledMidJob(ctx, job, outputs, start, log)
				return
			}
		}

		out, err := w.engine.Execute(ctx, job.Language, job.SourceCode, tc.Input, job.Timeout())
		if err != nil {
			w.handleEngineFailure(ctx, job, err, log)
			return
		}
		out.TestID = tc.ID
		outputs = append(outputs, out)
	}

	res, err := usecase.Evaluate(job, outputs)
	if err != nil {
		w.handleEngineFailure(ctx, job, err, log)
		return
	}
	w.finish(ctx, job, res, uint64(time.Since(start).Milliseconds()), log)
}

// finishCancelledMidJob persists a cancelled result that keeps the scores of
// the tests that did run.
func (w *Worker) finishCancelledMidJob(ctx context.Context, job domain.JobRequest, outputs []domain.TestExecutionOutput, start time.Time, log *slog.Logger) {
	res, err := usecase.Evaluate(job, outputs)
	if err != nil {
		res = usecase.CancelledResult(job)
	}
	res.OverallStatus = domain.JobCancelled
	w.finish(ctx, job, res, uint64(time.Since(start).Milliseconds()), log)
}

// handleEngineFailure re-enqueues on remaining retry budget, otherwise
// dead-letters the job and writes a terminal failed result so clients are
// not left polling forever.
func (w *Worker) handleEngineFailure(ctx context.Context, job domain.JobRequest, cause error, log *slog.Logger) {
	job.Metadata.Attempts++
	job.Metadata.LastFailureReason = cause.Error()
	log.Error("job execution failed",
		slog.Any("error", cause),
		slog.Int("attempts", int(job.Metadata.Attempts)),
		slog.Int("max_attempts", int(job.Metadata.MaxAttempts)))

	if job.Metadata.Attempts < job.Metadata.MaxAttempts {
		if err := w.store.SetStatus(ctx, job.ID, domain.JobQueued); err != nil {
			log.Warn("status write failed", slog.Any("error", err))
		}
		if err := w.queue.PushRetry(ctx, job); err != nil {
			log.Error("retry push failed", slog.Any("error", err))
		}
		return
	}

	if err := w.queue.PushDLQ(ctx, job); err != nil {
		log.Error("dead-letter push failed", slog.Any("error", err))
	}
	res := domain.ExecutionResult{
		JobID:         job.ID,
		OverallStatus: domain.JobFailed,
		Score:         0,
		MaxScore:      job.MaxScore(),
		Results:       []domain.TestResult{},
	}
	w.finish(ctx, job, res, 0, log)
}

// finish persists the terminal result, mirrors the status key, and publishes
// the completion event. The event goes out strictly after the result write so
// subscribers can fetch the result immediately.
func (w *Worker) finish(ctx context.Context, job domain.JobRequest, res domain.ExecutionResult, elapsedMS uint64, log *slog.Logger) {
	if err := w.store.SaveResult(ctx, res); err != nil {
		log.Error("result write failed", slog.Any("error", err))
		return
	}
	if err := w.store.SetStatus(ctx, job.ID, res.OverallStatus); err != nil {
		log.Warn("status write failed", slog.Any("error", err))
	}
	ev := domain.CompletionEvent{
		JobID:           job.ID.String(),
		Language:        job.Language,
		Status:          res.OverallStatus,
		ExecutionTimeMS: elapsedMS,
		Timestamp:       time.Now().UTC(),
	}
	if err := w.pub.PublishCompletion(ctx, ev); err != nil {
		log.Warn("completion publish failed", slog.Any("error", err))
	}
	log.Info("job finished",
		slog.String("status", string(res.OverallStatus)),
		slog.Int("score", int(res.Score)),
		slog.Int("max_score", int(res.MaxScore)),
		slog.Uint64("execution_time_ms", elapsedMS))
}
