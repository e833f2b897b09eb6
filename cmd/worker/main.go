// Command worker starts a per-language execution worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/optimusrun/optimus/internal/adapter/engine"
	"github.com/optimusrun/optimus/internal/adapter/observability"
	"github.com/optimusrun/optimus/internal/adapter/redisq"
	"github.com/optimusrun/optimus/internal/config"
	"github.com/optimusrun/optimus/internal/domain"
	"github.com/optimusrun/optimus/internal/worker"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger("optimus-worker", cfg.AppEnv)
	observability.InitMetrics()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid redis url", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer func() { _ = rdb.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
	}
	cancel()

	registry, err := config.LoadRegistry(cfg.LanguagesConfig)
	if err != nil {
		slog.Error("language registry load failed", slog.Any("error", err))
		os.Exit(1)
	}

	eng, err := engine.New(cfg.Engine, registry)
	if err != nil {
		slog.Error("engine init failed", slog.Any("error", err))
		os.Exit(1)
	}

	queue := redisq.NewQueue(rdb)
	store := redisq.NewStore(rdb)
	pub := redisq.NewPublisher(rdb)

	w, err := worker.New(cfg, registry, queue, store, pub, eng, logger)
	if err != nil {
		slog.Error("worker init failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Pre-pull is best-effort and must not delay queue consumption; the
	// engine pulls lazily on the first job if this has not finished.
	if cfg.PrePull {
		if puller, ok := eng.(interface {
			PrePull(ctx context.Context, langs []domain.Language)
		}); ok {
			lang, _ := domain.ParseLanguage(cfg.Language)
			go puller.PrePull(ctx, []domain.Language{lang})
		}
	}

	// Worker metrics are scraped from a small standalone listener.
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("metrics listener starting", slog.Int("port", cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics listener error", slog.Any("error", err))
		}
	}()

	if err := w.Run(ctx); err != nil {
		slog.Error("worker run failed", slog.Any("error", err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
