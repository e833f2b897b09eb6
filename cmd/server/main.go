// Command server starts the code-execution HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/optimusrun/optimus/internal/adapter/httpserver"
	"github.com/optimusrun/optimus/internal/adapter/observability"
	"github.com/optimusrun/optimus/internal/adapter/redisq"
	"github.com/optimusrun/optimus/internal/app"
	"github.com/optimusrun/optimus/internal/config"
	"github.com/optimusrun/optimus/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	observability.SetupLogger(cfg.OTELServiceName, cfg.AppEnv)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg.OTLPEndpoint, cfg.OTELServiceName, cfg.AppEnv)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

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

	queue := redisq.NewQueue(rdb)
	store := redisq.NewStore(rdb)

	submitSvc := usecase.NewSubmitService(queue, store, registry)
	resultSvc := usecase.NewResultService(store, queue, registry)

	// Completion events feed the job-level metrics.
	collector := observability.NewCompletionCollector(rdb)
	go collector.Run(ctx)

	srv := httpserver.NewServer(submitSvc, resultSvc, rdb, cfg.DefaultTimeoutMS)
	handler := otelhttp.NewHandler(app.BuildRouter(cfg, srv, queue, registry.Enabled()), "http.server")

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancelShutdown()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
