package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aurawell/companion-backend/internal/bootstrap"
	"github.com/aurawell/companion-backend/internal/config"
	"github.com/aurawell/companion-backend/internal/core/ports"
	"github.com/aurawell/companion-backend/internal/infrastructure/watcher"
	"github.com/aurawell/companion-backend/internal/observability/logging"
	"github.com/aurawell/companion-backend/internal/observability/metrics"
)

const (
	serviceName = "companion-worker"

	ingestJobTimeout = 5 * time.Minute
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:        ":" + cfg.WorkerMetricsPort,
		Handler:     metricsMux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if cfg.WatchDir != "" {
		w := watcher.New(cfg.WatchDir, app.Queue, app.Extractors.Supports, 0)
		go func() {
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("watcher_stopped", "dir", cfg.WatchDir, "error", err)
			}
		}()
	}

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeIngestJobs(ctx, func(handlerCtx context.Context, job ports.IngestJob) error {
		jobCtx, cancel := context.WithTimeout(handlerCtx, ingestJobTimeout)
		defer cancel()

		if job.QueuedAt > 0 {
			workerMetrics.ObserveQueueLag(serviceName, time.Since(time.Unix(job.QueuedAt, 0)))
		}

		workerMetrics.StartJob()
		start := time.Now()
		outcome, err := app.Knowledge.AddDocumentFromFile(jobCtx, job.Path, job.Title, job.Metadata)
		workerMetrics.FinishJob(serviceName, time.Since(start), err)
		if err != nil {
			return err
		}

		slog.Info("ingest_job_done",
			"document_id", outcome.DocumentID,
			"title", outcome.Title,
			"chunks", outcome.Chunks,
		)
		return nil
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
