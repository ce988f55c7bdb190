package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/contract-retrieval/internal/bootstrap"
	"github.com/kirillkom/contract-retrieval/internal/config"
	"github.com/kirillkom/contract-retrieval/internal/observability/logging"
	"github.com/kirillkom/contract-retrieval/internal/observability/metrics"
)

const service = "worker"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.NewJSONLogger(service, "info").Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.New(os.Stdout, service, cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid_config", "error", err)
		os.Exit(1)
	}
	if cfg.NATSURL == "" {
		logger.Error("invalid_config", "error", "NATS_URL is required for the worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	app.IndexUC.OnIndexed(func(contractID string, chunks int) {
		workerMetrics.SetIndexedChunks(contractID, chunks)
	})

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSIngestedSubject)
	err = app.Queue.SubscribeContractIngested(ctx, func(handlerCtx context.Context, contractID string) error {
		indexCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		finish := workerMetrics.StartIndex()
		started := time.Now()
		err := app.IndexUC.IngestContract(indexCtx, contractID)
		finish(err)
		if err == nil {
			logger.Info("contract_indexed", "contract_id", contractID, "duration_ms", time.Since(started).Milliseconds())
		}
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}
