package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/contract-retrieval/internal/adapters/http"
	"github.com/kirillkom/contract-retrieval/internal/bootstrap"
	"github.com/kirillkom/contract-retrieval/internal/config"
	"github.com/kirillkom/contract-retrieval/internal/observability/logging"
)

const service = "api"

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, service, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	app.Warm(ctx)

	if app.Queue != nil {
		go func() {
			if err := app.Queue.SubscribeReindexed(ctx, app.RefreshUC.Refresh); err != nil {
				logger.Error("reindexed_subscribe_failed", "error", err)
			}
		}()
	}
	if app.Watcher != nil {
		go func() {
			if err := app.Watcher.Run(ctx); err != nil {
				logger.Error("watcher_stopped", "error", err)
			}
		}()
	}

	router := httpadapter.NewRouter(httpadapter.Deps{
		Retriever: app.Pipeline,
		Router:    app.Pipeline,
		Corpora:   app.Store,
		Uploader:  app.UploadUC,
		Refresher: app.RefreshUC,
		Metrics:   app.Metrics,
		Logger:    logger,
	}, httpadapter.Options{
		Service:        service,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxInFlight:    cfg.MaxInFlight,
	}).Handler()
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
}
