package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/contract-retrieval/internal/adapters/mcp"
	"github.com/kirillkom/contract-retrieval/internal/bootstrap"
	"github.com/kirillkom/contract-retrieval/internal/config"
	"github.com/kirillkom/contract-retrieval/internal/observability/logging"
)

const (
	service = "mcp"
	version = "0.1.0"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.NewJSONLogger(service, "info").Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	// stdout carries the stdio transport, so logs go to stderr.
	logger := logging.New(os.Stderr, service, cfg.LogLevel, cfg.LogFormat)
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

	srv := mcpadapter.NewServer(app.Pipeline, app.Pipeline, version, logger)
	if cfg.MCPAddr != "" {
		logger.Info("mcp_listening", "addr", cfg.MCPAddr)
		err = srv.ServeHTTP(cfg.MCPAddr)
	} else {
		err = srv.ServeStdio()
	}
	if err != nil {
		logger.Error("mcp_server_failed", "error", err)
	}
}
