package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kirillkom/contract-retrieval/internal/adapters/cli"
	"github.com/kirillkom/contract-retrieval/internal/bootstrap"
	"github.com/kirillkom/contract-retrieval/internal/config"
	"github.com/kirillkom/contract-retrieval/internal/observability/logging"
)

const version = "0.1.0"

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	factory := func(ctx context.Context) (*cli.Services, error) {
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		var logger *slog.Logger
		if os.Getenv("RETRIEVECTL_DEBUG") != "" {
			logger = logging.New(os.Stderr, "retrievectl", "debug", "text")
		} else {
			logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		}
		app, err := bootstrap.New(ctx, cfg, "retrievectl", logger)
		if err != nil {
			return nil, err
		}
		app.Warm(ctx)
		return &cli.Services{
			Retriever: app.Pipeline,
			Router:    app.Pipeline,
			Indexer:   app.IndexUC,
			Close:     app.Close,
		}, nil
	}

	if err := cli.NewRootCommand(factory, version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
