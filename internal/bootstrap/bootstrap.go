package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kirillkom/contract-retrieval/internal/config"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
	"github.com/kirillkom/contract-retrieval/internal/core/usecase"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/chunkstore"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/kv/redis"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/llm/embcache"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/llm/gemini"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/llm/openai"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/manifest"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/queue/nats"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/resilience"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/storage/s3"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/watch"
	"github.com/kirillkom/contract-retrieval/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Store    *chunkstore.Store
	Registry *usecase.ManifestRegistry
	Pipeline *usecase.RetrievalPipeline
	Metrics  *metrics.HTTPServerMetrics

	// Queue is nil when NATS_URL is empty; uploads are then indexed inline.
	Queue     *nats.Queue
	UploadUC  *usecase.UploadCorpusUseCase
	IndexUC   *usecase.IndexContractUseCase
	RefreshUC *usecase.RefreshContractUseCase
	Watcher   *watch.Watcher

	lister  contractLister
	closers []func()
}

// New wires every collaborator from cfg. service names the process in logs and metrics.
func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	if err := app.wire(ctx, service); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context, service string) error {
	cfg := a.Config
	a.Metrics = metrics.NewHTTPServerMetrics(service)
	resilienceCfg := cfg.Resilience()
	resilienceCfg.OnStateChange = metrics.NewBreakerMetrics(service, a.Metrics.Registry()).OnStateChange
	executor := resilience.NewExecutor(resilienceCfg)

	storage, err := newObjectStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}
	corpusFiles := chunkstore.NewObjectSource(storage, cfg.CorpusPrefix)

	var (
		readSource ports.ChunkSource     = corpusFiles
		repo       ports.ChunkRepository = corpusFiles
	)
	if cfg.ChunkSource == "postgres" {
		db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, postgres.Pool{
			MaxConns:    cfg.PostgresMaxConns,
			ConnMaxLife: cfg.PostgresConnMaxLife,
		})
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		pg := postgres.NewChunkRepository(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		readSource, repo = pg, pg
		a.lister = pg
	}

	a.Store = chunkstore.NewStore(readSource, cfg.ChunkIndex())
	a.Store.OnSwap(func(contractID string, generation uint64, chunks int) {
		a.Logger.Info("corpus_swapped", "contract_id", contractID, "generation", generation, "chunks", chunks)
	})
	a.Registry = usecase.NewManifestRegistry(manifest.NewObjectStore(storage, cfg.ManifestPrefix))

	completer, embedder, embedModel, err := a.newLLM(ctx, executor)
	if err != nil {
		return err
	}
	if len(cfg.RedisAddrs) > 0 {
		cache, err := redis.NewStore(redis.Config{
			Addrs:    cfg.RedisAddrs,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.EmbedCacheTTL,
		})
		if err != nil {
			return fmt.Errorf("init embedding cache: %w", err)
		}
		a.closers = append(a.closers, cache.Close)
		cacheTotal := metrics.NewEmbeddingCacheCounter(service, a.Metrics.Registry())
		embedder = embcache.New(embedder, cache, cfg.LLMProvider+"/"+embedModel, cacheTotal, a.Logger)
	}

	var (
		vectors     ports.VectorIndex = a.Store
		vectorWrite ports.VectorWriter
	)
	if cfg.VectorBackend == "qdrant" {
		client := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor)
		vectors, vectorWrite = client, client
	}

	pipeCfg := cfg.Pipeline()
	a.Pipeline = usecase.NewRetrievalPipeline(usecase.PipelineDeps{
		Router:       usecase.NewIntentRouter(a.Registry),
		Corpora:      a.Store,
		Embedder:     embedder,
		Vectors:      vectors,
		Hypothesizer: usecase.NewLLMHypothesizer(completer, pipeCfg.Hypothesis.MaxTitles),
		Interpreter:  usecase.NewLLMInterpreter(completer, pipeCfg.Interpreter.MaxAlternates),
		Reranker:     usecase.NewLLMReranker(completer, pipeCfg.Rerank),
		Observer:     metrics.NewPipelineMetrics(service, a.Metrics.Registry()),
		Logger:       a.Logger,
	}, pipeCfg)

	if cfg.NATSURL != "" {
		q, err := nats.New(cfg.NATSURL, nats.Subjects{
			Ingested:  cfg.NATSIngestedSubject,
			Reindexed: cfg.NATSReindexedSubject,
		}, nats.Options{ResilienceExecutor: executor, Logger: a.Logger})
		if err != nil {
			return fmt.Errorf("init message queue: %w", err)
		}
		a.Queue = q
		a.closers = append(a.closers, q.Close)
	}

	var queue ports.ReindexQueue
	if a.Queue != nil {
		queue = a.Queue
	}
	a.IndexUC = usecase.NewIndexContractUseCase(corpusFiles, repo, embedder, vectorWrite, queue, cfg.IndexBatchSize)
	a.RefreshUC = usecase.NewRefreshContractUseCase(a.reload, a.Registry, a.Logger)
	a.UploadUC = usecase.NewUploadCorpusUseCase(storage, corpusFiles.Key, queue)
	if queue == nil {
		a.UploadUC.WithInlineIndex(func(ctx context.Context, contractID string) error {
			if err := a.IndexUC.IngestContract(ctx, contractID); err != nil {
				return err
			}
			return a.RefreshUC.Refresh(ctx, contractID)
		})
	}

	if cfg.WatchEnabled {
		w, err := a.newWatcher(storage)
		if err != nil {
			return err
		}
		a.Watcher = w
	}
	return nil
}

func (a *App) reload(ctx context.Context, contractID string) (uint64, error) {
	g, err := a.Store.Reload(ctx, contractID)
	if err != nil {
		return 0, err
	}
	return g.Generation(), nil
}

// Warm loads every configured contract, or every contract postgres knows when none is
// configured. A contract that fails to load is logged and left unloaded.
func (a *App) Warm(ctx context.Context) {
	ids := a.Config.Contracts
	if len(ids) == 0 {
		if a.lister != nil {
			listed, err := a.lister.Contracts(ctx)
			if err != nil {
				a.Logger.Warn("contract_list_failed", "error", err)
			}
			ids = listed
		}
	}
	for _, id := range ids {
		_ = a.RefreshUC.Refresh(ctx, id)
	}
}

type contractLister interface {
	Contracts(ctx context.Context) ([]string, error)
}

func (a *App) newLLM(ctx context.Context, executor *resilience.Executor) (ports.Completer, ports.Embedder, string, error) {
	cfg := a.Config
	switch cfg.LLMProvider {
	case "openai":
		client := openai.New(openai.Config{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			ChatModel:  cfg.OpenAIChatModel,
			EmbedModel: cfg.OpenAIEmbedModel,
		}, executor)
		return client, client, cfg.OpenAIEmbedModel, nil
	case "gemini":
		client, err := gemini.New(ctx, cfg.GeminiAPIKey, cfg.GeminiChatModel, cfg.GeminiEmbedModel, executor)
		if err != nil {
			return nil, nil, "", fmt.Errorf("init gemini: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return client, client, cfg.GeminiEmbedModel, nil
	default:
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
		return ollama.NewCompleter(client), ollama.NewEmbedder(client), cfg.OllamaEmbedModel, nil
	}
}

func newObjectStorage(ctx context.Context, cfg config.Config) (ports.ObjectStorage, error) {
	if cfg.StorageBackend == "s3" {
		bucket, err := s3.New(ctx, s3.Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return bucket, nil
	}
	fs, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

// newWatcher refreshes contracts whose corpus or manifest file changes on local disk.
func (a *App) newWatcher(storage ports.ObjectStorage) (*watch.Watcher, error) {
	fs, ok := storage.(*localfs.Storage)
	if !ok {
		return nil, fmt.Errorf("WATCH_ENABLED requires the localfs storage backend")
	}
	dirs := make([]string, 0, 2)
	for _, prefix := range []string{a.Config.CorpusPrefix, a.Config.ManifestPrefix} {
		dir, err := fs.Path(prefix)
		if err != nil {
			return nil, fmt.Errorf("resolve watch dir %q: %w", prefix, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create watch dir: %w", err)
		}
		dirs = append(dirs, dir)
	}
	return watch.New(dirs, a.RefreshUC.Refresh, 0, a.Logger), nil
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
