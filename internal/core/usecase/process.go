package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

const defaultEmbedBatchSize = 32

// IndexContractUseCase turns an uploaded chunk file into a persisted, embedded corpus.
// It implements ports.ChunkIngestor for the worker.
type IndexContractUseCase struct {
	source    ports.ChunkSource
	repo      ports.ChunkRepository
	embedder  ports.Embedder
	vectors   ports.VectorWriter
	queue     ports.ReindexQueue
	batchSize int
	onIndexed func(contractID string, chunks int)
}

func NewIndexContractUseCase(
	source ports.ChunkSource,
	repo ports.ChunkRepository,
	embedder ports.Embedder,
	vectors ports.VectorWriter,
	queue ports.ReindexQueue,
	batchSize int,
) *IndexContractUseCase {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &IndexContractUseCase{
		source:    source,
		repo:      repo,
		embedder:  embedder,
		vectors:   vectors,
		queue:     queue,
		batchSize: batchSize,
	}
}

// OnIndexed registers a callback told the chunk count of every persisted corpus.
func (uc *IndexContractUseCase) OnIndexed(fn func(contractID string, chunks int)) {
	uc.onIndexed = fn
}

func (uc *IndexContractUseCase) IngestContract(ctx context.Context, contractID string) error {
	chunks, err := uc.load(ctx, contractID)
	if err != nil {
		return err
	}
	if err := uc.embed(ctx, chunks); err != nil {
		return err
	}
	if err := uc.repo.ReplaceChunks(ctx, contractID, chunks); err != nil {
		return fmt.Errorf("replace chunks: %w", err)
	}
	if uc.vectors != nil {
		if err := uc.vectors.UpsertChunks(ctx, chunks); err != nil {
			return fmt.Errorf("index chunks in vector db: %w", err)
		}
	}
	if uc.onIndexed != nil {
		uc.onIndexed(contractID, len(chunks))
	}
	if uc.queue != nil {
		if err := uc.queue.PublishReindexed(ctx, contractID); err != nil {
			return fmt.Errorf("publish reindexed event: %w", err)
		}
	}
	return nil
}

func (uc *IndexContractUseCase) load(ctx context.Context, contractID string) ([]domain.Chunk, error) {
	chunks, err := uc.source.LoadChunks(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidCorpus, "load chunks", errors.New("corpus has zero chunks"))
	}
	seen := make(map[string]struct{}, len(chunks))
	for i := range chunks {
		chunks[i].ID = strings.TrimSpace(chunks[i].ID)
		if chunks[i].ID == "" {
			return nil, domain.WrapError(domain.ErrInvalidCorpus, "load chunks", fmt.Errorf("chunk %d has no id", i))
		}
		if _, dup := seen[chunks[i].ID]; dup {
			return nil, domain.WrapError(domain.ErrInvalidCorpus, "load chunks", fmt.Errorf("duplicate chunk id %q", chunks[i].ID))
		}
		seen[chunks[i].ID] = struct{}{}
		chunks[i].ContractID = contractID
	}
	return chunks, nil
}

// embed fills in missing embeddings in batches. Precomputed embeddings are kept.
func (uc *IndexContractUseCase) embed(ctx context.Context, chunks []domain.Chunk) error {
	missing := make([]int, 0, len(chunks))
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	for start := 0; start < len(missing); start += uc.batchSize {
		end := min(start+uc.batchSize, len(missing))
		texts := make([]string, 0, end-start)
		for _, idx := range missing[start:end] {
			texts = append(texts, embeddingText(chunks[idx]))
		}
		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(texts) {
			return domain.WrapError(
				domain.ErrInvalidCorpus,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(texts)),
			)
		}
		for i, idx := range missing[start:end] {
			chunks[idx].Embedding = vectors[i]
		}
	}

	dim := 0
	for _, c := range chunks {
		if dim == 0 {
			dim = len(c.Embedding)
		}
		if len(c.Embedding) != dim {
			return domain.WrapError(domain.ErrInvalidCorpus, "embed chunks", fmt.Errorf("chunk %q has dimension %d, want %d", c.ID, len(c.Embedding), dim))
		}
	}
	return nil
}

func embeddingText(c domain.Chunk) string {
	parts := make([]string, 0, 3)
	if c.Citation != "" {
		parts = append(parts, c.Citation)
	}
	if c.Title != "" {
		parts = append(parts, c.Title)
	}
	parts = append(parts, c.Content)
	return strings.Join(parts, "\n")
}

// RefreshContractUseCase swaps in a contract's latest corpus and drops its cached routing
// strategy. The API process runs it when a reindex event or a file change arrives.
type RefreshContractUseCase struct {
	reload   func(ctx context.Context, contractID string) (uint64, error)
	registry *ManifestRegistry
	logger   *slog.Logger
}

func NewRefreshContractUseCase(
	reload func(ctx context.Context, contractID string) (uint64, error),
	registry *ManifestRegistry,
	logger *slog.Logger,
) *RefreshContractUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshContractUseCase{reload: reload, registry: registry, logger: logger}
}

func (uc *RefreshContractUseCase) Refresh(ctx context.Context, contractID string) error {
	if uc.registry != nil {
		uc.registry.Invalidate(contractID)
	}
	if uc.reload == nil {
		return nil
	}
	generation, err := uc.reload(ctx, contractID)
	if err != nil {
		uc.logger.Error("corpus_refresh_failed", "contract_id", contractID, "error", err)
		return err
	}
	uc.logger.Info("corpus_refreshed", "contract_id", contractID, "generation", generation)
	return nil
}
