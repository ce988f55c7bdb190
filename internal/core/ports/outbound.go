package ports

import (
	"context"
	"io"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

// Corpus is one immutable generation of a contract's chunks and the indexes built over it.
// Implementations must be safe for concurrent readers.
type Corpus interface {
	Generation() uint64
	Size() int
	Chunk(id string) (domain.Chunk, bool)
	// ArticleChunks returns the chunks of one article ordered by section, subsection, then ID.
	ArticleChunks(article int) []domain.Chunk
	Articles() []domain.ArticleInfo
	KeywordSearch(query string, limit int) []domain.ScoredChunk
	MatchQuestions(query string) []domain.ArticleMatch
	MatchConcepts(query string) []domain.ArticleMatch
}

// CorpusProvider hands out the current generation for a contract.
type CorpusProvider interface {
	Current(contractID string) (Corpus, error)
}

// VectorIndex performs nearest-neighbour search over chunk embeddings of one contract.
type VectorIndex interface {
	Search(ctx context.Context, contractID string, vector []float32, limit int) ([]domain.ScoredChunk, error)
}

// VectorWriter stores precomputed chunk embeddings.
type VectorWriter interface {
	UpsertChunks(ctx context.Context, chunks []domain.Chunk) error
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Completer sends a single prompt to an LLM and returns its raw text.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (string, error)
}

// Hypothesizer predicts section titles likely to answer a question.
type Hypothesizer interface {
	Hypothesize(ctx context.Context, question string) ([]string, error)
}

// Interpreter produces a structured reading of a question.
type Interpreter interface {
	Interpret(ctx context.Context, qc domain.QueryContext) (domain.Interpretation, error)
}

// Reranker re-scores an ordered candidate list.
type Reranker interface {
	Rerank(ctx context.Context, question string, candidates []domain.RetrievalCandidate) ([]domain.RetrievalCandidate, error)
}

// ManifestStore loads raw routing manifests.
type ManifestStore interface {
	LoadManifest(ctx context.Context, contractID string) (*domain.RoutingManifest, error)
}

// ChunkSource loads the full chunk set of a contract.
type ChunkSource interface {
	LoadChunks(ctx context.Context, contractID string) ([]domain.Chunk, error)
}

// ChunkRepository persists chunk sets.
type ChunkRepository interface {
	ChunkSource
	ReplaceChunks(ctx context.Context, contractID string, chunks []domain.Chunk) error
}

// ObjectStorage stores corpus files and manifests.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// KeyValueStore is a byte cache with expiry.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// ReindexQueue publishes and consumes corpus change events.
type ReindexQueue interface {
	PublishContractIngested(ctx context.Context, contractID string) error
	SubscribeContractIngested(ctx context.Context, handler func(context.Context, string) error) error
	PublishReindexed(ctx context.Context, contractID string) error
	SubscribeReindexed(ctx context.Context, handler func(context.Context, string) error) error
}
