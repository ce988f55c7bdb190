package ports

import (
	"context"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

// Retriever is the inbound contract for contract retrieval requests.
type Retriever interface {
	Retrieve(ctx context.Context, question, contractID string, hints domain.Hints) (*domain.RetrievalResult, error)
}

// QueryRouter classifies a question without running retrieval.
type QueryRouter interface {
	Route(ctx context.Context, question, contractID string, hints domain.Hints) (domain.QueryContext, domain.Intent, error)
}

// ChunkIngestor is the inbound contract for asynchronous corpus ingestion.
type ChunkIngestor interface {
	IngestContract(ctx context.Context, contractID string) error
}
