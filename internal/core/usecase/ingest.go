package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

// UploadCorpusUseCase stores a contract's chunk file and announces it for reindexing.
type UploadCorpusUseCase struct {
	storage ports.ObjectStorage
	keyFor  func(contractID string) string
	queue   ports.ReindexQueue
	inline  func(ctx context.Context, contractID string) error
}

func NewUploadCorpusUseCase(
	storage ports.ObjectStorage,
	keyFor func(contractID string) string,
	queue ports.ReindexQueue,
) *UploadCorpusUseCase {
	return &UploadCorpusUseCase{
		storage: storage,
		keyFor:  keyFor,
		queue:   queue,
	}
}

// WithInlineIndex sets the step run right after a save when no queue is configured.
func (uc *UploadCorpusUseCase) WithInlineIndex(fn func(ctx context.Context, contractID string) error) *UploadCorpusUseCase {
	uc.inline = fn
	return uc
}

// Upload saves body under the contract's corpus key and returns that key.
func (uc *UploadCorpusUseCase) Upload(ctx context.Context, contractID string, body io.Reader) (string, error) {
	contractID, err := sanitizeContractID(contractID)
	if err != nil {
		return "", err
	}
	key := uc.keyFor(contractID)
	if err := uc.storage.Save(ctx, key, body); err != nil {
		return "", fmt.Errorf("save to object storage: %w", err)
	}
	switch {
	case uc.queue != nil:
		if err := uc.queue.PublishContractIngested(ctx, contractID); err != nil {
			return "", fmt.Errorf("publish ingestion event: %w", err)
		}
	case uc.inline != nil:
		if err := uc.inline(ctx, contractID); err != nil {
			return "", fmt.Errorf("index uploaded corpus: %w", err)
		}
	}
	return key, nil
}

// sanitizeContractID accepts lowercase letters, digits, '-' and '_' only, so an ID can
// never escape its storage prefix.
func sanitizeContractID(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "sanitize contract id", errors.New("contract id is required"))
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return "", domain.WrapError(domain.ErrInvalidInput, "sanitize contract id", fmt.Errorf("invalid character %q in %q", r, id))
		}
	}
	return id, nil
}
