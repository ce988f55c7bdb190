package chunkstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

// ObjectSource reads "<prefix>/<contract>.json" chunk files from object storage. A file is
// either a JSON array of chunks or an object with a "chunks" array.
type ObjectSource struct {
	storage ports.ObjectStorage
	prefix  string
}

func NewObjectSource(storage ports.ObjectStorage, prefix string) *ObjectSource {
	return &ObjectSource{storage: storage, prefix: strings.Trim(prefix, "/")}
}

func (s *ObjectSource) Key(contractID string) string {
	return path.Join(s.prefix, contractID+".json")
}

func (s *ObjectSource) LoadChunks(ctx context.Context, contractID string) ([]domain.Chunk, error) {
	rc, err := s.storage.Open(ctx, s.Key(contractID))
	if err != nil {
		if domain.IsKind(err, domain.ErrObjectNotFound) {
			return nil, domain.WrapError(domain.ErrUnknownContract, "load chunks", err)
		}
		return nil, fmt.Errorf("open chunk file: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read chunk file: %w", err)
	}
	return DecodeChunks(data)
}

// ReplaceChunks writes chunks back as a JSON array under the contract's key, so the
// storage-backed mode keeps embeddings computed at index time.
func (s *ObjectSource) ReplaceChunks(ctx context.Context, contractID string, chunks []domain.Chunk) error {
	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("encode chunk file: %w", err)
	}
	if err := s.storage.Save(ctx, s.Key(contractID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save chunk file: %w", err)
	}
	return nil
}

// DecodeChunks parses a chunk file body.
func DecodeChunks(data []byte) ([]domain.Chunk, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var chunks []domain.Chunk
	if data[0] == '[' {
		if err := json.Unmarshal(data, &chunks); err != nil {
			return nil, domain.WrapError(domain.ErrInvalidCorpus, "decode chunks", err)
		}
		return chunks, nil
	}
	var wrapped struct {
		Chunks []domain.Chunk `json:"chunks"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidCorpus, "decode chunks", err)
	}
	return wrapped.Chunks, nil
}
