package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

type ingestStorageFake struct {
	savedKey  string
	savedBody string
	err       error
}

func (f *ingestStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *ingestStorageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

type reindexQueueFake struct {
	ingested  []string
	reindexed []string
	err       error
}

func (f *reindexQueueFake) PublishContractIngested(_ context.Context, contractID string) error {
	if f.err != nil {
		return f.err
	}
	f.ingested = append(f.ingested, contractID)
	return nil
}

func (f *reindexQueueFake) SubscribeContractIngested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func (f *reindexQueueFake) PublishReindexed(_ context.Context, contractID string) error {
	if f.err != nil {
		return f.err
	}
	f.reindexed = append(f.reindexed, contractID)
	return nil
}

func (f *reindexQueueFake) SubscribeReindexed(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func corpusKey(id string) string { return "corpus/" + id + ".json" }

func TestUploadCorpusSuccess(t *testing.T) {
	storage := &ingestStorageFake{}
	queue := &reindexQueueFake{}
	uc := NewUploadCorpusUseCase(storage, corpusKey, queue)

	key, err := uc.Upload(context.Background(), " Safeway_2022 ", strings.NewReader(`[{"chunk_id":"a1"}]`))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if key != "corpus/safeway_2022.json" || storage.savedKey != key {
		t.Fatalf("unexpected key %q / %q", key, storage.savedKey)
	}
	if storage.savedBody != `[{"chunk_id":"a1"}]` {
		t.Fatalf("unexpected body %q", storage.savedBody)
	}
	if len(queue.ingested) != 1 || queue.ingested[0] != "safeway_2022" {
		t.Fatalf("unexpected events %v", queue.ingested)
	}
}

func TestUploadCorpusRejectsPathTraversal(t *testing.T) {
	storage := &ingestStorageFake{}
	uc := NewUploadCorpusUseCase(storage, corpusKey, &reindexQueueFake{})
	for _, id := range []string{"", "../etc", "a/b", "with space"} {
		if _, err := uc.Upload(context.Background(), id, strings.NewReader("[]")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Upload(%q) expected ErrInvalidInput, got %v", id, err)
		}
	}
	if storage.savedKey != "" {
		t.Fatalf("nothing should be stored")
	}
}

func TestUploadCorpusStorageAndQueueErrors(t *testing.T) {
	uc := NewUploadCorpusUseCase(&ingestStorageFake{err: errors.New("disk full")}, corpusKey, &reindexQueueFake{})
	if _, err := uc.Upload(context.Background(), "c1", strings.NewReader("[]")); err == nil || !strings.Contains(err.Error(), "save to object storage") {
		t.Fatalf("expected storage error, got %v", err)
	}
	uc = NewUploadCorpusUseCase(&ingestStorageFake{}, corpusKey, &reindexQueueFake{err: errors.New("nats down")})
	if _, err := uc.Upload(context.Background(), "c1", strings.NewReader("[]")); err == nil || !strings.Contains(err.Error(), "publish ingestion event") {
		t.Fatalf("expected queue error, got %v", err)
	}
}

func TestUploadCorpusInlineIndexWithoutQueue(t *testing.T) {
	var indexed []string
	uc := NewUploadCorpusUseCase(&ingestStorageFake{}, corpusKey, nil).WithInlineIndex(func(_ context.Context, id string) error {
		indexed = append(indexed, id)
		return nil
	})
	if _, err := uc.Upload(context.Background(), "C1", strings.NewReader("[]")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(indexed) != 1 || indexed[0] != "c1" {
		t.Fatalf("unexpected inline index calls %v", indexed)
	}

	uc = NewUploadCorpusUseCase(&ingestStorageFake{}, corpusKey, nil).WithInlineIndex(func(context.Context, string) error {
		return domain.WrapError(domain.ErrInvalidCorpus, "load chunks", errors.New("zero chunks"))
	})
	if _, err := uc.Upload(context.Background(), "c1", strings.NewReader("[]")); !domain.IsKind(err, domain.ErrInvalidCorpus) {
		t.Fatalf("expected ErrInvalidCorpus from inline index, got %v", err)
	}
}

func TestUploadCorpusPrefersQueueOverInline(t *testing.T) {
	queue := &reindexQueueFake{}
	called := false
	uc := NewUploadCorpusUseCase(&ingestStorageFake{}, corpusKey, queue).WithInlineIndex(func(context.Context, string) error {
		called = true
		return nil
	})
	if _, err := uc.Upload(context.Background(), "c1", strings.NewReader("[]")); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if called || len(queue.ingested) != 1 {
		t.Fatalf("expected queue publish only, inline=%v events=%v", called, queue.ingested)
	}
}
