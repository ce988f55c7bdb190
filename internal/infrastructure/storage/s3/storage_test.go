package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

// fakeBucket serves path-style PUT and GET requests for a single bucket.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		data, _ := io.ReadAll(r.Body)
		b.objects[r.URL.Path] = data
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := b.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = w.Write(data)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStorage(t *testing.T) (*Storage, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string][]byte{}}
	server := httptest.NewServer(bucket)
	t.Cleanup(server.Close)

	s, err := New(context.Background(), Config{
		Bucket:    "contracts",
		Endpoint:  server.URL,
		AccessKey: "test",
		SecretKey: "test",
		Prefix:    "dev/",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, bucket
}

func TestSaveAndOpen(t *testing.T) {
	s, bucket := newTestStorage(t)
	ctx := context.Background()

	if err := s.Save(ctx, "corpora/safeway_2022.json", strings.NewReader(`[]`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, ok := bucket.objects["/contracts/dev/corpora/safeway_2022.json"]; !ok {
		t.Fatalf("expected path-style key, got %v", bucket.objects)
	}

	rc, err := s.Open(ctx, "corpora/safeway_2022.json")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != `[]` {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestOpenMissingIsNotFound(t *testing.T) {
	s, _ := newTestStorage(t)
	_, err := s.Open(context.Background(), "corpora/missing.json")
	if !domain.IsKind(err, domain.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error")
	}
}
