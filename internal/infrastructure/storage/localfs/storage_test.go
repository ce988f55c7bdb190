package localfs

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

func TestSaveAndOpenNestedKey(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if err := s.Save(ctx, "corpora/safeway_2022.json", strings.NewReader(`[]`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, "corpora/safeway_2022.json", strings.NewReader(`[{"chunk_id":"a"}]`)); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	rc, err := s.Open(ctx, "corpora/safeway_2022.json")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != `[{"chunk_id":"a"}]` {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestOpenMissingIsNotFound(t *testing.T) {
	s, _ := New(t.TempDir())
	_, err := s.Open(context.Background(), "corpora/none.json")
	if !domain.IsKind(err, domain.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	s, _ := New(t.TempDir())
	for _, key := range []string{"../etc/passwd", "/abs/path", ""} {
		if err := s.Save(context.Background(), key, strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("Save(%q) expected invalid input, got %v", key, err)
		}
	}
}
