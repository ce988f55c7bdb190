package embcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

type memStore struct {
	data   map[string][]byte
	getErr error
	setErr error
	sets   int
}

func newMemStore() *memStore { return &memStore{data: map[string][]byte{}} }

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte) error {
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.data[key] = value
	return nil
}

type countingEmbedder struct {
	queries int
	err     error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (e *countingEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.queries++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.25, -1.5, float32(len(text))}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmbedQueryCachesResult(t *testing.T) {
	inner := &countingEmbedder{}
	store := newMemStore()
	e := New(inner, store, "nomic", nil, discardLogger())

	first, err := e.EmbedQuery(context.Background(), "overtime")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	second, err := e.EmbedQuery(context.Background(), "overtime")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if inner.queries != 1 {
		t.Fatalf("expected one upstream call, got %d", inner.queries)
	}
	if len(first) != len(second) {
		t.Fatalf("vector length mismatch: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at %d: %v vs %v", i, first, second)
		}
	}
}

func TestEmbedQueryKeyIncludesModel(t *testing.T) {
	if cacheKey("a", "q") == cacheKey("b", "q") {
		t.Fatalf("expected model to change the key")
	}
}

func TestEmbedQueryIgnoresCacheFailures(t *testing.T) {
	inner := &countingEmbedder{}
	store := newMemStore()
	store.getErr = errors.New("redis down")
	store.setErr = errors.New("redis down")
	e := New(inner, store, "nomic", nil, discardLogger())

	if _, err := e.EmbedQuery(context.Background(), "vacation"); err != nil {
		t.Fatalf("expected cache failure to be ignored, got %v", err)
	}
	if inner.queries != 1 || store.sets != 1 {
		t.Fatalf("unexpected calls: queries=%d sets=%d", inner.queries, store.sets)
	}
}

func TestEmbedQueryRecomputesCorruptEntry(t *testing.T) {
	inner := &countingEmbedder{}
	store := newMemStore()
	store.data[cacheKey("nomic", "breaks")] = []byte{1, 2, 3}
	e := New(inner, store, "nomic", nil, discardLogger())

	vec, err := e.EmbedQuery(context.Background(), "breaks")
	if err != nil || len(vec) != 3 {
		t.Fatalf("EmbedQuery() = %v, %v", vec, err)
	}
	if inner.queries != 1 {
		t.Fatalf("expected recompute, got %d calls", inner.queries)
	}
}

func TestEmbedQueryPropagatesUpstreamError(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("boom")}
	e := New(inner, newMemStore(), "nomic", nil, discardLogger())
	if _, err := e.EmbedQuery(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEmbedPassesThrough(t *testing.T) {
	store := newMemStore()
	e := New(&countingEmbedder{}, store, "nomic", nil, discardLogger())
	out, err := e.Embed(context.Background(), []string{"a", "b"})
	if err != nil || len(out) != 2 {
		t.Fatalf("Embed() = %v, %v", out, err)
	}
	if store.sets != 0 {
		t.Fatalf("batch embeddings must not be cached")
	}
}

func TestEmbedQueryCountsHitsAndMisses(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "cache_total"}, []string{"result"})
	e := New(&countingEmbedder{}, newMemStore(), "nomic", counter, discardLogger())
	for i := 0; i < 3; i++ {
		if _, err := e.EmbedQuery(context.Background(), "seniority"); err != nil {
			t.Fatalf("EmbedQuery() error = %v", err)
		}
	}
	if got := counterValue(t, counter, "miss"); got != 1 {
		t.Fatalf("miss count = %v, want 1", got)
	}
	if got := counterValue(t, counter, "hit"); got != 2 {
		t.Fatalf("hit count = %v, want 2", got)
	}
}

func counterValue(t *testing.T, vec *prometheus.CounterVec, result string) float64 {
	t.Helper()
	var m dto.Metric
	if err := vec.WithLabelValues(result).Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
