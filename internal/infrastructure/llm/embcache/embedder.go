// Package embcache memoizes query embeddings in a key-value store.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

var _ ports.Embedder = (*CachedEmbedder)(nil)

var errCorrupt = errors.New("corrupt cached vector")

// CachedEmbedder wraps an embedder and caches EmbedQuery results.
// Cache failures never fail the call.
type CachedEmbedder struct {
	inner      ports.Embedder
	store      ports.KeyValueStore
	model      string
	cacheTotal *prometheus.CounterVec
	logger     *slog.Logger
}

// New creates the caching decorator. cacheTotal has a single "result" label (hit or miss)
// and may be nil.
func New(inner ports.Embedder, store ports.KeyValueStore, model string, cacheTotal *prometheus.CounterVec, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{inner: inner, store: store, model: model, cacheTotal: cacheTotal, logger: logger}
}

// Embed is used for corpus indexing and is not cached.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.Embed(ctx, texts)
}

func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(e.model, text)
	if data, ok, err := e.store.Get(ctx, key); err != nil {
		e.logger.Warn("embedding_cache_get_failed", "error", err)
	} else if ok {
		if vec, decodeErr := decodeVector(data); decodeErr == nil {
			e.incCache("hit")
			return vec, nil
		}
		e.logger.Warn("embedding_cache_corrupt_entry", "key", key)
	}
	e.incCache("miss")

	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.store.Set(ctx, key, encodeVector(vec)); err != nil {
		e.logger.Warn("embedding_cache_set_failed", "error", err)
	}
	return vec, nil
}

func (e *CachedEmbedder) incCache(result string) {
	if e.cacheTotal != nil {
		e.cacheTotal.WithLabelValues(result).Inc()
	}
}

func cacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "emb:" + model + ":" + hex.EncodeToString(sum[:])
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, errCorrupt
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return vec, nil
}
