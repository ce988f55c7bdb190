package chunkstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

// SwapListener is told about every generation swapped in.
type SwapListener func(contractID string, generation uint64, chunks int)

// Store holds the current generation of every loaded contract. Readers take the current
// generation with one atomic load; Swap builds a new generation off to the side first.
type Store struct {
	source   ports.ChunkSource
	opts     BuildOptions
	listener SwapListener

	mu        sync.RWMutex
	contracts map[string]*atomic.Pointer[Generation]
	reloadMu  sync.Mutex
}

func NewStore(source ports.ChunkSource, opts BuildOptions) *Store {
	return &Store{
		source:    source,
		opts:      opts,
		contracts: make(map[string]*atomic.Pointer[Generation]),
	}
}

func (s *Store) OnSwap(listener SwapListener) {
	s.listener = listener
}

func (s *Store) slot(contractID string, create bool) *atomic.Pointer[Generation] {
	s.mu.RLock()
	p, ok := s.contracts[contractID]
	s.mu.RUnlock()
	if ok || !create {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.contracts[contractID]; ok {
		return p
	}
	p = &atomic.Pointer[Generation]{}
	s.contracts[contractID] = p
	return p
}

// Current returns the live generation of a contract.
func (s *Store) Current(contractID string) (ports.Corpus, error) {
	g, err := s.generation(contractID)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Store) generation(contractID string) (*Generation, error) {
	p := s.slot(strings.TrimSpace(contractID), false)
	if p == nil || p.Load() == nil {
		return nil, domain.WrapError(domain.ErrUnknownContract, "current corpus", fmt.Errorf("no corpus loaded for %q", contractID))
	}
	return p.Load(), nil
}

// Swap builds a generation from chunks and makes it current. The previous generation stays
// valid for readers that already hold it.
func (s *Store) Swap(contractID string, chunks []domain.Chunk) (*Generation, error) {
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "swap corpus", fmt.Errorf("contract id is required"))
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	p := s.slot(contractID, true)
	var next uint64 = 1
	if prev := p.Load(); prev != nil {
		next = prev.number + 1
	}
	g, err := Build(contractID, next, chunks, s.opts)
	if err != nil {
		return nil, err
	}
	p.Store(g)
	if s.listener != nil {
		s.listener(contractID, g.number, g.Size())
	}
	return g, nil
}

// Reload fetches the contract's chunks from the source and swaps them in.
func (s *Store) Reload(ctx context.Context, contractID string) (*Generation, error) {
	if s.source == nil {
		return nil, fmt.Errorf("reload corpus: no chunk source configured")
	}
	chunks, err := s.source.LoadChunks(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("load chunks %q: %w", contractID, err)
	}
	return s.Swap(contractID, chunks)
}

// Contracts lists loaded contract identifiers in order.
func (s *Store) Contracts() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.contracts))
	for id, p := range s.contracts {
		if p.Load() != nil {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Search implements ports.VectorIndex over the in-memory embeddings of the current generation.
func (s *Store) Search(ctx context.Context, contractID string, vector []float32, limit int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := s.generation(contractID)
	if err != nil {
		return nil, err
	}
	return g.VectorSearch(vector, limit)
}
