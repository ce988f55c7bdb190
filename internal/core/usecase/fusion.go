package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

// RankedLists holds the independent keyword and vector rankings for one query.
type RankedLists struct {
	Keyword []domain.ScoredChunk
	Vector  []domain.ScoredChunk
	// VectorErr is set when the vector side soft-failed; Keyword is still usable.
	VectorErr error
}

// SearchRequest is one Fusion Engine query.
type SearchRequest struct {
	ContractID string
	Query      string
	// ConceptQuery drives boost selection. It is always the original question.
	ConceptQuery     string
	Limit            int
	HypothesisTitles []string
	IntentArticles   []int
}

type FusionEngine struct {
	embedder      ports.Embedder
	vectors       ports.VectorIndex
	cfg           FusionConfig
	embedTimeout  timeoutFunc
	vectorTimeout timeoutFunc
}

func NewFusionEngine(embedder ports.Embedder, vectors ports.VectorIndex, cfg PipelineConfig) *FusionEngine {
	cfg = cfg.normalize()
	return &FusionEngine{
		embedder:      embedder,
		vectors:       vectors,
		cfg:           cfg.Fusion,
		embedTimeout:  withTimeout(cfg.EmbedTimeout),
		vectorTimeout: withTimeout(cfg.VectorTimeout),
	}
}

// Search runs both rankings, selects boosts from req.ConceptQuery and fuses.
func (f *FusionEngine) Search(ctx context.Context, corpus ports.Corpus, req SearchRequest) ([]domain.RetrievalCandidate, error) {
	lists, err := f.Lists(ctx, corpus, req.ContractID, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	conceptQuery := req.ConceptQuery
	if strings.TrimSpace(conceptQuery) == "" {
		conceptQuery = req.Query
	}
	plan := f.Plan(corpus, conceptQuery, req.HypothesisTitles, req.IntentArticles)
	return f.Fuse(corpus, lists, plan, req.Limit), nil
}

// Lists runs the keyword ranking and the vector ranking for one query string.
// A vector-side failure is recorded in RankedLists.VectorErr; only cancellation of ctx is returned.
func (f *FusionEngine) Lists(ctx context.Context, corpus ports.Corpus, contractID, query string, limit int) (RankedLists, error) {
	if err := ctx.Err(); err != nil {
		return RankedLists{}, err
	}
	width := f.listWidth(limit)
	lists := RankedLists{}
	if corpus == nil || corpus.Size() == 0 {
		return lists, nil
	}
	if f.cfg.KeywordWeight > 0 {
		lists.Keyword = corpus.KeywordSearch(query, width)
	}
	if f.cfg.VectorWeight > 0 {
		lists.Vector, lists.VectorErr = f.VectorSearch(ctx, contractID, query, width)
		if lists.VectorErr != nil && ctx.Err() != nil {
			return RankedLists{}, ctx.Err()
		}
	}
	return lists, nil
}

// VectorSearch embeds text and queries the vector index, each call under its own timeout.
func (f *FusionEngine) VectorSearch(ctx context.Context, contractID, text string, limit int) ([]domain.ScoredChunk, error) {
	if f.embedder == nil || f.vectors == nil {
		return nil, errors.New("vector search is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	embedCtx, cancel := f.embedTimeout(ctx)
	vector, err := f.embedder.EmbedQuery(embedCtx, text)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	searchCtx, cancel := f.vectorTimeout(ctx)
	defer cancel()
	hits, err := f.vectors.Search(searchCtx, contractID, vector, limit)
	if err != nil {
		return nil, fmt.Errorf("search vector index: %w", err)
	}
	return hits, nil
}

func (f *FusionEngine) listWidth(limit int) int {
	if limit <= 0 {
		limit = 10
	}
	return limit * f.cfg.ListMultiplier
}

// Fuse combines rankings with reciprocal rank fusion, applies the boost plan and
// orders by score descending with chunk ID ascending on ties.
func (f *FusionEngine) Fuse(corpus ports.Corpus, lists RankedLists, plan BoostPlan, limit int) []domain.RetrievalCandidate {
	if corpus == nil {
		return nil
	}
	acc := make(map[string]*domain.RetrievalCandidate, len(lists.Keyword)+len(lists.Vector))
	order := make([]string, 0, len(lists.Keyword)+len(lists.Vector))

	add := func(hits []domain.ScoredChunk, weight float64, keyword bool) {
		if weight <= 0 {
			return
		}
		seen := make(map[string]struct{}, len(hits))
		rank := 0
		for _, hit := range hits {
			if _, dup := seen[hit.ChunkID]; dup {
				continue
			}
			seen[hit.ChunkID] = struct{}{}
			rank++
			chunk, ok := corpus.Chunk(hit.ChunkID)
			if !ok {
				continue
			}
			candidate, exists := acc[hit.ChunkID]
			if !exists {
				candidate = &domain.RetrievalCandidate{Chunk: chunk, Source: domain.SourcePrimary}
				acc[hit.ChunkID] = candidate
				order = append(order, hit.ChunkID)
			}
			if keyword {
				candidate.KeywordRank = rank
				candidate.KeywordScore = hit.Score
			} else {
				candidate.VectorRank = rank
				candidate.VectorScore = hit.Score
			}
			candidate.FusedScore += weight / float64(f.cfg.RRFK+rank)
		}
	}

	add(lists.Keyword, f.cfg.KeywordWeight, true)
	if lists.VectorErr == nil {
		add(lists.Vector, f.cfg.VectorWeight, false)
	}

	out := make([]domain.RetrievalCandidate, 0, len(acc))
	for _, id := range order {
		candidate := *acc[id]
		plan.apply(&candidate)
		out = append(out, candidate)
	}
	sortCandidates(out)
	return trimCandidates(out, limit)
}

func sortCandidates(candidates []domain.RetrievalCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Chunk.ID < candidates[j].Chunk.ID
	})
}

func trimCandidates(candidates []domain.RetrievalCandidate, limit int) []domain.RetrievalCandidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}
