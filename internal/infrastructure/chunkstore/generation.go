package chunkstore

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/search/bm25"
)

// Generation is one immutable build of a contract's chunks and indexes. It is never
// mutated after Build returns, so readers need no locking.
type Generation struct {
	contractID string
	number     uint64
	chunks     map[string]domain.Chunk
	order      []string
	byArticle  map[int][]domain.Chunk
	articles   []domain.ArticleInfo
	keyword    *bm25.Index
	concepts   *conceptIndex
	vectors    []vectorEntry
	dimension  int
}

type vectorEntry struct {
	id     string
	vector []float32
	norm   float64
}

type BuildOptions struct {
	K1 float64
	B  float64
}

// Build validates chunks and builds every index of a generation.
func Build(contractID string, number uint64, chunks []domain.Chunk, opts BuildOptions) (*Generation, error) {
	g := &Generation{
		contractID: contractID,
		number:     number,
		chunks:     make(map[string]domain.Chunk, len(chunks)),
		order:      make([]string, 0, len(chunks)),
		byArticle:  make(map[int][]domain.Chunk),
	}

	docs := make([]bm25.Document, 0, len(chunks))
	titles := make(map[int]string)
	for _, c := range chunks {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, domain.WrapError(domain.ErrInvalidCorpus, "build generation", fmt.Errorf("chunk without id"))
		}
		if _, dup := g.chunks[c.ID]; dup {
			return nil, domain.WrapError(domain.ErrInvalidCorpus, "build generation", fmt.Errorf("duplicate chunk id %q", c.ID))
		}
		if c.ContractID == "" {
			c.ContractID = contractID
		}
		g.chunks[c.ID] = c
		g.order = append(g.order, c.ID)
		docs = append(docs, bm25.ChunkDocument(c))

		if c.HasArticle() {
			g.byArticle[c.Article] = append(g.byArticle[c.Article], c)
			if titles[c.Article] == "" {
				titles[c.Article] = c.Title
			}
		}
		if len(c.Embedding) > 0 {
			if g.dimension == 0 {
				g.dimension = len(c.Embedding)
			}
			if len(c.Embedding) != g.dimension {
				return nil, domain.WrapError(domain.ErrInvalidCorpus, "build generation", fmt.Errorf("chunk %q embedding dimension %d, want %d", c.ID, len(c.Embedding), g.dimension))
			}
			g.vectors = append(g.vectors, vectorEntry{id: c.ID, vector: c.Embedding, norm: l2(c.Embedding)})
		}
	}

	for article, list := range g.byArticle {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].Section != list[j].Section {
				return list[i].Section < list[j].Section
			}
			if list[i].Subsection != list[j].Subsection {
				return list[i].Subsection < list[j].Subsection
			}
			return list[i].ID < list[j].ID
		})
		g.articles = append(g.articles, domain.ArticleInfo{Number: article, Title: titles[article], ChunkCount: len(list)})
	}
	sort.Slice(g.articles, func(i, j int) bool { return g.articles[i].Number < g.articles[j].Number })

	g.keyword = bm25.New(docs, opts.K1, opts.B)
	g.concepts = buildConceptIndex(chunks)
	return g, nil
}

func (g *Generation) ContractID() string { return g.contractID }
func (g *Generation) Generation() uint64 { return g.number }
func (g *Generation) Size() int          { return len(g.order) }

func (g *Generation) Chunk(id string) (domain.Chunk, bool) {
	c, ok := g.chunks[id]
	return c, ok
}

// Chunks returns every chunk in load order.
func (g *Generation) Chunks() []domain.Chunk {
	out := make([]domain.Chunk, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.chunks[id])
	}
	return out
}

func (g *Generation) ArticleChunks(article int) []domain.Chunk {
	return append([]domain.Chunk(nil), g.byArticle[article]...)
}

func (g *Generation) Articles() []domain.ArticleInfo {
	return append([]domain.ArticleInfo(nil), g.articles...)
}

func (g *Generation) KeywordSearch(query string, limit int) []domain.ScoredChunk {
	return g.keyword.Search(query, limit)
}

func (g *Generation) MatchQuestions(query string) []domain.ArticleMatch {
	return g.concepts.matchQuestions(query)
}

func (g *Generation) MatchConcepts(query string) []domain.ArticleMatch {
	return g.concepts.matchConcepts(query)
}

// VectorSearch ranks chunks with embeddings by cosine similarity.
func (g *Generation) VectorSearch(vector []float32, limit int) ([]domain.ScoredChunk, error) {
	if len(g.vectors) == 0 {
		return nil, nil
	}
	if len(vector) != g.dimension {
		return nil, domain.WrapError(domain.ErrInvalidInput, "vector search", fmt.Errorf("query dimension %d, want %d", len(vector), g.dimension))
	}
	qnorm := l2(vector)
	if qnorm == 0 {
		return nil, nil
	}
	out := make([]domain.ScoredChunk, 0, len(g.vectors))
	for _, entry := range g.vectors {
		if entry.norm == 0 {
			continue
		}
		var dot float64
		for i, v := range entry.vector {
			dot += float64(v) * float64(vector[i])
		}
		out = append(out, domain.ScoredChunk{ChunkID: entry.id, Score: dot / (entry.norm * qnorm)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func l2(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
