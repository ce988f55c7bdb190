package usecase

import (
	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

// ContextAssembler widens a ranked list to the full article most of its top hits share.
type ContextAssembler struct {
	cfg AssemblyConfig
}

func NewContextAssembler(cfg AssemblyConfig) *ContextAssembler {
	def := DefaultPipelineConfig().Assembly
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.MinSharedHits < 2 {
		cfg.MinSharedHits = def.MinSharedHits
	}
	if cfg.MaxChunks <= 0 {
		cfg.MaxChunks = def.MaxChunks
	}
	return &ContextAssembler{cfg: cfg}
}

// Assemble returns the ranked candidates followed by the remaining chunks of the winning
// article in section order. The output never exceeds MaxChunks unless the input already does.
// It returns 0 as the article when no expansion happened.
func (a *ContextAssembler) Assemble(corpus ports.Corpus, ranked []domain.RetrievalCandidate) ([]domain.RetrievalCandidate, int) {
	out := append([]domain.RetrievalCandidate(nil), ranked...)
	if corpus == nil || len(ranked) == 0 {
		return out, 0
	}
	article, hits := winningArticle(ranked, a.cfg.TopK)
	if hits < a.cfg.MinSharedHits {
		return out, 0
	}

	present := make(map[string]struct{}, len(out))
	for _, c := range out {
		present[c.Chunk.ID] = struct{}{}
	}
	added := 0
	for _, chunk := range corpus.ArticleChunks(article) {
		if len(out) >= a.cfg.MaxChunks {
			break
		}
		if _, ok := present[chunk.ID]; ok {
			continue
		}
		present[chunk.ID] = struct{}{}
		out = append(out, domain.RetrievalCandidate{
			Chunk:       chunk,
			Source:      domain.SourceArticleExpansion,
			SearchAngle: "full_article",
		})
		added++
	}
	if added == 0 {
		return out, 0
	}
	return out, article
}

// winningArticle counts article membership in the top k; ties go to the article seen first.
func winningArticle(ranked []domain.RetrievalCandidate, k int) (int, int) {
	if k > len(ranked) {
		k = len(ranked)
	}
	counts := make(map[int]int)
	order := make([]int, 0, k)
	for _, c := range ranked[:k] {
		if !c.Chunk.HasArticle() {
			continue
		}
		if counts[c.Chunk.Article] == 0 {
			order = append(order, c.Chunk.Article)
		}
		counts[c.Chunk.Article]++
	}
	best, bestCount := 0, 0
	for _, article := range order {
		if counts[article] > bestCount {
			best, bestCount = article, counts[article]
		}
	}
	return best, bestCount
}
