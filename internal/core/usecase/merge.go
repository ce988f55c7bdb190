package usecase

import (
	"fmt"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

// mergeCandidates deduplicates on chunk ID keeping the highest Score seen, then orders
// by score with chunk ID ascending on ties and keeps limit entries.
func mergeCandidates(limit int, lists ...[]domain.RetrievalCandidate) []domain.RetrievalCandidate {
	best := make(map[string]int)
	out := make([]domain.RetrievalCandidate, 0)
	for _, list := range lists {
		for _, c := range list {
			idx, ok := best[c.Chunk.ID]
			if !ok {
				best[c.Chunk.ID] = len(out)
				out = append(out, c)
				continue
			}
			if c.Score > out[idx].Score {
				out[idx] = c
			}
		}
	}
	sortCandidates(out)
	return trimCandidates(out, limit)
}

// explicitArticleCandidates turns directly referenced articles into forced candidates.
// Articles the corpus does not hold are reported back and skipped.
func explicitArticleCandidates(corpus ports.Corpus, articles []int, score float64, perArticle int) ([]domain.RetrievalCandidate, []int) {
	var out []domain.RetrievalCandidate
	var missing []int
	for _, article := range articles {
		chunks := corpus.ArticleChunks(article)
		if len(chunks) == 0 {
			missing = append(missing, article)
			continue
		}
		if perArticle > 0 && len(chunks) > perArticle {
			chunks = chunks[:perArticle]
		}
		for _, chunk := range chunks {
			out = append(out, domain.RetrievalCandidate{
				Chunk:       chunk,
				Score:       score,
				Source:      domain.SourceExplicitArticle,
				SearchAngle: fmt.Sprintf("explicit_article_%d", article),
			})
		}
	}
	return out, missing
}

func markSource(candidates []domain.RetrievalCandidate, source domain.CandidateSource, angle string) []domain.RetrievalCandidate {
	for i := range candidates {
		candidates[i].Source = source
		candidates[i].SearchAngle = angle
	}
	return candidates
}
