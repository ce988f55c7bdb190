package usecase

import (
	"sort"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

// BoostPlan maps article numbers to the single boost each of their chunks receives.
type BoostPlan struct {
	reasons    map[int]domain.BoostReason
	structural float64
	intent     float64
}

// Reason reports the boost reason selected for an article.
func (p BoostPlan) Reason(article int) domain.BoostReason {
	return p.reasons[article]
}

// Articles returns boosted articles of the given reason in ascending order.
func (p BoostPlan) Articles(reason domain.BoostReason) []int {
	out := make([]int, 0, len(p.reasons))
	for article, r := range p.reasons {
		if r == reason {
			out = append(out, article)
		}
	}
	sort.Ints(out)
	return out
}

func (p BoostPlan) apply(candidate *domain.RetrievalCandidate) {
	candidate.Boost = 0
	candidate.BoostReason = domain.BoostNone
	if candidate.Chunk.HasArticle() {
		switch reason := p.reasons[candidate.Chunk.Article]; reason {
		case domain.BoostNone:
		case domain.BoostIntentArticle:
			candidate.Boost = p.intent
			candidate.BoostReason = reason
		default:
			candidate.Boost = p.structural
			candidate.BoostReason = reason
		}
	}
	candidate.Score = candidate.FusedScore + candidate.Boost
}

// Plan selects boosted articles. Only the highest-priority match type present fills the
// structural set: question matches, else concept matches, else hypothesis title matches.
// Intent articles outside the structural set get the weaker intent boost.
func (f *FusionEngine) Plan(corpus ports.Corpus, conceptQuery string, titles []string, intentArticles []int) BoostPlan {
	plan := BoostPlan{
		reasons:    make(map[int]domain.BoostReason),
		structural: f.cfg.StructuralBoost,
		intent:     f.cfg.IntentBoost,
	}
	if corpus == nil || corpus.Size() == 0 {
		return plan
	}

	topN := f.cfg.BoostTopArticles
	var selected []int
	var reason domain.BoostReason
	if matches := corpus.MatchQuestions(conceptQuery); len(matches) > 0 {
		selected, reason = topArticles(matches, topN), domain.BoostQuestionMatch
	} else if matches := corpus.MatchConcepts(conceptQuery); len(matches) > 0 {
		selected, reason = topArticles(matches, topN), domain.BoostConceptMatch
	} else if articles := matchHypothesisTitles(corpus.Articles(), titles); len(articles) > 0 {
		selected, reason = truncateInts(articles, topN), domain.BoostHypothesisTitle
	}
	for _, article := range selected {
		plan.reasons[article] = reason
	}

	for _, article := range intentArticles {
		if _, taken := plan.reasons[article]; taken {
			continue
		}
		plan.reasons[article] = domain.BoostIntentArticle
	}
	return plan
}

// topArticles orders matches by score descending, article ascending, and keeps n.
func topArticles(matches []domain.ArticleMatch, n int) []int {
	sorted := append([]domain.ArticleMatch(nil), matches...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Article < sorted[j].Article
	})
	out := make([]int, 0, n)
	seen := make(map[int]struct{}, n)
	for _, m := range sorted {
		if _, ok := seen[m.Article]; ok {
			continue
		}
		seen[m.Article] = struct{}{}
		out = append(out, m.Article)
		if len(out) == n {
			break
		}
	}
	return out
}

// matchHypothesisTitles returns articles whose title matches any hypothesized title, in
// hypothesis order then article order.
func matchHypothesisTitles(articles []domain.ArticleInfo, titles []string) []int {
	if len(titles) == 0 || len(articles) == 0 {
		return nil
	}
	sorted := append([]domain.ArticleInfo(nil), articles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	out := make([]int, 0, len(titles))
	seen := make(map[int]struct{})
	for _, title := range titles {
		hyp := normalizeTitle(title)
		if hyp == "" {
			continue
		}
		for _, article := range sorted {
			if _, ok := seen[article.Number]; ok {
				continue
			}
			if titleMatches(hyp, normalizeTitle(article.Title)) {
				seen[article.Number] = struct{}{}
				out = append(out, article.Number)
			}
		}
	}
	return out
}

func titleMatches(hyp, actual string) bool {
	if hyp == "" || actual == "" {
		return false
	}
	if hyp == actual || strings.Contains(actual, hyp) || strings.Contains(hyp, actual) {
		return true
	}
	words := strings.Fields(hyp)
	significant := 0
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		significant++
		if !containsWord(actual, w) {
			return false
		}
	}
	return significant > 0
}

func normalizeTitle(s string) string {
	return strings.Join(splitAlphaNumLower(s), " ")
}

func containsWord(text, word string) bool {
	for _, w := range strings.Fields(text) {
		if w == word {
			return true
		}
	}
	return false
}

func truncateInts(values []int, n int) []int {
	if n <= 0 || len(values) <= n {
		return values
	}
	return values[:n]
}
