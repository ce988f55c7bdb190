package chunkstore

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/search/bm25"
)

// questionMatchThreshold is the minimum Jaccard overlap between a query and an
// anticipated worker question.
const questionMatchThreshold = 0.1

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "can": {},
	"do": {}, "does": {}, "for": {}, "from": {}, "get": {}, "have": {}, "how": {}, "i": {},
	"if": {}, "in": {}, "is": {}, "it": {}, "me": {}, "my": {}, "of": {}, "on": {}, "or": {},
	"the": {}, "to": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "why": {},
	"will": {}, "with": {}, "you": {}, "your": {}, "am": {}, "was": {}, "there": {}, "this": {},
	"that": {}, "many": {}, "much": {}, "any": {}, "about": {}, "should": {}, "would": {},
}

type conceptEntry struct {
	phrase   string
	re       *regexp.Regexp
	words    []string
	articles []int
}

type questionEntry struct {
	words    map[string]struct{}
	articles []int
}

// conceptIndex maps alternative names and anticipated questions to articles.
type conceptIndex struct {
	concepts  []conceptEntry
	questions []questionEntry
}

func buildConceptIndex(chunks []domain.Chunk) *conceptIndex {
	conceptArticles := make(map[string]map[int]struct{})
	questionArticles := make(map[string]map[int]struct{})
	add := func(target map[string]map[int]struct{}, key string, article int) {
		if key == "" {
			return
		}
		if target[key] == nil {
			target[key] = make(map[int]struct{})
		}
		target[key][article] = struct{}{}
	}
	for _, c := range chunks {
		if !c.HasArticle() {
			continue
		}
		for _, name := range c.AlternativeNames {
			add(conceptArticles, strings.Join(bm25.Tokenize(name), " "), c.Article)
		}
		for _, q := range c.WorkerQuestions {
			add(questionArticles, strings.Join(contentWords(q), " "), c.Article)
		}
	}

	idx := &conceptIndex{}
	for _, phrase := range sortedKeys(conceptArticles) {
		idx.concepts = append(idx.concepts, conceptEntry{
			phrase:   phrase,
			re:       regexp.MustCompile(`\b` + regexp.QuoteMeta(phrase) + `\b`),
			words:    strings.Fields(phrase),
			articles: sortedInts(conceptArticles[phrase]),
		})
	}
	for _, q := range sortedKeys(questionArticles) {
		words := make(map[string]struct{})
		for _, w := range strings.Fields(q) {
			words[w] = struct{}{}
		}
		idx.questions = append(idx.questions, questionEntry{words: words, articles: sortedInts(questionArticles[q])})
	}
	return idx
}

// matchQuestions scores articles by the best Jaccard overlap between the query's content
// words and any anticipated question of the article.
func (idx *conceptIndex) matchQuestions(query string) []domain.ArticleMatch {
	queryWords := make(map[string]struct{})
	for _, w := range contentWords(query) {
		queryWords[w] = struct{}{}
	}
	if len(queryWords) == 0 {
		return nil
	}
	best := make(map[int]float64)
	for _, q := range idx.questions {
		inter := 0
		for w := range queryWords {
			if _, ok := q.words[w]; ok {
				inter++
			}
		}
		if inter == 0 {
			continue
		}
		union := len(queryWords) + len(q.words) - inter
		sim := float64(inter) / float64(union)
		for _, article := range q.articles {
			if sim > best[article] {
				best[article] = sim
			}
		}
	}
	return toMatches(best, questionMatchThreshold)
}

// matchConcepts scores articles by alternative-name hits: a whole phrase scores 3, a
// phrase embedded in a longer word scores 2 and a shared word of three or more letters scores 1.
func (idx *conceptIndex) matchConcepts(query string) []domain.ArticleMatch {
	tokens := bm25.Tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	normalized := strings.Join(tokens, " ")
	queryWords := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, stop := stopWords[t]; !stop && len(t) >= 3 {
			queryWords[t] = struct{}{}
		}
	}

	scores := make(map[int]float64)
	for _, c := range idx.concepts {
		var score float64
		switch {
		case c.re.MatchString(normalized):
			score = 3
		case strings.Contains(normalized, c.phrase):
			score = 2
		case sharesWord(c.words, queryWords):
			score = 1
		default:
			continue
		}
		for _, article := range c.articles {
			scores[article] += score
		}
	}
	return toMatches(scores, 0)
}

func sharesWord(words []string, query map[string]struct{}) bool {
	for _, w := range words {
		if len(w) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, ok := query[w]; ok {
			return true
		}
	}
	return false
}

func contentWords(text string) []string {
	tokens := bm25.Tokenize(text)
	out := tokens[:0]
	for _, t := range tokens {
		if _, stop := stopWords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func toMatches(scores map[int]float64, threshold float64) []domain.ArticleMatch {
	out := make([]domain.ArticleMatch, 0, len(scores))
	for article, score := range scores {
		if score > threshold {
			out = append(out, domain.ArticleMatch{Article: article, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Article < out[j].Article
	})
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
