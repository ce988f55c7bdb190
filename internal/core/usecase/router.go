package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

// IntentRouter classifies questions and expands worker slang using per-contract strategies.
type IntentRouter struct {
	registry *ManifestRegistry
}

func NewIntentRouter(registry *ManifestRegistry) *IntentRouter {
	return &IntentRouter{registry: registry}
}

func (r *IntentRouter) Route(ctx context.Context, question, contractID string, hints domain.Hints) (domain.QueryContext, domain.Intent, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.QueryContext{}, domain.Intent{}, domain.WrapError(domain.ErrInvalidInput, "route question", fmt.Errorf("question is required"))
	}
	strategy, err := r.registry.Resolve(ctx, contractID)
	if err != nil {
		return domain.QueryContext{}, domain.Intent{}, err
	}

	expanded, expansions := strategy.Expand(question)
	qc := domain.QueryContext{
		Question:      question,
		ContractID:    strings.TrimSpace(contractID),
		Hints:         hints,
		ExpandedQuery: expanded,
		Expansions:    expansions,
	}
	return qc, strategy.Classify(expanded, hints.Classification), nil
}

// Classify labels a query as high_stakes, wage, or contract, in that precedence.
func (s *RoutingStrategy) Classify(query, classificationHint string) domain.Intent {
	lower := normalizeQuery(query)

	classification := strings.TrimSpace(classificationHint)
	if classification == "" {
		classification = s.Classification(lower)
	}
	topic := s.Topic(lower)

	articles := append([]int(nil), s.TopicArticles(topic)...)
	if classification != "" {
		articles = append(articles, s.ClassificationArticles(classification)...)
	}

	if hs := detectHighStakes(lower); hs.matched() {
		confidence := 0.7
		if len(hs.matches) > 1 {
			confidence = 0.9
		}
		return domain.Intent{
			Type:               domain.IntentHighStakes,
			Category:           hs.category,
			Confidence:         confidence,
			Classification:     classification,
			Topic:              topic,
			RequiresEscalation: true,
			ActiveSituation:    hs.active,
			Matched:            hs.matches,
			RelevantArticles:   uniqueSorted(append(articles, s.IntentArticles(domain.IntentHighStakes)...)),
		}
	}

	if matches := detectWage(lower); len(matches) > 0 {
		confidence := 0.6
		if classification != "" {
			confidence = 0.8
		}
		return domain.Intent{
			Type:             domain.IntentWage,
			Confidence:       confidence,
			Classification:   classification,
			Topic:            "wages",
			Matched:          matches,
			RelevantArticles: uniqueSorted(append(articles, s.IntentArticles(domain.IntentWage)...)),
		}
	}

	return domain.Intent{
		Type:             domain.IntentContract,
		Confidence:       0.7,
		Classification:   classification,
		Topic:            topic,
		RelevantArticles: uniqueSorted(append(articles, s.IntentArticles(domain.IntentContract)...)),
	}
}

func normalizeQuery(q string) string {
	q = strings.ToLower(q)
	q = strings.NewReplacer("’", "'", "‘", "'").Replace(q)
	return strings.Join(strings.Fields(q), " ")
}

// detectWage returns the keywords and patterns that mark a wage-rate question.
func detectWage(lower string) []string {
	for _, exclude := range wageExclusions {
		if strings.Contains(lower, exclude) {
			return nil
		}
	}
	var matched []string
	for i, re := range wageKeywordRes {
		if re.MatchString(lower) {
			matched = append(matched, wageKeywords[i])
		}
	}
	for _, re := range wagePatterns {
		if re.MatchString(lower) {
			matched = append(matched, "pattern:"+re.String())
		}
	}
	return matched
}

func wordPatterns(terms []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(terms))
	for i, term := range terms {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
	}
	return out
}

type highStakesMatch struct {
	matches  []string
	active   bool
	category domain.HighStakesCategory
}

func (m highStakesMatch) matched() bool { return len(m.matches) > 0 }

func detectHighStakes(lower string) highStakesMatch {
	var out highStakesMatch
	for _, re := range activeHighStakesPatterns {
		if re.MatchString(lower) {
			out.matches = append(out.matches, "active:"+re.String())
			out.active = true
		}
	}
	for _, re := range generalHighStakesPatterns {
		if re.MatchString(lower) {
			out.matches = append(out.matches, "general:"+re.String())
		}
	}
	for _, topic := range highStakesTopics {
		if strings.Contains(lower, topic) {
			out.matches = append(out.matches, topic)
		}
	}
	if !out.matched() {
		return out
	}
	if urgencyPattern.MatchString(lower) {
		out.active = true
	}
	for _, c := range highStakesCategories {
		if c.re.MatchString(lower) {
			out.category = c.category
			break
		}
	}
	if out.category == domain.CategoryNone && out.active {
		out.category = domain.CategoryDiscipline
	}
	return out
}

func uniqueSorted(values []int) []int {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}
