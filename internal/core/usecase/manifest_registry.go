package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

// RoutingStrategy is the compiled, immutable form of one contract's routing manifest.
type RoutingStrategy struct {
	ContractID string
	Version    string

	slang           []slangRule
	topics          []patternRule
	classifications []patternRule

	topicArticles          map[string][]int
	classificationArticles map[string][]int
	intentArticles         map[string][]int
}

type slangRule struct {
	term        string
	replacement string
	re          *regexp.Regexp
}

type patternRule struct {
	name string
	re   *regexp.Regexp
}

// ManifestRegistry resolves contract identifiers to compiled routing strategies.
// Concurrent first loads of one contract may both compile; the last store wins.
type ManifestRegistry struct {
	store ports.ManifestStore
	cache sync.Map
}

func NewManifestRegistry(store ports.ManifestStore) *ManifestRegistry {
	return &ManifestRegistry{store: store}
}

func (r *ManifestRegistry) Resolve(ctx context.Context, contractID string) (*RoutingStrategy, error) {
	contractID = strings.TrimSpace(contractID)
	if contractID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve manifest", fmt.Errorf("contract id is required"))
	}
	if cached, ok := r.cache.Load(contractID); ok {
		return cached.(*RoutingStrategy), nil
	}
	if r.store == nil {
		return nil, domain.WrapError(domain.ErrUnknownContract, "resolve manifest", fmt.Errorf("no manifest store for %q", contractID))
	}

	manifest, err := r.store.LoadManifest(ctx, contractID)
	if err != nil {
		return nil, fmt.Errorf("load manifest %q: %w", contractID, err)
	}
	if manifest == nil {
		return nil, domain.WrapError(domain.ErrUnknownContract, "resolve manifest", fmt.Errorf("contract %q", contractID))
	}
	if manifest.ContractID == "" {
		manifest.ContractID = contractID
	}
	strategy, err := CompileManifest(manifest)
	if err != nil {
		return nil, err
	}
	r.cache.Store(contractID, strategy)
	return strategy, nil
}

// Invalidate drops a cached strategy so the next Resolve reloads it.
func (r *ManifestRegistry) Invalidate(contractID string) {
	r.cache.Delete(contractID)
}

// CompileManifest merges a manifest over the universal routing tables and compiles every pattern.
func CompileManifest(m *domain.RoutingManifest) (*RoutingStrategy, error) {
	if m == nil {
		return nil, domain.WrapError(domain.ErrInvalidManifest, "compile manifest", fmt.Errorf("manifest is nil"))
	}
	routing := m.QueryRouting
	s := &RoutingStrategy{
		ContractID:             m.ContractID,
		Version:                m.Version,
		topicArticles:          copyArticleMap(routing.TopicToArticles),
		classificationArticles: copyArticleMap(routing.ClassificationToArticles),
		intentArticles:         copyArticleMap(routing.IntentToArticles),
	}

	slang := make(map[string]string, len(universalSlang)+len(routing.SlangToContract))
	for term, replacement := range universalSlang {
		slang[term] = replacement
	}
	for term, replacement := range routing.SlangToContract {
		term = strings.ToLower(strings.TrimSpace(term))
		replacement = strings.TrimSpace(replacement)
		if term == "" || replacement == "" {
			return nil, domain.WrapError(domain.ErrInvalidManifest, "compile manifest", fmt.Errorf("empty slang entry %q", term))
		}
		slang[term] = replacement
	}
	terms := make([]string, 0, len(slang))
	for term := range slang {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})
	for _, term := range terms {
		s.slang = append(s.slang, slangRule{
			term:        term,
			replacement: slang[term],
			re:          regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`),
		})
	}

	topics, err := mergePatterns(universalTopicPatterns, routing.TopicPatterns, topicPriority)
	if err != nil {
		return nil, err
	}
	s.topics = topics

	classifications, err := mergePatterns(universalClassificationPatterns, routing.ClassificationPatterns, nil)
	if err != nil {
		return nil, err
	}
	s.classifications = classifications
	return s, nil
}

// mergePatterns overrides universal rules by name. Rules named in priority come first in that
// order; manifest-only rules follow sorted by name, then the remaining universal rules in order.
func mergePatterns(universal []namedPattern, overrides map[string]string, priority []string) ([]patternRule, error) {
	compiled := make(map[string]*regexp.Regexp, len(universal)+len(overrides))
	for _, p := range universal {
		compiled[p.name] = regexp.MustCompile(p.pattern)
	}
	extra := make([]string, 0, len(overrides))
	for name, pattern := range overrides {
		name = strings.TrimSpace(name)
		re, err := regexp.Compile("(?i)" + pattern)
		if name == "" || strings.TrimSpace(pattern) == "" || err != nil {
			if err == nil {
				err = fmt.Errorf("empty pattern entry %q", name)
			}
			return nil, domain.WrapError(domain.ErrInvalidManifest, "compile manifest", fmt.Errorf("pattern %q: %w", name, err))
		}
		if _, known := compiled[name]; !known {
			extra = append(extra, name)
		}
		compiled[name] = re
	}
	sort.Strings(extra)

	out := make([]patternRule, 0, len(compiled))
	used := make(map[string]struct{}, len(compiled))
	push := func(name string) {
		re, ok := compiled[name]
		if !ok {
			return
		}
		if _, done := used[name]; done {
			return
		}
		used[name] = struct{}{}
		out = append(out, patternRule{name: name, re: re})
	}
	for _, name := range priority {
		push(name)
	}
	for _, name := range extra {
		push(name)
	}
	for _, p := range universal {
		push(p.name)
	}
	return out, nil
}

func copyArticleMap(in map[string][]int) map[string][]int {
	out := make(map[string][]int, len(in))
	for k, v := range in {
		out[strings.TrimSpace(k)] = append([]int(nil), v...)
	}
	return out
}

// Expand appends contract vocabulary for every slang term found in question. The original
// text is kept intact.
func (s *RoutingStrategy) Expand(question string) (string, []string) {
	lower := strings.ToLower(question)
	expanded := question
	var applied []string
	for _, rule := range s.slang {
		if !rule.re.MatchString(lower) {
			continue
		}
		if strings.Contains(strings.ToLower(expanded), strings.ToLower(rule.replacement)) {
			continue
		}
		expanded = fmt.Sprintf("%s (%s)", expanded, rule.replacement)
		applied = append(applied, rule.term+" -> "+rule.replacement)
	}
	return expanded, applied
}

func (s *RoutingStrategy) Topic(query string) string {
	return firstMatch(s.topics, strings.ToLower(query))
}

func (s *RoutingStrategy) Classification(query string) string {
	return firstMatch(s.classifications, strings.ToLower(query))
}

func (s *RoutingStrategy) TopicArticles(topic string) []int {
	return s.topicArticles[topic]
}

func (s *RoutingStrategy) ClassificationArticles(classification string) []int {
	return s.classificationArticles[classification]
}

func (s *RoutingStrategy) IntentArticles(intent domain.IntentType) []int {
	return s.intentArticles[string(intent)]
}

func firstMatch(rules []patternRule, text string) string {
	for _, rule := range rules {
		if rule.re.MatchString(text) {
			return rule.name
		}
	}
	return ""
}
