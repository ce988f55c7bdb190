package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

const interpreterSystemPrompt = `You are a union contract expert who helps interpret worker questions.
Analyze a worker's question and extract structured information to help find the answer in a collective bargaining agreement.

Output valid JSON with this exact structure:
{
  "intent": "brief description of what they want to know",
  "key_concepts": ["main", "concepts"],
  "entities": {"type": "value"},
  "hypothetical_answers": ["1-2 sentences that SOUND like contract language and would answer the question"],
  "search_queries": ["%d different ways to search for this information using different vocabulary"],
  "likely_sections": ["section titles that might contain the answer"],
  "explicit_articles": [article numbers if mentioned, empty otherwise]
}

Rules:
1. hypothetical_answers must read like LEGAL CONTRACT TEXT, not casual speech.
2. search_queries should use both worker slang and formal contract terms.
3. If the question mentions "Article X", include X in explicit_articles.

Vocabulary guide (worker term -> contract term):
- vendor work -> recognition, work jurisdiction, bargaining unit work
- fired/canned -> discharge, termination
- write up -> discipline, warning
- break -> rest period, relief period
- floater -> personal holiday
- steward/rep -> union representative`

var explicitArticleRes = []*regexp.Regexp{
	regexp.MustCompile(`\barticle\s+(\d+)`),
	regexp.MustCompile(`\bart\.?\s*(\d+)\b`),
}

// ExplicitArticles finds article numbers the question names directly.
func ExplicitArticles(question string) []int {
	lower := strings.ToLower(question)
	var out []int
	for _, re := range explicitArticleRes {
		for _, m := range re.FindAllStringSubmatch(lower, -1) {
			n, err := strconv.Atoi(m[1])
			if err == nil && n > 0 {
				out = append(out, n)
			}
		}
	}
	return uniqueSorted(out)
}

// LLMInterpreter asks a completion collaborator for a structured reading of a question.
type LLMInterpreter struct {
	completer     ports.Completer
	maxAlternates int
}

func NewLLMInterpreter(completer ports.Completer, maxAlternates int) *LLMInterpreter {
	if maxAlternates <= 0 {
		maxAlternates = 3
	}
	return &LLMInterpreter{completer: completer, maxAlternates: maxAlternates}
}

func (i *LLMInterpreter) Interpret(ctx context.Context, qc domain.QueryContext) (domain.Interpretation, error) {
	prompt := fmt.Sprintf("Analyze this worker question and output JSON:\n\nQuestion: %q\n", qc.Question)
	if qc.Hints.Classification != "" {
		prompt += fmt.Sprintf("Worker classification: %s\n", qc.Hints.Classification)
	}
	prompt += "\nJSON:"

	raw, err := i.completer.Complete(ctx, domain.CompletionRequest{
		System:           fmt.Sprintf(interpreterSystemPrompt, i.maxAlternates),
		Prompt:           prompt,
		JSON:             true,
		DisableReasoning: true,
		Temperature:      0.2,
		MaxTokens:        500,
	})
	if err != nil {
		return domain.Interpretation{}, fmt.Errorf("complete interpretation: %w", err)
	}
	return parseInterpretation(raw, qc.Question, i.maxAlternates)
}

type interpretationPayload struct {
	Intent              string            `json:"intent"`
	KeyConcepts         []string          `json:"key_concepts"`
	Entities            json.RawMessage   `json:"entities"`
	HypotheticalAnswers []string          `json:"hypothetical_answers"`
	HypotheticalAnswer  string            `json:"hypothetical_answer"`
	SearchQueries       []string          `json:"search_queries"`
	LikelySections      []string          `json:"likely_sections"`
	ExplicitArticles    []json.RawMessage `json:"explicit_articles"`
}

func parseInterpretation(raw, question string, maxAlternates int) (domain.Interpretation, error) {
	body, ok := extractJSONObject(raw)
	if !ok {
		return domain.Interpretation{}, domain.WrapError(domain.ErrMalformedResponse, "parse interpretation", fmt.Errorf("no json object in response"))
	}
	var payload interpretationPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return domain.Interpretation{}, domain.WrapError(domain.ErrMalformedResponse, "parse interpretation", err)
	}

	out := domain.Interpretation{
		Intent:         strings.TrimSpace(payload.Intent),
		KeyConcepts:    dedupeStrings(payload.KeyConcepts),
		Entities:       decodeEntities(payload.Entities),
		LikelySections: dedupeStrings(payload.LikelySections),
	}

	hypotheticals := dedupeStrings(append(payload.HypotheticalAnswers, payload.HypotheticalAnswer))
	if len(hypotheticals) > 0 {
		out.HypotheticalAnswer = hypotheticals[0]
	}

	q := strings.ToLower(strings.TrimSpace(question))
	for _, alt := range dedupeStrings(payload.SearchQueries) {
		if strings.ToLower(alt) == q {
			continue
		}
		out.AlternateQueries = append(out.AlternateQueries, alt)
		if len(out.AlternateQueries) == maxAlternates {
			break
		}
	}

	for _, rawArticle := range payload.ExplicitArticles {
		if n, ok := decodeArticleNumber(rawArticle); ok {
			out.ExplicitArticles = append(out.ExplicitArticles, n)
		}
	}
	sort.Ints(out.ExplicitArticles)
	return out, nil
}

func decodeEntities(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil || len(generic) == 0 {
		return nil
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		out[k] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func decodeArticleNumber(raw json.RawMessage) (int, bool) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, n > 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil && n > 0
}

// NoopInterpreter returns an empty interpretation.
type NoopInterpreter struct{}

func (NoopInterpreter) Interpret(context.Context, domain.QueryContext) (domain.Interpretation, error) {
	return domain.Interpretation{}, nil
}
