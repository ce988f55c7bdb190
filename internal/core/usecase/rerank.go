package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

const rerankSystemPrompt = `You are a relevance scorer for union contract document retrieval.
Given a worker's question and contract excerpts, score each excerpt's relevance to answering the question.

SCORING SCALE (1-10):
- 10: Directly and completely answers the question
- 8-9: Highly relevant, contains key information needed
- 6-7: Partially relevant, provides useful context
- 4-5: Tangentially related, mentions related topics
- 1-3: Not relevant to this specific question

Output valid JSON mapping excerpt IDs to scores, for example {"0": 8, "1": 5, "2": 9}.
Score EVERY excerpt. Do not skip any.`

// LLMReranker blends a batched LLM relevance score with the retrieval score.
type LLMReranker struct {
	completer ports.Completer
	cfg       RerankConfig
}

func NewLLMReranker(completer ports.Completer, cfg RerankConfig) *LLMReranker {
	def := DefaultPipelineConfig().Rerank
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = def.MaxContentChars
	}
	cfg.OriginalWeight, cfg.LLMWeight = normalizeWeights(cfg.OriginalWeight, cfg.LLMWeight)
	return &LLMReranker{completer: completer, cfg: cfg}
}

// Rerank scores the first BatchSize candidates in one call and re-sorts them by blended
// score. Candidates past the batch keep their order after it. Any error leaves the caller
// to fall back to the input order.
func (r *LLMReranker) Rerank(ctx context.Context, question string, candidates []domain.RetrievalCandidate) ([]domain.RetrievalCandidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	n := len(candidates)
	if n > r.cfg.BatchSize {
		n = r.cfg.BatchSize
	}
	batch := make([]domain.RetrievalCandidate, n)
	copy(batch, candidates[:n])

	raw, err := r.completer.Complete(ctx, domain.CompletionRequest{
		System:           rerankSystemPrompt,
		Prompt:           buildRerankPrompt(question, batch, r.cfg.MaxContentChars),
		JSON:             true,
		DisableReasoning: true,
		Temperature:      0,
		MaxTokens:        300,
	})
	if err != nil {
		return nil, fmt.Errorf("complete rerank: %w", err)
	}
	scores, err := parseRerankScores(raw, n)
	if err != nil {
		return nil, err
	}

	normalize := minMaxNormalizer(batch)
	for i := range batch {
		batch[i].LLMScore = scores[i]
		batch[i].FinalScore = blendScore(normalize(batch[i].Score), scores[i], r.cfg.OriginalWeight, r.cfg.LLMWeight)
		batch[i].Reranked = true
	}
	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].FinalScore != batch[j].FinalScore {
			return batch[i].FinalScore > batch[j].FinalScore
		}
		return batch[i].Chunk.ID < batch[j].Chunk.ID
	})

	out := make([]domain.RetrievalCandidate, 0, len(candidates))
	out = append(out, batch...)
	out = append(out, candidates[n:]...)
	return out, nil
}

// blendScore combines a normalized retrieval score with an LLM score on the 1-10 scale.
func blendScore(normalized float64, llmScore int, originalWeight, llmWeight float64) float64 {
	return originalWeight*normalized + llmWeight*(float64(llmScore)/10)
}

func minMaxNormalizer(candidates []domain.RetrievalCandidate) func(float64) float64 {
	minScore, maxScore := math.Inf(1), math.Inf(-1)
	for _, c := range candidates {
		minScore = math.Min(minScore, c.Score)
		maxScore = math.Max(maxScore, c.Score)
	}
	rangeScore := maxScore - minScore
	return func(v float64) float64 {
		if rangeScore <= 0 {
			if v > 0 {
				return 1
			}
			return 0
		}
		return (v - minScore) / rangeScore
	}
}

func buildRerankPrompt(question string, batch []domain.RetrievalCandidate, maxChars int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Worker's question: %q\n\nContract excerpts to score:\n", question)
	for i, c := range batch {
		citation := c.Chunk.Citation
		if citation == "" {
			citation = fmt.Sprintf("Chunk %d", i)
		}
		fmt.Fprintf(&b, "---\nID: %d\nCitation: %s\nContent: %s\n", i, citation, truncateRunes(c.Chunk.Content, maxChars))
	}
	b.WriteString("---\n\nJSON scores (excerpt ID -> relevance 1-10):")
	return b.String()
}

// parseRerankScores reads {"<index>": score} and requires a score for every index below n.
// Text around the JSON object is discarded; scores are clamped to 1..10.
func parseRerankScores(raw string, n int) ([]int, error) {
	body, ok := extractJSONObject(raw)
	if !ok {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "parse rerank scores", fmt.Errorf("no json object in response"))
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "parse rerank scores", err)
	}
	if nested, ok := payload["scores"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil {
			payload = inner
		}
	}

	scores := make([]int, n)
	found := make([]bool, n)
	for key, value := range payload {
		idx, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil || idx < 0 || idx >= n {
			continue
		}
		score, ok := decodeScore(value)
		if !ok {
			continue
		}
		scores[idx] = clampScore(score)
		found[idx] = true
	}
	var missing []string
	for i, ok := range found {
		if !ok {
			missing = append(missing, strconv.Itoa(i))
		}
	}
	if len(missing) > 0 {
		return nil, domain.WrapError(domain.ErrIncompleteScores, "parse rerank scores", fmt.Errorf("missing ids %s", strings.Join(missing, ",")))
	}
	return scores, nil
}

func decodeScore(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

func clampScore(v float64) int {
	n := int(math.Round(v))
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

// PassthroughReranker returns candidates unchanged.
type PassthroughReranker struct{}

func (PassthroughReranker) Rerank(_ context.Context, _ string, candidates []domain.RetrievalCandidate) ([]domain.RetrievalCandidate, error) {
	return candidates, nil
}
