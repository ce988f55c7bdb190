package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

const hypothesisSystemPrompt = `You are a labor law expert who specializes in union collective bargaining agreements.
Given a worker's question, predict which section TITLES in a union contract would contain the answer.
Union contracts use formal legal terminology. Workers often use informal language.

Examples of vocabulary mapping:
- "break" -> "Relief Periods", "Rest Periods", "Meal Periods"
- "fired" -> "Discharge", "Termination", "Just Cause"
- "pay raise" -> "Wage Progression", "Step Increases", "Wages"
- "schedule" -> "Hours of Work", "Weekly Schedule", "Scheduling"
- "laid off" -> "Layoff", "Reduction in Force", "Recall Rights"
- "vacation" -> "Vacations", "Vacation Pay", "Time Off"
- "union rep" -> "Stewards", "Union Representation", "Weingarten Rights"
- "grievance" -> "Grievance Procedure", "Dispute Resolution", "Arbitration"

Output ONLY the section titles, one per line, no numbers or bullets.
Output exactly %d titles, ordered by likelihood of containing the answer.`

// LLMHypothesizer asks a completion collaborator for likely section titles.
type LLMHypothesizer struct {
	completer ports.Completer
	maxTitles int
}

func NewLLMHypothesizer(completer ports.Completer, maxTitles int) *LLMHypothesizer {
	if maxTitles <= 0 {
		maxTitles = 3
	}
	return &LLMHypothesizer{completer: completer, maxTitles: maxTitles}
}

func (h *LLMHypothesizer) Hypothesize(ctx context.Context, question string) ([]string, error) {
	raw, err := h.completer.Complete(ctx, domain.CompletionRequest{
		System:           fmt.Sprintf(hypothesisSystemPrompt, h.maxTitles),
		Prompt:           fmt.Sprintf("Worker's question: %q\n\nList %d likely section titles that would contain this answer:", question, h.maxTitles),
		DisableReasoning: true,
		Temperature:      0.3,
		MaxTokens:        100,
	})
	if err != nil {
		return nil, fmt.Errorf("complete hypothesis: %w", err)
	}
	titles := parseHypothesisTitles(raw, h.maxTitles)
	if len(titles) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedResponse, "parse hypothesis", fmt.Errorf("no titles in response"))
	}
	return titles, nil
}

var titleBulletRe = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

func parseHypothesisTitles(raw string, limit int) []string {
	lines := strings.Split(stripReasoning(raw), "\n")
	titles := make([]string, 0, limit)
	for _, line := range lines {
		line = titleBulletRe.ReplaceAllString(strings.TrimSpace(line), "")
		line = strings.Trim(line, `"'*`)
		line = strings.TrimSpace(line)
		if len(line) <= 2 {
			continue
		}
		titles = append(titles, line)
	}
	titles = dedupeStrings(titles)
	if len(titles) > limit {
		titles = titles[:limit]
	}
	return titles
}

// NoopHypothesizer never predicts titles.
type NoopHypothesizer struct{}

func (NoopHypothesizer) Hypothesize(context.Context, string) ([]string, error) { return nil, nil }
