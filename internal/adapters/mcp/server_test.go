package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

type retrieverFake struct {
	err   error
	hints domain.Hints
}

func (f *retrieverFake) Retrieve(_ context.Context, _, contractID string, hints domain.Hints) (*domain.RetrievalResult, error) {
	f.hints = hints
	if f.err != nil {
		return nil, f.err
	}
	return &domain.RetrievalResult{
		ContractID: contractID,
		Generation: 2,
		Intent:     domain.Intent{Type: domain.IntentHighStakes, Category: domain.CategoryHarassment, RequiresEscalation: true},
		Chunks: []domain.RetrievalCandidate{{
			Chunk:      domain.Chunk{ID: "a43-s1", Citation: "Article 43, Section 1", Content: "Discharge for just cause."},
			FinalScore: 0.9,
		}},
		EscalationRequired: true,
	}, nil
}

type routerFake struct{}

func (routerFake) Route(_ context.Context, q, c string, _ domain.Hints) (domain.QueryContext, domain.Intent, error) {
	return domain.QueryContext{Question: q, ContractID: c, ExpandedQuery: q + " (drive up and go)"},
		domain.Intent{Type: domain.IntentContract}, nil
}

func callRequest(name string, arguments map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = arguments
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestRetrieveToolReturnsSections(t *testing.T) {
	retriever := &retrieverFake{}
	s := NewServer(retriever, routerFake{}, "test", nil)

	res, err := s.handleRetrieve(context.Background(), callRequest(toolRetrieve, map[string]any{
		"question":       "My manager keeps touching me",
		"contract_id":    "safeway_2022",
		"classification": "courtesy_clerk",
	}))
	if err != nil {
		t.Fatalf("handleRetrieve() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var out retrieveOutput
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if !out.EscalationRequired || len(out.Sections) != 1 || out.Sections[0].ChunkID != "a43-s1" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if retriever.hints.Classification != "courtesy_clerk" {
		t.Fatalf("hints not forwarded: %+v", retriever.hints)
	}
}

func TestRetrieveToolRequiresArguments(t *testing.T) {
	s := NewServer(&retrieverFake{}, routerFake{}, "test", nil)
	res, err := s.handleRetrieve(context.Background(), callRequest(toolRetrieve, map[string]any{"question": "hi"}))
	if err != nil {
		t.Fatalf("handleRetrieve() error = %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error for missing contract_id")
	}
}

func TestRetrieveToolReportsUnknownContract(t *testing.T) {
	s := NewServer(&retrieverFake{err: domain.WrapError(domain.ErrUnknownContract, "route", errors.New("x"))}, routerFake{}, "test", nil)
	res, _ := s.handleRetrieve(context.Background(), callRequest(toolRetrieve, map[string]any{
		"question": "q", "contract_id": "x",
	}))
	if !res.IsError || !strings.Contains(resultText(t, res), "unknown contract") {
		t.Fatalf("expected unknown contract error, got %+v", res)
	}
}

func TestRouteTool(t *testing.T) {
	s := NewServer(&retrieverFake{}, routerFake{}, "test", nil)
	res, err := s.handleRoute(context.Background(), callRequest(toolRoute, map[string]any{
		"question": "dug shifts", "contract_id": "safeway_2022",
	}))
	if err != nil || res.IsError {
		t.Fatalf("handleRoute() = %+v, %v", res, err)
	}
	if !strings.Contains(resultText(t, res), "drive up and go") {
		t.Fatalf("unexpected route output: %s", resultText(t, res))
	}
}
