package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
)

type retrieverFake struct {
	contractID string
	hints      domain.Hints
}

func (f *retrieverFake) Retrieve(_ context.Context, _ string, contractID string, hints domain.Hints) (*domain.RetrievalResult, error) {
	f.contractID = contractID
	f.hints = hints
	return &domain.RetrievalResult{
		ContractID: contractID,
		Generation: 7,
		Intent:     domain.Intent{Type: domain.IntentContract},
		Chunks: []domain.RetrievalCandidate{{
			Chunk:      domain.Chunk{ID: "a12-s1", Citation: "Article 12, Section 1", Title: "Relief Periods", Content: "Employees   receive a paid\nrest period."},
			FinalScore: 0.812,
		}},
		Degraded: []domain.StageFailure{{Stage: "rerank", Reason: "timeout"}},
	}, nil
}

type routerFake struct{}

func (routerFake) Route(_ context.Context, q, c string, _ domain.Hints) (domain.QueryContext, domain.Intent, error) {
	return domain.QueryContext{Question: q, ContractID: c, ExpandedQuery: q},
		domain.Intent{Type: domain.IntentHighStakes, Category: domain.CategoryTermination, ActiveSituation: true, RequiresEscalation: true, RelevantArticles: []int{43}}, nil
}

type indexerFake struct {
	ids []string
	err error
}

func (f *indexerFake) IngestContract(_ context.Context, id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

func run(t *testing.T, factory ServiceFactory, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(factory, "test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func servicesWith(s *Services) ServiceFactory {
	return func(context.Context) (*Services, error) { return s, nil }
}

func TestRetrievePrintsRankedSections(t *testing.T) {
	retriever := &retrieverFake{}
	out, err := run(t, servicesWith(&Services{Retriever: retriever}),
		"retrieve", "When", "do", "I", "get", "a", "break?", "--contract", "safeway_2022", "--classification", "courtesy_clerk")
	if err != nil {
		t.Fatalf("retrieve error = %v", err)
	}
	if retriever.contractID != "safeway_2022" || retriever.hints.Classification != "courtesy_clerk" {
		t.Fatalf("unexpected call: %+v", retriever)
	}
	for _, want := range []string{"[1] Article 12, Section 1  0.812", "Employees receive a paid rest period.", "degraded: rerank (timeout)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRetrieveRequiresContractFlag(t *testing.T) {
	if _, err := run(t, servicesWith(&Services{Retriever: &retrieverFake{}}), "retrieve", "hello"); err == nil {
		t.Fatalf("expected missing flag error")
	}
}

func TestRouteShowsEscalation(t *testing.T) {
	out, err := run(t, servicesWith(&Services{Router: routerFake{}}), "route", "I was fired yesterday", "-c", "safeway_2022")
	if err != nil {
		t.Fatalf("route error = %v", err)
	}
	if !strings.Contains(out, "category:   termination (active=true)") || !strings.Contains(out, "escalation: required") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestReindexStopsOnFirstFailure(t *testing.T) {
	indexer := &indexerFake{err: errors.New("embedder down")}
	_, err := run(t, servicesWith(&Services{Indexer: indexer}), "reindex", "a", "b")
	if err == nil || len(indexer.ids) != 1 {
		t.Fatalf("expected failure after first contract, got err=%v ids=%v", err, indexer.ids)
	}
}

func TestFactoryErrorSurfaces(t *testing.T) {
	factory := func(context.Context) (*Services, error) { return nil, errors.New("no config") }
	if _, err := run(t, factory, "route", "q", "-c", "x"); err == nil || !strings.Contains(err.Error(), "no config") {
		t.Fatalf("expected factory error, got %v", err)
	}
}

func TestManifestValidateIsOffline(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "safeway_2022.yaml")
	bad := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(good, []byte("query_routing:\n  topic_to_articles:\n    breaks: [12]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("query_routing:\n  topic_patterns:\n    breaks: '(unclosed'\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, nil, "manifest", "validate", good)
	if err != nil || !strings.Contains(out, "ok") {
		t.Fatalf("expected valid manifest, got %v\n%s", err, out)
	}
	if _, err := run(t, nil, "manifest", "validate", good, bad); err == nil {
		t.Fatalf("expected invalid manifest error")
	}
}

func TestCorpusValidateSummarizesArticles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "safeway_2022.json")
	body := `[{"chunk_id":"a12-s1","article_num":12,"section_num":1,"article_title":"Relief Periods","content":"Breaks."},
	{"chunk_id":"a12-s2","article_num":12,"section_num":2,"article_title":"Relief Periods","content":"Meal periods."}]`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, nil, "corpus", "validate", path)
	if err != nil {
		t.Fatalf("corpus validate error = %v", err)
	}
	if !strings.Contains(out, "safeway_2022: 2 chunks") || !strings.Contains(out, "article 12") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}
