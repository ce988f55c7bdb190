package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/chunkstore"
)

func newTestFusion(t *testing.T, embedder *embedderFake) (*FusionEngine, *chunkstore.Store) {
	t.Helper()
	store := newTestStore(t, testChunks())
	return NewFusionEngine(embedder, store, DefaultPipelineConfig()), store
}

func TestFusionSearchIsDeterministic(t *testing.T) {
	engine, store := newTestFusion(t, &embedderFake{})
	corpus, _ := store.Current(testContract)
	req := SearchRequest{
		ContractID:       testContract,
		Query:            "Do I get overtime premium pay on my vacation?",
		Limit:            10,
		HypothesisTitles: []string{"Overtime", "Vacations"},
		IntentArticles:   []int{8},
	}

	first, err := engine.Search(context.Background(), corpus, req)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(first) == 0 {
		t.Fatalf("expected candidates")
	}
	for run := 0; run < 5; run++ {
		again, err := engine.Search(context.Background(), corpus, req)
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if len(again) != len(first) {
			t.Fatalf("run %d: %d candidates, want %d", run, len(again), len(first))
		}
		for i := range first {
			if again[i].Chunk.ID != first[i].Chunk.ID || again[i].Score != first[i].Score {
				t.Fatalf("run %d position %d: got %s/%v want %s/%v", run, i, again[i].Chunk.ID, again[i].Score, first[i].Chunk.ID, first[i].Score)
			}
		}
	}
	for i := 1; i < len(first); i++ {
		prev, cur := first[i-1], first[i]
		if prev.Score < cur.Score || (prev.Score == cur.Score && prev.Chunk.ID > cur.Chunk.ID) {
			t.Fatalf("candidates out of order at %d: %s/%v before %s/%v", i, prev.Chunk.ID, prev.Score, cur.Chunk.ID, cur.Score)
		}
	}
}

func TestFuseReciprocalRankScores(t *testing.T) {
	engine, _ := newTestFusion(t, &embedderFake{})
	corpus := testCorpus(t)
	lists := RankedLists{
		Keyword: []domain.ScoredChunk{{ChunkID: "a08-s1", Score: 5}, {ChunkID: "a12-s1", Score: 3}, {ChunkID: "ghost", Score: 2}},
		Vector:  []domain.ScoredChunk{{ChunkID: "a12-s1", Score: 0.9}, {ChunkID: "a12-s1", Score: 0.8}},
	}
	got := engine.Fuse(corpus, lists, BoostPlan{}, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %v", chunkIDs(got))
	}
	if got[0].Chunk.ID != "a12-s1" {
		t.Fatalf("expected a12-s1 first, got %v", chunkIDs(got))
	}
	want := 1.0/62 + 1.0/61
	if math.Abs(got[0].FusedScore-want) > 1e-12 {
		t.Fatalf("fused score = %v, want %v", got[0].FusedScore, want)
	}
	if got[0].KeywordRank != 2 || got[0].VectorRank != 1 {
		t.Fatalf("ranks = %d/%d, want 2/1", got[0].KeywordRank, got[0].VectorRank)
	}
	if math.Abs(got[1].Score-1.0/61) > 1e-12 {
		t.Fatalf("keyword-only score = %v", got[1].Score)
	}
}

func TestFuseTiesBreakByChunkID(t *testing.T) {
	engine, _ := newTestFusion(t, &embedderFake{})
	corpus := testCorpus(t)
	lists := RankedLists{
		Keyword: []domain.ScoredChunk{{ChunkID: "a45-s1", Score: 1}},
		Vector:  []domain.ScoredChunk{{ChunkID: "a30-s1", Score: 1}},
	}
	got := engine.Fuse(corpus, lists, BoostPlan{}, 10)
	if len(got) != 2 || got[0].Chunk.ID != "a30-s1" || got[1].Chunk.ID != "a45-s1" {
		t.Fatalf("expected tie broken by id, got %v", chunkIDs(got))
	}
}

func TestPlanBoostPriority(t *testing.T) {
	engine, _ := newTestFusion(t, &embedderFake{})
	corpus := testCorpus(t)

	plan := engine.Plan(corpus, "When do I get a break?", []string{"Vacations"}, []int{45})
	if plan.Reason(12) != domain.BoostQuestionMatch {
		t.Fatalf("article 12 reason = %q, want question_match", plan.Reason(12))
	}
	if plan.Reason(20) != domain.BoostNone {
		t.Fatalf("title match must not apply when a question matched, got %q", plan.Reason(20))
	}
	if plan.Reason(45) != domain.BoostIntentArticle {
		t.Fatalf("article 45 reason = %q, want intent_article", plan.Reason(45))
	}

	plan = engine.Plan(corpus, "Is there a rest period rule?", []string{"Vacations"}, []int{12})
	if plan.Reason(12) != domain.BoostConceptMatch {
		t.Fatalf("article 12 reason = %q, want concept_match", plan.Reason(12))
	}
	if plan.Reason(20) != domain.BoostNone {
		t.Fatalf("title match must not apply when a concept matched, got %q", plan.Reason(20))
	}

	plan = engine.Plan(corpus, "Can my boss cancel overtime?", []string{"Overtime Pay", "Grievance Procedure"}, nil)
	if got := plan.Articles(domain.BoostHypothesisTitle); len(got) != 2 || got[0] != 30 || got[1] != 45 {
		t.Fatalf("title matched articles = %v, want [30 45]", got)
	}
}

func TestFuseAppliesSingleHighestBoost(t *testing.T) {
	engine, _ := newTestFusion(t, &embedderFake{})
	corpus := testCorpus(t)
	lists := RankedLists{Keyword: []domain.ScoredChunk{
		{ChunkID: "a20-s1", Score: 9},
		{ChunkID: "a12-s1", Score: 8},
		{ChunkID: "a45-s1", Score: 7},
	}}
	plan := engine.Plan(corpus, "When do I get a break?", nil, []int{12, 45})
	got := engine.Fuse(corpus, lists, plan, 10)
	if got[0].Chunk.ID != "a12-s1" || got[0].BoostReason != domain.BoostQuestionMatch {
		t.Fatalf("expected question-matched chunk first, got %+v", got[0])
	}
	if math.Abs(got[0].Boost-0.03) > 1e-12 {
		t.Fatalf("boost = %v, want 0.03 without stacking the intent boost", got[0].Boost)
	}
	var grievance domain.RetrievalCandidate
	for _, c := range got {
		if c.Chunk.ID == "a45-s1" {
			grievance = c
		}
	}
	if grievance.BoostReason != domain.BoostIntentArticle || math.Abs(grievance.Boost-0.01) > 1e-12 {
		t.Fatalf("unexpected intent boost: %+v", grievance)
	}
}

func TestFusionListsSoftFailVector(t *testing.T) {
	engine, _ := newTestFusion(t, &embedderFake{err: errors.New("ollama down")})
	corpus := testCorpus(t)
	lists, err := engine.Lists(context.Background(), corpus, testContract, "overtime premium", 10)
	if err != nil {
		t.Fatalf("Lists() error = %v", err)
	}
	if lists.VectorErr == nil {
		t.Fatalf("expected vector error to be recorded")
	}
	if len(lists.Keyword) == 0 || lists.Keyword[0].ChunkID != "a30-s1" {
		t.Fatalf("keyword list = %+v", lists.Keyword)
	}
	got := engine.Fuse(corpus, lists, BoostPlan{}, 10)
	if len(got) == 0 || got[0].VectorRank != 0 {
		t.Fatalf("vector side must be ignored, got %+v", got)
	}
}

func TestFusionListsReturnsCancellation(t *testing.T) {
	engine, _ := newTestFusion(t, &embedderFake{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Lists(ctx, testCorpus(t), testContract, "overtime", 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFusionEmptyCorpus(t *testing.T) {
	store := newTestStore(t, nil)
	engine := NewFusionEngine(&embedderFake{}, store, DefaultPipelineConfig())
	corpus, _ := store.Current(testContract)
	got, err := engine.Search(context.Background(), corpus, SearchRequest{ContractID: testContract, Query: "break", Limit: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %v", chunkIDs(got))
	}
}
