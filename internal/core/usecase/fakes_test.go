package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
	"github.com/kirillkom/contract-retrieval/internal/infrastructure/chunkstore"
)

const testContract = "safeway_2022"

// embedVocabulary gives every test text a deterministic vector by keyword presence.
var embedVocabulary = [][]string{
	{"wage", "rate", "pay", "appendix"},
	{"relief", "break", "meal", "rest"},
	{"vacation", "time off"},
	{"discharge", "just cause", "fired"},
	{"grievance", "arbitration"},
	{"overtime", "premium"},
}

func fakeEmbedding(text string) []float32 {
	lower := strings.ToLower(text)
	out := make([]float32, len(embedVocabulary)+1)
	out[len(embedVocabulary)] = 0.01
	for i, words := range embedVocabulary {
		for _, w := range words {
			if strings.Contains(lower, w) {
				out[i]++
			}
		}
	}
	return out
}

func testChunks() []domain.Chunk {
	chunks := []domain.Chunk{
		{ID: "a08-s1", Article: 8, Section: 1, Title: "Wages", Citation: "Article 8, Section 1",
			Content: "Wage rates for all classifications are listed in Appendix A. Courtesy clerk rates of pay progress by hours worked."},
		{ID: "a12-s1", Article: 12, Section: 1, Title: "Relief Periods", Citation: "Article 12, Section 1",
			Content:          "Each employee shall receive a fifteen minute relief period for each four hours worked.",
			AlternativeNames: []string{"break", "rest period"}, WorkerQuestions: []string{"When do I get a break?"}},
		{ID: "a12-s2", Article: 12, Section: 2, Title: "Relief Periods", Citation: "Article 12, Section 2",
			Content: "A meal period of not less than thirty minutes shall be scheduled near the middle of the shift."},
		{ID: "a20-s1", Article: 20, Section: 1, Title: "Vacations", Citation: "Article 20, Section 1",
			Content:          "Employees shall earn one week of vacation after one year of continuous service.",
			AlternativeNames: []string{"time off"}, WorkerQuestions: []string{"How much vacation do I get?"}},
		{ID: "a20-s2", Article: 20, Section: 2, Title: "Vacations", Citation: "Article 20, Section 2",
			Content: "Vacation pay shall be computed at the straight time rate."},
		{ID: "a20-s3", Article: 20, Section: 3, Title: "Vacations", Citation: "Article 20, Section 3",
			Content: "Vacation schedules are posted by seniority each January."},
		{ID: "a20-s4", Article: 20, Section: 4, Title: "Vacations", Citation: "Article 20, Section 4",
			Content: "Unused vacation is paid out upon termination."},
		{ID: "a30-s1", Article: 30, Section: 1, Title: "Overtime", Citation: "Article 30, Section 1",
			Content: "Overtime at time and one half shall be paid for work over forty hours. Premium pay is not pyramided."},
		{ID: "a43-s1", Article: 43, Section: 1, Title: "Discharge", Citation: "Article 43, Section 1",
			Content: "No employee shall be discharged except for just cause."},
		{ID: "a45-s1", Article: 45, Section: 1, Title: "Grievance Procedure", Citation: "Article 45, Section 1",
			Content: "A grievance shall be presented in writing within ten days. Unresolved disputes go to arbitration."},
		{ID: "lou-1", DocType: domain.DocTypeLOU, Citation: "Letter of Understanding 1",
			Content: "The parties agree to meet regarding relief period scheduling."},
	}
	for i := range chunks {
		chunks[i].Embedding = fakeEmbedding(chunks[i].Content + " " + chunks[i].Title)
	}
	return chunks
}

func testManifest() *domain.RoutingManifest {
	return &domain.RoutingManifest{
		ContractID: testContract,
		Version:    "2022.1",
		QueryRouting: domain.QueryRouting{
			SlangToContract: map[string]string{"dug": "drive up and go"},
			TopicToArticles: map[string][]int{
				"breaks":   {12},
				"vacation": {20},
				"overtime": {30},
			},
			ClassificationToArticles: map[string][]int{"courtesy_clerk": {8}},
			IntentToArticles: map[string][]int{
				"wage":        {8},
				"high_stakes": {43, 45},
			},
		},
	}
}

type manifestStoreFake struct {
	manifests map[string]*domain.RoutingManifest
	calls     atomic.Int32
}

func newManifestStoreFake() *manifestStoreFake {
	return &manifestStoreFake{manifests: map[string]*domain.RoutingManifest{testContract: testManifest()}}
}

func (f *manifestStoreFake) LoadManifest(_ context.Context, contractID string) (*domain.RoutingManifest, error) {
	f.calls.Add(1)
	m, ok := f.manifests[contractID]
	if !ok {
		return nil, domain.WrapError(domain.ErrUnknownContract, "load manifest", errors.New(contractID))
	}
	copyManifest := *m
	return &copyManifest, nil
}

type embedderFake struct {
	err   error
	calls atomic.Int32
}

func (f *embedderFake) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := f.EmbedQuery(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return fakeEmbedding(text), nil
}

type vectorIndexFake struct {
	err error
}

func (f *vectorIndexFake) Search(context.Context, string, []float32, int) ([]domain.ScoredChunk, error) {
	return nil, f.err
}

type hypothesizerFake struct {
	titles []string
	err    error
	block  bool
	calls  atomic.Int32
}

func (f *hypothesizerFake) Hypothesize(ctx context.Context, _ string) ([]string, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.titles, nil
}

type interpreterFake struct {
	interp domain.Interpretation
	err    error
	block  bool
	seen   domain.QueryContext
	mu     sync.Mutex
}

func (f *interpreterFake) Interpret(ctx context.Context, qc domain.QueryContext) (domain.Interpretation, error) {
	f.mu.Lock()
	f.seen = qc
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return domain.Interpretation{}, ctx.Err()
	}
	if f.err != nil {
		return domain.Interpretation{}, f.err
	}
	return f.interp, nil
}

type rerankerFake struct {
	err     error
	block   bool
	reverse bool
	drop    bool
}

func (f *rerankerFake) Rerank(ctx context.Context, _ string, candidates []domain.RetrievalCandidate) ([]domain.RetrievalCandidate, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := append([]domain.RetrievalCandidate(nil), candidates...)
	if f.drop && len(out) > 0 {
		out = out[1:]
	}
	if f.reverse {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

type completerFake struct {
	response string
	err      error
	requests []domain.CompletionRequest
	mu       sync.Mutex
}

func (f *completerFake) Complete(_ context.Context, req domain.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type observerFake struct {
	mu       sync.Mutex
	degraded map[string]string
}

func (o *observerFake) ObserveStage(string, string, time.Duration) {}
func (o *observerFake) ObserveDegraded(stage, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.degraded == nil {
		o.degraded = make(map[string]string)
	}
	o.degraded[stage] = reason
}
func (o *observerFake) ObserveResult(string, int, uint64) {}

func newTestStore(t *testing.T, chunks []domain.Chunk) *chunkstore.Store {
	t.Helper()
	store := chunkstore.NewStore(nil, chunkstore.BuildOptions{})
	if _, err := store.Swap(testContract, chunks); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	return store
}

func testCorpus(t *testing.T) ports.Corpus {
	t.Helper()
	corpus, err := newTestStore(t, testChunks()).Current(testContract)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	return corpus
}

type pipelineFixture struct {
	store        *chunkstore.Store
	embedder     *embedderFake
	hypothesizer *hypothesizerFake
	interpreter  *interpreterFake
	reranker     *rerankerFake
	observer     *observerFake
	vectors      ports.VectorIndex
	cfg          PipelineConfig
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	cfg := DefaultPipelineConfig()
	cfg.Hypothesis.Timeout = 50 * time.Millisecond
	cfg.Interpreter.Timeout = 50 * time.Millisecond
	cfg.Rerank.Timeout = 50 * time.Millisecond
	store := newTestStore(t, testChunks())
	return &pipelineFixture{
		store:        store,
		embedder:     &embedderFake{},
		hypothesizer: &hypothesizerFake{titles: []string{"Relief Periods"}},
		interpreter:  &interpreterFake{},
		reranker:     &rerankerFake{},
		observer:     &observerFake{},
		vectors:      store,
		cfg:          cfg,
	}
}

func (f *pipelineFixture) build() *RetrievalPipeline {
	return NewRetrievalPipeline(PipelineDeps{
		Router:       NewIntentRouter(NewManifestRegistry(newManifestStoreFake())),
		Corpora:      f.store,
		Embedder:     f.embedder,
		Vectors:      f.vectors,
		Hypothesizer: f.hypothesizer,
		Interpreter:  f.interpreter,
		Reranker:     f.reranker,
		Observer:     f.observer,
	}, f.cfg)
}

func chunkIDs(candidates []domain.RetrievalCandidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Chunk.ID)
	}
	return out
}

func hasDegraded(result *domain.RetrievalResult, stage string) bool {
	for _, d := range result.Degraded {
		if d.Stage == stage {
			return true
		}
	}
	return false
}
