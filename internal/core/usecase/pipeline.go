package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/contract-retrieval/internal/core/domain"
	"github.com/kirillkom/contract-retrieval/internal/core/ports"
)

// PipelineDeps are the collaborators of a RetrievalPipeline. Nil LLM stages fall back to
// their no-op implementations.
type PipelineDeps struct {
	Router       *IntentRouter
	Corpora      ports.CorpusProvider
	Embedder     ports.Embedder
	Vectors      ports.VectorIndex
	Hypothesizer ports.Hypothesizer
	Interpreter  ports.Interpreter
	Reranker     ports.Reranker
	Observer     StageObserver
	Logger       *slog.Logger
}

// RetrievalPipeline runs routing, fused search, the LLM stages and context assembly for
// one question. It holds no per-request state and is safe for concurrent use.
type RetrievalPipeline struct {
	router       *IntentRouter
	corpora      ports.CorpusProvider
	fusion       *FusionEngine
	hypothesizer ports.Hypothesizer
	interpreter  ports.Interpreter
	reranker     ports.Reranker
	assembler    *ContextAssembler
	observer     StageObserver
	logger       *slog.Logger
	cfg          PipelineConfig
}

func NewRetrievalPipeline(deps PipelineDeps, cfg PipelineConfig) *RetrievalPipeline {
	cfg = cfg.normalize()
	p := &RetrievalPipeline{
		router:       deps.Router,
		corpora:      deps.Corpora,
		fusion:       NewFusionEngine(deps.Embedder, deps.Vectors, cfg),
		hypothesizer: deps.Hypothesizer,
		interpreter:  deps.Interpreter,
		reranker:     deps.Reranker,
		assembler:    NewContextAssembler(cfg.Assembly),
		observer:     deps.Observer,
		logger:       deps.Logger,
		cfg:          cfg,
	}
	if p.hypothesizer == nil || !cfg.Stages.Hypothesis {
		p.hypothesizer = NoopHypothesizer{}
	}
	if p.interpreter == nil || !cfg.Stages.Interpreter {
		p.interpreter = NoopInterpreter{}
	}
	if p.reranker == nil || !cfg.Stages.Reranker {
		p.reranker = PassthroughReranker{}
	}
	if p.observer == nil {
		p.observer = noopObserver{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

func (p *RetrievalPipeline) Config() PipelineConfig { return p.cfg }

func (p *RetrievalPipeline) Route(ctx context.Context, question, contractID string, hints domain.Hints) (domain.QueryContext, domain.Intent, error) {
	return p.router.Route(ctx, question, contractID, hints)
}

// degradations collects soft failures from concurrent stages.
type degradations struct {
	mu    sync.Mutex
	items []domain.StageFailure
}

func (d *degradations) add(stage, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, item := range d.items {
		if item.Stage == stage && item.Reason == reason {
			return
		}
	}
	d.items = append(d.items, domain.StageFailure{Stage: stage, Reason: reason})
}

func (d *degradations) list() []domain.StageFailure {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.StageFailure(nil), d.items...)
}

type searchMaterial struct {
	primary    RankedLists
	titles     []string
	interp     domain.Interpretation
	alternates []RankedLists
	hyde       []domain.ScoredChunk
}

func (p *RetrievalPipeline) Retrieve(ctx context.Context, question, contractID string, hints domain.Hints) (*domain.RetrievalResult, error) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := p.logger.With("request_id", requestID, "contract_id", contractID)

	stageStart := time.Now()
	qc, intent, err := p.router.Route(ctx, question, contractID, hints)
	p.observe(StageRoute, stageStart, err)
	if err != nil {
		return nil, err
	}
	corpus, err := p.corpora.Current(qc.ContractID)
	if err != nil {
		return nil, fmt.Errorf("resolve corpus: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deg := &degradations{}
	material, err := p.gather(ctx, logger, corpus, qc, deg)
	if err != nil {
		return nil, err
	}
	qc = qc.WithInterpretation(material.interp.AlternateQueries, material.interp.HypotheticalAnswer)

	titlesForBoost := material.titles
	if !p.cfg.Stages.TitleBoost {
		titlesForBoost = nil
	}
	plan := p.fusion.Plan(corpus, qc.Question, titlesForBoost, intent.RelevantArticles)
	limit := p.cfg.ResultsPerSearch

	lists := make([][]domain.RetrievalCandidate, 0, 3+len(material.alternates))
	explicit, missing := explicitArticleCandidates(corpus, material.interp.ExplicitArticles, p.cfg.Interpreter.ExplicitArticleScore, p.cfg.Interpreter.ExplicitArticleChunks)
	for _, article := range missing {
		deg.add(StageExplicit, "article_not_found:"+strconv.Itoa(article))
		logger.Warn("explicit_article_missing", "stage", StageExplicit, "article", article)
	}
	lists = append(lists, explicit)
	lists = append(lists, markSource(p.fusion.Fuse(corpus, material.primary, plan, limit), domain.SourcePrimary, "primary"))
	for i, alt := range material.alternates {
		angle := fmt.Sprintf("alternate_%d", i+1)
		lists = append(lists, markSource(p.fusion.Fuse(corpus, alt, plan, limit), domain.SourceAlternate, angle))
	}
	if len(material.hyde) > 0 {
		hyde := p.fusion.Fuse(corpus, RankedLists{Vector: material.hyde}, plan, limit)
		lists = append(lists, markSource(hyde, domain.SourceHypothetical, "hypothetical_answer"))
	}

	merged := mergeCandidates(p.cfg.MaxCandidates, lists...)
	for i := range merged {
		merged[i].FinalScore = merged[i].Score
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked, err := p.rerank(ctx, logger, qc.Question, merged, deg)
	if err != nil {
		return nil, err
	}
	ranked = trimCandidates(ranked, p.cfg.ContextLimit)

	if p.cfg.Stages.ArticleExpansion {
		stageStart = time.Now()
		var article int
		ranked, article = p.assembler.Assemble(corpus, ranked)
		p.observe(StageAssemble, stageStart, nil)
		if article > 0 {
			logger.Debug("article_expanded", "article", article, "chunks", len(ranked))
		}
	}

	result := &domain.RetrievalResult{
		RequestID:          requestID,
		ContractID:         qc.ContractID,
		Generation:         corpus.Generation(),
		Query:              qc,
		Intent:             intent,
		EscalationRequired: intent.RequiresEscalation,
		HypothesisTitles:   material.titles,
		ExplicitArticles:   material.interp.ExplicitArticles,
		Chunks:             ranked,
		Degraded:           deg.list(),
		Duration:           time.Since(start),
	}
	p.observer.ObserveResult(string(intent.Type), len(ranked), result.Generation)
	logger.Info("retrieval_completed",
		"intent", intent.Type,
		"chunks", len(ranked),
		"degraded", len(result.Degraded),
		"generation", result.Generation,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// gather runs the primary search, the hypothesis layer and the interpreter branch
// concurrently. Only cancellation of ctx fails it; collaborator errors are recorded in deg.
func (p *RetrievalPipeline) gather(ctx context.Context, logger *slog.Logger, corpus ports.Corpus, qc domain.QueryContext, deg *degradations) (searchMaterial, error) {
	var m searchMaterial
	limit := p.cfg.ResultsPerSearch
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		started := time.Now()
		lists, err := p.fusion.Lists(gctx, corpus, qc.ContractID, qc.ExpandedQuery, limit)
		if err != nil {
			return err
		}
		if lists.VectorErr != nil {
			p.softFail(logger, deg, StagePrimary, lists.VectorErr)
		}
		p.observe(StagePrimary, started, lists.VectorErr)
		m.primary = lists
		return nil
	})

	if p.cfg.Stages.Hypothesis {
		g.Go(func() error {
			started := time.Now()
			hctx, cancel := context.WithTimeout(gctx, p.cfg.Hypothesis.Timeout)
			defer cancel()
			titles, err := p.hypothesizer.Hypothesize(hctx, qc.Question)
			p.observe(StageHypothesis, started, err)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.softFail(logger, deg, StageHypothesis, err)
				return nil
			}
			if len(titles) > p.cfg.Hypothesis.MaxTitles {
				titles = titles[:p.cfg.Hypothesis.MaxTitles]
			}
			m.titles = titles
			return nil
		})
	}

	if p.cfg.Stages.Interpreter {
		g.Go(func() error {
			interp, err := p.interpret(gctx, logger, qc, deg)
			if err != nil {
				return err
			}
			m.interp = interp
			alternates, hyde, err := p.searchInterpretation(gctx, logger, corpus, qc.ContractID, interp, deg)
			if err != nil {
				return err
			}
			m.alternates, m.hyde = alternates, hyde
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return searchMaterial{}, err
	}
	// Article references in the question need no LLM and apply with the interpreter off.
	m.interp.ExplicitArticles = uniqueSorted(append(ExplicitArticles(qc.Question), m.interp.ExplicitArticles...))
	return m, nil
}

func (p *RetrievalPipeline) interpret(ctx context.Context, logger *slog.Logger, qc domain.QueryContext, deg *degradations) (domain.Interpretation, error) {
	started := time.Now()
	ictx, cancel := context.WithTimeout(ctx, p.cfg.Interpreter.Timeout)
	defer cancel()
	interp, err := p.interpreter.Interpret(ictx, qc)
	p.observe(StageInterpreter, started, err)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Interpretation{}, ctx.Err()
		}
		p.softFail(logger, deg, StageInterpreter, err)
		interp = domain.Interpretation{}
	}
	if len(interp.AlternateQueries) > p.cfg.Interpreter.MaxAlternates {
		interp.AlternateQueries = interp.AlternateQueries[:p.cfg.Interpreter.MaxAlternates]
	}
	return interp, nil
}

// searchInterpretation runs every alternate phrasing through both rankings and the
// hypothetical passage through the vector index only, all concurrently.
func (p *RetrievalPipeline) searchInterpretation(ctx context.Context, logger *slog.Logger, corpus ports.Corpus, contractID string, interp domain.Interpretation, deg *degradations) ([]RankedLists, []domain.ScoredChunk, error) {
	limit := p.cfg.ResultsPerSearch
	alternates := make([]RankedLists, len(interp.AlternateQueries))
	var hyde []domain.ScoredChunk

	g, gctx := errgroup.WithContext(ctx)
	for i, query := range interp.AlternateQueries {
		g.Go(func() error {
			started := time.Now()
			lists, err := p.fusion.Lists(gctx, corpus, contractID, query, limit)
			if err != nil {
				return err
			}
			if lists.VectorErr != nil {
				p.softFail(logger, deg, StageAlternates, lists.VectorErr)
			}
			p.observe(StageAlternates, started, lists.VectorErr)
			alternates[i] = lists
			return nil
		})
	}
	if interp.HypotheticalAnswer != "" {
		g.Go(func() error {
			started := time.Now()
			hits, err := p.fusion.VectorSearch(gctx, contractID, interp.HypotheticalAnswer, limit*p.cfg.Fusion.ListMultiplier)
			p.observe(StageHyDE, started, err)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.softFail(logger, deg, StageHyDE, err)
				return nil
			}
			hyde = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return alternates, hyde, nil
}

func (p *RetrievalPipeline) rerank(ctx context.Context, logger *slog.Logger, question string, merged []domain.RetrievalCandidate, deg *degradations) ([]domain.RetrievalCandidate, error) {
	if len(merged) == 0 {
		return merged, nil
	}
	started := time.Now()
	rctx, cancel := context.WithTimeout(ctx, p.cfg.Rerank.Timeout)
	defer cancel()
	reranked, err := p.reranker.Rerank(rctx, question, append([]domain.RetrievalCandidate(nil), merged...))
	if err == nil && !sameCandidates(merged, reranked) {
		err = domain.WrapError(domain.ErrIncompleteScores, "rerank", errors.New("reranker changed the candidate set"))
	}
	p.observe(StageRerank, started, err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		p.softFail(logger, deg, StageRerank, err)
		return merged, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return reranked, nil
}

func sameCandidates(a, b []domain.RetrievalCandidate) bool {
	if len(a) != len(b) {
		return false
	}
	ids := make(map[string]int, len(a))
	for _, c := range a {
		ids[c.Chunk.ID]++
	}
	for _, c := range b {
		if ids[c.Chunk.ID] == 0 {
			return false
		}
		ids[c.Chunk.ID]--
	}
	return true
}

func (p *RetrievalPipeline) softFail(logger *slog.Logger, deg *degradations, stage string, err error) {
	reason := failureReason(err)
	deg.add(stage, reason)
	p.observer.ObserveDegraded(stage, reason)
	logger.Warn("stage_degraded", "stage", stage, "reason", reason, "error", err)
}

func (p *RetrievalPipeline) observe(stage string, started time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = failureReason(err)
	}
	p.observer.ObserveStage(stage, outcome, time.Since(started))
}

func failureReason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case domain.IsKind(err, domain.ErrIncompleteScores):
		return "incomplete_scores"
	case domain.IsKind(err, domain.ErrMalformedResponse):
		return "malformed_response"
	case domain.IsKind(err, domain.ErrTemporary):
		return "unavailable"
	default:
		return "error"
	}
}
