package usecase

import (
	"math"
	"time"
)

// StageToggles enables the optional pipeline stages. Each pipeline carries its own copy.
type StageToggles struct {
	Hypothesis       bool
	TitleBoost       bool
	Interpreter      bool
	Reranker         bool
	ArticleExpansion bool
}

type FusionConfig struct {
	RRFK          int
	KeywordWeight float64
	VectorWeight  float64
	// StructuralBoost is added to chunks of question, concept, or title matched articles.
	StructuralBoost float64
	// IntentBoost is added to chunks of intent articles that no structural boost selected.
	IntentBoost      float64
	BoostTopArticles int
	// ListMultiplier widens each ranked list before fusion.
	ListMultiplier int
}

type HypothesisConfig struct {
	MaxTitles int
	Timeout   time.Duration
}

type InterpreterConfig struct {
	MaxAlternates         int
	Timeout               time.Duration
	ExplicitArticleScore  float64
	ExplicitArticleChunks int
}

type RerankConfig struct {
	BatchSize       int
	MaxContentChars int
	OriginalWeight  float64
	LLMWeight       float64
	Timeout         time.Duration
}

type AssemblyConfig struct {
	TopK          int
	MinSharedHits int
	MaxChunks     int
}

type PipelineConfig struct {
	Stages      StageToggles
	Fusion      FusionConfig
	Hypothesis  HypothesisConfig
	Interpreter InterpreterConfig
	Rerank      RerankConfig
	Assembly    AssemblyConfig

	// ResultsPerSearch is the fused list size for every fusion query.
	ResultsPerSearch int
	// MaxCandidates caps the merged pool handed to the reranker.
	MaxCandidates int
	// ContextLimit caps the ranked list before article expansion.
	ContextLimit int

	EmbedTimeout  time.Duration
	VectorTimeout time.Duration
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Stages: StageToggles{
			Hypothesis:       true,
			TitleBoost:       true,
			Interpreter:      true,
			Reranker:         true,
			ArticleExpansion: true,
		},
		Fusion: FusionConfig{
			RRFK:             60,
			KeywordWeight:    1.0,
			VectorWeight:     1.0,
			StructuralBoost:  0.03,
			IntentBoost:      0.01,
			BoostTopArticles: 5,
			ListMultiplier:   2,
		},
		Hypothesis: HypothesisConfig{
			MaxTitles: 3,
			Timeout:   2 * time.Second,
		},
		Interpreter: InterpreterConfig{
			MaxAlternates:         3,
			Timeout:               8 * time.Second,
			ExplicitArticleScore:  0.95,
			ExplicitArticleChunks: 5,
		},
		Rerank: RerankConfig{
			BatchSize:       15,
			MaxContentChars: 800,
			OriginalWeight:  0.3,
			LLMWeight:       0.7,
			Timeout:         15 * time.Second,
		},
		Assembly: AssemblyConfig{
			TopK:          5,
			MinSharedHits: 2,
			MaxChunks:     15,
		},
		ResultsPerSearch: 10,
		MaxCandidates:    15,
		ContextLimit:     8,
		EmbedTimeout:     5 * time.Second,
		VectorTimeout:    5 * time.Second,
	}
}

func (c PipelineConfig) normalize() PipelineConfig {
	def := DefaultPipelineConfig()

	if c.Fusion.RRFK < 1 {
		c.Fusion.RRFK = def.Fusion.RRFK
	}
	if c.Fusion.KeywordWeight < 0 {
		c.Fusion.KeywordWeight = 0
	}
	if c.Fusion.VectorWeight < 0 {
		c.Fusion.VectorWeight = 0
	}
	if c.Fusion.KeywordWeight == 0 && c.Fusion.VectorWeight == 0 {
		c.Fusion.KeywordWeight = def.Fusion.KeywordWeight
		c.Fusion.VectorWeight = def.Fusion.VectorWeight
	}
	if c.Fusion.StructuralBoost < 0 {
		c.Fusion.StructuralBoost = 0
	}
	if c.Fusion.IntentBoost < 0 {
		c.Fusion.IntentBoost = 0
	}
	if c.Fusion.BoostTopArticles <= 0 {
		c.Fusion.BoostTopArticles = def.Fusion.BoostTopArticles
	}
	if c.Fusion.ListMultiplier <= 0 {
		c.Fusion.ListMultiplier = def.Fusion.ListMultiplier
	}

	if c.Hypothesis.MaxTitles <= 0 {
		c.Hypothesis.MaxTitles = def.Hypothesis.MaxTitles
	}
	if c.Hypothesis.Timeout <= 0 {
		c.Hypothesis.Timeout = def.Hypothesis.Timeout
	}

	if c.Interpreter.MaxAlternates <= 0 {
		c.Interpreter.MaxAlternates = def.Interpreter.MaxAlternates
	}
	if c.Interpreter.Timeout <= 0 {
		c.Interpreter.Timeout = def.Interpreter.Timeout
	}
	if c.Interpreter.ExplicitArticleScore <= 0 {
		c.Interpreter.ExplicitArticleScore = def.Interpreter.ExplicitArticleScore
	}
	if c.Interpreter.ExplicitArticleChunks <= 0 {
		c.Interpreter.ExplicitArticleChunks = def.Interpreter.ExplicitArticleChunks
	}

	if c.Rerank.BatchSize <= 0 {
		c.Rerank.BatchSize = def.Rerank.BatchSize
	}
	if c.Rerank.MaxContentChars <= 0 {
		c.Rerank.MaxContentChars = def.Rerank.MaxContentChars
	}
	c.Rerank.OriginalWeight, c.Rerank.LLMWeight = normalizeWeights(c.Rerank.OriginalWeight, c.Rerank.LLMWeight)
	if c.Rerank.Timeout <= 0 {
		c.Rerank.Timeout = def.Rerank.Timeout
	}

	if c.Assembly.TopK <= 0 {
		c.Assembly.TopK = def.Assembly.TopK
	}
	if c.Assembly.MinSharedHits < 2 {
		c.Assembly.MinSharedHits = def.Assembly.MinSharedHits
	}
	if c.Assembly.MaxChunks <= 0 {
		c.Assembly.MaxChunks = def.Assembly.MaxChunks
	}

	if c.ResultsPerSearch <= 0 {
		c.ResultsPerSearch = def.ResultsPerSearch
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = def.MaxCandidates
	}
	if c.ContextLimit <= 0 {
		c.ContextLimit = def.ContextLimit
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = def.EmbedTimeout
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = def.VectorTimeout
	}
	return c
}

// normalizeWeights scales the blend weights so they sum to 1.
func normalizeWeights(original, llm float64) (float64, float64) {
	if original < 0 || math.IsNaN(original) {
		original = 0
	}
	if llm < 0 || math.IsNaN(llm) {
		llm = 0
	}
	sum := original + llm
	if sum <= 0 {
		return 0.3, 0.7
	}
	return original / sum, llm / sum
}
