package domain

import "time"

type IntentType string

const (
	IntentWage       IntentType = "wage"
	IntentHighStakes IntentType = "high_stakes"
	IntentContract   IntentType = "contract"
)

// HighStakesCategory names the kind of high-stakes situation a question describes.
type HighStakesCategory string

const (
	CategoryNone           HighStakesCategory = ""
	CategoryHarassment     HighStakesCategory = "harassment"
	CategoryDiscrimination HighStakesCategory = "discrimination"
	CategoryRetaliation    HighStakesCategory = "retaliation"
	CategorySafety         HighStakesCategory = "safety"
	CategoryTermination    HighStakesCategory = "termination"
	CategoryDiscipline     HighStakesCategory = "discipline"
)

type Intent struct {
	Type               IntentType         `json:"type"`
	Category           HighStakesCategory `json:"category,omitempty"`
	Confidence         float64            `json:"confidence"`
	Classification     string             `json:"classification,omitempty"`
	Topic              string             `json:"topic,omitempty"`
	RequiresEscalation bool               `json:"requires_escalation"`
	ActiveSituation    bool               `json:"active_situation"`
	Matched            []string           `json:"matched,omitempty"`
	RelevantArticles   []int              `json:"relevant_articles,omitempty"`
}

// Hints are caller-supplied facts about the worker asking.
type Hints struct {
	Classification   string `json:"classification,omitempty"`
	EmploymentStatus string `json:"employment_status,omitempty"`
}

// QueryContext is built once per request and never mutated; With* methods return copies.
type QueryContext struct {
	Question           string   `json:"question"`
	ContractID         string   `json:"contract_id"`
	Hints              Hints    `json:"hints"`
	ExpandedQuery      string   `json:"expanded_query"`
	Expansions         []string `json:"expansions,omitempty"`
	AlternateQueries   []string `json:"alternate_queries,omitempty"`
	HypotheticalAnswer string   `json:"hypothetical_answer,omitempty"`
}

// WithInterpretation returns a copy carrying the interpreter's search material.
func (q QueryContext) WithInterpretation(alternates []string, hypothetical string) QueryContext {
	out := q
	out.Expansions = append([]string(nil), q.Expansions...)
	out.AlternateQueries = append([]string(nil), alternates...)
	out.HypotheticalAnswer = hypothetical
	return out
}

// Interpretation is the structured reading of a question produced by the interpreter stage.
type Interpretation struct {
	Intent             string            `json:"intent,omitempty"`
	KeyConcepts        []string          `json:"key_concepts,omitempty"`
	Entities           map[string]string `json:"entities,omitempty"`
	HypotheticalAnswer string            `json:"hypothetical_answer,omitempty"`
	AlternateQueries   []string          `json:"alternate_queries,omitempty"`
	LikelySections     []string          `json:"likely_sections,omitempty"`
	ExplicitArticles   []int             `json:"explicit_articles,omitempty"`
}

func (i Interpretation) Empty() bool {
	return i.HypotheticalAnswer == "" && len(i.AlternateQueries) == 0 && len(i.ExplicitArticles) == 0
}

type BoostReason string

const (
	BoostNone            BoostReason = ""
	BoostQuestionMatch   BoostReason = "question_match"
	BoostConceptMatch    BoostReason = "concept_match"
	BoostHypothesisTitle BoostReason = "hypothesis_title_match"
	BoostIntentArticle   BoostReason = "intent_article"
)

// Priority orders boost reasons; higher wins.
func (r BoostReason) Priority() int {
	switch r {
	case BoostQuestionMatch:
		return 4
	case BoostConceptMatch:
		return 3
	case BoostHypothesisTitle:
		return 2
	case BoostIntentArticle:
		return 1
	default:
		return 0
	}
}

// CandidateSource records which search angle produced a candidate.
type CandidateSource string

const (
	SourcePrimary          CandidateSource = "primary"
	SourceAlternate        CandidateSource = "alternate"
	SourceHypothetical     CandidateSource = "hypothetical"
	SourceExplicitArticle  CandidateSource = "explicit_article"
	SourceArticleExpansion CandidateSource = "article_expansion"
)

// RetrievalCandidate is request-scoped and owned by the request that produced it.
type RetrievalCandidate struct {
	Chunk Chunk `json:"chunk"`

	KeywordRank  int     `json:"keyword_rank,omitempty"`
	KeywordScore float64 `json:"keyword_score,omitempty"`
	VectorRank   int     `json:"vector_rank,omitempty"`
	VectorScore  float64 `json:"vector_score,omitempty"`
	FusedScore   float64 `json:"fused_score"`

	Boost       float64     `json:"boost,omitempty"`
	BoostReason BoostReason `json:"boost_reason,omitempty"`

	// Score is the ranking score before reranking: fused plus boost, or a forced score.
	Score       float64         `json:"score"`
	LLMScore    int             `json:"llm_score,omitempty"`
	FinalScore  float64         `json:"final_score"`
	Reranked    bool            `json:"reranked,omitempty"`
	Source      CandidateSource `json:"source"`
	SearchAngle string          `json:"search_angle,omitempty"`
}

func (c RetrievalCandidate) ID() string { return c.Chunk.ID }

// StageFailure records a soft failure that the pipeline degraded around.
type StageFailure struct {
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

type RetrievalResult struct {
	RequestID          string               `json:"request_id"`
	ContractID         string               `json:"contract_id"`
	Generation         uint64               `json:"generation"`
	Query              QueryContext         `json:"query"`
	Intent             Intent               `json:"intent"`
	EscalationRequired bool                 `json:"escalation_required"`
	HypothesisTitles   []string             `json:"hypothesis_titles,omitempty"`
	ExplicitArticles   []int                `json:"explicit_articles,omitempty"`
	Chunks             []RetrievalCandidate `json:"chunks"`
	Degraded           []StageFailure       `json:"degraded,omitempty"`
	Duration           time.Duration        `json:"duration_ns"`
}
