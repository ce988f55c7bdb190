package httpadapter

import "github.com/kirillkom/contract-retrieval/internal/core/domain"

// chunkDTO is a ranked chunk without its embedding.
type chunkDTO struct {
	ChunkID      string                 `json:"chunk_id"`
	Article      int                    `json:"article_num,omitempty"`
	Section      int                    `json:"section_num,omitempty"`
	Subsection   string                 `json:"subsection,omitempty"`
	Title        string                 `json:"article_title,omitempty"`
	Citation     string                 `json:"citation,omitempty"`
	DocType      domain.DocType         `json:"doc_type,omitempty"`
	Content      string                 `json:"content"`
	Score        float64                `json:"score"`
	FinalScore   float64                `json:"final_score"`
	LLMScore     int                    `json:"llm_score,omitempty"`
	Reranked     bool                   `json:"reranked,omitempty"`
	BoostReason  domain.BoostReason     `json:"boost_reason,omitempty"`
	Source       domain.CandidateSource `json:"source"`
	SearchAngle  string                 `json:"search_angle,omitempty"`
	KeywordRank  int                    `json:"keyword_rank,omitempty"`
	VectorRank   int                    `json:"vector_rank,omitempty"`
	FusedScore   float64                `json:"fused_score"`
	BoostApplied float64                `json:"boost,omitempty"`
}

type retrieveResponse struct {
	RequestID          string                `json:"request_id"`
	ContractID         string                `json:"contract_id"`
	Generation         uint64                `json:"generation"`
	Query              domain.QueryContext   `json:"query"`
	Intent             domain.Intent         `json:"intent"`
	EscalationRequired bool                  `json:"escalation_required"`
	HypothesisTitles   []string              `json:"hypothesis_titles,omitempty"`
	ExplicitArticles   []int                 `json:"explicit_articles,omitempty"`
	Chunks             []chunkDTO            `json:"chunks"`
	Degraded           []domain.StageFailure `json:"degraded,omitempty"`
	DurationMS         float64               `json:"duration_ms"`
}

func newRetrieveResponse(r *domain.RetrievalResult) retrieveResponse {
	chunks := make([]chunkDTO, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		chunks = append(chunks, chunkDTO{
			ChunkID:      c.Chunk.ID,
			Article:      c.Chunk.ArticleNumber(),
			Section:      c.Chunk.Section,
			Subsection:   c.Chunk.Subsection,
			Title:        c.Chunk.Title,
			Citation:     c.Chunk.Citation,
			DocType:      c.Chunk.DocType,
			Content:      c.Chunk.DisplayText(),
			Score:        c.Score,
			FinalScore:   c.FinalScore,
			LLMScore:     c.LLMScore,
			Reranked:     c.Reranked,
			BoostReason:  c.BoostReason,
			Source:       c.Source,
			SearchAngle:  c.SearchAngle,
			KeywordRank:  c.KeywordRank,
			VectorRank:   c.VectorRank,
			FusedScore:   c.FusedScore,
			BoostApplied: c.Boost,
		})
	}
	return retrieveResponse{
		RequestID:          r.RequestID,
		ContractID:         r.ContractID,
		Generation:         r.Generation,
		Query:              r.Query,
		Intent:             r.Intent,
		EscalationRequired: r.EscalationRequired,
		HypothesisTitles:   r.HypothesisTitles,
		ExplicitArticles:   r.ExplicitArticles,
		Chunks:             chunks,
		Degraded:           r.Degraded,
		DurationMS:         float64(r.Duration.Microseconds()) / 1000.0,
	}
}

type routeResponse struct {
	Query              domain.QueryContext `json:"query"`
	Intent             domain.Intent       `json:"intent"`
	EscalationRequired bool                `json:"escalation_required"`
}

type contractResponse struct {
	ContractID string               `json:"contract_id"`
	Generation uint64               `json:"generation"`
	Chunks     int                  `json:"chunks"`
	Articles   []domain.ArticleInfo `json:"articles"`
}
