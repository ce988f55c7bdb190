package domain

// DocType tags the part of the agreement a chunk was cut from.
type DocType string

const (
	DocTypeBody     DocType = "cba"
	DocTypeLOU      DocType = "lou"
	DocTypeAppendix DocType = "appendix"
)

// Chunk is an indivisible retrievable unit of a contract. Chunks are immutable at query time.
type Chunk struct {
	ID                string    `json:"chunk_id"`
	ContractID        string    `json:"contract_id,omitempty"`
	Article           int       `json:"article_num,omitempty"`
	Section           int       `json:"section_num,omitempty"`
	Subsection        string    `json:"subsection,omitempty"`
	Title             string    `json:"article_title,omitempty"`
	Citation          string    `json:"citation,omitempty"`
	Content           string    `json:"content"`
	ContentWithTables string    `json:"content_with_tables,omitempty"`
	DocType           DocType   `json:"doc_type,omitempty"`
	AlternativeNames  []string  `json:"alternative_names,omitempty"`
	WorkerQuestions   []string  `json:"worker_questions,omitempty"`
	Embedding         []float32 `json:"embedding,omitempty"`
}

// HasArticle reports whether the chunk belongs to a numbered article.
// Letters of understanding never do, whatever their article field says.
func (c Chunk) HasArticle() bool {
	return c.DocType != DocTypeLOU && c.Article > 0
}

// ArticleNumber returns the parent article or 0 when there is none.
func (c Chunk) ArticleNumber() int {
	if !c.HasArticle() {
		return 0
	}
	return c.Article
}

// DisplayText prefers the variant with embedded tables.
func (c Chunk) DisplayText() string {
	if c.ContentWithTables != "" {
		return c.ContentWithTables
	}
	return c.Content
}

// ArticleInfo summarizes one article of a corpus generation.
type ArticleInfo struct {
	Number     int    `json:"number"`
	Title      string `json:"title"`
	ChunkCount int    `json:"chunk_count"`
}

// ScoredChunk is a chunk identifier with an index-specific score.
type ScoredChunk struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// ArticleMatch is an article scored by a structural matcher.
type ArticleMatch struct {
	Article int     `json:"article"`
	Score   float64 `json:"score"`
}
