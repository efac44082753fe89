package domain

// Strategy is the closed set of candidate sources feeding fusion.
type Strategy string

const (
	StrategyVector  Strategy = "vector"
	StrategyKeyword Strategy = "keyword"
	StrategyGraph   Strategy = "graph"
)

type QueryType string

const (
	QueryProgramGeneration QueryType = "program_generation"
	QueryProgramReview     QueryType = "program_review"
	QueryMythCheck         QueryType = "myth_check"
	QueryMuscleFocused     QueryType = "muscle_focused"
	QueryGeneral           QueryType = "general"
)

// Query is the analyzed, per-request form of a user question. It lives
// only for the duration of one retrieval call.
type Query struct {
	RawText            string        `json:"raw_text"`
	DetectedLanguage   string        `json:"detected_language"`
	NormalizedText     string        `json:"normalized_text"`
	ExpandedText       string        `json:"expanded_text"`
	SubQueries         []string      `json:"sub_queries"`
	Type               QueryType     `json:"query_type"`
	MythCheck          bool          `json:"myth_check"`
	Entities           []string      `json:"entities,omitempty"`
	PriorityCategories []CategoryTag `json:"priority_categories,omitempty"`
}

// ScoredChunk is what a single candidate source returns for one lookup.
type ScoredChunk struct {
	Ref           ChunkRef
	Content       string
	DocumentTitle string
	Categories    []CategoryTag
	Score         float64
}

// Candidate is a chunk merged across sub-queries and strategies. A key
// seen by several strategies keeps one score per strategy.
type Candidate struct {
	Ref            ChunkRef
	Content        string
	DocumentTitle  string
	Categories     []CategoryTag
	StrategyScores map[Strategy]float64
}

// RankedResult is a fused, boosted, filtered candidate. FusedScore is a
// ranking key, not a probability; boosts may push it above 1.
type RankedResult struct {
	Ref           ChunkRef      `json:"ref"`
	Content       string        `json:"content"`
	DocumentTitle string        `json:"document_title"`
	Categories    []CategoryTag `json:"categories,omitempty"`
	FusedScore    float64       `json:"fused_score"`
	HighRelevance bool          `json:"high_relevance"`
	Sources       []Strategy    `json:"sources"`
}

type Citation struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
}

// RetrievalContext is the payload handed to the answer generator. The
// context text carries no citation markup.
type RetrievalContext struct {
	ContextText string     `json:"context_text"`
	Citations   []Citation `json:"citations"`
}

type RetrievalResult struct {
	Context RetrievalContext `json:"context"`
	Results []RankedResult   `json:"results"`
	Query   Query            `json:"query"`
}

// RelatedEntity is one neighbor returned by the graph store.
type RelatedEntity struct {
	Name     string
	Relation string
}

// RetrievalEvent is the audit record published after a retrieval call.
type RetrievalEvent struct {
	RequestID   string    `json:"request_id"`
	QueryType   QueryType `json:"query_type"`
	Language    string    `json:"language"`
	SubQueries  int       `json:"sub_queries"`
	ResultCount int       `json:"result_count"`
	DurationMS  float64   `json:"duration_ms"`
}
