package ports

import (
	"context"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
)

// RetrievalOverrides are per-request knobs layered over the configured
// defaults. Nil pointers mean "use the default".
type RetrievalOverrides struct {
	MaxChunks              int
	SimilarityThreshold    *float64
	StrictCategoryPriority *bool
}

// KnowledgeRetriever is the inbound contract for hybrid retrieval.
type KnowledgeRetriever interface {
	RetrieveKnowledge(ctx context.Context, rawQuery, historyHint string, overrides RetrievalOverrides) (*domain.RetrievalResult, error)
}
