package ports

import (
	"context"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
)

// Embedder builds a query vector. Fails closed: the vector strategy is
// skipped for the sub-query on error.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Translator normalizes a non-English question to English. Best effort;
// callers fall back to the raw text on error.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang string) (string, error)
}

// SubQueryGenerator decomposes a broad question into facet questions.
// Malformed output is the caller's problem to fall back from.
type SubQueryGenerator interface {
	Decompose(ctx context.Context, question string, maxFacets int) ([]string, error)
}

// VectorIndex performs nearest-neighbor search by cosine similarity,
// optionally restricted to the given category tags.
type VectorIndex interface {
	NearestNeighbors(ctx context.Context, vector []float32, limit int, categories []domain.CategoryTag) ([]domain.ScoredChunk, error)
}

// TextIndex performs tokenized full-text search with relevance ranking.
// matchAll selects AND semantics over the default OR.
type TextIndex interface {
	Search(ctx context.Context, terms []string, matchAll bool, limit int) ([]domain.ScoredChunk, error)
}

// GraphStore expands a mentioned entity to its one-hop neighbors.
type GraphStore interface {
	RelatedEntities(ctx context.Context, entity string, limit int) ([]domain.RelatedEntity, error)
}

// EventPublisher emits retrieval audit events. Best effort; publishing
// must never block or fail a retrieval.
type EventPublisher interface {
	PublishRetrievalCompleted(ctx context.Context, event domain.RetrievalEvent) error
}
