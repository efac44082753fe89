package usecase

import (
	"sort"
	"strings"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
)

// Assemble groups ranked results by source document and produces the
// final context payload plus citation list.
//
// The cap on maxChunks is the hard limit; diversification upstream only
// approximates it. Within a document group chunks are re-sorted by their
// original index so concatenated text reads in document order, while
// groups themselves are ordered by their best fused score.
func Assemble(ranked []domain.RankedResult, maxChunks int) domain.RetrievalContext {
	if maxChunks > 0 && len(ranked) > maxChunks {
		ranked = ranked[:maxChunks]
	}
	if len(ranked) == 0 {
		return domain.RetrievalContext{Citations: []domain.Citation{}}
	}

	type group struct {
		documentID string
		title      string
		bestScore  float64
		chunks     []domain.RankedResult
	}

	groupsByID := make(map[string]*group, len(ranked))
	groups := make([]*group, 0, len(ranked))
	for _, result := range ranked {
		g, ok := groupsByID[result.Ref.DocumentID]
		if !ok {
			g = &group{
				documentID: result.Ref.DocumentID,
				title:      result.DocumentTitle,
				bestScore:  result.FusedScore,
			}
			groupsByID[result.Ref.DocumentID] = g
			groups = append(groups, g)
		}
		if result.FusedScore > g.bestScore {
			g.bestScore = result.FusedScore
		}
		g.chunks = append(g.chunks, result)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].bestScore != groups[j].bestScore {
			return groups[i].bestScore > groups[j].bestScore
		}
		return groups[i].documentID < groups[j].documentID
	})

	var contextBuilder strings.Builder
	citations := make([]domain.Citation, 0, len(groups))
	for _, g := range groups {
		sort.SliceStable(g.chunks, func(i, j int) bool {
			return g.chunks[i].Ref.ChunkIndex < g.chunks[j].Ref.ChunkIndex
		})

		for _, chunk := range g.chunks {
			if contextBuilder.Len() > 0 {
				contextBuilder.WriteString("\n\n")
			}
			contextBuilder.WriteString(chunk.Content)
		}
		citations = append(citations, domain.Citation{
			DocumentID: g.documentID,
			Title:      g.title,
		})
	}

	return domain.RetrievalContext{
		ContextText: contextBuilder.String(),
		Citations:   citations,
	}
}
