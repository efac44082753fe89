package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
	"github.com/trainwise/knowledge-engine/internal/core/ports"
)

// FusionConfig carries the fusion weights and boosts. The literal
// defaults are tuned starting points, not invariants; every value is
// overridable through configuration.
type FusionConfig struct {
	VectorWeight  float64
	KeywordWeight float64
	GraphWeight   float64

	MultiSourceBonus float64
	VectorGraphBonus float64

	EntityBoost     float64
	EntityBoostCap  float64
	GuideTitleBoost float64
	EarlyChunkBoost float64
	CategoryBoost   float64

	ScoreFloor             float64
	HighRelevanceThreshold float64

	MandatoryChunks int
}

func (c FusionConfig) normalize() FusionConfig {
	out := c
	if out.VectorWeight <= 0 {
		out.VectorWeight = 0.7
	}
	if out.KeywordWeight <= 0 {
		out.KeywordWeight = 0.3
	}
	if out.GraphWeight <= 0 {
		out.GraphWeight = 0.25
	}
	if out.MultiSourceBonus <= 0 {
		out.MultiSourceBonus = 0.1
	}
	if out.VectorGraphBonus <= 0 {
		out.VectorGraphBonus = 0.2
	}
	if out.EntityBoost <= 0 {
		out.EntityBoost = 0.05
	}
	if out.EntityBoostCap <= 0 {
		out.EntityBoostCap = 0.3
	}
	if out.GuideTitleBoost <= 0 {
		out.GuideTitleBoost = 0.05
	}
	if out.EarlyChunkBoost <= 0 {
		out.EarlyChunkBoost = 0.05
	}
	if out.CategoryBoost <= 0 {
		out.CategoryBoost = 0.1
	}
	if out.ScoreFloor <= 0 {
		out.ScoreFloor = 0.4
	}
	if out.HighRelevanceThreshold <= 0 {
		out.HighRelevanceThreshold = 0.75
	}
	if out.MandatoryChunks <= 0 {
		out.MandatoryChunks = 3
	}
	return out
}

// Fusion deduplicates, scores, boosts, filters, enforces mandatory
// content and diversifies merged candidates into the final ranking.
type Fusion struct {
	texts  ports.TextIndex
	cfg    FusionConfig
	logger *slog.Logger
}

func NewFusion(texts ports.TextIndex, cfg FusionConfig, logger *slog.Logger) *Fusion {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fusion{texts: texts, cfg: cfg.normalize(), logger: logger}
}

func (f *Fusion) Fuse(
	ctx context.Context,
	candidates []domain.Candidate,
	query domain.Query,
	maxChunks int,
	similarityThreshold float64,
) []domain.RankedResult {
	if maxChunks <= 0 {
		maxChunks = 8
	}

	ranked := make([]domain.RankedResult, 0, len(candidates))
	for _, candidate := range candidates {
		result := f.score(candidate, query)
		// Pass either check to stay in: keyword-only scores live on a
		// different scale than vector scores.
		if result.FusedScore < similarityThreshold && result.FusedScore < f.cfg.ScoreFloor {
			continue
		}
		ranked = append(ranked, result)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FusedScore != ranked[j].FusedScore {
			return ranked[i].FusedScore > ranked[j].FusedScore
		}
		if ranked[i].Ref.DocumentID != ranked[j].Ref.DocumentID {
			return ranked[i].Ref.DocumentID < ranked[j].Ref.DocumentID
		}
		return ranked[i].Ref.ChunkIndex < ranked[j].Ref.ChunkIndex
	})

	ranked = diversify(ranked, maxChunks)

	if query.Type == domain.QueryProgramGeneration {
		ranked = f.enforceMandatoryContent(ctx, ranked)
	}
	return ranked
}

// score fuses the per-strategy signals with fixed weights (absent
// signals contribute zero, weights are not renormalized) and applies the
// corroboration and domain boosts.
func (f *Fusion) score(candidate domain.Candidate, query domain.Query) domain.RankedResult {
	vector, hasVector := candidate.StrategyScores[domain.StrategyVector]
	keyword, hasKeyword := candidate.StrategyScores[domain.StrategyKeyword]
	graph, hasGraph := candidate.StrategyScores[domain.StrategyGraph]

	fused := f.cfg.VectorWeight*vector + f.cfg.KeywordWeight*keyword + f.cfg.GraphWeight*graph

	sources := make([]domain.Strategy, 0, 3)
	if hasVector {
		sources = append(sources, domain.StrategyVector)
	}
	if hasKeyword {
		sources = append(sources, domain.StrategyKeyword)
	}
	if hasGraph {
		sources = append(sources, domain.StrategyGraph)
	}

	if len(sources) >= 2 {
		fused += f.cfg.MultiSourceBonus
	}
	// Graph corroboration of a semantic match is strong evidence.
	if hasVector && hasGraph {
		fused += f.cfg.VectorGraphBonus
	}

	loweredTitle := strings.ToLower(candidate.DocumentTitle)
	loweredContent := strings.ToLower(candidate.Content)

	var entityBoost float64
	for _, entity := range query.Entities {
		if strings.Contains(loweredTitle, entity) || strings.Contains(loweredContent, entity) {
			entityBoost += f.cfg.EntityBoost
		}
	}
	if entityBoost > f.cfg.EntityBoostCap {
		entityBoost = f.cfg.EntityBoostCap
	}
	fused += entityBoost

	if strings.Contains(loweredTitle, "guide") {
		fused += f.cfg.GuideTitleBoost
	}
	// Front-matter chunks are often foundational.
	if candidate.Ref.ChunkIndex <= 2 {
		fused += f.cfg.EarlyChunkBoost
	}
	if hasPriorityCategory(candidate.Categories, query.PriorityCategories) {
		fused += f.cfg.CategoryBoost
	}

	return domain.RankedResult{
		Ref:           candidate.Ref,
		Content:       candidate.Content,
		DocumentTitle: candidate.DocumentTitle,
		Categories:    candidate.Categories,
		FusedScore:    fused,
		HighRelevance: fused >= f.cfg.HighRelevanceThreshold,
		Sources:       sources,
	}
}

func hasPriorityCategory(categories, priority []domain.CategoryTag) bool {
	for _, c := range categories {
		for _, p := range priority {
			if c == p {
				return true
			}
		}
	}
	return false
}

// enforceMandatoryContent guarantees program-generation answers are
// grounded in programming fundamentals: if no surviving result covers a
// required topic marker, one targeted lexical lookup injects up to
// MandatoryChunks such chunks at the head of the list.
func (f *Fusion) enforceMandatoryContent(ctx context.Context, ranked []domain.RankedResult) []domain.RankedResult {
	for _, result := range ranked {
		lowered := strings.ToLower(result.Content)
		for _, marker := range mandatoryTopicMarkers {
			if strings.Contains(lowered, marker) {
				return ranked
			}
		}
	}
	if f.texts == nil {
		return ranked
	}

	terms := searchTerms(strings.Join(mandatoryTopicMarkers, " "))
	chunks, err := f.texts.Search(ctx, terms, false, f.cfg.MandatoryChunks*2)
	if err != nil {
		f.logger.Warn("mandatory_content_lookup_failed", "error", err)
		return ranked
	}

	existing := make(map[domain.ChunkRef]struct{}, len(ranked))
	for _, result := range ranked {
		existing[result.Ref] = struct{}{}
	}

	injected := make([]domain.RankedResult, 0, f.cfg.MandatoryChunks)
	for _, chunk := range chunks {
		if _, ok := existing[chunk.Ref]; ok {
			continue
		}
		injected = append(injected, domain.RankedResult{
			Ref:           chunk.Ref,
			Content:       chunk.Content,
			DocumentTitle: chunk.DocumentTitle,
			Categories:    chunk.Categories,
			FusedScore:    f.cfg.HighRelevanceThreshold,
			HighRelevance: true,
			Sources:       []domain.Strategy{domain.StrategyKeyword},
		})
		if len(injected) >= f.cfg.MandatoryChunks {
			break
		}
	}
	return append(injected, ranked...)
}

// diversify spreads results across source documents: groups by document,
// orders groups by their best score, then round-robins one chunk per
// document per pass until maxChunks is reached or groups are exhausted.
func diversify(ranked []domain.RankedResult, maxChunks int) []domain.RankedResult {
	if len(ranked) <= 1 {
		return ranked
	}

	groups := make(map[string][]domain.RankedResult)
	order := make([]string, 0, 8)
	for _, result := range ranked {
		if _, ok := groups[result.Ref.DocumentID]; !ok {
			// ranked is sorted by score, so first appearance order is
			// best-score order with deterministic tie-breaks
			order = append(order, result.Ref.DocumentID)
		}
		groups[result.Ref.DocumentID] = append(groups[result.Ref.DocumentID], result)
	}

	out := make([]domain.RankedResult, 0, maxChunks)
	for pass := 0; len(out) < maxChunks; pass++ {
		advanced := false
		for _, docID := range order {
			group := groups[docID]
			if pass >= len(group) {
				continue
			}
			advanced = true
			out = append(out, group[pass])
			if len(out) >= maxChunks {
				break
			}
		}
		if !advanced {
			break
		}
	}
	return out
}
