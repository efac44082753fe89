package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
	"github.com/trainwise/knowledge-engine/internal/core/ports"
)

// TranslationCache is a bounded cache for translation results keyed by
// the exact input string.
type TranslationCache interface {
	Get(key string) (string, bool)
	Put(key, value string)
}

type AnalyzerConfig struct {
	MaxSubQueries    int
	TranslateTimeout time.Duration
	DecomposeTimeout time.Duration
}

func (c AnalyzerConfig) normalize() AnalyzerConfig {
	out := c
	if out.MaxSubQueries <= 0 {
		out.MaxSubQueries = 5
	}
	if out.TranslateTimeout <= 0 {
		out.TranslateTimeout = 15 * time.Second
	}
	if out.DecomposeTimeout <= 0 {
		out.DecomposeTimeout = 30 * time.Second
	}
	return out
}

// Analyzer turns a raw user question into a fully analyzed Query:
// language, translation, semantic expansion, classification, entities,
// sub-queries and priority categories.
type Analyzer struct {
	translator   ports.Translator
	decomposer   ports.SubQueryGenerator
	translations TranslationCache
	cfg          AnalyzerConfig
	logger       *slog.Logger
}

func NewAnalyzer(
	translator ports.Translator,
	decomposer ports.SubQueryGenerator,
	translations TranslationCache,
	cfg AnalyzerConfig,
	logger *slog.Logger,
) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		translator:   translator,
		decomposer:   decomposer,
		translations: translations,
		cfg:          cfg.normalize(),
		logger:       logger,
	}
}

func (a *Analyzer) Analyze(ctx context.Context, rawQuery, historyHint string) (domain.Query, error) {
	raw := strings.TrimSpace(rawQuery)
	if raw == "" {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "analyze query", errors.New("empty query"))
	}

	language := detectLanguage(raw)
	normalized := a.normalizeText(ctx, raw, language)
	expanded := expandSemanticTerms(normalized)

	// The history hint only widens entity extraction; it never changes
	// the query text itself.
	entities := extractEntities(expanded + " " + historyHint)
	queryType, mythCheck := classifyQuery(expanded, entities)

	query := domain.Query{
		RawText:          raw,
		DetectedLanguage: language,
		NormalizedText:   normalized,
		ExpandedText:     expanded,
		Type:             queryType,
		MythCheck:        mythCheck,
		Entities:         entities,
	}
	query.SubQueries = a.decompose(ctx, query)
	query.PriorityCategories = a.priorityCategories(query)
	return query, nil
}

// normalizeText translates non-English questions, falling back to the
// raw text on any failure. Retrieval is never blocked on translation.
func (a *Analyzer) normalizeText(ctx context.Context, raw, language string) string {
	if language == languageEnglish || a.translator == nil {
		return raw
	}

	if a.translations != nil {
		if cached, ok := a.translations.Get(raw); ok {
			return cached
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.TranslateTimeout)
	defer cancel()

	translated, err := a.translator.Translate(callCtx, raw, language)
	if err != nil || strings.TrimSpace(translated) == "" {
		a.logger.Warn("translation_failed", "language", language, "error", err)
		return raw
	}
	translated = strings.TrimSpace(translated)
	if a.translations != nil {
		a.translations.Put(raw, translated)
	}
	return translated
}

// decompose builds the sub-query list: the normalized original first,
// then up to maxFacets generated facet questions, deduplicated and
// capped at MaxSubQueries.
func (a *Analyzer) decompose(ctx context.Context, query domain.Query) []string {
	subQueries := []string{query.NormalizedText}
	if a.decomposer == nil || !a.shouldDecompose(query.NormalizedText) {
		return subQueries
	}

	maxFacets := a.cfg.MaxSubQueries - 1
	if maxFacets > 4 {
		maxFacets = 4
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.DecomposeTimeout)
	defer cancel()

	facets, err := a.decomposer.Decompose(callCtx, query.NormalizedText, maxFacets)
	if err != nil {
		a.logger.Warn("subquery_decomposition_failed", "error", err)
		return subQueries
	}

	seen := map[string]struct{}{strings.ToLower(query.NormalizedText): {}}
	for _, facet := range facets {
		facet = strings.TrimSpace(facet)
		if facet == "" {
			continue
		}
		key := strings.ToLower(facet)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		subQueries = append(subQueries, facet)
		if len(subQueries) >= a.cfg.MaxSubQueries {
			break
		}
	}
	return subQueries
}

// shouldDecompose skips decomposition for narrow lookup questions and
// prefers it for broad training questions or very short queries.
func (a *Analyzer) shouldDecompose(text string) bool {
	if reSkipDecompose.MatchString(text) {
		return false
	}
	if reBroadQuery.MatchString(text) {
		return true
	}
	return len(tokenizeLower(text)) <= 5
}

// priorityCategories derives the ordered category list from the query
// type and mentioned entities. Names that drifted from the corpus
// vocabulary go through the fallback table; unknowns are dropped with a
// warning, never an error.
func (a *Analyzer) priorityCategories(query domain.Query) []domain.CategoryTag {
	derived := make([]domain.CategoryTag, 0, 6)

	switch query.Type {
	case domain.QueryProgramGeneration, domain.QueryProgramReview:
		derived = append(derived, "program-design", "training-splits", "volume-guidelines")
	case domain.QueryMuscleFocused:
		for _, entity := range query.Entities {
			if tag, ok := muscleEntityCategories[entity]; ok {
				derived = append(derived, tag)
			}
		}
		derived = append(derived, "technique")
	}
	if query.MythCheck || query.Type == domain.QueryMythCheck {
		derived = append(derived, "myths")
	}

	out := make([]domain.CategoryTag, 0, len(derived))
	seen := make(map[domain.CategoryTag]struct{}, len(derived))
	for _, tag := range derived {
		resolved, ok := resolveCategory(tag)
		if !ok {
			a.logger.Warn("unknown_category_dropped", "category", string(tag), "table_version", categoryTableVersion)
			continue
		}
		for _, r := range resolved {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}
