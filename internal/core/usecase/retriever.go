package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
	"github.com/trainwise/knowledge-engine/internal/core/ports"
)

type RetrieverConfig struct {
	MaxConcurrentCalls int
	UseGraphSearch     bool
	StrictKeywordMatch bool
	GraphNeighborLimit int
	EmbedTimeout       time.Duration
	SearchTimeout      time.Duration
}

func (c RetrieverConfig) normalize() RetrieverConfig {
	out := c
	if out.MaxConcurrentCalls <= 0 {
		out.MaxConcurrentCalls = 8
	}
	if out.GraphNeighborLimit <= 0 {
		out.GraphNeighborLimit = 10
	}
	if out.EmbedTimeout <= 0 {
		out.EmbedTimeout = 15 * time.Second
	}
	if out.SearchTimeout <= 0 {
		out.SearchTimeout = 10 * time.Second
	}
	return out
}

// Retriever fans the analyzed query out to the vector, keyword and graph
// candidate sources concurrently, per sub-query, and merges the raw
// candidate lists keyed by (documentID, chunkIndex).
//
// Strategy calls are independent: a failed or timed-out strategy
// contributes an empty list and a warning, never an error. Only a total
// failure of every call surfaces, as ErrAllStrategiesFailed.
type Retriever struct {
	embedder ports.Embedder
	vectors  ports.VectorIndex
	texts    ports.TextIndex
	graph    ports.GraphStore
	cfg      RetrieverConfig
	logger   *slog.Logger

	// OnStrategyFailure, when set, is invoked once per failed strategy
	// call (wired to metrics by bootstrap).
	OnStrategyFailure func(strategy domain.Strategy)
}

func NewRetriever(
	embedder ports.Embedder,
	vectors ports.VectorIndex,
	texts ports.TextIndex,
	graph ports.GraphStore,
	cfg RetrieverConfig,
	logger *slog.Logger,
) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		vectors:  vectors,
		texts:    texts,
		graph:    graph,
		cfg:      cfg.normalize(),
		logger:   logger,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, query domain.Query, maxChunks int, strictCategories bool) ([]domain.Candidate, error) {
	if maxChunks <= 0 {
		maxChunks = 8
	}
	subQueries := query.SubQueries
	if len(subQueries) == 0 {
		subQueries = []string{query.NormalizedText}
	}

	perStrategyLimit := 2 * maxChunks / len(subQueries)
	if perStrategyLimit < 3 {
		perStrategyLimit = 3
	}

	var (
		mu        sync.Mutex
		merged    = make(map[domain.ChunkRef]*domain.Candidate)
		attempts  int
		successes int
	)
	collect := func(strategy domain.Strategy, chunks []domain.ScoredChunk, err error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if err != nil {
			r.logger.Warn("strategy_failed", "strategy", string(strategy), "error", err)
			if r.OnStrategyFailure != nil {
				r.OnStrategyFailure(strategy)
			}
			return
		}
		successes++
		mergeScoredChunks(merged, strategy, chunks)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxConcurrentCalls)

	for _, subQuery := range subQueries {
		searchText := subQuery
		if subQuery == query.NormalizedText && query.ExpandedText != "" {
			searchText = query.ExpandedText
		}

		g.Go(func() error {
			chunks, err := r.vectorSearch(gctx, searchText, query.PriorityCategories, perStrategyLimit, strictCategories)
			collect(domain.StrategyVector, chunks, err)
			return nil
		})
		g.Go(func() error {
			chunks, err := r.keywordSearch(gctx, searchText, perStrategyLimit)
			collect(domain.StrategyKeyword, chunks, err)
			return nil
		})
	}

	// Graph expansion depends on query entities, not sub-query wording,
	// so it runs once per retrieval.
	if r.cfg.UseGraphSearch && r.graph != nil && len(query.Entities) > 0 {
		g.Go(func() error {
			chunks, err := r.graphSearch(gctx, query.Entities, perStrategyLimit)
			collect(domain.StrategyGraph, chunks, err)
			return nil
		})
	}

	_ = g.Wait()

	if attempts > 0 && successes == 0 {
		return nil, domain.WrapError(domain.ErrAllStrategiesFailed, "retrieve candidates", errors.New("every strategy call failed"))
	}

	out := make([]domain.Candidate, 0, len(merged))
	for _, candidate := range merged {
		out = append(out, *candidate)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ref.DocumentID != out[j].Ref.DocumentID {
			return out[i].Ref.DocumentID < out[j].Ref.DocumentID
		}
		return out[i].Ref.ChunkIndex < out[j].Ref.ChunkIndex
	})
	return out, nil
}

// vectorSearch embeds the sub-query and fetches nearest neighbors. When
// strict category priority is on and the restricted pass fills less than
// half the target, a second unrestricted pass widens recall; restricted
// hits win on duplicate keys.
func (r *Retriever) vectorSearch(ctx context.Context, text string, categories []domain.CategoryTag, limit int, strictCategories bool) ([]domain.ScoredChunk, error) {
	embedCtx, cancelEmbed := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	defer cancelEmbed()
	vector, err := r.embedder.EmbedQuery(embedCtx, text)
	if err != nil {
		return nil, err
	}

	searchCtx, cancelSearch := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancelSearch()

	if !strictCategories || len(categories) == 0 {
		return r.vectors.NearestNeighbors(searchCtx, vector, limit, nil)
	}

	restricted, err := r.vectors.NearestNeighbors(searchCtx, vector, limit, categories)
	if err != nil {
		return nil, err
	}
	if len(restricted) >= limit/2 {
		return restricted, nil
	}

	unrestricted, err := r.vectors.NearestNeighbors(searchCtx, vector, limit, nil)
	if err != nil {
		// the restricted pass already succeeded; keep what we have
		return restricted, nil
	}

	seen := make(map[domain.ChunkRef]struct{}, len(restricted))
	for _, chunk := range restricted {
		seen[chunk.Ref] = struct{}{}
	}
	for _, chunk := range unrestricted {
		if _, ok := seen[chunk.Ref]; ok {
			continue
		}
		restricted = append(restricted, chunk)
	}
	return restricted, nil
}

func (r *Retriever) keywordSearch(ctx context.Context, text string, limit int) ([]domain.ScoredChunk, error) {
	terms := searchTerms(text)
	if len(terms) == 0 {
		return nil, nil
	}

	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	chunks, err := r.texts.Search(searchCtx, terms, r.cfg.StrictKeywordMatch, limit)
	if err != nil {
		return nil, err
	}
	return normalizeScores(chunks), nil
}

// graphSearch expands mentioned entities one hop and issues a secondary
// keyword query over the expanded entity names.
func (r *Retriever) graphSearch(ctx context.Context, entities []string, limit int) ([]domain.ScoredChunk, error) {
	expandCtx, cancelExpand := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancelExpand()

	names := make([]string, 0, len(entities)*2)
	seen := make(map[string]struct{}, len(entities)*2)
	var lastErr error
	for _, entity := range entities {
		related, err := r.graph.RelatedEntities(expandCtx, entity, r.cfg.GraphNeighborLimit)
		if err != nil {
			lastErr = err
			continue
		}
		for _, rel := range related {
			key := strings.ToLower(rel.Name)
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, rel.Name)
		}
	}
	if len(names) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, nil
	}

	terms := searchTerms(strings.Join(names, " "))
	if len(terms) == 0 {
		return nil, nil
	}

	searchCtx, cancelSearch := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancelSearch()

	chunks, err := r.texts.Search(searchCtx, terms, false, limit)
	if err != nil {
		return nil, err
	}
	return normalizeScores(chunks), nil
}

// mergeScoredChunks folds one strategy's result list into the candidate
// map. Duplicate keys keep every strategy score; within one strategy the
// best score wins.
func mergeScoredChunks(merged map[domain.ChunkRef]*domain.Candidate, strategy domain.Strategy, chunks []domain.ScoredChunk) {
	for _, chunk := range chunks {
		candidate, ok := merged[chunk.Ref]
		if !ok {
			candidate = &domain.Candidate{
				Ref:            chunk.Ref,
				Content:        chunk.Content,
				DocumentTitle:  chunk.DocumentTitle,
				Categories:     chunk.Categories,
				StrategyScores: make(map[domain.Strategy]float64, 3),
			}
			merged[chunk.Ref] = candidate
		}
		if candidate.Content == "" {
			candidate.Content = chunk.Content
		}
		if candidate.DocumentTitle == "" {
			candidate.DocumentTitle = chunk.DocumentTitle
		}
		if len(candidate.Categories) == 0 {
			candidate.Categories = chunk.Categories
		}
		if chunk.Score > candidate.StrategyScores[strategy] {
			candidate.StrategyScores[strategy] = chunk.Score
		}
	}
}

// normalizeScores maps rank scores onto [0,1] by dividing by the list
// maximum, so lexical and graph scores are comparable with cosine
// similarities during fusion.
func normalizeScores(chunks []domain.ScoredChunk) []domain.ScoredChunk {
	var max float64
	for _, chunk := range chunks {
		if chunk.Score > max {
			max = chunk.Score
		}
	}
	if max <= 0 {
		return chunks
	}
	out := make([]domain.ScoredChunk, len(chunks))
	for i, chunk := range chunks {
		chunk.Score = chunk.Score / max
		out[i] = chunk
	}
	return out
}
