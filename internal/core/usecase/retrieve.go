package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
	"github.com/trainwise/knowledge-engine/internal/core/ports"
)

type EngineConfig struct {
	MaxChunks              int
	SimilarityThreshold    float64
	StrictCategoryPriority bool
	OverallDeadline        time.Duration
}

func (c EngineConfig) normalize() EngineConfig {
	out := c
	if out.MaxChunks <= 0 {
		out.MaxChunks = 8
	}
	if out.SimilarityThreshold <= 0 {
		out.SimilarityThreshold = 0.5
	}
	if out.OverallDeadline <= 0 {
		out.OverallDeadline = 45 * time.Second
	}
	return out
}

// Engine orchestrates one retrieval call: analyze, fan out, fuse,
// assemble. The whole call runs under an overall deadline; on expiry it
// returns whatever completed strategies produced rather than failing.
type Engine struct {
	analyzer  *Analyzer
	retriever *Retriever
	fusion    *Fusion
	publisher ports.EventPublisher
	cfg       EngineConfig
	logger    *slog.Logger
}

func NewEngine(
	analyzer *Analyzer,
	retriever *Retriever,
	fusion *Fusion,
	publisher ports.EventPublisher,
	cfg EngineConfig,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		analyzer:  analyzer,
		retriever: retriever,
		fusion:    fusion,
		publisher: publisher,
		cfg:       cfg.normalize(),
		logger:    logger,
	}
}

func (e *Engine) RetrieveKnowledge(
	ctx context.Context,
	rawQuery, historyHint string,
	overrides ports.RetrievalOverrides,
) (*domain.RetrievalResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.cfg.OverallDeadline)
	defer cancel()

	query, err := e.analyzer.Analyze(ctx, rawQuery, historyHint)
	if err != nil {
		return nil, err
	}

	maxChunks := e.cfg.MaxChunks
	if overrides.MaxChunks > 0 {
		maxChunks = overrides.MaxChunks
	}
	threshold := e.cfg.SimilarityThreshold
	if overrides.SimilarityThreshold != nil {
		threshold = *overrides.SimilarityThreshold
	}
	strictCategories := e.cfg.StrictCategoryPriority
	if overrides.StrictCategoryPriority != nil {
		strictCategories = *overrides.StrictCategoryPriority
	}

	candidates, err := e.retriever.Retrieve(ctx, query, maxChunks, strictCategories)
	if err != nil {
		if !domain.IsKind(err, domain.ErrAllStrategiesFailed) {
			return nil, err
		}
		// Total strategy failure degrades to an empty result, signaling
		// the caller to fall back to a general-knowledge response.
		e.logger.Warn("all_strategies_failed", "query_type", string(query.Type))
		candidates = nil
	}

	ranked := e.fusion.Fuse(ctx, candidates, query, maxChunks, threshold)
	assembled := Assemble(ranked, maxChunks)
	if len(ranked) > maxChunks {
		ranked = ranked[:maxChunks]
	}

	result := &domain.RetrievalResult{
		Context: assembled,
		Results: ranked,
		Query:   query,
	}
	e.publishEvent(query, len(ranked), time.Since(start))
	return result, nil
}

// publishEvent emits the audit record best effort, detached from the
// request lifetime so a slow broker never delays the response.
func (e *Engine) publishEvent(query domain.Query, resultCount int, elapsed time.Duration) {
	if e.publisher == nil {
		return
	}
	event := domain.RetrievalEvent{
		RequestID:   uuid.NewString(),
		QueryType:   query.Type,
		Language:    query.DetectedLanguage,
		SubQueries:  len(query.SubQueries),
		ResultCount: resultCount,
		DurationMS:  float64(elapsed.Microseconds()) / 1000.0,
	}
	go func() {
		publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.publisher.PublishRetrievalCompleted(publishCtx, event); err != nil {
			e.logger.Warn("retrieval_event_publish_failed", "error", err)
		}
	}()
}
