// Package bootstrap wires configuration, infrastructure clients and the
// retrieval engine into a runnable application.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trainwise/knowledge-engine/internal/config"
	"github.com/trainwise/knowledge-engine/internal/core/domain"
	"github.com/trainwise/knowledge-engine/internal/core/ports"
	"github.com/trainwise/knowledge-engine/internal/core/usecase"
	"github.com/trainwise/knowledge-engine/internal/infrastructure/cache"
	graphstore "github.com/trainwise/knowledge-engine/internal/infrastructure/graph/neo4j"
	"github.com/trainwise/knowledge-engine/internal/infrastructure/llm/ollama"
	"github.com/trainwise/knowledge-engine/internal/infrastructure/queue/nats"
	"github.com/trainwise/knowledge-engine/internal/infrastructure/resilience"
	"github.com/trainwise/knowledge-engine/internal/infrastructure/search/postgres"
	"github.com/trainwise/knowledge-engine/internal/infrastructure/vector/qdrant"
	"github.com/trainwise/knowledge-engine/internal/observability/logging"
	"github.com/trainwise/knowledge-engine/internal/observability/metrics"
)

const serviceName = "knowledge-engine"

type App struct {
	Config    config.Config
	Retriever ports.KnowledgeRetriever
	Metrics   *metrics.RetrievalMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store := postgres.NewStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	publisher, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init event publisher: %w", err)
	}

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)
	embedder := ollama.NewEmbedder(ollamaClient)
	translator := ollama.NewTranslator(ollamaClient)
	decomposer := ollama.NewSubQueryGenerator(ollamaClient)

	vectorIndex := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection)

	// The graph source is optional: retrieval degrades to vector plus
	// keyword when the graph store is unreachable at startup.
	var graph ports.GraphStore
	var closeGraph func()
	if cfg.UseGraphSearch {
		gs, err := graphstore.New(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase)
		if err != nil {
			logger.Warn("graph_store_unavailable", "error", err)
		} else {
			graph = gs
			closeGraph = func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = gs.Close(closeCtx)
			}
		}
	}

	retrievalMetrics := metrics.NewRetrievalMetrics(serviceName)

	analyzer := usecase.NewAnalyzer(
		translator,
		decomposer,
		cache.NewBounded(cfg.TranslationCacheCap),
		usecase.AnalyzerConfig{
			MaxSubQueries:    cfg.MaxSubQueries,
			TranslateTimeout: time.Duration(cfg.TranslateTimeoutSeconds) * time.Second,
			DecomposeTimeout: time.Duration(cfg.DecomposeTimeoutSeconds) * time.Second,
		},
		logging.WithComponent(logger, "analyzer"),
	)

	retriever := usecase.NewRetriever(
		embedder,
		vectorIndex,
		store,
		graph,
		usecase.RetrieverConfig{
			MaxConcurrentCalls: cfg.MaxConcurrentCalls,
			UseGraphSearch:     cfg.UseGraphSearch && graph != nil,
			StrictKeywordMatch: cfg.StrictKeywordMatch,
			GraphNeighborLimit: cfg.GraphNeighborLimit,
			EmbedTimeout:       time.Duration(cfg.EmbedTimeoutSeconds) * time.Second,
			SearchTimeout:      time.Duration(cfg.SearchTimeoutSeconds) * time.Second,
		},
		logging.WithComponent(logger, "retriever"),
	)
	retriever.OnStrategyFailure = func(strategy domain.Strategy) {
		retrievalMetrics.RecordStrategyFailure(serviceName, strategy)
	}

	fusion := usecase.NewFusion(store, usecase.FusionConfig{
		VectorWeight:           cfg.VectorWeight,
		KeywordWeight:          cfg.KeywordWeight,
		GraphWeight:            cfg.GraphWeight,
		MultiSourceBonus:       cfg.MultiSourceBonus,
		VectorGraphBonus:       cfg.VectorGraphBonus,
		EntityBoost:            cfg.EntityBoost,
		EntityBoostCap:         cfg.EntityBoostCap,
		ScoreFloor:             cfg.ScoreFloor,
		HighRelevanceThreshold: cfg.HighRelevanceThreshold,
	}, logging.WithComponent(logger, "fusion"))

	engine := usecase.NewEngine(analyzer, retriever, fusion, publisher, usecase.EngineConfig{
		MaxChunks:              cfg.MaxChunks,
		SimilarityThreshold:    cfg.SimilarityThreshold,
		StrictCategoryPriority: cfg.StrictCategoryPriority,
		OverallDeadline:        time.Duration(cfg.OverallDeadlineSeconds) * time.Second,
	}, logging.WithComponent(logger, "engine"))

	return &App{
		Config: cfg,
		Retriever: &instrumentedRetriever{
			next:    engine,
			metrics: retrievalMetrics,
		},
		Metrics: retrievalMetrics,

		closeFn: func() {
			publisher.Close()
			if closeGraph != nil {
				closeGraph()
			}
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// instrumentedRetriever records per-call retrieval metrics around the
// engine without the usecase layer knowing about prometheus.
type instrumentedRetriever struct {
	next    ports.KnowledgeRetriever
	metrics *metrics.RetrievalMetrics
}

func (r *instrumentedRetriever) RetrieveKnowledge(
	ctx context.Context,
	rawQuery, historyHint string,
	overrides ports.RetrievalOverrides,
) (*domain.RetrievalResult, error) {
	start := time.Now()
	result, err := r.next.RetrieveKnowledge(ctx, rawQuery, historyHint, overrides)

	var queryType domain.QueryType
	resultCount := 0
	subQueries := 0
	if result != nil {
		queryType = result.Query.Type
		resultCount = len(result.Results)
		subQueries = len(result.Query.SubQueries)
	}
	r.metrics.RecordRetrieval(serviceName, queryType, resultCount, subQueries, time.Since(start), err)
	return result, err
}
