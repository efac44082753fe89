// Package httpadapter exposes the retrieval engine over a small JSON API.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/trainwise/knowledge-engine/internal/core/ports"
)

type Router struct {
	retriever      ports.KnowledgeRetriever
	metricsHandler http.Handler
	middleware     func(http.Handler) http.Handler
}

// NewRouter wires the retrieval endpoint plus health and metrics
// surfaces. wrap is an optional outer middleware, typically the
// metrics recorder.
func NewRouter(retriever ports.KnowledgeRetriever, metricsHandler http.Handler, wrap func(http.Handler) http.Handler) *Router {
	return &Router{
		retriever:      retriever,
		metricsHandler: metricsHandler,
		middleware:     wrap,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	if rt.metricsHandler != nil {
		mux.Handle("/metrics", rt.metricsHandler)
	}

	var handler http.Handler = mux
	if rt.middleware != nil {
		handler = rt.middleware(handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type retrieveRequest struct {
	Query                  string   `json:"query"`
	HistoryHint            string   `json:"history_hint"`
	MaxChunks              int      `json:"max_chunks"`
	SimilarityThreshold    *float64 `json:"similarity_threshold"`
	StrictCategoryPriority *bool    `json:"strict_category_priority"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	result, err := rt.retriever.RetrieveKnowledge(r.Context(), req.Query, req.HistoryHint, ports.RetrievalOverrides{
		MaxChunks:              req.MaxChunks,
		SimilarityThreshold:    req.SimilarityThreshold,
		StrictCategoryPriority: req.StrictCategoryPriority,
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
