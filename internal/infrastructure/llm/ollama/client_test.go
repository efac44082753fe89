package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEmbedQuery(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed-model", nil))
	vector, err := embedder.EmbedQuery(context.Background(), "how to train chest")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 3 {
		t.Fatalf("expected 3-dim vector, got %v", vector)
	}
	if captured["model"] != "embed-model" {
		t.Fatalf("expected embed model in request, got %v", captured["model"])
	}
}

func TestEmbedQueryEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed-model", nil))
	if _, err := embedder.EmbedQuery(context.Background(), "q"); err == nil {
		t.Fatalf("expected error for empty embedding result")
	}
}

func TestTranslateTrimsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":"  how to build my chest \n"}`))
	}))
	defer server.Close()

	translator := NewTranslator(New(server.URL, "gen", "embed", nil))
	got, err := translator.Translate(context.Background(), "كيف أبني صدري", "arabic")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if got != "how to build my chest" {
		t.Fatalf("Translate() = %q", got)
	}
}

func TestDecomposeWrappedObject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		body := `{"response":"{\"questions\":[\"which exercises\",\"how many sets\",\"how often\"]}"}`
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	decomposer := NewSubQueryGenerator(New(server.URL, "gen", "embed", nil))
	facets, err := decomposer.Decompose(context.Background(), "how do i train my back", 4)
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}
	if len(facets) != 3 || facets[0] != "which exercises" {
		t.Fatalf("facets = %v", facets)
	}
}

func TestDecomposeTruncatesToMaxFacets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		body := `{"response":"{\"questions\":[\"a\",\"b\",\"c\",\"d\",\"e\"]}"}`
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	decomposer := NewSubQueryGenerator(New(server.URL, "gen", "embed", nil))
	facets, err := decomposer.Decompose(context.Background(), "broad question", 2)
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}
	if len(facets) != 2 {
		t.Fatalf("expected truncation to 2, got %v", facets)
	}
}

func TestDecomposeMalformedOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"response":"sure, here are some questions"}`))
	}))
	defer server.Close()

	decomposer := NewSubQueryGenerator(New(server.URL, "gen", "embed", nil))
	if _, err := decomposer.Decompose(context.Background(), "broad question", 4); err == nil {
		t.Fatalf("expected error for non-JSON model output")
	}
}

func TestParseFacetQuestions(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		want  int
		first string
	}{
		{"bare array", `["a","b"]`, 2, "a"},
		{"wrapped object", `{"questions":["x"]}`, 1, "x"},
		{"array with prose around", "Here you go: [\"a\",\"b\"] hope it helps", 2, "a"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseFacetQuestions(tc.raw)
			if err != nil {
				t.Fatalf("parseFacetQuestions() error = %v", err)
			}
			if len(got) != tc.want || got[0] != tc.first {
				t.Fatalf("parseFacetQuestions() = %v", got)
			}
		})
	}
}

func TestPostJSONStatusErrorIncludesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", nil))
	_, err := embedder.EmbedQuery(context.Background(), "q")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("expected body in error, got %v", err)
	}
}
