package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
)

func TestNearestNeighborsParsesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/collections/chunks/points/search" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":[
			{"score":0.91,"payload":{"doc_id":"doc-1","title":"Back Training Guide","chunk_index":2,"content":"row heavy","categories":["muscle:back","technique"]}},
			{"score":0.74,"payload":{"doc_id":"doc-2","title":"Volume Notes","chunk_index":0,"content":"sets per week"}}
		]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	chunks, err := client.NearestNeighbors(context.Background(), []float32{0.1, 0.2}, 5, nil)
	if err != nil {
		t.Fatalf("NearestNeighbors() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	first := chunks[0]
	if first.Ref.DocumentID != "doc-1" || first.Ref.ChunkIndex != 2 {
		t.Fatalf("unexpected ref %+v", first.Ref)
	}
	if first.Score != 0.91 {
		t.Fatalf("score = %v", first.Score)
	}
	if len(first.Categories) != 2 || first.Categories[0] != "muscle:back" {
		t.Fatalf("categories = %v", first.Categories)
	}
	if chunks[1].Categories != nil {
		t.Fatalf("missing categories must decode to nil, got %v", chunks[1].Categories)
	}
}

func TestNearestNeighborsSendsCategoryFilter(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	_, err := client.NearestNeighbors(context.Background(), []float32{0.1}, 5, []domain.CategoryTag{"muscle:back", "technique"})
	if err != nil {
		t.Fatalf("NearestNeighbors() error = %v", err)
	}

	filter, ok := captured["filter"].(map[string]any)
	if !ok {
		t.Fatalf("expected filter in request body: %v", captured)
	}
	must, ok := filter["must"].([]any)
	if !ok || len(must) != 1 {
		t.Fatalf("expected single must clause: %v", filter)
	}
	clause := must[0].(map[string]any)
	if clause["key"] != "categories" {
		t.Fatalf("filter key = %v", clause["key"])
	}
	match := clause["match"].(map[string]any)
	values, ok := match["any"].([]any)
	if !ok || len(values) != 2 {
		t.Fatalf("expected match any with 2 values: %v", match)
	}
}

func TestNearestNeighborsNoFilterWithoutCategories(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	if _, err := client.NearestNeighbors(context.Background(), []float32{0.1}, 5, nil); err != nil {
		t.Fatalf("NearestNeighbors() error = %v", err)
	}
	if _, ok := captured["filter"]; ok {
		t.Fatalf("unexpected filter in request body: %v", captured)
	}
}

func TestNearestNeighborsServerErrorIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "chunks")
	_, err := client.NearestNeighbors(context.Background(), []float32{0.1}, 5, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary kind, got %v", err)
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Fatalf("expected body in error, got %v", err)
	}
}
