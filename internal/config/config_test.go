package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.APIPort != "8080" {
		t.Fatalf("APIPort = %s", cfg.APIPort)
	}
	if cfg.MaxChunks != 8 {
		t.Fatalf("MaxChunks = %d", cfg.MaxChunks)
	}
	if cfg.SimilarityThreshold != 0.5 {
		t.Fatalf("SimilarityThreshold = %v", cfg.SimilarityThreshold)
	}
	if !cfg.UseGraphSearch {
		t.Fatalf("UseGraphSearch should default to true")
	}
	if cfg.NATSSubject != "retrieval.completed" {
		t.Fatalf("NATSSubject = %s", cfg.NATSSubject)
	}
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("RETRIEVAL_MAX_CHUNKS", "12")
	t.Setenv("FUSION_VECTOR_WEIGHT", "0.9")
	t.Setenv("RETRIEVAL_USE_GRAPH_SEARCH", "false")

	cfg := Load()
	if cfg.MaxChunks != 12 {
		t.Fatalf("MaxChunks = %d", cfg.MaxChunks)
	}
	if cfg.VectorWeight != 0.9 {
		t.Fatalf("VectorWeight = %v", cfg.VectorWeight)
	}
	if cfg.UseGraphSearch {
		t.Fatalf("UseGraphSearch should be disabled")
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("RETRIEVAL_MAX_CHUNKS", "a lot")
	t.Setenv("FUSION_VECTOR_WEIGHT", "heavy")

	cfg := Load()
	if cfg.MaxChunks != 8 {
		t.Fatalf("MaxChunks = %d, want default", cfg.MaxChunks)
	}
	if cfg.VectorWeight != 0.7 {
		t.Fatalf("VectorWeight = %v, want default", cfg.VectorWeight)
	}
}
