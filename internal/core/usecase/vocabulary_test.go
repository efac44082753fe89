package usecase

import (
	"strings"
	"testing"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
)

func TestExpandSemanticTermsAppendsCanonical(t *testing.T) {
	expanded := expandSemanticTerms("best exercises for upper body")
	for _, term := range []string{"chest", "back", "shoulders", "biceps", "triceps"} {
		if !strings.Contains(expanded, term) {
			t.Fatalf("expected %q in expansion, got %q", term, expanded)
		}
	}
	if !strings.HasPrefix(expanded, "best exercises for upper body") {
		t.Fatalf("expansion must preserve the original text, got %q", expanded)
	}
}

func TestExpandSemanticTermsIdempotent(t *testing.T) {
	once := expandSemanticTerms("leg day tips")
	twice := expandSemanticTerms(once)
	if once != twice {
		t.Fatalf("expansion not idempotent: %q vs %q", once, twice)
	}
}

func TestExpandSemanticTermsNoMatchIsNoop(t *testing.T) {
	text := "how long should i rest between sets"
	if got := expandSemanticTerms(text); got != text {
		t.Fatalf("expected no expansion, got %q", got)
	}
}

func TestExtractEntitiesPrefersCompoundNames(t *testing.T) {
	entities := extractEntities("is the romanian deadlift enough for hamstrings")
	foundCompound := false
	for _, e := range entities {
		if e == "romanian deadlift" {
			foundCompound = true
		}
	}
	if !foundCompound {
		t.Fatalf("expected compound entity, got %v", entities)
	}
	for _, e := range entities {
		if e == "deadlift" {
			t.Fatalf("bare deadlift should not be reported alongside romanian deadlift: %v", entities)
		}
	}
}

func TestExtractEntitiesMatchesInflections(t *testing.T) {
	entities := extractEntities("i have been squatting twice a week")
	if len(entities) == 0 || entities[0] != "squat" {
		t.Fatalf("expected squat from inflected form, got %v", entities)
	}
}

func TestClassifyQuery(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		entities []string
		wantType domain.QueryType
		wantMyth bool
	}{
		{
			name:     "program generation",
			text:     "create a 4-day workout program for me",
			wantType: domain.QueryProgramGeneration,
		},
		{
			name:     "review beats generation",
			text:     "review my program and tell me what to change",
			wantType: domain.QueryProgramReview,
		},
		{
			name:     "muscle focused",
			text:     "how do i grow my chest",
			entities: []string{"chest"},
			wantType: domain.QueryMuscleFocused,
		},
		{
			name:     "myth check as type",
			text:     "is it true that high reps tone muscles",
			wantType: domain.QueryMythCheck,
			wantMyth: true,
		},
		{
			name:     "myth flag additive on generation",
			text:     "build me a routine, is it true i need to train daily",
			wantType: domain.QueryProgramGeneration,
			wantMyth: true,
		},
		{
			name:     "general fallback",
			text:     "how much protein per day",
			wantType: domain.QueryGeneral,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotType, gotMyth := classifyQuery(tc.text, tc.entities)
			if gotType != tc.wantType {
				t.Fatalf("classifyQuery() type = %s, want %s", gotType, tc.wantType)
			}
			if gotMyth != tc.wantMyth {
				t.Fatalf("classifyQuery() myth = %v, want %v", gotMyth, tc.wantMyth)
			}
		})
	}
}

func TestResolveCategoryFallback(t *testing.T) {
	resolved, ok := resolveCategory("legs")
	if !ok {
		t.Fatalf("expected fallback for legs")
	}
	if len(resolved) != 3 || resolved[0] != "muscle:quadriceps" {
		t.Fatalf("unexpected fallback: %v", resolved)
	}
}

func TestResolveCategoryUnknownDropped(t *testing.T) {
	if _, ok := resolveCategory("cardio-zone-5"); ok {
		t.Fatalf("expected unknown category to be rejected")
	}
}
