package usecase

import (
	"regexp"
	"strings"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
)

// semanticTermTable bridges colloquial phrasing to the corpus vocabulary.
// Applied as text expansion: matched canonical terms are appended to the
// query. Pure and idempotent: terms already present are never re-added.
// Ordered so expansion output is deterministic.
var semanticTermTable = []struct {
	phrase    string
	canonical []string
}{
	{"upper body", []string{"chest", "back", "shoulders", "biceps", "triceps"}},
	{"lower body", []string{"quadriceps", "hamstrings", "glutes", "calves"}},
	{"push day", []string{"chest", "shoulders", "triceps", "bench press", "overhead press"}},
	{"pull day", []string{"back", "biceps", "row", "pulldown"}},
	{"leg day", []string{"quadriceps", "hamstrings", "glutes", "squat"}},
	{"legs", []string{"quadriceps", "hamstrings", "glutes", "calves"}},
	{"arms", []string{"biceps", "triceps", "forearms"}},
	{"abs", []string{"abdominals", "core"}},
	{"six pack", []string{"abdominals", "body fat"}},
	{"toning", []string{"hypertrophy", "body fat"}},
	{"bulking", []string{"caloric surplus", "muscle gain"}},
	{"cutting", []string{"caloric deficit", "fat loss"}},
	{"cardio", []string{"conditioning", "endurance"}},
	{"getting stronger", []string{"strength", "progressive overload"}},
}

// expandSemanticTerms appends canonical domain terms for every matched
// colloquial phrase. Applying the expansion twice is a no-op beyond the
// first pass.
func expandSemanticTerms(text string) string {
	lowered := strings.ToLower(text)
	tokens := tokenSet(text)
	expanded := text

	for _, entry := range semanticTermTable {
		if !phraseMatches(lowered, tokens, entry.phrase) {
			continue
		}
		for _, term := range entry.canonical {
			if strings.Contains(strings.ToLower(expanded), term) {
				continue
			}
			expanded += " " + term
		}
	}
	return expanded
}

// phraseMatches uses whole-token matching for single words and substring
// matching for multi-word phrases.
func phraseMatches(lowered string, tokens map[string]struct{}, phrase string) bool {
	if strings.Contains(phrase, " ") {
		return strings.Contains(lowered, phrase)
	}
	_, ok := tokens[phrase]
	return ok
}

// entityDictionary is the curated vocabulary scanned during entity
// extraction. Multi-word terms are listed first so compound names win
// over their parts.
var entityDictionary = []string{
	// exercises, compound first
	"romanian deadlift", "bulgarian split squat", "bench press",
	"overhead press", "incline press", "lat pulldown", "barbell row",
	"dumbbell row", "cable row", "leg press", "leg curl", "leg extension",
	"lateral raise", "face pull", "hip thrust", "calf raise",
	"bicep curl", "tricep extension", "pull-up", "chin-up", "dip",
	"squat", "deadlift", "lunge", "row", "curl", "pulldown", "shrug",
	// muscle groups
	"chest", "back", "shoulders", "biceps", "triceps", "forearms",
	"quadriceps", "hamstrings", "glutes", "calves", "abdominals",
	"lats", "traps", "delts", "core",
	// equipment
	"barbell", "dumbbell", "kettlebell", "cable", "machine", "band",
	// training concepts, compound first
	"progressive overload", "mind muscle connection", "rep range",
	"rest pause", "drop set", "training volume", "time under tension",
	"hypertrophy", "strength", "volume", "frequency", "intensity",
	"tempo", "deload", "superset", "failure", "rir", "rpe",
}

// extractEntities scans text against the dictionary and returns matched
// entities in dictionary order, deduplicated. A matched compound name
// suppresses its constituent words: "romanian deadlift" hides "deadlift".
func extractEntities(text string) []string {
	lowered := strings.ToLower(text)
	tokens := tokenSet(text)

	out := make([]string, 0, 8)
	seen := make(map[string]struct{}, 8)
	for _, entity := range entityDictionary {
		if _, ok := seen[entity]; ok {
			continue
		}
		if !entityMatches(lowered, tokens, entity) {
			continue
		}
		subsumed := false
		for _, matched := range out {
			if matched != entity && strings.Contains(matched, entity) {
				subsumed = true
				break
			}
		}
		if subsumed {
			continue
		}
		seen[entity] = struct{}{}
		out = append(out, entity)
	}
	return out
}

func entityMatches(lowered string, tokens map[string]struct{}, entity string) bool {
	if strings.ContainsAny(entity, " -") {
		return strings.Contains(lowered, entity)
	}
	if _, ok := tokens[entity]; ok {
		return true
	}
	// catches inflections such as "squatting" or "deadlifts"
	return len(entity) >= 5 && strings.Contains(lowered, entity)
}

var muscleEntityCategories = map[string]domain.CategoryTag{
	"chest":      "muscle:chest",
	"back":       "muscle:back",
	"shoulders":  "muscle:shoulders",
	"biceps":     "muscle:biceps",
	"triceps":    "muscle:triceps",
	"forearms":   "muscle:forearms",
	"quadriceps": "muscle:quadriceps",
	"hamstrings": "muscle:hamstrings",
	"glutes":     "muscle:glutes",
	"calves":     "muscle:calves",
	"abdominals": "muscle:abdominals",
	"lats":       "muscle:back",
	"traps":      "muscle:back",
	"delts":      "muscle:shoulders",
	"core":       "muscle:abdominals",
}

// categoryTableVersion tracks the tag vocabulary revision the fallback
// table below was written against.
const categoryTableVersion = "2026-08"

// categoryVocabulary is the set of tags known to exist in the corpus.
// Derived names not in this set go through categoryFallbacks or are
// dropped with a logged warning; an unknown category is never an error.
var categoryVocabulary = map[domain.CategoryTag]struct{}{
	"program-design":    {},
	"training-splits":   {},
	"volume-guidelines": {},
	"technique":         {},
	"recovery":          {},
	"general-nutrition": {},
	"myths":             {},
	"muscle:chest":      {},
	"muscle:back":       {},
	"muscle:shoulders":  {},
	"muscle:biceps":     {},
	"muscle:triceps":    {},
	"muscle:forearms":   {},
	"muscle:quadriceps": {},
	"muscle:hamstrings": {},
	"muscle:glutes":     {},
	"muscle:calves":     {},
	"muscle:abdominals": {},
}

var categoryFallbacks = map[domain.CategoryTag][]domain.CategoryTag{
	"arms":      {"muscle:biceps", "muscle:triceps"},
	"legs":      {"muscle:quadriceps", "muscle:hamstrings", "muscle:glutes"},
	"nutrition": {"general-nutrition"},
	"splits":    {"training-splits"},
	"form":      {"technique"},
	"rest":      {"recovery"},
}

// resolveCategory maps a derived category name onto the corpus
// vocabulary, using the fallback table for known drifted names.
func resolveCategory(tag domain.CategoryTag) ([]domain.CategoryTag, bool) {
	if _, ok := categoryVocabulary[tag]; ok {
		return []domain.CategoryTag{tag}, true
	}
	if mapped, ok := categoryFallbacks[tag]; ok {
		return mapped, true
	}
	return nil, false
}

var (
	reProgramReview = regexp.MustCompile(`(?i)\b(review|critique|feedback|rate|evaluate|thoughts on)\b.*\b(program|routine|split|plan)\b|\bmy (program|routine|split|plan)\b`)
	reProgramGen    = regexp.MustCompile(`(?i)\b(create|build|make|design|write|generate|give me)\b.*\b(program|routine|split|plan|workout)\b|\b\d+[ -]day\b.*\b(program|routine|split|workout)\b`)
	reMythCheck     = regexp.MustCompile(`(?i)\b(myth|is it true|true or false|really (work|works|necessary)|waste of time|overrated|useless|debunk|bad for)\b`)
	reMuscleFocused = regexp.MustCompile(`(?i)\b(grow|build|train|develop|bigger|wider|stronger)\b`)

	reSkipDecompose = regexp.MustCompile(`(?i)^\s*(what is|what are|who is|define|definition of|how many|how much)\b`)
	reBroadQuery    = regexp.MustCompile(`(?i)\bhow (do i|to|can i|should i) (train|build|grow|develop|improve)\b`)
)

// classifyQuery assigns the highest-priority matching type. MythCheck is
// additive: it is reported as a flag and only becomes the type when
// nothing more specific matched.
func classifyQuery(text string, entities []string) (domain.QueryType, bool) {
	myth := reMythCheck.MatchString(text)

	switch {
	case reProgramReview.MatchString(text):
		return domain.QueryProgramReview, myth
	case reProgramGen.MatchString(text):
		return domain.QueryProgramGeneration, myth
	case hasMuscleEntity(entities) && reMuscleFocused.MatchString(text):
		return domain.QueryMuscleFocused, myth
	case myth:
		return domain.QueryMythCheck, true
	default:
		return domain.QueryGeneral, false
	}
}

func hasMuscleEntity(entities []string) bool {
	for _, e := range entities {
		if _, ok := muscleEntityCategories[e]; ok {
			return true
		}
	}
	return false
}

// mandatoryTopicMarkers are the foundational programming topics a
// program-generation answer must be grounded in.
var mandatoryTopicMarkers = []string{
	"progressive overload",
	"rep range",
	"training volume",
	"sets per week",
}
