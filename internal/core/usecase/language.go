package usecase

import (
	"strings"
	"unicode"
)

const (
	languageArabic  = "arabic"
	languageFrench  = "french"
	languageEnglish = "english"
)

// arabicScriptRatio is the share of Arabic-script characters among
// non-whitespace characters above which a query is treated as Arabic.
const arabicScriptRatio = 0.3

var frenchFunctionWords = map[string]struct{}{
	"le": {}, "la": {}, "les": {}, "des": {}, "une": {}, "est": {},
	"que": {}, "pour": {}, "avec": {}, "comment": {}, "quel": {},
	"quelle": {}, "je": {}, "vous": {}, "mon": {}, "mes": {}, "et": {},
	"dans": {}, "faire": {}, "mais": {}, "pas": {}, "sont": {},
}

// detectLanguage classifies a query as arabic, french or english using a
// character-ratio heuristic plus a small French lexicon. Short queries
// may be misclassified as English; that is acceptable.
func detectLanguage(text string) string {
	var arabic, total int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if total > 0 && float64(arabic)/float64(total) > arabicScriptRatio {
		return languageArabic
	}

	matches := 0
	for _, token := range tokenizeLower(text) {
		if _, ok := frenchFunctionWords[token]; ok {
			matches++
		}
	}
	if matches >= 2 {
		return languageFrench
	}
	return languageEnglish
}

// tokenizeLower splits on any non-letter, non-digit rune and lowercases.
func tokenizeLower(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func tokenSet(s string) map[string]struct{} {
	tokens := tokenizeLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

var keywordStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"what": {}, "how": {}, "are": {}, "can": {}, "should": {}, "does": {},
	"have": {}, "from": {}, "about": {}, "when": {}, "which": {},
	"will": {}, "would": {}, "there": {}, "their": {}, "your": {},
	"you": {}, "get": {}, "not": {}, "but": {}, "all": {},
}

// searchTerms produces the token list fed to the text index: lowercase,
// punctuation stripped, short tokens and stopwords dropped.
func searchTerms(text string) []string {
	tokens := tokenizeLower(text)
	out := make([]string, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if len(token) <= 2 {
			continue
		}
		if _, ok := keywordStopwords[token]; ok {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}
