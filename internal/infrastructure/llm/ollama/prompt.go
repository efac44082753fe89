package ollama

import "fmt"

func buildTranslationPrompt(text, sourceLang string) string {
	return fmt.Sprintf(`Translate the following %s question about strength training to English.
Reply with only the translation, nothing else.

Question:
%s`, sourceLang, text)
}

func buildDecompositionPrompt(question string, maxFacets int) string {
	return fmt.Sprintf(`You decompose broad strength-training questions into focused sub-questions.
Cover at most these facets: exercise selection, volume (sets and reps), training frequency, technique or programming.
Return strict JSON: {"questions": ["...", "..."]} with at most %d entries.
No markdown, no extra keys.

Question:
%s`, maxFacets, question)
}
