package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/trainwise/knowledge-engine/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Embedder builds query vectors. Fails closed: callers skip the vector
// strategy for the sub-query on error.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, wrapTemporaryIfNeeded("embed query", err)
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return response.Embeddings[0], nil
}

// Translator normalizes non-English questions to English.
type Translator struct {
	client *Client
}

func NewTranslator(client *Client) *Translator {
	return &Translator{client: client}
}

func (t *Translator) Translate(ctx context.Context, text, sourceLang string) (string, error) {
	translated, err := t.client.generateText(ctx, buildTranslationPrompt(text, sourceLang))
	if err != nil {
		return "", wrapTemporaryIfNeeded("translate", err)
	}
	return strings.TrimSpace(translated), nil
}

// SubQueryGenerator decomposes broad questions into facet questions
// covering exercise selection, volume, frequency and programming.
type SubQueryGenerator struct {
	client *Client
}

func NewSubQueryGenerator(client *Client) *SubQueryGenerator {
	return &SubQueryGenerator{client: client}
}

func (g *SubQueryGenerator) Decompose(ctx context.Context, question string, maxFacets int) ([]string, error) {
	if maxFacets <= 0 {
		maxFacets = 4
	}

	raw, err := g.client.generateJSON(ctx, buildDecompositionPrompt(question, maxFacets))
	if err != nil {
		return nil, wrapTemporaryIfNeeded("decompose", err)
	}

	facets, err := parseFacetQuestions(raw)
	if err != nil {
		return nil, fmt.Errorf("parse decomposition response: %w", err)
	}
	if len(facets) > maxFacets {
		facets = facets[:maxFacets]
	}
	return facets, nil
}

// parseFacetQuestions accepts either a bare JSON array of strings or an
// object with a "questions" key; model output is not trusted beyond
// that.
func parseFacetQuestions(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)

	var list []string
	if err := json.Unmarshal([]byte(extractJSONValue(raw, "[", "]")), &list); err == nil && len(list) > 0 {
		return list, nil
	}

	var wrapped struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(extractJSONValue(raw, "{", "}")), &wrapped); err != nil {
		return nil, err
	}
	if len(wrapped.Questions) == 0 {
		return nil, fmt.Errorf("no questions in response")
	}
	return wrapped.Questions, nil
}

func (c *Client) generateJSON(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	return c.generate(ctx, reqBody)
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func extractJSONValue(raw, open, close string) string {
	start := strings.Index(raw, open)
	end := strings.LastIndex(raw, close)
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
