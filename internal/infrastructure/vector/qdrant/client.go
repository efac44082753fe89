// Package qdrant talks to a Qdrant instance over its HTTP API and exposes
// the chunk collection as a vector index for retrieval.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trainwise/knowledge-engine/internal/core/domain"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// NearestNeighbors runs a cosine similarity search over the chunk
// collection. When categories is non-empty the search is restricted to
// points tagged with at least one of them.
func (c *Client) NearestNeighbors(
	ctx context.Context,
	vector []float32,
	limit int,
	categories []domain.CategoryTag,
) ([]domain.ScoredChunk, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if len(categories) > 0 {
		values := make([]string, 0, len(categories))
		for _, tag := range categories {
			values = append(values, string(tag))
		}
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key": "categories",
					"match": map[string]any{
						"any": values,
					},
				},
			},
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "qdrant.search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, newStatusError(resp)
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	out := make([]domain.ScoredChunk, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.ScoredChunk{
			Ref: domain.ChunkRef{
				DocumentID: payloadString(r.Payload, "doc_id"),
				ChunkIndex: payloadInt(r.Payload, "chunk_index"),
			},
			Content:       payloadString(r.Payload, "content"),
			DocumentTitle: payloadString(r.Payload, "title"),
			Categories:    payloadTags(r.Payload, "categories"),
			Score:         r.Score,
		})
	}
	return out, nil
}

func newStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	base := fmt.Errorf("qdrant search status: %s", resp.Status)
	if msg := strings.TrimSpace(string(body)); msg != "" {
		base = fmt.Errorf("qdrant search status: %s: %s", resp.Status, msg)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return domain.WrapError(domain.ErrTemporary, "qdrant.search", base)
	}
	return base
}

func payloadString(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func payloadInt(payload map[string]any, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func payloadTags(payload map[string]any, key string) []domain.CategoryTag {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]domain.CategoryTag, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, domain.CategoryTag(s))
		}
	}
	return out
}
