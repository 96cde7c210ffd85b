// Package reranker calls a cross-encoder rerank service (POST {url}/rerank).
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/graphrag-gateway/internal/gateway/ports"
)

const backendName = "reranker"

type Client struct {
	baseURL string
	http    *http.Client
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

func New(baseURL string, timeout time.Duration) (*Client, error) {
	return NewWithHTTPClient(baseURL, timeout, nil)
}

// NewWithHTTPClient is intended for tests; it avoids network access by using a custom RoundTripper.
func NewWithHTTPClient(baseURL string, timeout time.Duration, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("reranker: url required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, http: httpClient}, nil
}

var _ ports.Reranker = (*Client)(nil)

// Rerank returns results in the service's order, best first.
func (c *Client) Rerank(ctx context.Context, query string, documents []string, topN int) ([]ports.RerankResult, error) {
	const op = "rerank"
	if len(documents) == 0 {
		return []ports.RerankResult{}, nil
	}
	if topN <= 0 || topN > len(documents) {
		topN = len(documents)
	}

	b, err := json.Marshal(rerankRequest{Query: query, Documents: documents, TopN: topN})
	if err != nil {
		return nil, ports.NewBackendError(backendName, op, ports.KindInvalidInput, 0, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(b))
	if err != nil {
		return nil, ports.Classify(backendName, op, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ports.Classify(backendName, op, 0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, ports.NewBackendError(backendName, op, ports.KindMalformed, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(raw)
		if len(body) > 512 {
			body = body[:512] + "..."
		}
		return nil, ports.Classify(backendName, op, resp.StatusCode, fmt.Errorf("status=%d body=%q", resp.StatusCode, body))
	}

	var out rerankResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, ports.NewBackendError(backendName, op, ports.KindMalformed, resp.StatusCode, fmt.Errorf("decode: %w", err))
	}
	results := make([]ports.RerankResult, 0, len(out.Results))
	for _, r := range out.Results {
		results = append(results, ports.RerankResult{Index: r.Index, Score: r.Score})
	}
	return results, nil
}
