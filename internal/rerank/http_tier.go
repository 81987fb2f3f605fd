package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// httpRerankRequest mirrors the teacher's sefii reranker call shape
// (model/query/top_n/documents).
type httpRerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	TopN      int      `json:"top_n"`
	Documents []string `json:"documents"`
}

type httpRerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type httpRerankResponse struct {
	Results []httpRerankResult `json:"results"`
}

// HTTPTierRunner implements TierRunner over a cross-encoder reranker
// endpoint (the fast/accurate/code tiers) or a ColBERT MaxSim server (the
// colbert tier) — whichever the caller points Model/URL at.
type HTTPTierRunner struct {
	Client *http.Client
	URL    string
	Model  string
}

func (t HTTPTierRunner) Run(ctx context.Context, query string, candidates []Candidate, topK int) ([]Scored, error) {
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}
	body, err := json.Marshal(httpRerankRequest{Model: t.Model, Query: query, TopN: topK, Documents: docs})
	if err != nil {
		return nil, fmt.Errorf("rerank: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerank: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank: endpoint returned %d: %s", resp.StatusCode, string(b))
	}

	var rankResp httpRerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rankResp); err != nil {
		return nil, fmt.Errorf("rerank: decode response: %w", err)
	}

	scored := make([]Scored, 0, len(rankResp.Results))
	for _, r := range rankResp.Results {
		if r.Index < 0 || r.Index >= len(candidates) {
			continue
		}
		scored = append(scored, Scored{OriginalIndex: candidates[r.Index].OriginalIndex, Score: r.RelevanceScore})
	}
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}
