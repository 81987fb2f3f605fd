package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vectorlane/memquery/internal/llmprovider"
)

// LLMTierRunner implements TierRunner by asking an LLM provider to score
// each candidate against the query on a 0-1 relevance scale, returned as a
// JSON array. It is only ever reached via explicit tier override and the
// caller's rate limiter (Router.Rerank gates TierLLM before invoking Run).
type LLMTierRunner struct {
	Provider  llmprovider.Provider
	MaxTokens int
}

type llmScore struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

func (t LLMTierRunner) Run(ctx context.Context, query string, candidates []Candidate, topK int) ([]Scored, error) {
	var b strings.Builder
	b.WriteString("Score each candidate's relevance to the query on a scale from 0 to 1.\n")
	fmt.Fprintf(&b, "Query: %s\n\n", query)
	for _, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n", c.OriginalIndex, c.Text)
	}
	b.WriteString("\nRespond with a JSON array of {\"index\": <int>, \"score\": <float 0-1>}, one entry per candidate, nothing else.")

	maxTokens := t.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	completion, err := t.Provider.Complete(ctx, []llmprovider.Message{
		{Role: "system", Content: "You are a precise relevance-scoring assistant. Respond with JSON only."},
		{Role: "user", Content: b.String()},
	}, maxTokens, 0)
	if err != nil {
		return nil, fmt.Errorf("rerank: llm tier completion: %w", err)
	}

	var scores []llmScore
	content := strings.TrimSpace(completion.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &scores); err != nil {
		return nil, fmt.Errorf("rerank: llm tier response not valid JSON: %w", err)
	}

	out := make([]Scored, 0, len(scores))
	for _, s := range scores {
		out = append(out, Scored{OriginalIndex: s.Index, Score: s.Score})
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}
