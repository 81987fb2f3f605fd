// Package retrieve implements the hybrid retriever: strategy dispatch over a
// vector store, Reciprocal Rank Fusion of dense and sparse legs, threshold
// filtering, and optional reranking.
package retrieve

import (
	"errors"

	"github.com/vectorlane/memquery/internal/classify"
)

// ErrTenantMissing is returned the instant a Query without a tenant id
// reaches the retriever. No store call is made.
var ErrTenantMissing = errors.New("retrieve: tenant id is required")

// ErrRetrievalFailed is returned when every leg of a search failed; the
// caller still receives a single degraded SearchResult alongside this error
// so UIs can render a "search is currently degraded" message rather than a
// blank error page.
var ErrRetrievalFailed = errors.New("retrieve: all retrieval legs failed")

// Filter narrows a search to a tenant, optionally a session, a type tag, a
// time range, and a "visible time" cutoff.
type Filter struct {
	TenantID    string // required by the time Query reaches the store
	SessionID   string
	Type        string
	StartMillis int64
	EndMillis   int64
	VTEndAfter  int64
}

// Query is the immutable request descriptor the retriever consumes.
type Query struct {
	Text        string
	Limit       int // [1, 100]
	Threshold   float64
	Filter      Filter
	Strategy    classify.Strategy // optional; auto-filled by the classifier when empty
	Alpha       float64           // optional; auto-filled alongside Strategy
	Rerank      bool
	Tier        string // optional override: fast | accurate | code | colbert | llm
	RerankDepth int    // [1, 100]
	RRFK        int    // fusion constant; 0 means "use default"
}

// SearchResult is one ranked item returned by the retriever.
type SearchResult struct {
	ID             string
	Score          float64
	RRFScore       *float64
	RerankerScore  *float64
	TierUsed       string
	Payload        map[string]any
	Degraded       bool
	DegradedReason string
}

// EffectiveScore returns the reranker score if present, else the RRF score
// if present, else the base score — the ordering used for threshold
// filtering and final sort per spec.
func (r SearchResult) EffectiveScore() float64 {
	if r.RerankerScore != nil {
		return *r.RerankerScore
	}
	if r.RRFScore != nil {
		return *r.RRFScore
	}
	return r.Score
}

func markDegraded(results []SearchResult, reason string) []SearchResult {
	for i := range results {
		results[i].Degraded = true
		if results[i].DegradedReason == "" {
			results[i].DegradedReason = reason
		} else {
			results[i].DegradedReason = results[i].DegradedReason + "; " + reason
		}
	}
	return results
}
