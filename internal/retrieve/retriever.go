package retrieve

import (
	"context"
	"time"

	"github.com/vectorlane/memquery/internal/classify"
	"github.com/vectorlane/memquery/internal/obs"
)

// Reranker is the contract the retriever hands its top candidates to when a
// Query requests reranking. internal/rerank's Router implements this.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate, tier string, depth int) (RerankOutcome, error)
}

// RerankCandidate is one item offered to the reranker: its text plus the
// opaque index back into the retriever's own slice.
type RerankCandidate struct {
	Text          string
	OriginalIndex int
}

// RerankOutcome is what the reranker hands back: a new ordering over the
// original indices plus the tier actually used, or a degraded marker.
type RerankOutcome struct {
	Order          []RerankedItem
	TierUsed       string
	Degraded       bool
	DegradedReason string
}

type RerankedItem struct {
	OriginalIndex int
	Score         float64
}

const (
	TextDenseVector = "text_dense"
	CodeDenseVector = "code_dense"
)

// Retriever is the hybrid retriever: strategy dispatch, RRF fusion,
// threshold filtering, optional reranking.
type Retriever struct {
	store      Store
	dense      DenseEmbedder
	codeDense  DenseEmbedder // optional; falls back to dense when nil
	sparse     SparseEmbedder
	reranker   Reranker // optional
	collection string
	metrics    obs.Metrics
}

// denseLeg picks which dense embedder and named vector a query's dense leg
// should use: the code_dense embedder/vector when the classifier detected
// code syntax and a code embedder was configured, text_dense otherwise.
func (r *Retriever) denseLeg(hasCode bool) (DenseEmbedder, string) {
	if hasCode && r.codeDense != nil {
		return r.codeDense, CodeDenseVector
	}
	return r.dense, TextDenseVector
}

// Option configures a Retriever at construction time.
type Option func(*Retriever)

func WithCodeEmbedder(e DenseEmbedder) Option { return func(r *Retriever) { r.codeDense = e } }
func WithReranker(rr Reranker) Option         { return func(r *Retriever) { r.reranker = rr } }
func WithMetrics(m obs.Metrics) Option        { return func(r *Retriever) { r.metrics = m } }

// New constructs a Retriever against a collection name and its required
// collaborators.
func New(store Store, dense DenseEmbedder, sparse SparseEmbedder, collection string, opts ...Option) *Retriever {
	r := &Retriever{store: store, dense: dense, sparse: sparse, collection: collection, metrics: obs.Noop{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Search executes the full retrieval algorithm from spec §4.5: auto-fill
// strategy, dispatch, fuse, threshold-filter, optionally rerank, trim.
func (r *Retriever) Search(ctx context.Context, q Query) ([]SearchResult, error) {
	if q.Filter.TenantID == "" {
		return nil, ErrTenantMissing
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	cls := classify.Classify(q.Text)
	strategy, alpha := q.Strategy, q.Alpha
	if strategy == "" {
		strategy, alpha = cls.Strategy, cls.Alpha
	}
	_ = alpha // not read anywhere: fusion is unweighted per spec.

	depth := limit
	if q.Rerank && q.RerankDepth > 0 {
		depth = q.RerankDepth
	}

	var results []SearchResult
	var err error
	switch strategy {
	case classify.StrategyDense:
		results, err = r.searchDenseOnly(ctx, q, depth, cls.Features.HasCode)
	case classify.StrategySparse:
		results, err = r.searchSparseOnly(ctx, q, depth)
	default:
		results, err = r.searchHybrid(ctx, q, depth, cls.Features.HasCode)
	}
	if err != nil {
		// results is nil here except for ErrRetrievalFailed, which carries
		// its single degraded placeholder.
		return results, err
	}

	results = filterThreshold(results, q.Threshold)

	if q.Rerank && r.reranker != nil && len(results) > 0 {
		results = r.applyRerank(ctx, q, results, depth)
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *Retriever) searchDenseOnly(ctx context.Context, q Query, depth int, hasCode bool) ([]SearchResult, error) {
	embedder, vectorName := r.denseLeg(hasCode)
	vec, err := embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	legs, err := r.store.SearchDense(ctx, r.collection, vectorName, vec, depth, toFilter(q.Filter))
	if err != nil {
		return nil, err
	}
	return legResultsToSearchResults(legs), nil
}

func (r *Retriever) searchSparseOnly(ctx context.Context, q Query, depth int) ([]SearchResult, error) {
	sparse, err := r.sparse.EmbedSparseQuery(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	legs, err := r.store.SearchSparse(ctx, r.collection, sparse, depth, toFilter(q.Filter))
	if err != nil {
		return nil, err
	}
	return legResultsToSearchResults(legs), nil
}

// searchHybrid issues the dense and sparse legs in parallel and fuses them
// with RRF. A failure of exactly one leg degrades but does not fail the
// request; a failure of both surfaces as ErrRetrievalFailed with a single
// degraded placeholder result.
func (r *Retriever) searchHybrid(ctx context.Context, q Query, depth int, hasCode bool) ([]SearchResult, error) {
	type denseOut struct {
		legs []LegResult
		err  error
	}
	type sparseOut struct {
		legs []LegResult
		err  error
	}

	denseCh := make(chan denseOut, 1)
	sparseCh := make(chan sparseOut, 1)

	embedder, vectorName := r.denseLeg(hasCode)
	go func() {
		vec, err := embedder.EmbedQuery(ctx, q.Text)
		if err != nil {
			denseCh <- denseOut{err: err}
			return
		}
		legs, err := r.store.SearchDense(ctx, r.collection, vectorName, vec, depth, toFilter(q.Filter))
		denseCh <- denseOut{legs: legs, err: err}
	}()
	go func() {
		sparse, err := r.sparse.EmbedSparseQuery(ctx, q.Text)
		if err != nil {
			sparseCh <- sparseOut{err: err}
			return
		}
		legs, err := r.store.SearchSparse(ctx, r.collection, sparse, depth, toFilter(q.Filter))
		sparseCh <- sparseOut{legs: legs, err: err}
	}()

	d := <-denseCh
	s := <-sparseCh

	if d.err != nil && s.err != nil {
		return []SearchResult{{Degraded: true, DegradedReason: "retrieval_failed"}}, ErrRetrievalFailed
	}

	legs := make([]rankedList, 0, 2)
	if d.err == nil {
		legs = append(legs, rankedList{results: d.legs})
	}
	if s.err == nil {
		legs = append(legs, rankedList{results: s.legs})
	}

	fused := fuseRRF(legs, q.RRFK)
	results := make([]SearchResult, 0, len(fused))
	for _, fc := range fused {
		results = append(results, fc.toSearchResult())
	}

	if d.err != nil {
		results = markDegraded(results, "dense_failed")
	}
	if s.err != nil {
		results = markDegraded(results, "sparse_failed")
	}
	return results, nil
}

func legResultsToSearchResults(legs []LegResult) []SearchResult {
	out := make([]SearchResult, 0, len(legs))
	for _, l := range legs {
		out = append(out, SearchResult{ID: l.ID, Score: l.Score, Payload: l.Payload})
	}
	return out
}

func filterThreshold(results []SearchResult, threshold float64) []SearchResult {
	if threshold <= 0 {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if r.EffectiveScore() >= threshold {
			out = append(out, r)
		}
	}
	return out
}

func (r *Retriever) applyRerank(ctx context.Context, q Query, results []SearchResult, depth int) []SearchResult {
	if depth > len(results) {
		depth = len(results)
	}
	top := results[:depth]
	candidates := make([]RerankCandidate, len(top))
	for i, res := range top {
		text, _ := res.Payload["content"].(string)
		candidates[i] = RerankCandidate{Text: text, OriginalIndex: i}
	}

	start := time.Now()
	outcome, err := r.reranker.Rerank(ctx, q.Text, candidates, q.Tier, depth)
	r.metrics.ObserveHistogram("retrieve.rerank.latency_ms", float64(time.Since(start).Milliseconds()), map[string]string{"tier": q.Tier})
	if err != nil || outcome.Degraded {
		reason := outcome.DegradedReason
		if reason == "" {
			reason = "rerank_failed"
		}
		return markDegraded(results, reason)
	}

	reordered := make([]SearchResult, 0, len(top)+len(results)-depth)
	for _, item := range outcome.Order {
		if item.OriginalIndex < 0 || item.OriginalIndex >= len(top) {
			continue
		}
		sr := top[item.OriginalIndex]
		score := item.Score
		sr.RerankerScore = &score
		sr.TierUsed = outcome.TierUsed
		reordered = append(reordered, sr)
	}
	reordered = append(reordered, results[depth:]...)
	return reordered
}
