// Package rerank implements the multi-tier reranker router: tier
// selection, per-call timeout enforcement, and fallback to the
// pre-rerank ordering on any failure.
package rerank

import (
	"context"
	"regexp"
	"time"

	"github.com/vectorlane/memquery/internal/classify"
	"github.com/vectorlane/memquery/internal/ratelimit"
	"github.com/vectorlane/memquery/internal/retrieve"
	"github.com/vectorlane/memquery/internal/util"
)

// Tier names a quality/latency tradeoff point.
type Tier string

const (
	TierFast     Tier = "fast"
	TierAccurate Tier = "accurate"
	TierCode     Tier = "code"
	TierColBERT  Tier = "colbert"
	TierLLM      Tier = "llm"
)

// expectedLatency documents each tier's nominal cost. Only the TierLLM entry
// is read: Rerank uses it as the llm tier's call timeout in place of the
// router's default timeout.
var expectedLatency = map[Tier]time.Duration{
	TierFast:     10 * time.Millisecond,
	TierColBERT:  30 * time.Millisecond,
	TierAccurate: 50 * time.Millisecond,
	TierCode:     50 * time.Millisecond,
	TierLLM:      500 * time.Millisecond,
}

// Candidate is one item to be scored by a tier, mirroring
// retrieve.RerankCandidate so the router doesn't need the retrieve package's
// SearchResult type.
type Candidate struct {
	Text          string
	OriginalIndex int
}

// Scored is one tier's verdict on a candidate.
type Scored struct {
	OriginalIndex int
	Score         float64
}

// TierRunner executes a single tier's scoring call. Implementations wrap an
// HTTP cross-encoder endpoint, a local ColBERT MaxSim scorer, or an LLM
// provider call (gated by a ratelimit.Limiter).
type TierRunner interface {
	Run(ctx context.Context, query string, candidates []Candidate, topK int) ([]Scored, error)
}

var codeSyntaxRe = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*\b|\b[A-Za-z_][A-Za-z0-9_]*\s*\([^)]*\)`)

// Router dispatches a rerank call to the right tier per the precedence
// policy in spec §4.3 and enforces a per-call timeout with fallback.
type Router struct {
	tiers          map[Tier]TierRunner
	defaultTimeout time.Duration
	llmLimiter     *ratelimit.Limiter
	llmCostPerKIn  float64
	moderateTier   Tier // TierAccurate by default; configurable to TierColBERT
}

// Option configures a Router.
type Option func(*Router)

// WithModerateTier overrides which tier handles "moderate" complexity
// queries (spec §4.3 rule 4: accurate by default, configurable to colbert).
func WithModerateTier(t Tier) Option { return func(r *Router) { r.moderateTier = t } }

func WithTimeout(d time.Duration) Option { return func(r *Router) { r.defaultTimeout = d } }

func WithLLMLimiter(l *ratelimit.Limiter) Option { return func(r *Router) { r.llmLimiter = l } }

// WithLLMCostRate sets the dollars-per-1000-input-tokens rate used to turn a
// rough token estimate of the candidate set into a pre-flight cost estimate
// before the llm tier's rate limiter is consulted.
func WithLLMCostRate(costPerKTokensIn float64) Option {
	return func(r *Router) { r.llmCostPerKIn = costPerKTokensIn }
}

// NewRouter builds a Router over the given tier runners. Only tiers present
// in the map are selectable; a missing tier falls through to degraded mode
// exactly as a runtime failure would.
func NewRouter(tiers map[Tier]TierRunner, opts ...Option) *Router {
	r := &Router{tiers: tiers, defaultTimeout: 500 * time.Millisecond, moderateTier: TierAccurate}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SelectTier applies the precedence policy from spec §4.3.
func (r *Router) SelectTier(query string, override Tier, complexity classify.Complexity) Tier {
	if override != "" {
		return override
	}
	if codeSyntaxRe.MatchString(query) {
		return TierCode
	}
	switch complexity {
	case classify.ComplexityComplex:
		return TierAccurate
	case classify.ComplexityModerate:
		return r.moderateTier
	default:
		return TierFast
	}
}

// Rerank implements retrieve.Reranker. It never returns an error to the
// caller for tier-level failures — those are absorbed into a degraded
// RerankOutcome — only for caller-level misuse (empty tiers map etc, which
// cannot happen given NewRouter's construction, so this always returns nil
// error in practice; the signature matches Reranker for interface
// compatibility).
func (r *Router) Rerank(ctx context.Context, query string, candidates []retrieve.RerankCandidate, tierOverride string, depth int) (retrieve.RerankOutcome, error) {
	cls := classify.Classify(query)
	tier := r.SelectTier(query, Tier(tierOverride), cls.Complexity)

	runner, ok := r.tiers[tier]
	if !ok {
		return fallback(candidates, string(tier), "tier_unavailable"), nil
	}

	if tier == TierLLM && r.llmLimiter != nil {
		if err := r.llmLimiter.Allow(estimateLLMCostCents(query, candidates, r.llmCostPerKIn)); err != nil {
			reason := "rate_limit_exceeded"
			if _, ok := err.(*ratelimit.BudgetExceeded); ok {
				reason = "budget_exceeded"
			}
			return fallback(candidates, string(tier), reason), nil
		}
	}

	timeout := r.defaultTimeout
	if tier == TierLLM {
		timeout = expectedLatency[TierLLM]
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rcs := make([]Candidate, len(candidates))
	for i, c := range candidates {
		rcs[i] = Candidate{Text: c.Text, OriginalIndex: c.OriginalIndex}
	}

	scored, err := runner.Run(callCtx, query, rcs, depth)
	if err != nil {
		reason := "rerank_failed"
		if callCtx.Err() != nil {
			reason = "rerank_timeout"
		}
		return fallback(candidates, string(tier), reason), nil
	}

	order := make([]retrieve.RerankedItem, len(scored))
	for i, s := range scored {
		order[i] = retrieve.RerankedItem{OriginalIndex: s.OriginalIndex, Score: s.Score}
	}
	return retrieve.RerankOutcome{Order: order, TierUsed: string(tier)}, nil
}

// estimateLLMCostCents gives the rate limiter a pre-flight cost figure
// before the llm tier's actual completion call reports its real usage, so
// a single oversized candidate set can be rejected before it ever reaches
// the provider.
func estimateLLMCostCents(query string, candidates []retrieve.RerankCandidate, costPerKIn float64) float64 {
	tokens := util.CountTokens(query)
	for _, c := range candidates {
		tokens += util.CountTokens(c.Text)
	}
	return (float64(tokens) / 1000.0) * costPerKIn * 100
}

// fallback returns the original pre-rerank ordering (identity, by
// OriginalIndex, with a synthetic descending score so downstream effective
// score comparisons remain stable) marked degraded.
func fallback(candidates []retrieve.RerankCandidate, tier, reason string) retrieve.RerankOutcome {
	order := make([]retrieve.RerankedItem, len(candidates))
	for i, c := range candidates {
		order[i] = retrieve.RerankedItem{OriginalIndex: c.OriginalIndex, Score: float64(len(candidates) - i)}
	}
	return retrieve.RerankOutcome{Order: order, TierUsed: tier, Degraded: true, DegradedReason: reason}
}
