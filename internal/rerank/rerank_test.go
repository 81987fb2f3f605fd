package rerank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vectorlane/memquery/internal/classify"
	"github.com/vectorlane/memquery/internal/retrieve"
)

type fakeRunner struct {
	delay time.Duration
	err   error
	order []Scored
}

func (f fakeRunner) Run(ctx context.Context, _ string, candidates []Candidate, _ int) ([]Scored, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.order != nil {
		return f.order, nil
	}
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Scored{OriginalIndex: c.OriginalIndex, Score: float64(len(candidates) - i)}
	}
	return out, nil
}

func TestSelectTierPrecedence(t *testing.T) {
	r := NewRouter(map[Tier]TierRunner{})
	require.Equal(t, TierFast, r.SelectTier("hi", "", classify.ComplexitySimple))
	require.Equal(t, TierCode, r.SelectTier("obj.method(x)", "", classify.ComplexitySimple))
	require.Equal(t, TierAccurate, r.SelectTier("plain text", "", classify.ComplexityComplex))
	require.Equal(t, TierAccurate, r.SelectTier("plain text", "", classify.ComplexityModerate))
	require.Equal(t, TierLLM, r.SelectTier("plain text", TierLLM, classify.ComplexitySimple))
}

func TestSelectTierModerateConfigurableToColBERT(t *testing.T) {
	r := NewRouter(map[Tier]TierRunner{}, WithModerateTier(TierColBERT))
	require.Equal(t, TierColBERT, r.SelectTier("plain text", "", classify.ComplexityModerate))
}

func TestRerankTimeoutDegradesGracefully(t *testing.T) {
	r := NewRouter(map[Tier]TierRunner{TierAccurate: fakeRunner{delay: 200 * time.Millisecond}}, WithTimeout(50*time.Millisecond))
	candidates := []retrieve.RerankCandidate{{Text: "a", OriginalIndex: 0}, {Text: "b", OriginalIndex: 1}}
	outcome, err := r.Rerank(context.Background(), "plain long text to force complex and accurate tier selection overall", candidates, string(TierAccurate), 2)
	require.NoError(t, err)
	require.True(t, outcome.Degraded)
	require.Equal(t, "rerank_timeout", outcome.DegradedReason)
}

func TestRerankSuccessReturnsOrder(t *testing.T) {
	r := NewRouter(map[Tier]TierRunner{TierFast: fakeRunner{}})
	candidates := []retrieve.RerankCandidate{{Text: "a", OriginalIndex: 0}, {Text: "b", OriginalIndex: 1}}
	outcome, err := r.Rerank(context.Background(), "hi", candidates, "", 2)
	require.NoError(t, err)
	require.False(t, outcome.Degraded)
	require.Equal(t, string(TierFast), outcome.TierUsed)
	require.Len(t, outcome.Order, 2)
}

func TestRerankMissingTierDegrades(t *testing.T) {
	r := NewRouter(map[Tier]TierRunner{})
	candidates := []retrieve.RerankCandidate{{Text: "a", OriginalIndex: 0}}
	outcome, err := r.Rerank(context.Background(), "hi", candidates, "", 1)
	require.NoError(t, err)
	require.True(t, outcome.Degraded)
	require.Equal(t, "tier_unavailable", outcome.DegradedReason)
}
