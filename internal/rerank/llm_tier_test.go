package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectorlane/memquery/internal/llmprovider"
)

func TestLLMTierRunnerParsesJSONScores(t *testing.T) {
	fake := &llmprovider.Fake{FixedContent: `[{"index":1,"score":0.9},{"index":0,"score":0.2}]`}
	runner := LLMTierRunner{Provider: fake}

	scored, err := runner.Run(context.Background(), "find the bug", []Candidate{
		{Text: "a", OriginalIndex: 0},
		{Text: "b", OriginalIndex: 1},
	}, 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	require.Equal(t, 1, scored[0].OriginalIndex)
	require.InDelta(t, 0.9, scored[0].Score, 1e-9)
}

func TestLLMTierRunnerRejectsMalformedResponse(t *testing.T) {
	fake := &llmprovider.Fake{FixedContent: "not json"}
	runner := LLMTierRunner{Provider: fake}

	_, err := runner.Run(context.Background(), "q", []Candidate{{Text: "a", OriginalIndex: 0}}, 1)
	require.Error(t, err)
}

func TestLLMTierRunnerTruncatesToTopK(t *testing.T) {
	fake := &llmprovider.Fake{FixedContent: `[{"index":0,"score":0.5},{"index":1,"score":0.8},{"index":2,"score":0.3}]`}
	runner := LLMTierRunner{Provider: fake}

	scored, err := runner.Run(context.Background(), "q", []Candidate{
		{Text: "a", OriginalIndex: 0}, {Text: "b", OriginalIndex: 1}, {Text: "c", OriginalIndex: 2},
	}, 2)
	require.NoError(t, err)
	require.Len(t, scored, 2)
}
