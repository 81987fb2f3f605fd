package llmprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectorlane/memquery/internal/config"
)

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(config.LLMConfig{Provider: "carrier-pigeon"})
	require.Error(t, err)
}

func TestNewDefaultsToOpenAI(t *testing.T) {
	p, err := New(config.LLMConfig{APIKey: "test-key", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestNewAcceptsAnthropic(t *testing.T) {
	p, err := New(config.LLMConfig{Provider: "anthropic", APIKey: "test-key", Model: "claude-3-5-haiku-latest"})
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestUsageCostCents(t *testing.T) {
	u := Usage{PromptTokens: 1000, CompletionTokens: 500}
	cost := u.CostCents(0.01, 0.03)
	require.InDelta(t, 2.5, cost, 1e-9)
}

func TestFakeProviderRecordsCalls(t *testing.T) {
	f := &Fake{FixedContent: "paraphrased query"}
	c, err := f.Complete(context.Background(), []Message{{Role: "user", Content: "hello"}}, 100, 0.2)
	require.NoError(t, err)
	require.Equal(t, "paraphrased query", c.Content)
	require.Equal(t, 1, f.CallCount)
	require.Len(t, f.Calls, 1)
}

func TestFakeProviderReturnsConfiguredError(t *testing.T) {
	f := &Fake{Err: context.DeadlineExceeded}
	_, err := f.Complete(context.Background(), nil, 10, 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
