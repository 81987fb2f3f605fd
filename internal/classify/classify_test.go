package classify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyQuotedGoesSparse(t *testing.T) {
	c := Classify(`"exact match"`)
	require.Equal(t, StrategySparse, c.Strategy)
	require.InDelta(t, 0.1, c.Alpha, 1e-9)
}

func TestClassifyCodeSyntaxGoesHybridLowAlpha(t *testing.T) {
	c := Classify("how does obj.method(arg) work")
	require.Equal(t, StrategyHybrid, c.Strategy)
	require.InDelta(t, 0.3, c.Alpha, 1e-9)
	require.True(t, c.Features.HasCode)
}

func TestClassifyPlainTextGoesHybridHighAlpha(t *testing.T) {
	c := Classify("tell me about the weather")
	require.Equal(t, StrategyHybrid, c.Strategy)
	require.InDelta(t, 0.7, c.Alpha, 1e-9)
}

func TestClassifyIsPure(t *testing.T) {
	text := "refactor the obj.method(arg) function because it is slow and error-prone"
	a := Classify(text)
	b := Classify(text)
	require.Equal(t, a, b)
}

func TestComplexityBuckets(t *testing.T) {
	simple := Classify("hi")
	require.Equal(t, ComplexitySimple, simple.Complexity)

	complex := Classify(`Please refactor the obj.method(arg) function — it's slow, leaks memory, and the && condition is wrong. Why does it fail when x != y?`)
	require.Equal(t, ComplexityComplex, complex.Complexity)
}

func TestComplexityScoreIsDeterministicAcrossFields(t *testing.T) {
	c := Classify("fix the parser.run(x) bug when a == b")
	require.True(t, c.Score >= 2)
	require.True(t, c.Features.HasOperators)
	require.True(t, c.Features.HasAgentic)
}
