// Package classify extracts retrieval strategy, fusion weight, and
// complexity class from a raw query string. It is a pure function package:
// no I/O, no shared state, same input always yields the same output.
package classify

import (
	"regexp"
	"strings"
)

// Strategy names the retrieval path a query should take absent an explicit
// override.
type Strategy string

const (
	StrategyDense  Strategy = "dense"
	StrategySparse Strategy = "sparse"
	StrategyHybrid Strategy = "hybrid"
)

// Complexity buckets the query's estimated difficulty, used to pick a
// reranker tier when the caller has not named one explicitly.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Features are the raw signals extracted from the query text before the
// classification rules are applied.
type Features struct {
	Length       int
	WordCount    int
	HasQuotes    bool
	HasOperators bool
	HasCode      bool
	IsQuestion   bool
	HasAgentic   bool
}

// Classification is the complete output of Classify.
type Classification struct {
	Features   Features
	Strategy   Strategy
	Alpha      float64
	Complexity Complexity
	Score      int
}

var (
	quotedRe   = regexp.MustCompile(`"[^"]+"|'[^']+'`)
	codeRe     = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*\.[A-Za-z_][A-Za-z0-9_]*\b|\b[A-Za-z_][A-Za-z0-9_]*\s*\([^)]*\)`)
	operatorRe = regexp.MustCompile(`[=!<>]=|&&|\|\||[-+*/%]=|=>`)
)

var agenticVerbs = []string{
	"find", "search", "fix", "refactor", "implement", "debug", "create",
	"update", "delete", "add", "remove", "write", "generate", "build",
	"run", "execute", "deploy", "install", "configure",
}

// Classify derives a Classification from the raw query text. Calling it
// twice with the same input always yields an identical result.
func Classify(text string) Classification {
	f := extractFeatures(text)
	score := complexityScore(f)

	c := Classification{Features: f, Score: score}
	switch {
	case score >= 5:
		c.Complexity = ComplexityComplex
	case score >= 2:
		c.Complexity = ComplexityModerate
	default:
		c.Complexity = ComplexitySimple
	}

	switch {
	case f.HasQuotes:
		c.Strategy = StrategySparse
		c.Alpha = 0.1
	case f.HasCode:
		c.Strategy = StrategyHybrid
		c.Alpha = 0.3
	default:
		c.Strategy = StrategyHybrid
		c.Alpha = 0.7
	}
	return c
}

func extractFeatures(text string) Features {
	trimmed := strings.TrimSpace(text)
	words := strings.Fields(trimmed)
	lower := strings.ToLower(trimmed)

	f := Features{
		Length:       len(trimmed),
		WordCount:    len(words),
		HasQuotes:    quotedRe.MatchString(trimmed),
		HasOperators: operatorRe.MatchString(trimmed),
		HasCode:      codeRe.MatchString(trimmed),
		IsQuestion:   strings.HasSuffix(trimmed, "?") || startsWithQuestionWord(lower),
	}
	for _, v := range agenticVerbs {
		if strings.Contains(lower, v) {
			f.HasAgentic = true
			break
		}
	}
	return f
}

var questionWords = []string{"what", "why", "how", "when", "where", "who", "which", "is", "are", "can", "does", "do"}

func startsWithQuestionWord(lower string) bool {
	for _, w := range questionWords {
		if strings.HasPrefix(lower, w+" ") {
			return true
		}
	}
	return false
}

func complexityScore(f Features) int {
	score := 0
	switch {
	case f.Length > 100:
		score += 3
	case f.Length > 50:
		score += 2
	case f.Length > 25:
		score += 1
	}
	switch {
	case f.WordCount > 12:
		score += 2
	case f.WordCount > 8:
		score += 1
	}
	if f.HasQuotes {
		score++
	}
	if f.HasOperators {
		score += 2
	}
	if f.HasCode {
		score += 3
	}
	if f.IsQuestion {
		score++
	}
	if f.HasAgentic {
		score += 2
	}
	return score
}
