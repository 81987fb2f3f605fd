// Package multiquery implements the multi-query expansion retriever: an LLM
// rewrites the input query into paraphrase/keyword/step-back variants, each
// variant is searched in parallel, and the result sets are fused with RRF.
package multiquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vectorlane/memquery/internal/llmprovider"
	"github.com/vectorlane/memquery/internal/retrieve"
)

// Underlying is the narrow retriever contract a multi-query wrapper fans
// variant searches out to.
type Underlying interface {
	Search(ctx context.Context, q retrieve.Query) ([]retrieve.SearchResult, error)
}

// Retriever wraps an Underlying retriever with LLM-driven query expansion.
type Retriever struct {
	inner    Underlying
	provider llmprovider.Provider
	variants int // N; the original query is always added as variant N+1
	rrfK     int

	mu          sync.Mutex
	promptIn    int
	promptOut   int
	costCents   float64
	costPerKIn  float64
	costPerKOut float64
}

// Option configures a Retriever.
type Option func(*Retriever)

func WithVariants(n int) Option { return func(r *Retriever) { r.variants = n } }
func WithRRFK(k int) Option     { return func(r *Retriever) { r.rrfK = k } }
func WithCostRates(perKIn, perKOut float64) Option {
	return func(r *Retriever) { r.costPerKIn, r.costPerKOut = perKIn, perKOut }
}

// New builds a multi-query Retriever. Default: 2 LLM-generated variants plus
// the original query, RRF k=60 per spec default.
func New(inner Underlying, provider llmprovider.Provider, opts ...Option) *Retriever {
	r := &Retriever{inner: inner, provider: provider, variants: 2, rrfK: 60}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Usage is the accumulated token/cost accounting since the last ResetUsage.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CostCents        float64
}

func (r *Retriever) GetUsage() Usage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Usage{PromptTokens: r.promptIn, CompletionTokens: r.promptOut, CostCents: r.costCents}
}

func (r *Retriever) ResetUsage() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promptIn, r.promptOut, r.costCents = 0, 0, 0
}

func (r *Retriever) recordUsage(u llmprovider.Usage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promptIn += u.PromptTokens
	r.promptOut += u.CompletionTokens
	r.costCents += u.CostCents(r.costPerKIn, r.costPerKOut)
}

// Search expands q.Text into variants, searches each in parallel through the
// wrapped retriever, and fuses the result sets with RRF.
func (r *Retriever) Search(ctx context.Context, q retrieve.Query) ([]retrieve.SearchResult, error) {
	variants, err := r.expand(ctx, q.Text)
	degraded := false
	if err != nil {
		variants = []string{q.Text}
		degraded = true
	}

	type variantResult struct {
		results []retrieve.SearchResult
		err     error
	}
	out := make([]variantResult, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			vq := q
			vq.Text = v
			results, err := r.inner.Search(gctx, vq)
			out[i] = variantResult{results: results, err: err}
			return nil // partial variant failures are absorbed silently, not propagated
		})
	}
	_ = g.Wait()

	legs := make([]legList, 0, len(out))
	for _, vr := range out {
		if vr.err != nil || len(vr.results) == 0 {
			continue
		}
		legs = append(legs, legList{results: vr.results})
	}

	fused := fuseRRF(legs, r.rrfK)
	if degraded {
		for i := range fused {
			fused[i].Degraded = true
			if fused[i].DegradedReason == "" {
				fused[i].DegradedReason = "expansion_failed"
			}
		}
	}
	if q.Limit > 0 && len(fused) > q.Limit {
		fused = fused[:q.Limit]
	}
	return fused, nil
}

// expand asks the LLM provider for paraphrase/keyword/step-back
// reformulations and appends the original query as the final variant.
func (r *Retriever) expand(ctx context.Context, text string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Rewrite the following search query into %d alternative phrasings: one paraphrase, one keyword-only form, and one step-back (more general) form if more are needed. Query: %q\nRespond with a JSON array of strings only.",
		r.variants, text,
	)
	completion, err := r.provider.Complete(ctx, []llmprovider.Message{
		{Role: "system", Content: "You rewrite search queries. Respond with a JSON array of strings only."},
		{Role: "user", Content: prompt},
	}, 256, 0.3)
	if err != nil {
		return nil, fmt.Errorf("multiquery: expansion request: %w", err)
	}
	r.recordUsage(completion.Usage)

	content := strings.TrimSpace(completion.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var variants []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &variants); err != nil {
		return nil, fmt.Errorf("multiquery: expansion response not valid JSON: %w", err)
	}
	if len(variants) > r.variants {
		variants = variants[:r.variants]
	}
	return append(variants, text), nil
}
