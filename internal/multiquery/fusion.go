package multiquery

import (
	"sort"

	"github.com/vectorlane/memquery/internal/retrieve"
)

// legList is one variant's result set, ranked by the order the underlying
// retriever already returned (it has already applied its own RRF/rerank).
type legList struct {
	results []retrieve.SearchResult
}

// fuseRRF re-applies plain unweighted Reciprocal Rank Fusion across variant
// result sets, identical in formula to internal/retrieve's fusion: rank is
// 0-indexed within each leg, contributions sum across every leg a document
// appears in, order is by summed score descending then best base score then
// id, consistent with spec §4.5's fusion rule reused here for §4.7.
func fuseRRF(legs []legList, k int) []retrieve.SearchResult {
	if k <= 0 {
		k = 60
	}
	type acc struct {
		sum     float64
		best    retrieve.SearchResult
		bestSet bool
	}
	byID := make(map[string]*acc)
	order := make([]string, 0)

	for _, leg := range legs {
		for rank, res := range leg.results {
			a, ok := byID[res.ID]
			if !ok {
				a = &acc{}
				byID[res.ID] = a
				order = append(order, res.ID)
			}
			a.sum += 1.0 / float64(k+rank)
			if !a.bestSet || res.EffectiveScore() > a.best.EffectiveScore() {
				a.best = res
				a.bestSet = true
			}
		}
	}

	out := make([]retrieve.SearchResult, 0, len(order))
	for _, id := range order {
		a := byID[id]
		sr := a.best
		rrf := a.sum
		sr.RRFScore = &rrf
		out = append(out, sr)
	}
	sort.Slice(out, func(i, j int) bool {
		if *out[i].RRFScore != *out[j].RRFScore {
			return *out[i].RRFScore > *out[j].RRFScore
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}
