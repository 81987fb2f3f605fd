package retrieve

import "sort"

const defaultRRFK = 60

// rankedList is one leg's results in best-first order. searchHybrid passes
// only the legs that succeeded and marks the fused results degraded
// afterwards; fusion itself never sets Degraded.
type rankedList struct {
	results []LegResult
}

// fuseRRF merges any number of ranked leg result lists by Reciprocal Rank
// Fusion: contribution of a document at 0-based rank r in a given list is
// 1/(k+r), summed across every list it appears in. The merged order does
// not depend on the order the legs are passed in — summing is commutative —
// so shuffling the legs (modulo true ties) yields the same merged order,
// satisfying the spec's commutativity invariant. Reordering results within
// a leg changes their ranks and therefore their scores.
func fuseRRF(legs []rankedList, k int) []fusedCandidate {
	if k <= 0 {
		k = defaultRRFK
	}

	byID := make(map[string]*fusedCandidate)
	order := make([]string, 0)

	for _, leg := range legs {
		for rank, r := range leg.results {
			fc, ok := byID[r.ID]
			if !ok {
				fc = &fusedCandidate{ID: r.ID, Payload: map[string]any{}}
				byID[r.ID] = fc
				order = append(order, r.ID)
			}
			contrib := 1.0 / float64(k+rank)
			fc.RRFScore += contrib
			if r.Score > fc.BestBaseScore {
				fc.BestBaseScore = r.Score
			}
			fc.RankSum += rank + 1
			for key, v := range r.Payload {
				if _, exists := fc.Payload[key]; !exists {
					fc.Payload[key] = v
				}
			}
		}
	}

	out := make([]fusedCandidate, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		if out[i].BestBaseScore != out[j].BestBaseScore {
			return out[i].BestBaseScore > out[j].BestBaseScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// fusedCandidate accumulates RRF contributions for one document across legs.
type fusedCandidate struct {
	ID            string
	RRFScore      float64
	BestBaseScore float64
	RankSum       int
	Payload       map[string]any
}

func (c fusedCandidate) toSearchResult() SearchResult {
	score := c.RRFScore
	return SearchResult{
		ID:       c.ID,
		Score:    c.BestBaseScore,
		RRFScore: &score,
		Payload:  c.Payload,
	}
}
