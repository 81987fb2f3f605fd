package retrieve

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFuseRRFScenarioS2(t *testing.T) {
	dense := rankedList{results: []LegResult{{ID: "A", Score: 0.9}, {ID: "B", Score: 0.8}, {ID: "C", Score: 0.7}}}
	sparse := rankedList{results: []LegResult{{ID: "B", Score: 0.5}, {ID: "D", Score: 0.4}, {ID: "A", Score: 0.3}}}

	fused := fuseRRF([]rankedList{dense, sparse}, 60)
	require.Len(t, fused, 4)

	byID := map[string]fusedCandidate{}
	for _, f := range fused {
		byID[f.ID] = f
	}
	require.InDelta(t, 1.0/61+1.0/60, byID["B"].RRFScore, 1e-9)
	require.InDelta(t, 1.0/60+1.0/62, byID["A"].RRFScore, 1e-9)
	require.InDelta(t, 1.0/62, byID["C"].RRFScore, 1e-9)
	require.InDelta(t, 1.0/61, byID["D"].RRFScore, 1e-9)

	// B and A each contributed from both legs and outscore the single-leg
	// candidates; among those, higher RRF score sorts first.
	require.Equal(t, "B", fused[0].ID)
	require.Equal(t, "A", fused[1].ID)
}

func TestFuseRRFIsCommutativeUnderLegOrder(t *testing.T) {
	dense := rankedList{results: []LegResult{{ID: "A", Score: 0.9}, {ID: "B", Score: 0.8}}}
	sparse := rankedList{results: []LegResult{{ID: "B", Score: 0.5}, {ID: "A", Score: 0.3}}}

	order1 := fuseRRF([]rankedList{dense, sparse}, 60)
	order2 := fuseRRF([]rankedList{sparse, dense}, 60)

	require.Equal(t, len(order1), len(order2))
	for i := range order1 {
		require.Equal(t, order1[i].ID, order2[i].ID)
		require.InDelta(t, order1[i].RRFScore, order2[i].RRFScore, 1e-9)
	}
}

func TestFuseRRFIsCommutativeUnderShuffledResultsPerRankPosition(t *testing.T) {
	// Build two single-leg sets holding the same ids in different orders,
	// verifying a document's sum depends only on its rank position, not on
	// which id holds it or on incidental map/slice iteration order.
	ids := []string{"x1", "x2", "x3", "x4", "x5"}
	mk := func(perm []int) rankedList {
		res := make([]LegResult, len(perm))
		for i, p := range perm {
			res[i] = LegResult{ID: ids[p], Score: 1.0 - float64(i)*0.1}
		}
		return rankedList{results: res}
	}
	base := []int{0, 1, 2, 3, 4}
	shuffled := append([]int(nil), base...)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	a := fuseRRF([]rankedList{mk(base)}, 60)
	b := fuseRRF([]rankedList{mk(shuffled)}, 60)
	require.Equal(t, len(a), len(b))
	for i := range a {
		require.Equal(t, ids[shuffled[i]], b[i].ID)
		require.InDelta(t, a[i].RRFScore, b[i].RRFScore, 1e-12)
	}
}

func TestFuseRRFSingleLegOnlyHasNoCrossContribution(t *testing.T) {
	dense := rankedList{results: []LegResult{{ID: "A", Score: 1.0}}}
	fused := fuseRRF([]rankedList{dense}, 60)
	require.Len(t, fused, 1)
	require.InDelta(t, 1.0/60, fused[0].RRFScore, 1e-9)
}
