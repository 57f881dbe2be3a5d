package ember

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFuseRRFScenarioG reproduces §8 Scenario G exactly: lexical ranks
// [A, B, C], vector ranks [C, A, D], k=60.
func TestFuseRRFScenarioG(t *testing.T) {
	const A, B, C, D = 1, 2, 3, 4
	lexical := []RankedResult{{DocID: A, Score: 0}, {DocID: B, Score: 0}, {DocID: C, Score: 0}}
	vector := []RankedResult{{DocID: C, Score: 0}, {DocID: A, Score: 0}, {DocID: D, Score: 0}}

	fused := fuseRRF(60, lexical, vector)

	want := map[uint64]float64{
		A: 1.0/61 + 1.0/62,
		B: 1.0 / 62,
		C: 1.0/63 + 1.0/61,
		D: 1.0 / 63,
	}
	for _, r := range fused {
		require.InDelta(t, want[r.DocID], r.Score, 1e-12)
	}

	order := make([]uint64, len(fused))
	for i, r := range fused {
		order[i] = r.DocID
	}
	require.Equal(t, []uint64{A, C, B, D}, order)
}

func TestFuseWeightedSum(t *testing.T) {
	lexical := []RankedResult{{DocID: 1, Score: 1.0}, {DocID: 2, Score: 0.5}}
	vector := []RankedResult{{DocID: 2, Score: 1.0}, {DocID: 3, Score: 0.2}}

	fused := fuseWeightedSum(0.6, 0.4, lexical, vector)

	byID := make(map[uint64]float64, len(fused))
	for _, r := range fused {
		byID[r.DocID] = r.Score
	}
	require.InDelta(t, 0.6*1.0, byID[1], 1e-12)
	require.InDelta(t, 0.6*0.5+0.4*1.0, byID[2], 1e-12)
	require.InDelta(t, 0.4*0.2, byID[3], 1e-12)
}
