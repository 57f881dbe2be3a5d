package ember

import "sort"

// FusionMethod selects how lexical and vector result lists are combined
// into one ranked list (§4.14).
type FusionMethod int

const (
	// FusionRRF is reciprocal rank fusion: rank r in a list (0-indexed)
	// contributes 1/(k+r+1); contributions sum across lists. This is the
	// spec's default, k=60.
	FusionRRF FusionMethod = iota
	// FusionWeightedSum combines subsystem-native scores directly:
	// fused = lexicalWeight*scoreL + vectorWeight*scoreV.
	FusionWeightedSum
)

// FusionConfig parameterizes Engine.Search's fusion step.
type FusionConfig struct {
	Method        FusionMethod
	RRFConstant   int
	LexicalWeight float64
	VectorWeight  float64
}

// DefaultFusionConfig is RRF with k=60, the spec's default (§4.14).
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{Method: FusionRRF, RRFConstant: 60, LexicalWeight: 0.5, VectorWeight: 0.5}
}

// RankedResult is one ranked hit going into or coming out of fusion.
type RankedResult struct {
	DocID uint64
	Score float64
}

// fuseRRF implements §4.14's reciprocal rank fusion exactly: for each
// list, the doc at zero-indexed rank r contributes 1/(k+r+1); contributions
// from every list sum per doc id; the merged set sorts by descending
// fused score, ties broken by ascending doc id for determinism. This is
// plain unweighted rank-reciprocal summation — a doc absent from a list
// contributes nothing from that list, there is no default/floor
// contribution, and no post-hoc normalisation of the summed scores
// (Scenario G's arithmetic, e.g. A = 1/61 + 1/62, depends on exactly this).
func fuseRRF(k int, lists ...[]RankedResult) []RankedResult {
	sums := make(map[uint64]float64)
	for _, list := range lists {
		for r, item := range list {
			sums[item.DocID] += 1.0 / float64(k+r+1)
		}
	}
	return sortedResults(sums)
}

// fuseWeightedSum implements §4.14's WeightedSum{wv, wl}: fused docs are
// the union of both lists; a doc missing from one list contributes 0 from
// it. Subsystem scores are used as-is, per each subsystem's own
// convention (the spec places normalisation responsibility on the
// subsystem, not on fusion).
func fuseWeightedSum(lexicalWeight, vectorWeight float64, lexicalList, vectorList []RankedResult) []RankedResult {
	sums := make(map[uint64]float64)
	for _, item := range lexicalList {
		sums[item.DocID] += lexicalWeight * item.Score
	}
	for _, item := range vectorList {
		sums[item.DocID] += vectorWeight * item.Score
	}
	return sortedResults(sums)
}

func sortedResults(sums map[uint64]float64) []RankedResult {
	out := make([]RankedResult, 0, len(sums))
	for id, score := range sums {
		out = append(out, RankedResult{DocID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}

// fuse dispatches on cfg.Method.
func fuse(cfg FusionConfig, lexicalList, vectorList []RankedResult) []RankedResult {
	switch cfg.Method {
	case FusionWeightedSum:
		return fuseWeightedSum(cfg.LexicalWeight, cfg.VectorWeight, lexicalList, vectorList)
	default:
		return fuseRRF(cfg.RRFConstant, lexicalList, vectorList)
	}
}
