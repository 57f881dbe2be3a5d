package lexical

import "sort"

// Collector receives (doc_id, score) pairs from a matcher/scorer loop and
// decides when enough have been seen (§4.11).
type Collector interface {
	Collect(docID uint64, score float64)
	NeedsMore() bool
	Results() []ScoredDoc
}

// TopDocsCollector keeps the best k (doc_id, score) pairs seen, ties
// broken by ascending doc id, ignoring scores below minScore.
type TopDocsCollector struct {
	k        int
	minScore float64
	heap     []ScoredDoc // kept sorted ascending by (score, -doc_id) so heap[0] is the weakest
}

func NewTopDocsCollector(k int, minScore float64) *TopDocsCollector {
	return &TopDocsCollector{k: k, minScore: minScore}
}

func (c *TopDocsCollector) Collect(docID uint64, score float64) {
	if score < c.minScore {
		return
	}
	if len(c.heap) < c.k {
		c.heap = append(c.heap, ScoredDoc{DocID: docID, Score: score})
		sort.Slice(c.heap, func(i, j int) bool { return less(c.heap[i], c.heap[j]) })
		return
	}
	if c.k == 0 {
		return
	}
	if less(c.heap[0], ScoredDoc{DocID: docID, Score: score}) {
		c.heap[0] = ScoredDoc{DocID: docID, Score: score}
		sort.Slice(c.heap, func(i, j int) bool { return less(c.heap[i], c.heap[j]) })
	}
}

// less orders the weakest candidate first: lower score first, and among
// equal scores, higher doc id first (so the tie-break survivor when
// evicting is the lower doc id, per §4.11).
func less(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}

func (c *TopDocsCollector) NeedsMore() bool { return true }

func (c *TopDocsCollector) Results() []ScoredDoc {
	out := append([]ScoredDoc(nil), c.heap...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	return out
}

// CountCollector only counts matches above minScore.
type CountCollector struct {
	minScore float64
	count    int
}

func NewCountCollector(minScore float64) *CountCollector { return &CountCollector{minScore: minScore} }

func (c *CountCollector) Collect(docID uint64, score float64) {
	if score >= c.minScore {
		c.count++
	}
}
func (c *CountCollector) NeedsMore() bool   { return true }
func (c *CountCollector) Count() int        { return c.count }
func (c *CountCollector) Results() []ScoredDoc { return nil }
