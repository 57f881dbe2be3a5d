package lexical

// Span is one {doc_id, start_pos, end_pos} occurrence (§4.11).
type Span struct {
	DocID    uint64
	StartPos int
	EndPos   int
}

// SpanMatcher enumerates Spans grouped by document, consuming per-term
// position lists rather than whole-document matches.
type SpanMatcher interface {
	Spans(docID uint64) []Span
	DocIDs() []uint64
}

// spanTermMatcher wraps one term's postings as single-position spans.
type spanTermMatcher struct {
	byDoc map[uint64][]Span
	ids   []uint64
}

// NewSpanTerm builds a SpanMatcher from a term's postings, one span per
// occurrence position.
func NewSpanTerm(pl *PostingList) SpanMatcher {
	m := &spanTermMatcher{byDoc: make(map[uint64][]Span)}
	for i := 0; i < pl.Len(); i++ {
		p := pl.At(i)
		spans := make([]Span, len(p.Positions))
		for j, pos := range p.Positions {
			spans[j] = Span{DocID: p.DocID, StartPos: pos, EndPos: pos}
		}
		m.byDoc[p.DocID] = spans
		m.ids = append(m.ids, p.DocID)
	}
	return m
}

func (m *spanTermMatcher) Spans(docID uint64) []Span { return m.byDoc[docID] }
func (m *spanTermMatcher) DocIDs() []uint64           { return m.ids }

// SpanNear requires clauses' spans to occur within slop positions of each
// other, in order when inOrder is set.
func SpanNear(clauses []SpanMatcher, slop int, inOrder bool) SpanMatcher {
	result := &spanTermMatcher{byDoc: make(map[uint64][]Span)}
	if len(clauses) == 0 {
		return result
	}
	docs := commonDocs(clauses)
	for _, doc := range docs {
		spans := nearSpansForDoc(clauses, doc, slop, inOrder)
		if len(spans) > 0 {
			result.byDoc[doc] = spans
			result.ids = append(result.ids, doc)
		}
	}
	return result
}

func nearSpansForDoc(clauses []SpanMatcher, doc uint64, slop int, inOrder bool) []Span {
	first := clauses[0].Spans(doc)
	var out []Span
	for _, start := range first {
		end := start.EndPos
		ok := true
		for i := 1; i < len(clauses); i++ {
			found := false
			for _, s := range clauses[i].Spans(doc) {
				if inOrder && s.StartPos <= end {
					continue
				}
				if s.StartPos-end-1 > slop {
					continue
				}
				end = s.EndPos
				found = true
				break
			}
			if !found {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, Span{DocID: doc, StartPos: start.StartPos, EndPos: end})
		}
	}
	return out
}

func commonDocs(clauses []SpanMatcher) []uint64 {
	counts := make(map[uint64]int)
	for _, c := range clauses {
		for _, d := range c.DocIDs() {
			counts[d]++
		}
	}
	var out []uint64
	for d, n := range counts {
		if n == len(clauses) {
			out = append(out, d)
		}
	}
	return out
}

// SpanOr unions clauses' spans per document.
func SpanOr(clauses []SpanMatcher) SpanMatcher {
	result := &spanTermMatcher{byDoc: make(map[uint64][]Span)}
	seen := make(map[uint64]bool)
	for _, c := range clauses {
		for _, d := range c.DocIDs() {
			result.byDoc[d] = append(result.byDoc[d], c.Spans(d)...)
			if !seen[d] {
				seen[d] = true
				result.ids = append(result.ids, d)
			}
		}
	}
	return result
}

// SpanContaining keeps only big's spans whose range contains at least one
// of little's spans in the same document.
func SpanContaining(big, little SpanMatcher) SpanMatcher {
	result := &spanTermMatcher{byDoc: make(map[uint64][]Span)}
	for _, doc := range big.DocIDs() {
		var kept []Span
		littleSpans := little.Spans(doc)
		for _, b := range big.Spans(doc) {
			for _, l := range littleSpans {
				if l.StartPos >= b.StartPos && l.EndPos <= b.EndPos {
					kept = append(kept, b)
					break
				}
			}
		}
		if len(kept) > 0 {
			result.byDoc[doc] = kept
			result.ids = append(result.ids, doc)
		}
	}
	return result
}
