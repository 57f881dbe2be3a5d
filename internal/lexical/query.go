package lexical

// Reader is the per-segment read surface a Query needs to build a Matcher
// and Scorer (§4.5). The multi-segment InvertedIndex composes per-segment
// results from this contract.
type Reader interface {
	Dictionary(field string) (*Dictionary, bool)
	DocCount(field string) int
	AvgFieldLen(field string) float64
	FieldLength(docID uint64, field string) int
	MaxDoc() uint64
	BKD(field string) (*BKDTree, bool)
}

// Query is the tagged-variant contract every query type implements (§4.5).
type Query interface {
	Matcher(r Reader) Matcher
	Scorer(r Reader) func(docID uint64, freq uint32) float64
	Boost() float64
	SetBoost(b float64)
	Description() string
	IsEmpty(r Reader) bool
	Clone() Query
}

// baseQuery factors the boost field shared by every concrete query.
type baseQuery struct {
	boost float64
}

func (b *baseQuery) Boost() float64    { return orDefault(b.boost) }
func (b *baseQuery) SetBoost(v float64) { b.boost = v }

func orDefault(b float64) float64 {
	if b == 0 {
		return 1
	}
	return b
}

// TermQuery matches a single analyzed term in one field.
type TermQuery struct {
	baseQuery
	Field string
	Term  string
}

func NewTermQuery(field, term string) *TermQuery { return &TermQuery{Field: field, Term: term} }

func (q *TermQuery) termStats(r Reader) (*TermStats, bool) {
	d, ok := r.Dictionary(q.Field)
	if !ok {
		return nil, false
	}
	return d.Lookup(q.Term)
}

func (q *TermQuery) Matcher(r Reader) Matcher {
	ts, ok := q.termStats(r)
	if !ok {
		return EmptyMatcher{}
	}
	return NewTermMatcher(ts.Postings())
}

func (q *TermQuery) Scorer(r Reader) func(uint64, uint32) float64 {
	ts, ok := q.termStats(r)
	if !ok {
		return func(uint64, uint32) float64 { return 0 }
	}
	scorer := NewBM25Scorer(DefaultBM25Params(), r.DocCount(q.Field), ts.DocFreq, r.AvgFieldLen(q.Field))
	boost := q.Boost()
	return func(docID uint64, freq uint32) float64 {
		return boost * scorer.Score(freq, r.FieldLength(docID, q.Field))
	}
}

func (q *TermQuery) Description() string { return "term(" + q.Field + ":" + q.Term + ")" }
func (q *TermQuery) IsEmpty(r Reader) bool {
	_, ok := q.termStats(r)
	return !ok
}
func (q *TermQuery) Clone() Query { c := *q; return &c }

// PhraseQuery requires its terms to occur consecutively (modulo slop) in
// the given field, in order.
type PhraseQuery struct {
	baseQuery
	Field string
	Terms []string
	Slop  int
}

func NewPhraseQuery(field string, terms []string) *PhraseQuery {
	return &PhraseQuery{Field: field, Terms: terms}
}

func (q *PhraseQuery) termMatchers(r Reader) ([]*TermMatcher, bool) {
	d, ok := r.Dictionary(q.Field)
	if !ok {
		return nil, false
	}
	out := make([]*TermMatcher, len(q.Terms))
	for i, t := range q.Terms {
		ts, ok := d.Lookup(t)
		if !ok {
			return nil, false
		}
		out[i] = NewTermMatcher(ts.Postings())
	}
	return out, true
}

func (q *PhraseQuery) Matcher(r Reader) Matcher {
	tms, ok := q.termMatchers(r)
	if !ok || len(tms) == 0 {
		return EmptyMatcher{}
	}
	children := make([]Matcher, len(tms))
	for i, t := range tms {
		children[i] = t
	}
	conj := NewConjunctionMatcher(children)
	return &phraseMatcher{inner: conj, terms: tms, slop: q.Slop}
}

// phraseMatcher wraps the conjunction of term matchers with the
// positional check (§4.5): positions must increase by one per term
// (slop widens the allowed gap).
type phraseMatcher struct {
	inner Matcher
	terms []*TermMatcher
	slop  int
	cur   uint64
}

func (p *phraseMatcher) positionsMatch() bool {
	first := p.terms[0].Positions()
	for _, start := range first {
		ok := true
		prev := start
		for i := 1; i < len(p.terms); i++ {
			want := start + i
			found := false
			for _, pos := range p.terms[i].Positions() {
				if pos > prev && pos >= want-p.slop && pos <= want+p.slop {
					found = true
					prev = pos
					break
				}
			}
			if !found {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func (p *phraseMatcher) advanceToMatch() bool {
	for p.inner.DocID() != NoMoreDocs {
		if p.positionsMatch() {
			p.cur = p.inner.DocID()
			return true
		}
		if !p.inner.Next() {
			break
		}
	}
	p.cur = NoMoreDocs
	return false
}

func (p *phraseMatcher) DocID() uint64 { return p.cur }
func (p *phraseMatcher) Next() bool {
	if !p.inner.Next() {
		p.cur = NoMoreDocs
		return false
	}
	return p.advanceToMatch()
}
func (p *phraseMatcher) Advance(target uint64) bool {
	if !p.inner.Advance(target) {
		p.cur = NoMoreDocs
		return false
	}
	return p.advanceToMatch()
}
func (p *phraseMatcher) TermFreq() uint32  { return 1 }
func (p *phraseMatcher) IsExhausted() bool { return p.cur == NoMoreDocs }

func (q *PhraseQuery) Scorer(r Reader) func(uint64, uint32) float64 {
	docCount := r.DocCount(q.Field)
	avgLen := r.AvgFieldLen(q.Field)
	d, _ := r.Dictionary(q.Field)
	var sumIDF float64
	if d != nil {
		for _, t := range q.Terms {
			if ts, ok := d.Lookup(t); ok {
				sumIDF += NewBM25Scorer(DefaultBM25Params(), docCount, ts.DocFreq, avgLen).IDF()
			}
		}
	}
	boost := q.Boost()
	return func(docID uint64, freq uint32) float64 { return boost * sumIDF }
}

func (q *PhraseQuery) Description() string { return "phrase(" + q.Field + ")" }
func (q *PhraseQuery) IsEmpty(r Reader) bool {
	_, ok := q.termMatchers(r)
	return !ok
}
func (q *PhraseQuery) Clone() Query {
	c := *q
	c.Terms = append([]string(nil), q.Terms...)
	return &c
}

// NumericRangeQuery delegates to a BKD tree (§4.7) and wraps the returned
// doc id set as a matcher.
type NumericRangeQuery struct {
	baseQuery
	Field                      string
	Min, Max                   float64
	HasMin, HasMax             bool
	InclusiveMin, InclusiveMax bool
}

func (q *NumericRangeQuery) docIDs(r Reader) []uint64 {
	bkd, ok := r.BKD(q.Field)
	if !ok {
		return nil
	}
	min, max := q.Min, q.Max
	if !q.HasMin {
		min = negInf
	}
	if !q.HasMax {
		max = posInf
	}
	return bkd.Range(min, max, q.InclusiveMin, q.InclusiveMax)
}

func (q *NumericRangeQuery) Matcher(r Reader) Matcher {
	ids := q.docIDs(r)
	if len(ids) == 0 {
		return EmptyMatcher{}
	}
	return NewDocIDSetMatcher(ids)
}

func (q *NumericRangeQuery) Scorer(Reader) func(uint64, uint32) float64 {
	boost := q.Boost()
	return func(uint64, uint32) float64 { return boost }
}
func (q *NumericRangeQuery) Description() string { return "range(" + q.Field + ")" }
func (q *NumericRangeQuery) IsEmpty(r Reader) bool { return len(q.docIDs(r)) == 0 }
func (q *NumericRangeQuery) Clone() Query          { c := *q; return &c }

// DocIDSetMatcher walks a precomputed, sorted set of doc ids (used by
// range and geo queries that resolve via an index rather than postings).
type DocIDSetMatcher struct {
	ids []uint64
	idx int
}

func NewDocIDSetMatcher(ids []uint64) *DocIDSetMatcher {
	return &DocIDSetMatcher{ids: ids, idx: -1}
}

func (m *DocIDSetMatcher) DocID() uint64 {
	if m.idx < 0 || m.idx >= len(m.ids) {
		return NoMoreDocs
	}
	return m.ids[m.idx]
}
func (m *DocIDSetMatcher) Next() bool {
	m.idx++
	return m.idx < len(m.ids)
}
func (m *DocIDSetMatcher) Advance(target uint64) bool {
	for m.idx < len(m.ids) && m.ids[m.idx] < target {
		m.idx++
	}
	if m.idx < 0 {
		m.idx = 0
	}
	return m.idx < len(m.ids)
}
func (m *DocIDSetMatcher) TermFreq() uint32  { return 1 }
func (m *DocIDSetMatcher) IsExhausted() bool { return m.idx >= len(m.ids) }

// Clause is one member of a BooleanQuery (§4.5).
type Clause struct {
	Query Query
	Occur Occur
}

// BooleanQuery composes clauses per occur kind (§4.5 execution algorithm).
type BooleanQuery struct {
	baseQuery
	Clauses            []Clause
	MinimumShouldMatch int
}

func NewBooleanQuery(clauses ...Clause) *BooleanQuery { return &BooleanQuery{Clauses: clauses} }

func (q *BooleanQuery) split() (must, should, mustNot, filter []Query) {
	for _, c := range q.Clauses {
		switch c.Occur {
		case Must:
			must = append(must, c.Query)
		case Should:
			should = append(should, c.Query)
		case MustNot:
			mustNot = append(mustNot, c.Query)
		case Filter:
			filter = append(filter, c.Query)
		}
	}
	return
}

func (q *BooleanQuery) Matcher(r Reader) Matcher {
	if len(q.Clauses) == 0 {
		return EmptyMatcher{}
	}
	must, should, mustNot, filter := q.split()
	required := append(append([]Query{}, must...), filter...)

	var base Matcher
	switch {
	case len(required) > 0:
		children := make([]Matcher, len(required))
		for i, sub := range required {
			children[i] = sub.Matcher(r)
		}
		base = NewConjunctionMatcher(children)
		if q.MinimumShouldMatch > 0 && len(should) > 0 {
			shouldChildren := make([]Matcher, len(should))
			for i, sub := range should {
				shouldChildren[i] = sub.Matcher(r)
			}
			base = NewConjunctionMatcher([]Matcher{base, NewDisjunctionMatcher(shouldChildren)})
		}
	case len(should) > 0:
		shouldChildren := make([]Matcher, len(should))
		for i, sub := range should {
			shouldChildren[i] = sub.Matcher(r)
		}
		base = NewDisjunctionMatcher(shouldChildren)
	case len(mustNot) > 0:
		// All clauses are MustNot: complement over every doc (§4.5).
		base = NewAllMatcher(r.MaxDoc())
	default:
		return EmptyMatcher{}
	}

	if len(mustNot) > 0 {
		negatives := make([]Matcher, len(mustNot))
		for i, sub := range mustNot {
			negatives[i] = sub.Matcher(r)
		}
		base = NewConjunctionNotMatcher(base, negatives, r.MaxDoc())
	}
	return base
}

func (q *BooleanQuery) Scorer(r Reader) func(uint64, uint32) float64 {
	must, should, _, filter := q.split()
	type sub struct {
		occur  Occur
		scorer func(uint64, uint32) float64
	}
	var subs []sub
	for _, s := range must {
		subs = append(subs, sub{Must, s.Scorer(r)})
	}
	for _, s := range filter {
		subs = append(subs, sub{Filter, s.Scorer(r)})
	}
	for _, s := range should {
		subs = append(subs, sub{Should, s.Scorer(r)})
	}
	boost := q.Boost()
	return func(docID uint64, freq uint32) float64 {
		clauses := make([]ClauseScore, 0, len(subs))
		for _, s := range subs {
			clauses = append(clauses, ClauseScore{Occur: s.occur, Score: s.scorer(docID, freq)})
		}
		return BooleanScorer(clauses, boost)
	}
}

func (q *BooleanQuery) Description() string { return "bool" }
func (q *BooleanQuery) IsEmpty(r Reader) bool {
	if len(q.Clauses) == 0 {
		return true
	}
	must, should, _, filter := q.split()
	if len(must) == 0 && len(filter) == 0 && len(should) == 0 {
		return false // pure MustNot: AllMatcher minus negatives, non-empty unless max_doc==0
	}
	for _, s := range must {
		if s.IsEmpty(r) {
			return true
		}
	}
	for _, s := range filter {
		if s.IsEmpty(r) {
			return true
		}
	}
	if len(must) == 0 && len(filter) == 0 {
		if len(should) == 0 {
			return true
		}
		for _, s := range should {
			if !s.IsEmpty(r) {
				return false
			}
		}
		return true
	}
	return false
}
func (q *BooleanQuery) Clone() Query {
	c := *q
	c.Clauses = append([]Clause(nil), q.Clauses...)
	return &c
}

const (
	negInf = -1 << 62
	posInf = 1 << 62
)
