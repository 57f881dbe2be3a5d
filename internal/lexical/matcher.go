package lexical

// NoMoreDocs is the sentinel doc id returned once a Matcher is exhausted.
const NoMoreDocs = ^uint64(0)

// Matcher is a positioned cursor over an ordered document id stream (§4.3).
type Matcher interface {
	DocID() uint64
	Next() bool
	Advance(target uint64) bool
	TermFreq() uint32
	IsExhausted() bool
}

// TermMatcher walks one posting list using its block skip index.
type TermMatcher struct {
	pl      *PostingList
	idx     int
	started bool
}

func NewTermMatcher(pl *PostingList) *TermMatcher {
	return &TermMatcher{pl: pl, idx: -1}
}

func (m *TermMatcher) DocID() uint64 {
	if m.idx < 0 || m.idx >= m.pl.Len() {
		return NoMoreDocs
	}
	return m.pl.At(m.idx).DocID
}

func (m *TermMatcher) Next() bool {
	m.idx++
	m.started = true
	return m.idx < m.pl.Len()
}

func (m *TermMatcher) Advance(target uint64) bool {
	from := m.idx
	if from < 0 {
		from = 0
	}
	m.idx = m.pl.AdvanceIndex(from, target)
	m.started = true
	return m.idx < m.pl.Len()
}

func (m *TermMatcher) TermFreq() uint32 {
	if m.idx < 0 || m.idx >= m.pl.Len() {
		return 0
	}
	return m.pl.At(m.idx).TermFreq
}

func (m *TermMatcher) Positions() []int {
	if m.idx < 0 || m.idx >= m.pl.Len() {
		return nil
	}
	return m.pl.At(m.idx).Positions
}

func (m *TermMatcher) IsExhausted() bool { return m.idx >= m.pl.Len() }

// EmptyMatcher never matches any document.
type EmptyMatcher struct{}

func (EmptyMatcher) DocID() uint64         { return NoMoreDocs }
func (EmptyMatcher) Next() bool            { return false }
func (EmptyMatcher) Advance(uint64) bool   { return false }
func (EmptyMatcher) TermFreq() uint32      { return 0 }
func (EmptyMatcher) IsExhausted() bool     { return true }

// AllMatcher matches every doc id in [0, maxDoc).
type AllMatcher struct {
	maxDoc uint64
	cur    uint64
	begun  bool
}

func NewAllMatcher(maxDoc uint64) *AllMatcher { return &AllMatcher{maxDoc: maxDoc} }

func (m *AllMatcher) DocID() uint64 {
	if !m.begun || m.cur >= m.maxDoc {
		if !m.begun {
			return NoMoreDocs
		}
	}
	if m.cur >= m.maxDoc {
		return NoMoreDocs
	}
	return m.cur
}

func (m *AllMatcher) Next() bool {
	if !m.begun {
		m.begun = true
		m.cur = 0
	} else {
		m.cur++
	}
	return m.cur < m.maxDoc
}

func (m *AllMatcher) Advance(target uint64) bool {
	m.begun = true
	if target > m.cur || !m.begun {
		m.cur = target
	}
	return m.cur < m.maxDoc
}

func (m *AllMatcher) TermFreq() uint32  { return 1 }
func (m *AllMatcher) IsExhausted() bool { return m.begun && m.cur >= m.maxDoc }

// ConjunctionMatcher intersects its children: repeatedly advance the
// lowest-doc child to the highest-doc child until all children align.
type ConjunctionMatcher struct {
	children []Matcher
	cur      uint64
	started  bool
}

func NewConjunctionMatcher(children []Matcher) Matcher {
	if len(children) == 0 {
		return EmptyMatcher{}
	}
	return &ConjunctionMatcher{children: children}
}

func (m *ConjunctionMatcher) DocID() uint64 {
	if !m.started {
		return NoMoreDocs
	}
	return m.cur
}

func (m *ConjunctionMatcher) Next() bool {
	if !m.started {
		m.started = true
		for _, c := range m.children {
			if !c.Next() {
				m.cur = NoMoreDocs
				return false
			}
		}
		return m.align()
	}
	if !m.children[0].Next() {
		m.cur = NoMoreDocs
		return false
	}
	return m.align()
}

func (m *ConjunctionMatcher) align() bool {
	for {
		maxDoc := uint64(0)
		for _, c := range m.children {
			if d := c.DocID(); d > maxDoc {
				maxDoc = d
			}
			if c.DocID() == NoMoreDocs {
				m.cur = NoMoreDocs
				return false
			}
		}
		allMatch := true
		for _, c := range m.children {
			if c.DocID() != maxDoc {
				allMatch = false
				if !c.Advance(maxDoc) || c.DocID() == NoMoreDocs {
					m.cur = NoMoreDocs
					return false
				}
			}
		}
		if allMatch {
			m.cur = maxDoc
			return true
		}
	}
}

func (m *ConjunctionMatcher) Advance(target uint64) bool {
	m.started = true
	for _, c := range m.children {
		if !c.Advance(target) {
			m.cur = NoMoreDocs
			return false
		}
	}
	return m.align()
}

func (m *ConjunctionMatcher) TermFreq() uint32 {
	var sum uint32
	for _, c := range m.children {
		sum += c.TermFreq()
	}
	return sum
}

func (m *ConjunctionMatcher) IsExhausted() bool { return m.started && m.cur == NoMoreDocs }

// DisjunctionMatcher unions children, keyed by the minimum current doc id
// across all of them. With typically few clauses a linear scan for the
// minimum is simpler than a heap and has the same O(children) cost per step.
type DisjunctionMatcher struct {
	children []Matcher
	cur      uint64
	curFreq  uint32
	started  bool
}

func NewDisjunctionMatcher(children []Matcher) Matcher {
	live := children[:0:0]
	for _, c := range children {
		live = append(live, c)
	}
	if len(live) == 0 {
		return EmptyMatcher{}
	}
	if len(live) == 1 {
		return live[0]
	}
	return &DisjunctionMatcher{children: live}
}

func (m *DisjunctionMatcher) DocID() uint64 {
	if !m.started {
		return NoMoreDocs
	}
	return m.cur
}

func (m *DisjunctionMatcher) Next() bool {
	if !m.started {
		m.started = true
		nextDoc := NoMoreDocs
		for _, c := range m.children {
			if c.Next() && c.DocID() < nextDoc {
				nextDoc = c.DocID()
			}
		}
		return m.settle(nextDoc)
	}
	// Advance every child currently positioned at m.cur, then find the new minimum.
	for _, c := range m.children {
		if c.DocID() == m.cur {
			c.Next()
		}
	}
	return m.settle(m.minDoc())
}

func (m *DisjunctionMatcher) minDoc() uint64 {
	best := NoMoreDocs
	for _, c := range m.children {
		if d := c.DocID(); d < best {
			best = d
		}
	}
	return best
}

func (m *DisjunctionMatcher) settle(doc uint64) bool {
	if doc == NoMoreDocs {
		m.cur = NoMoreDocs
		return false
	}
	m.cur = doc
	var freq uint32
	for _, c := range m.children {
		if c.DocID() == doc {
			freq += c.TermFreq()
		}
	}
	m.curFreq = freq
	return true
}

func (m *DisjunctionMatcher) Advance(target uint64) bool {
	m.started = true
	for _, c := range m.children {
		if c.DocID() < target {
			c.Advance(target)
		}
	}
	return m.settle(m.minDoc())
}

func (m *DisjunctionMatcher) TermFreq() uint32 { return m.curFreq }

func (m *DisjunctionMatcher) IsExhausted() bool { return m.started && m.cur == NoMoreDocs }

// NotMatcher walks {0..maxDoc} \ child.
type NotMatcher struct {
	child  Matcher
	maxDoc uint64
	cur    uint64
	begun  bool
}

func NewNotMatcher(child Matcher, maxDoc uint64) Matcher {
	return &NotMatcher{child: child, maxDoc: maxDoc}
}

func (m *NotMatcher) DocID() uint64 {
	if !m.begun {
		return NoMoreDocs
	}
	return m.cur
}

func (m *NotMatcher) Next() bool {
	start := uint64(0)
	if m.begun {
		start = m.cur + 1
	}
	m.begun = true
	return m.advanceFrom(start)
}

func (m *NotMatcher) advanceFrom(from uint64) bool {
	if !m.child.IsExhausted() && m.child.DocID() == NoMoreDocs {
		m.child.Next() // start the child's cursor on first use
	}
	if !m.child.IsExhausted() && m.child.DocID() < from {
		m.child.Advance(from)
	}
	for d := from; d < m.maxDoc; d++ {
		if m.child.DocID() != d {
			m.cur = d
			return true
		}
		m.child.Next()
	}
	m.cur = NoMoreDocs
	return false
}

func (m *NotMatcher) Advance(target uint64) bool {
	m.begun = true
	return m.advanceFrom(target)
}

func (m *NotMatcher) TermFreq() uint32  { return 1 }
func (m *NotMatcher) IsExhausted() bool { return m.begun && m.cur == NoMoreDocs }

// ConjunctionNotMatcher intersects positive with the complement of every
// negative matcher.
func NewConjunctionNotMatcher(positive Matcher, negatives []Matcher, maxDoc uint64) Matcher {
	if len(negatives) == 0 {
		return positive
	}
	notChildren := make([]Matcher, 0, len(negatives)+1)
	notChildren = append(notChildren, positive)
	for _, n := range negatives {
		notChildren = append(notChildren, NewNotMatcher(n, maxDoc))
	}
	return NewConjunctionMatcher(notChildren)
}
