package lexical

import "sort"

// TermStats is the per-term statistics the dictionary stores alongside the
// posting-list pointer (§4.2).
type TermStats struct {
	Term          string
	DocFreq       int
	TotalTermFreq int64
	postings      *PostingList // resolved in-memory posting list for this term
}

// Postings returns the resolved posting list for this term entry.
func (t *TermStats) Postings() *PostingList { return t.postings }

// Dictionary stores one field's terms in sorted order with random access,
// and yields TermsEnum cursors over them (§4.2).
type Dictionary struct {
	field string
	terms []*TermStats // sorted by Term
}

// NewDictionary builds a sorted dictionary from an unordered term→postings
// map (used when sealing a segment).
func NewDictionary(field string, byTerm map[string]*PostingList) *Dictionary {
	d := &Dictionary{field: field}
	for term, pl := range byTerm {
		var ttf int64
		for _, p := range pl.postings {
			ttf += int64(p.TermFreq)
		}
		d.terms = append(d.terms, &TermStats{
			Term:          term,
			DocFreq:       len(pl.postings),
			TotalTermFreq: ttf,
			postings:      pl,
		})
	}
	sort.Slice(d.terms, func(i, j int) bool { return d.terms[i].Term < d.terms[j].Term })
	return d
}

// Field returns the field name this dictionary indexes.
func (d *Dictionary) Field() string { return d.field }

// Len returns the number of distinct terms.
func (d *Dictionary) Len() int { return len(d.terms) }

// Lookup returns the TermStats for an exact term match.
func (d *Dictionary) Lookup(term string) (*TermStats, bool) {
	i := sort.Search(len(d.terms), func(i int) bool { return d.terms[i].Term >= term })
	if i < len(d.terms) && d.terms[i].Term == term {
		return d.terms[i], true
	}
	return nil, false
}

// Iterator returns a TermsEnum positioned before the first term.
func (d *Dictionary) Iterator() *TermsEnum {
	return &TermsEnum{dict: d, idx: -1}
}

// TermsEnum is a sorted cursor over a Dictionary's terms with seek support
// (§4.2). The zero value is not usable; obtain one via Dictionary.Iterator.
type TermsEnum struct {
	dict *Dictionary
	idx  int
}

// Next advances to the next term and returns its stats, or nil at the end.
func (e *TermsEnum) Next() *TermStats {
	e.idx++
	if e.idx >= len(e.dict.terms) {
		e.idx = len(e.dict.terms)
		return nil
	}
	return e.dict.terms[e.idx]
}

// Seek positions the enum at the smallest term ≥ target, returning true iff
// it is an exact match.
func (e *TermsEnum) Seek(target string) bool {
	i := sort.Search(len(e.dict.terms), func(i int) bool { return e.dict.terms[i].Term >= target })
	e.idx = i
	return i < len(e.dict.terms) && e.dict.terms[i].Term == target
}

// SeekExact positions the enum at target and returns whether it was found;
// on failure the enum's position is unspecified for Next.
func (e *TermsEnum) SeekExact(target string) bool {
	return e.Seek(target)
}

// Current returns the term at the enum's current position, or nil if
// before the first or past the last call to Next/Seek.
func (e *TermsEnum) Current() *TermStats {
	if e.idx < 0 || e.idx >= len(e.dict.terms) {
		return nil
	}
	return e.dict.terms[e.idx]
}
