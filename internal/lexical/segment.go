package lexical

import (
	"sort"

	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/ioutil"
	"github.com/emberdb/ember/internal/storage"
)

func errSegmentVersion() error {
	return errkind.New(errkind.Corruption, "lexical.load_segment", "unsupported segment version")
}

var segmentMagic = [4]byte{'L', 'S', 'E', 'G'}

const segmentVersion = 1

// fieldAccumulator builds one field's dictionary and length stats while a
// segment is open for writing.
type fieldAccumulator struct {
	postings  map[string]*PostingList
	lengths   map[uint64]int
	totalLen  int64
	numericPts []bkdPoint
	isNumeric bool
}

func newFieldAccumulator() *fieldAccumulator {
	return &fieldAccumulator{postings: make(map[string]*PostingList), lengths: make(map[uint64]int)}
}

// SegmentBuilder accumulates analyzed documents into per-field dictionaries
// and numeric indexes, in the order documents are added (§4.2, §4.7).
// Callers pass the document's already-assigned global doc id, so postings
// across segments remain globally ordered without any extra bookkeeping.
type SegmentBuilder struct {
	analyzer Analyzer
	fields   map[string]*fieldAccumulator
	docIDs   []uint64
}

// NewSegmentBuilder starts an empty segment using analyzer for text fields.
func NewSegmentBuilder(analyzer Analyzer) *SegmentBuilder {
	return &SegmentBuilder{analyzer: analyzer, fields: make(map[string]*fieldAccumulator)}
}

// AddTextField analyzes text and appends its postings under field for
// docID. Call once per (doc, field) pair; docIDs must be added in
// increasing order across the whole builder.
func (b *SegmentBuilder) AddTextField(docID uint64, field, text string) {
	fa, ok := b.fields[field]
	if !ok {
		fa = newFieldAccumulator()
		b.fields[field] = fa
	}
	tokens := b.analyzer.Analyze(text)
	fa.lengths[docID] = len(tokens)
	fa.totalLen += int64(len(tokens))

	byTerm := make(map[string][]int)
	for _, t := range tokens {
		byTerm[t.Text] = append(byTerm[t.Text], t.Position)
	}
	terms := make([]string, 0, len(byTerm))
	for t := range byTerm {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	for _, term := range terms {
		pl, ok := fa.postings[term]
		if !ok {
			pl = NewPostingList()
			fa.postings[term] = pl
		}
		positions := byTerm[term]
		pl.Append(Posting{DocID: docID, TermFreq: uint32(len(positions)), Positions: positions})
	}
}

// AddNumericField records a single-dimension numeric doc value for the BKD
// tree built when the segment is sealed.
func (b *SegmentBuilder) AddNumericField(docID uint64, field string, value float64) {
	fa, ok := b.fields[field]
	if !ok {
		fa = newFieldAccumulator()
		b.fields[field] = fa
	}
	fa.isNumeric = true
	fa.numericPts = append(fa.numericPts, bkdPoint{vals: []float64{value}, docID: docID})
}

// MarkDoc registers docID as present in the segment even if it contributed
// no indexed field (keeps MaxDoc/doc-count bookkeeping accurate).
func (b *SegmentBuilder) MarkDoc(docID uint64) {
	b.docIDs = append(b.docIDs, docID)
}

// Seal finalizes every field's dictionary and numeric index and returns the
// queryable Segment.
func (b *SegmentBuilder) Seal() *Segment {
	s := &Segment{
		dicts:    make(map[string]*Dictionary),
		lengths:  make(map[string]map[uint64]int),
		docCount: make(map[string]int),
		avgLen:   make(map[string]float64),
		bkd:      make(map[string]*BKDTree),
	}
	var maxDoc uint64
	for _, id := range b.docIDs {
		if id+1 > maxDoc {
			maxDoc = id + 1
		}
	}
	for field, fa := range b.fields {
		for _, pl := range fa.postings {
			pl.Finalize()
			for _, p := range pl.postings {
				if p.DocID+1 > maxDoc {
					maxDoc = p.DocID + 1
				}
			}
		}
		if fa.isNumeric {
			s.bkd[field] = NewBKDTree(fa.numericPts, 1)
			continue
		}
		s.dicts[field] = NewDictionary(field, fa.postings)
		s.lengths[field] = fa.lengths
		s.docCount[field] = len(fa.lengths)
		if len(fa.lengths) > 0 {
			s.avgLen[field] = float64(fa.totalLen) / float64(len(fa.lengths))
		}
	}
	s.maxDoc = maxDoc
	return s
}

// Segment is one sealed, immutable chunk of the inverted index: a
// dictionary and length statistics per text field, and a BKD tree per
// numeric field (§4.13). It implements Reader directly.
type Segment struct {
	ID       string
	dicts    map[string]*Dictionary
	lengths  map[string]map[uint64]int
	docCount map[string]int
	avgLen   map[string]float64
	bkd      map[string]*BKDTree
	maxDoc   uint64
}

func (s *Segment) Dictionary(field string) (*Dictionary, bool) {
	d, ok := s.dicts[field]
	return d, ok
}
func (s *Segment) DocCount(field string) int        { return s.docCount[field] }
func (s *Segment) AvgFieldLen(field string) float64 { return s.avgLen[field] }
func (s *Segment) FieldLength(docID uint64, field string) int {
	return s.lengths[field][docID]
}
func (s *Segment) MaxDoc() uint64 { return s.maxDoc }
func (s *Segment) BKD(field string) (*BKDTree, bool) {
	t, ok := s.bkd[field]
	return t, ok
}

// Persist writes the segment's text-field dictionaries and numeric BKD
// trees to name in backend. BKD trees are written as their flat
// (value, doc_id) point set rather than their internal node layout;
// LoadSegment rebuilds an equivalent tree from those points.
func (s *Segment) Persist(backend storage.Storage, name string) error {
	out, err := backend.CreateOutput(name)
	if err != nil {
		return err
	}
	w := ioutil.NewStructWriter(out)
	if err := w.Header(segmentMagic, segmentVersion); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteU64(s.maxDoc); err != nil {
		_ = w.Close()
		return err
	}
	fields := make([]string, 0, len(s.dicts))
	for f := range s.dicts {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	if err := w.WriteVarint(uint64(len(fields))); err != nil {
		_ = w.Close()
		return err
	}
	for _, field := range fields {
		if err := writeField(w, field, s); err != nil {
			_ = w.Close()
			return err
		}
	}
	bkdFields := make([]string, 0, len(s.bkd))
	for f := range s.bkd {
		bkdFields = append(bkdFields, f)
	}
	sort.Strings(bkdFields)
	if err := w.WriteVarint(uint64(len(bkdFields))); err != nil {
		_ = w.Close()
		return err
	}
	for _, field := range bkdFields {
		if err := w.WriteString(field); err != nil {
			_ = w.Close()
			return err
		}
		if err := s.bkd[field].EncodeTo(w); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

func writeField(w *ioutil.StructWriter, field string, s *Segment) error {
	if err := w.WriteString(field); err != nil {
		return err
	}
	if err := w.WriteF64(s.avgLen[field]); err != nil {
		return err
	}
	lengths := s.lengths[field]
	if err := w.WriteVarint(uint64(len(lengths))); err != nil {
		return err
	}
	docs := make([]uint64, 0, len(lengths))
	for id := range lengths {
		docs = append(docs, id)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i] < docs[j] })
	for _, id := range docs {
		if err := w.WriteU64(id); err != nil {
			return err
		}
		if err := w.WriteVarint(uint64(lengths[id])); err != nil {
			return err
		}
	}
	d := s.dicts[field]
	if err := w.WriteVarint(uint64(d.Len())); err != nil {
		return err
	}
	enum := d.Iterator()
	for ts := enum.Next(); ts != nil; ts = enum.Next() {
		if err := w.WriteString(ts.Term); err != nil {
			return err
		}
		if err := ts.Postings().EncodeTo(w); err != nil {
			return err
		}
	}
	return nil
}

// LoadSegment reads a segment previously written by Persist.
func LoadSegment(backend storage.Storage, name string) (*Segment, error) {
	in, err := backend.OpenInput(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	r := ioutil.NewStructReader(in)
	version, err := r.Header(segmentMagic)
	if err != nil {
		return nil, err
	}
	if version != segmentVersion {
		return nil, errSegmentVersion()
	}
	maxDoc, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	s := &Segment{
		ID:       name,
		dicts:    make(map[string]*Dictionary),
		lengths:  make(map[string]map[uint64]int),
		docCount: make(map[string]int),
		avgLen:   make(map[string]float64),
		bkd:      make(map[string]*BKDTree),
		maxDoc:   maxDoc,
	}
	fieldCount, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < fieldCount; i++ {
		if err := readField(r, s); err != nil {
			return nil, err
		}
	}
	bkdFieldCount, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < bkdFieldCount; i++ {
		field, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		tree, err := DecodeBKDTree(r)
		if err != nil {
			return nil, err
		}
		s.bkd[field] = tree
	}
	return s, nil
}

func readField(r *ioutil.StructReader, s *Segment) error {
	field, err := r.ReadString()
	if err != nil {
		return err
	}
	avgLen, err := r.ReadF64()
	if err != nil {
		return err
	}
	s.avgLen[field] = avgLen
	lengths := make(map[uint64]int)
	lengthCount, err := r.ReadVarint()
	if err != nil {
		return err
	}
	for i := uint64(0); i < lengthCount; i++ {
		id, err := r.ReadU64()
		if err != nil {
			return err
		}
		l, err := r.ReadVarint()
		if err != nil {
			return err
		}
		lengths[id] = int(l)
	}
	s.lengths[field] = lengths
	s.docCount[field] = len(lengths)

	termCount, err := r.ReadVarint()
	if err != nil {
		return err
	}
	byTerm := make(map[string]*PostingList, termCount)
	for i := uint64(0); i < termCount; i++ {
		term, err := r.ReadString()
		if err != nil {
			return err
		}
		pl, err := DecodePostingList(r)
		if err != nil {
			return err
		}
		byTerm[term] = pl
	}
	s.dicts[field] = NewDictionary(field, byTerm)
	return nil
}
