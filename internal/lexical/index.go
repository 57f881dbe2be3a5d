// Package lexical implements the BM25 inverted-index subsystem: analysis,
// term dictionary, block-encoded posting lists, matcher/scorer composition,
// the query type tree with multi-term rewrite, a BKD tree for numeric
// range queries, and the segmented InvertedIndex facade tying them
// together (§4.1-§4.7, §4.13).
package lexical

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/emberdb/ember/internal/deletion"
	"github.com/emberdb/ember/internal/storage"
)

// ScoredDoc pairs a matched document id with its computed score.
type ScoredDoc struct {
	DocID uint64
	Score float64
}

// InvertedIndex is the multi-segment lexical index: new documents accumulate
// in an open SegmentBuilder; Commit seals it into an immutable, persisted
// Segment. Because document ids are assigned by a single monotonically
// increasing counter upstream (the DocumentStore), postings in
// later-sealed segments are always for doc ids greater than every id in
// earlier segments — so a term's matches across segments can be obtained
// by querying each segment independently and concatenating, with no
// cross-segment heap merge required (§4.13).
type InvertedIndex struct {
	mu       sync.RWMutex
	backend  storage.Storage
	analyzer Analyzer
	dels     *deletion.Manager

	builder  *SegmentBuilder
	segments []*Segment
	nextSeq  int
}

// Open creates or reopens an InvertedIndex rooted at backend.
func Open(backend storage.Storage, analyzer Analyzer) (*InvertedIndex, error) {
	idx := &InvertedIndex{
		backend:  backend,
		analyzer: analyzer,
		dels:     deletion.NewManager(backend),
		builder:  NewSegmentBuilder(analyzer),
	}
	names, err := backend.List()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	for _, name := range names {
		if len(name) < 8 || name[len(name)-7:] != ".lexseg" {
			continue
		}
		seg, err := LoadSegment(backend, name)
		if err != nil {
			return nil, err
		}
		idx.segments = append(idx.segments, seg)
		idx.nextSeq++
		b := deletion.NewBitmap(name, seg.maxDoc, 0, seg.maxDoc)
		if existing, loadErr := deletion.Load(backend, name+".delmap"); loadErr == nil {
			b = existing
		}
		idx.dels.Track(b)
	}
	return idx, nil
}

// AddTextField stages a text field for docID in the currently open segment.
func (idx *InvertedIndex) AddTextField(docID uint64, field, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.builder.AddTextField(docID, field, text)
	idx.builder.MarkDoc(docID)
}

// AddNumericField stages a numeric field for docID.
func (idx *InvertedIndex) AddNumericField(docID uint64, field string, value float64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.builder.AddNumericField(docID, field, value)
	idx.builder.MarkDoc(docID)
}

// Delete marks docID logically deleted in whichever segment currently
// contains it.
func (idx *InvertedIndex) Delete(docID uint64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, seg := range idx.segments {
		if docID < seg.maxDoc {
			return idx.dels.DeleteDocument(seg.ID, docID)
		}
	}
	return nil
}

// Commit seals the open segment (if it has any staged documents), persists
// it, and tracks a fresh deletion bitmap for it.
func (idx *InvertedIndex) Commit() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(idx.builder.docIDs) == 0 {
		return nil
	}
	seg := idx.builder.Seal()
	name := fmt.Sprintf("%05d.lexseg", idx.nextSeq)
	seg.ID = name
	if err := seg.Persist(idx.backend, name); err != nil {
		return err
	}
	idx.segments = append(idx.segments, seg)
	idx.nextSeq++
	idx.dels.Track(deletion.NewBitmap(name, seg.maxDoc, 0, seg.maxDoc))
	idx.builder = NewSegmentBuilder(idx.analyzer)
	return nil
}

// Deletions exposes the segment deletion bitmaps so a caller can decide
// when compaction is worthwhile (e.g. via GlobalRatio/CompactionCandidates)
// without the index needing its own opinion on scheduling (§4.12).
func (idx *InvertedIndex) Deletions() *deletion.Manager {
	return idx.dels
}

// Search runs query against every sealed segment, filters logically
// deleted documents, and returns the top-k hits sorted by descending
// score (ties broken by ascending doc id). Segments are independent and
// immutable once sealed, so each is scanned on its own goroutine (§5's
// per-clause/per-segment parallel execution) and the per-segment hit
// lists are concatenated once every segment finishes.
func (idx *InvertedIndex) Search(query Query, topK int) []ScoredDoc {
	idx.mu.RLock()
	segments := append([]*Segment(nil), idx.segments...)
	idx.mu.RUnlock()

	perSegment := make([][]ScoredDoc, len(segments))
	var g errgroup.Group
	for i, seg := range segments {
		i, seg := i, seg
		g.Go(func() error {
			scorer := query.Scorer(seg)
			m := query.Matcher(seg)
			var segHits []ScoredDoc
			for m.Next() {
				doc := m.DocID()
				if idx.dels.IsDeleted(seg.ID, doc) {
					continue
				}
				segHits = append(segHits, ScoredDoc{DocID: doc, Score: scorer(doc, m.TermFreq())})
			}
			perSegment[i] = segHits
			return nil
		})
	}
	_ = g.Wait()

	var hits []ScoredDoc
	for _, segHits := range perSegment {
		hits = append(hits, segHits...)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// Optimize rewrites every segment whose deletion ratio makes it a
// compaction candidate, dropping tombstoned documents' postings and
// length entries in place (§4.12). Since postings already carry every
// term occurrence and position, compaction is a filter over the existing
// dictionary rather than a re-tokenization of source text.
func (idx *InvertedIndex) Optimize() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	candidates := idx.dels.CompactionCandidates()
	for _, id := range candidates {
		for _, seg := range idx.segments {
			if seg.ID != id {
				continue
			}
			compactSegment(seg, idx.dels)
			if err := seg.Persist(idx.backend, seg.ID); err != nil {
				return err
			}
			idx.dels.Untrack(id)
			idx.dels.Track(deletionFreshBitmap(id, seg.maxDoc))
		}
	}
	return nil
}

func deletionFreshBitmap(id string, maxDoc uint64) *deletion.Bitmap {
	return deletion.NewBitmap(id, maxDoc, 0, maxDoc)
}

// compactSegment drops every posting and length entry belonging to a
// doc id the deletion manager marks deleted in seg, in place.
func compactSegment(seg *Segment, dels *deletion.Manager) {
	for field, dict := range seg.dicts {
		byTerm := make(map[string]*PostingList)
		enum := dict.Iterator()
		for ts := enum.Next(); ts != nil; ts = enum.Next() {
			filtered := NewPostingList()
			for i := 0; i < ts.Postings().Len(); i++ {
				p := ts.Postings().At(i)
				if !dels.IsDeleted(seg.ID, p.DocID) {
					filtered.Append(p)
				}
			}
			if filtered.Len() == 0 {
				continue
			}
			filtered.Finalize()
			byTerm[ts.Term] = filtered
		}
		seg.dicts[field] = NewDictionary(field, byTerm)

		lengths := seg.lengths[field]
		for docID := range lengths {
			if dels.IsDeleted(seg.ID, docID) {
				delete(lengths, docID)
			}
		}
		seg.docCount[field] = len(lengths)
	}
}
