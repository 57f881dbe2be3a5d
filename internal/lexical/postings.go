package lexical

import (
	"sort"

	"github.com/emberdb/ember/internal/ioutil"
)

// BlockSize is the number of postings per block of the in-memory skip
// index (§4.2). The on-disk form written by EncodeTo is not blocked.
const BlockSize = 128

// Posting is one (doc_id, term frequency, positions) entry for a term.
type Posting struct {
	DocID     uint64
	TermFreq  uint32
	Positions []int
}

type blockMeta struct {
	MaxDocID uint64 // max doc id covered by this block — the skip pointer
	StartIdx int    // index into PostingList.postings where the block starts
}

// PostingList is one term's ordered sequence of postings, blocked for
// skip-list traversal (§4.2). Within a block doc ids are strictly
// ascending; across blocks too, since the whole list is strictly
// ascending by doc_id (§3 invariant).
type PostingList struct {
	postings []Posting
	blocks   []blockMeta // skip index: one entry per block (N=1 block granularity)
}

// NewPostingList returns an empty, appendable posting list.
func NewPostingList() *PostingList { return &PostingList{} }

// Append adds a posting. Callers must append in strictly ascending
// doc_id order (the writer's accumulator guarantees this since doc ids
// are assigned monotonically).
func (pl *PostingList) Append(p Posting) { pl.postings = append(pl.postings, p) }

// Finalize builds the block skip index once all postings are appended.
func (pl *PostingList) Finalize() {
	pl.blocks = pl.blocks[:0]
	for start := 0; start < len(pl.postings); start += BlockSize {
		end := start + BlockSize
		if end > len(pl.postings) {
			end = len(pl.postings)
		}
		pl.blocks = append(pl.blocks, blockMeta{
			MaxDocID: pl.postings[end-1].DocID,
			StartIdx: start,
		})
	}
}

// DocFreq returns the number of postings (doc frequency before applying
// any deletion bitmap).
func (pl *PostingList) DocFreq() int { return len(pl.postings) }

// At returns the posting at array index i.
func (pl *PostingList) At(i int) Posting { return pl.postings[i] }

// Len returns the number of postings.
func (pl *PostingList) Len() int { return len(pl.postings) }

// AdvanceIndex returns the smallest array index i such that
// postings[i].DocID >= target, using the block skip index to jump past
// whole blocks before scanning (O(log(blocks)) + O(block size)).
func (pl *PostingList) AdvanceIndex(fromIdx int, target uint64) int {
	if fromIdx >= len(pl.postings) {
		return len(pl.postings)
	}
	if pl.postings[fromIdx].DocID >= target {
		return fromIdx
	}
	// Find the first block whose MaxDocID >= target, starting no earlier
	// than fromIdx's block.
	fromBlock := fromIdx / BlockSize
	bi := sort.Search(len(pl.blocks)-fromBlock, func(i int) bool {
		return pl.blocks[fromBlock+i].MaxDocID >= target
	}) + fromBlock
	if bi >= len(pl.blocks) {
		return len(pl.postings)
	}
	start := pl.blocks[bi].StartIdx
	if start < fromIdx {
		start = fromIdx
	}
	end := start + BlockSize
	if end > len(pl.postings) {
		end = len(pl.postings)
	}
	// Linear scan within the located block.
	for i := start; i < end; i++ {
		if pl.postings[i].DocID >= target {
			return i
		}
	}
	return end
}

// EncodeTo writes the on-disk form: a varint posting count, then for each
// posting its delta+varint doc id, varint term frequency, varint position
// count and delta-varint positions. Postings are not grouped into blocks
// on disk, positions are written inline rather than in a separate stream,
// and no skip index is stored (the decoder rebuilds it).
func (pl *PostingList) EncodeTo(w *ioutil.StructWriter) error {
	if err := w.WriteVarint(uint64(len(pl.postings))); err != nil {
		return err
	}
	var prevDoc uint64
	for _, p := range pl.postings {
		if err := w.WriteVarint(p.DocID - prevDoc); err != nil {
			return err
		}
		prevDoc = p.DocID
		if err := w.WriteVarint(uint64(p.TermFreq)); err != nil {
			return err
		}
		if err := w.WriteVarint(uint64(len(p.Positions))); err != nil {
			return err
		}
		prevPos := 0
		for _, pos := range p.Positions {
			if err := w.WriteVarint(uint64(pos - prevPos)); err != nil {
				return err
			}
			prevPos = pos
		}
	}
	return nil
}

// DecodePostingList reads a posting list written by EncodeTo and rebuilds
// its block skip index.
func DecodePostingList(r *ioutil.StructReader) (*PostingList, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	pl := NewPostingList()
	var prevDoc uint64
	for i := uint64(0); i < n; i++ {
		delta, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		docID := prevDoc + delta
		prevDoc = docID
		tf, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		posCount, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		positions := make([]int, posCount)
		prevPos := 0
		for j := range positions {
			d, err := r.ReadVarint()
			if err != nil {
				return nil, err
			}
			prevPos += int(d)
			positions[j] = prevPos
		}
		pl.Append(Posting{DocID: docID, TermFreq: uint32(tf), Positions: positions})
	}
	pl.Finalize()
	return pl, nil
}
