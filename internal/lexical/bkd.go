package lexical

import (
	"sort"

	"github.com/emberdb/ember/internal/ioutil"
)

// BKDBlockSize is the maximum number of points held in a single leaf
// before the tree splits further (§4.7).
const BKDBlockSize = 512

// bkdPoint is one (value, doc_id) entry prior to tree construction.
type bkdPoint struct {
	vals  []float64
	docID uint64
}

// bkdNode is either a leaf (points non-nil) or an internal split node.
type bkdNode struct {
	points             []bkdPoint // non-nil only on leaves
	splitDim           int
	splitValue         float64
	left, right        *bkdNode
}

// BKDTree is an in-memory block-oriented k-d tree over numeric doc
// values: recursive median split on a round-robin dimension until a
// slice of at most BKDBlockSize points remains, which becomes a leaf.
// The tree's node/offset layout itself is never written to disk; EncodeTo
// instead persists the flat (value, doc_id) point set the tree was built
// from, and DecodeBKDTree rebuilds an equivalent tree from it on load via
// NewBKDTree (see segment.go's Persist/LoadSegment).
type BKDTree struct {
	root    *bkdNode
	numDims int
}

// NewBKDTree builds a tree over the given points for a single-dimension
// numeric field (num_dims=1 is the only case the engine's schema
// produces today; the tree itself is dimension-generic).
func NewBKDTree(points []bkdPoint, numDims int) *BKDTree {
	if len(points) == 0 {
		return &BKDTree{numDims: numDims}
	}
	cp := append([]bkdPoint(nil), points...)
	return &BKDTree{root: buildBKDSubtree(cp, 0, numDims), numDims: numDims}
}

func buildBKDSubtree(points []bkdPoint, depth, numDims int) *bkdNode {
	if len(points) <= BKDBlockSize {
		return &bkdNode{points: points}
	}
	splitDim := depth % numDims
	sort.Slice(points, func(i, j int) bool { return points[i].vals[splitDim] < points[j].vals[splitDim] })
	mid := len(points) / 2
	node := &bkdNode{splitDim: splitDim, splitValue: points[mid].vals[splitDim]}
	node.left = buildBKDSubtree(points[:mid], depth+1, numDims)
	node.right = buildBKDSubtree(points[mid:], depth+1, numDims)
	return node
}

// Range returns the sorted, deduplicated doc ids whose single-dimension
// value falls within [min,max] (inclusivity controlled by the flags),
// per §4.7's descent rule.
func (t *BKDTree) Range(min, max float64, includeMin, includeMax bool) []uint64 {
	if t.root == nil {
		return nil
	}
	var out []uint64
	visitBKD(t.root, 0, min, max, includeMin, includeMax, &out)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	out = dedupUint64(out)
	return out
}

func visitBKD(n *bkdNode, dim int, min, max float64, includeMin, includeMax bool, out *[]uint64) {
	if n.points != nil {
		for _, p := range n.points {
			v := p.vals[0]
			lo := v > min || (includeMin && v == min)
			hi := v < max || (includeMax && v == max)
			if lo && hi {
				*out = append(*out, p.docID)
			}
		}
		return
	}
	goLeft := min <= n.splitValue
	if !includeMin && min == n.splitValue {
		goLeft = true // descend anyway: points equal to split_value live on either side
	}
	if goLeft {
		visitBKD(n.left, n.splitDim, min, max, includeMin, includeMax, out)
	}
	goRight := max >= n.splitValue
	if goRight {
		visitBKD(n.right, n.splitDim, min, max, includeMin, includeMax, out)
	}
}

// points returns every (vals, doc_id) entry the tree was built from, via a
// leaf traversal. Used by EncodeTo to persist the tree as a flat point set.
func (t *BKDTree) points() []bkdPoint {
	var out []bkdPoint
	var walk func(n *bkdNode)
	walk = func(n *bkdNode) {
		if n == nil {
			return
		}
		if n.points != nil {
			out = append(out, n.points...)
			return
		}
		walk(n.left)
		walk(n.right)
	}
	walk(t.root)
	return out
}

var bkdMagic = [4]byte{'B', 'K', 'D', 'T'}

const bkdVersion = 1

// EncodeTo persists the tree's flat point set (not its internal node
// layout) to w: numDims, point count, then each point's doc id and
// per-dimension values. DecodeBKDTree rebuilds an equivalent tree from
// this with NewBKDTree.
func (t *BKDTree) EncodeTo(w *ioutil.StructWriter) error {
	if err := w.Header(bkdMagic, bkdVersion); err != nil {
		return err
	}
	if err := w.WriteU32(uint32(t.numDims)); err != nil {
		return err
	}
	pts := t.points()
	if err := w.WriteVarint(uint64(len(pts))); err != nil {
		return err
	}
	for _, p := range pts {
		if err := w.WriteU64(p.docID); err != nil {
			return err
		}
		for _, v := range p.vals {
			if err := w.WriteF64(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// DecodeBKDTree reads a tree persisted by EncodeTo and rebuilds it via
// NewBKDTree.
func DecodeBKDTree(r *ioutil.StructReader) (*BKDTree, error) {
	if _, err := r.Header(bkdMagic); err != nil {
		return nil, err
	}
	numDims32, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	numDims := int(numDims32)
	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	pts := make([]bkdPoint, 0, count)
	for i := uint64(0); i < count; i++ {
		docID, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		vals := make([]float64, numDims)
		for d := 0; d < numDims; d++ {
			v, err := r.ReadF64()
			if err != nil {
				return nil, err
			}
			vals[d] = v
		}
		pts = append(pts, bkdPoint{vals: vals, docID: docID})
	}
	return NewBKDTree(pts, numDims), nil
}

func dedupUint64(in []uint64) []uint64 {
	if len(in) == 0 {
		return in
	}
	out := in[:1]
	for _, v := range in[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
