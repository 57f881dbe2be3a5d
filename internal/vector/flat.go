package vector

import (
	"container/heap"
	"sort"

	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/ioutil"
	"github.com/emberdb/ember/internal/storage"
)

var flatMagic = [4]byte{'E', 'F', 'L', 'T'}

const flatVersion = 1

// FlatRecord is one stored vector with its doc id.
type FlatRecord struct {
	DocID  uint64
	Vector []float32
}

// Flat is the brute-force vector index (§4.8): every record is kept
// verbatim and search scans all of them, ranking by a bounded min-heap.
type Flat struct {
	Dim      int
	Metric   Metric
	records  []FlatRecord
	deleted  map[uint64]bool
}

// NewFlat creates an empty Flat index over vectors of the given
// dimensionality and metric.
func NewFlat(dim int, metric Metric) *Flat {
	return &Flat{Dim: dim, Metric: metric, deleted: make(map[uint64]bool)}
}

// Add appends a record. Under Cosine the stored copy is normalized to unit
// length; Search still computes each distance with the full Metric.
func (f *Flat) Add(docID uint64, vec []float32) error {
	if len(vec) != f.Dim {
		return errkind.New(errkind.InvalidArgument, "vector.flat.add", "dimension mismatch")
	}
	stored := vec
	if f.Metric == Cosine {
		stored = normalize(vec)
	}
	f.records = append(f.records, FlatRecord{DocID: docID, Vector: stored})
	return nil
}

// Delete logically removes docID from future search results.
func (f *Flat) Delete(docID uint64) { f.deleted[docID] = true }

// candidateHeap is a max-heap by distance, used to keep the k closest
// records seen so far (evict the farthest when full).
type candidateHeap []scored

type scored struct {
	docID uint64
	dist  float64
}

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Search returns the k nearest records to query by ascending distance.
func (f *Flat) Search(query []float32, k int) []FlatRecord {
	q := query
	if f.Metric == Cosine {
		q = normalize(query)
	}
	h := &candidateHeap{}
	heap.Init(h)
	for _, r := range f.records {
		if f.deleted[r.DocID] {
			continue
		}
		d := f.Metric.Distance(q, r.Vector)
		if h.Len() < k {
			heap.Push(h, scored{r.DocID, d})
		} else if h.Len() > 0 && d < (*h)[0].dist {
			heap.Pop(h)
			heap.Push(h, scored{r.DocID, d})
		}
	}
	out := make([]scored, h.Len())
	copy(out, *h)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })

	byID := make(map[uint64][]float32, len(f.records))
	for _, r := range f.records {
		byID[r.DocID] = r.Vector
	}
	results := make([]FlatRecord, len(out))
	for i, s := range out {
		results[i] = FlatRecord{DocID: s.docID, Vector: byID[s.docID]}
	}
	return results
}

// Persist writes the header and records to backend under name (§4.8). The
// optional quantisation sidecar the spec allows is not implemented: this
// module only ever stores full-precision f32 vectors.
func (f *Flat) Persist(backend storage.Storage, name string) error {
	out, err := backend.CreateOutput(name)
	if err != nil {
		return err
	}
	w := ioutil.NewStructWriter(out)
	if err := w.Header(flatMagic, flatVersion); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteU32(uint32(f.Dim)); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteU64(uint64(len(f.records))); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteString(f.Metric.Name()); err != nil {
		_ = w.Close()
		return err
	}
	for _, r := range f.records {
		if err := w.WriteU64(r.DocID); err != nil {
			_ = w.Close()
			return err
		}
		for _, x := range r.Vector {
			if err := w.WriteF32(x); err != nil {
				_ = w.Close()
				return err
			}
		}
	}
	return w.Close()
}

// LoadFlat reads a Flat index previously written by Persist.
func LoadFlat(backend storage.Storage, name string) (*Flat, error) {
	in, err := backend.OpenInput(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	r := ioutil.NewStructReader(in)
	version, err := r.Header(flatMagic)
	if err != nil {
		return nil, err
	}
	if version != flatVersion {
		return nil, errkind.New(errkind.Corruption, "vector.load_flat", "unsupported version")
	}
	dim32, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	count, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	metricName, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	metric, ok := MetricByName(metricName)
	if !ok {
		return nil, errkind.New(errkind.Corruption, "vector.load_flat", "unknown metric: "+metricName)
	}
	dim := int(dim32)
	f := &Flat{Dim: dim, Metric: metric, deleted: make(map[uint64]bool)}
	for i := uint64(0); i < count; i++ {
		docID, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j], err = r.ReadF32()
			if err != nil {
				return nil, err
			}
		}
		f.records = append(f.records, FlatRecord{DocID: docID, Vector: vec})
	}
	return f, nil
}
