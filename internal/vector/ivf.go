package vector

import (
	"math/rand"
	"sort"

	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/ioutil"
	"github.com/emberdb/ember/internal/storage"
)

var ivfMagic = [4]byte{'E', 'I', 'V', 'F'}

const ivfVersion = 1

// IVFParams control cell count and probe width (§4.10).
type IVFParams struct {
	NClusters int
	NProbe    int
	KMeansIters int
}

// DefaultIVFParams picks modest defaults suited to small/medium corpora.
func DefaultIVFParams() IVFParams { return IVFParams{NClusters: 16, NProbe: 4, KMeansIters: 10} }

type ivfCell struct {
	centroid []float32
	records  []FlatRecord
}

// IVF partitions the vector space into Voronoi cells via k-means and
// scans only the n_probe nearest cells at query time (§4.10). Product
// quantisation of cell contents is not implemented: see the design
// notes for why this module stops at full-precision cells.
type IVF struct {
	Dim     int
	Metric  Metric
	params  IVFParams
	cells   []*ivfCell
	deleted map[uint64]bool
	trained bool
}

// NewIVF creates an untrained index; Train must be called with a
// representative sample before Add.
func NewIVF(dim int, metric Metric, params IVFParams) *IVF {
	return &IVF{Dim: dim, Metric: metric, params: params, deleted: make(map[uint64]bool)}
}

// Train runs Lloyd's k-means on sample to initialize n_clusters centroids.
func (idx *IVF) Train(sample [][]float32, seed int64) error {
	if len(sample) == 0 {
		return errkind.New(errkind.InvalidArgument, "vector.ivf.train", "empty training sample")
	}
	k := idx.params.NClusters
	if k > len(sample) {
		k = len(sample)
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(sample))
	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		centroids[i] = append([]float32(nil), sample[perm[i]]...)
	}

	assign := make([]int, len(sample))
	for iter := 0; iter < idx.params.KMeansIters; iter++ {
		for i, v := range sample {
			best, bestDist := 0, idx.Metric.Distance(v, centroids[0])
			for c := 1; c < k; c++ {
				d := idx.Metric.Distance(v, centroids[c])
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			assign[i] = best
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, idx.Dim)
		}
		for i, v := range sample {
			c := assign[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += float64(x)
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}

	idx.cells = make([]*ivfCell, k)
	for c := 0; c < k; c++ {
		idx.cells[c] = &ivfCell{centroid: centroids[c]}
	}
	idx.trained = true
	return nil
}

// Add assigns vec to its nearest centroid's cell.
func (idx *IVF) Add(docID uint64, vec []float32) error {
	if !idx.trained {
		return errkind.New(errkind.InvalidConfig, "vector.ivf.add", "index not trained")
	}
	if len(vec) != idx.Dim {
		return errkind.New(errkind.InvalidArgument, "vector.ivf.add", "dimension mismatch")
	}
	cell := idx.nearestCells(vec, 1)[0]
	idx.cells[cell].records = append(idx.cells[cell].records, FlatRecord{DocID: docID, Vector: vec})
	return nil
}

func (idx *IVF) Delete(docID uint64) { idx.deleted[docID] = true }

// nearestCells returns the indices of the n nearest centroids to v.
func (idx *IVF) nearestCells(v []float32, n int) []int {
	type scored struct {
		idx  int
		dist float64
	}
	scores := make([]scored, len(idx.cells))
	for i, c := range idx.cells {
		scores[i] = scored{i, idx.Metric.Distance(v, c.centroid)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })
	if n > len(scores) {
		n = len(scores)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = scores[i].idx
	}
	return out
}

// Search scans the n_probe nearest cells and returns the top-k records.
func (idx *IVF) Search(query []float32, k int) []FlatRecord {
	if !idx.trained {
		return nil
	}
	probe := idx.params.NProbe
	if probe < 1 {
		probe = 1
	}
	cells := idx.nearestCells(query, probe)

	type scored struct {
		rec  FlatRecord
		dist float64
	}
	var all []scored
	for _, c := range cells {
		for _, r := range idx.cells[c].records {
			if idx.deleted[r.DocID] {
				continue
			}
			all = append(all, scored{r, idx.Metric.Distance(query, r.Vector)})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].dist < all[j].dist })
	if k > len(all) {
		k = len(all)
	}
	out := make([]FlatRecord, k)
	for i := 0; i < k; i++ {
		out[i] = all[i].rec
	}
	return out
}

// Persist writes every cell's centroid and records.
func (idx *IVF) Persist(backend storage.Storage, name string) error {
	out, err := backend.CreateOutput(name)
	if err != nil {
		return err
	}
	w := ioutil.NewStructWriter(out)
	if err := w.Header(ivfMagic, ivfVersion); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteU32(uint32(idx.Dim)); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteString(idx.Metric.Name()); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteVarint(uint64(len(idx.cells))); err != nil {
		_ = w.Close()
		return err
	}
	for _, c := range idx.cells {
		for _, x := range c.centroid {
			if err := w.WriteF32(x); err != nil {
				_ = w.Close()
				return err
			}
		}
		if err := w.WriteVarint(uint64(len(c.records))); err != nil {
			_ = w.Close()
			return err
		}
		for _, r := range c.records {
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
	}
	return w.Close()
}

// LoadIVF reads an index previously written by Persist.
func LoadIVF(backend storage.Storage, name string, params IVFParams) (*IVF, error) {
	in, err := backend.OpenInput(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	r := ioutil.NewStructReader(in)
	version, err := r.Header(ivfMagic)
	if err != nil {
		return nil, err
	}
	if version != ivfVersion {
		return nil, errkind.New(errkind.Corruption, "vector.load_ivf", "unsupported version")
	}
	dim32, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	metricName, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	metric, ok := MetricByName(metricName)
	if !ok {
		return nil, errkind.New(errkind.Corruption, "vector.load_ivf", "unknown metric: "+metricName)
	}
	dim := int(dim32)
	idx := &IVF{Dim: dim, Metric: metric, params: params, deleted: make(map[uint64]bool), trained: true}
	cellCount, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < cellCount; i++ {
		centroid := make([]float32, dim)
		for j := range centroid {
			centroid[j], err = r.ReadF32()
			if err != nil {
				return nil, err
			}
		}
		recCount, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		cell := &ivfCell{centroid: centroid}
		for j := uint64(0); j < recCount; j++ {
			docID, err := r.ReadU64()
			if err != nil {
				return nil, err
			}
			vec := make([]float32, dim)
			for d := range vec {
				vec[d], err = r.ReadF32()
				if err != nil {
					return nil, err
				}
			}
			cell.records = append(cell.records, FlatRecord{DocID: docID, Vector: vec})
		}
		idx.cells = append(idx.cells, cell)
	}
	return idx, nil
}
