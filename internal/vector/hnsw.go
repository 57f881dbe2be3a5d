package vector

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/ioutil"
	"github.com/emberdb/ember/internal/storage"
)

var hnswMagic = [4]byte{'E', 'H', 'N', 'S'}

const hnswVersion = 1

// HNSWParams are the tunable construction/search parameters (§4.9).
type HNSWParams struct {
	M              int
	Mmax0          int
	EfConstruction int
	EfSearch       int
}

// DefaultHNSWParams mirrors common defaults for the algorithm: M=16,
// Mmax0=2M, ef_construction=200, ef_search=64.
func DefaultHNSWParams() HNSWParams {
	return HNSWParams{M: 16, Mmax0: 32, EfConstruction: 200, EfSearch: 64}
}

type hnswNode struct {
	docID     uint64
	vector    []float32
	topLayer  int
	neighbors [][]uint64 // neighbors[layer] = neighbor doc ids
}

// HNSW is a multi-layer proximity graph built from scratch per the
// construction and search-layer algorithms described by the spec (§4.9):
// no third-party ANN library is wrapped here.
type HNSW struct {
	mu       sync.RWMutex
	Dim      int
	Metric   Metric
	params   HNSWParams
	mL       float64
	rng      *rand.Rand
	nodes    map[uint64]*hnswNode
	entry    uint64
	hasEntry bool
	deleted  map[uint64]bool
}

// NewHNSW creates an empty graph. seed controls the layer-assignment
// randomness so construction is reproducible in tests.
func NewHNSW(dim int, metric Metric, params HNSWParams, seed int64) *HNSW {
	return &HNSW{
		Dim: dim, Metric: metric, params: params,
		mL:      1 / math.Log(float64(params.M)),
		rng:     rand.New(rand.NewSource(seed)),
		nodes:   make(map[uint64]*hnswNode),
		deleted: make(map[uint64]bool),
	}
}

func (h *HNSW) assignLayer() int {
	u := h.rng.Float64()
	for u == 0 {
		u = h.rng.Float64()
	}
	return int(math.Floor(-math.Log(u) * h.mL))
}

func (h *HNSW) dist(a, b []float32) float64 { return h.Metric.Distance(a, b) }

type distItem struct {
	docID uint64
	dist  float64
}

// minHeapDist and maxHeapDist back the two-heap search-layer algorithm.
type minHeapDist []distItem
type maxHeapDist []distItem

func (h minHeapDist) Len() int            { return len(h) }
func (h minHeapDist) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeapDist) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeapDist) Push(x interface{}) { *h = append(*h, x.(distItem)) }
func (h *minHeapDist) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

func (h maxHeapDist) Len() int            { return len(h) }
func (h maxHeapDist) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeapDist) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeapDist) Push(x interface{}) { *h = append(*h, x.(distItem)) }
func (h *maxHeapDist) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// searchLayer runs the two-heap search described in §4.9: candidates is a
// min-heap by distance to q, results a max-heap capped at ef. It returns
// the results heap's contents, best-first.
func (h *HNSW) searchLayer(q []float32, entryPoints []uint64, ef, layer int) []distItem {
	visited := make(map[uint64]bool)
	candidates := &minHeapDist{}
	results := &maxHeapDist{}
	heap.Init(candidates)
	heap.Init(results)

	for _, ep := range entryPoints {
		if visited[ep] {
			continue
		}
		visited[ep] = true
		d := h.dist(q, h.nodes[ep].vector)
		heap.Push(candidates, distItem{ep, d})
		heap.Push(results, distItem{ep, d})
	}

	for candidates.Len() > 0 {
		cur := (*candidates)[0]
		if results.Len() >= ef && cur.dist > (*results)[0].dist {
			break
		}
		heap.Pop(candidates)

		node := h.nodes[cur.docID]
		if layer >= len(node.neighbors) {
			continue
		}
		for _, nbID := range node.neighbors[layer] {
			if visited[nbID] || h.deleted[nbID] {
				continue
			}
			visited[nbID] = true
			nb := h.nodes[nbID]
			d := h.dist(q, nb.vector)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, distItem{nbID, d})
				heap.Push(results, distItem{nbID, d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := append([]distItem(nil), (*results)...)
	sort.Slice(out, func(i, j int) bool { return out[i].dist < out[j].dist })
	return out
}

// selectNeighborsHeuristic greedily keeps the closest candidate not
// "dominated" by an already-selected neighbor, until m are chosen (§4.9).
func (h *HNSW) selectNeighborsHeuristic(q []float32, candidates []distItem, m int) []uint64 {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	var selected []distItem
	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		dominated := false
		for _, s := range selected {
			if h.dist(h.nodes[c.docID].vector, h.nodes[s.docID].vector) < c.dist {
				dominated = true
				break
			}
		}
		if !dominated {
			selected = append(selected, c)
		}
	}
	out := make([]uint64, len(selected))
	for i, s := range selected {
		out[i] = s.docID
	}
	return out
}

// Insert adds a vector under docID, building its edges per §4.9's
// construction algorithm.
func (h *HNSW) Insert(docID uint64, vector []float32) error {
	if len(vector) != h.Dim {
		return errkind.New(errkind.InvalidArgument, "vector.hnsw.insert", "dimension mismatch")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	stored := vector
	if h.Metric == Cosine {
		stored = normalize(vector)
	}
	topLayer := h.assignLayer()
	node := &hnswNode{docID: docID, vector: stored, topLayer: topLayer, neighbors: make([][]uint64, topLayer+1)}
	h.nodes[docID] = node

	if !h.hasEntry {
		h.entry = docID
		h.hasEntry = true
		return nil
	}

	entryNode := h.nodes[h.entry]
	curEP := []uint64{h.entry}
	// Step 1: greedy-descend from the top layer down to topLayer+1 with ef=1.
	for layer := entryNode.topLayer; layer > topLayer; layer-- {
		res := h.searchLayer(stored, curEP, 1, layer)
		if len(res) > 0 {
			curEP = []uint64{res[0].docID}
		}
	}

	// Step 2: for every layer from min(entry.topLayer, topLayer) down to 0,
	// search with ef_construction and connect.
	start := entryNode.topLayer
	if topLayer < start {
		start = topLayer
	}
	for layer := start; layer >= 0; layer-- {
		candidates := h.searchLayer(stored, curEP, h.params.EfConstruction, layer)
		cap := h.params.M
		if layer == 0 {
			cap = h.params.Mmax0
		}
		neighbors := h.selectNeighborsHeuristic(stored, candidates, cap)
		node.neighbors[layer] = neighbors
		for _, nbID := range neighbors {
			h.addEdge(nbID, docID, layer)
		}
		curEP = neighbors
		if len(curEP) == 0 {
			curEP = []uint64{h.entry}
		}
	}

	if topLayer > entryNode.topLayer {
		h.entry = docID
	}
	return nil
}

// addEdge adds docID as a's neighbor at layer, pruning a's edge list back
// down to its layer cap via the same heuristic if it overflows.
func (h *HNSW) addEdge(a, docID uint64, layer int) {
	na := h.nodes[a]
	for len(na.neighbors) <= layer {
		na.neighbors = append(na.neighbors, nil)
	}
	na.neighbors[layer] = append(na.neighbors[layer], docID)

	cap := h.params.M
	if layer == 0 {
		cap = h.params.Mmax0
	}
	if len(na.neighbors[layer]) <= cap {
		return
	}
	candidates := make([]distItem, len(na.neighbors[layer]))
	for i, id := range na.neighbors[layer] {
		candidates[i] = distItem{id, h.dist(na.vector, h.nodes[id].vector)}
	}
	na.neighbors[layer] = h.selectNeighborsHeuristic(na.vector, candidates, cap)
}

// Delete logically removes docID: its node stays in the graph, but
// searchLayer skips it as a neighbor, so it is not traversed through, not
// returned, and not picked as a neighbor by later inserts; a deleted entry
// point still starts a descent (§4.9).
func (h *HNSW) Delete(docID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted[docID] = true
}

// Search returns up to k nearest docIDs to query, descending to layer 0
// with ef=1 then running a final search-layer with ef=max(efSearch,k)
// (§4.9).
func (h *HNSW) Search(query []float32, k, efSearch int) []FlatRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.hasEntry {
		return nil
	}
	q := query
	if h.Metric == Cosine {
		q = normalize(query)
	}
	entryNode := h.nodes[h.entry]
	curEP := []uint64{h.entry}
	for layer := entryNode.topLayer; layer > 0; layer-- {
		res := h.searchLayer(q, curEP, 1, layer)
		if len(res) > 0 {
			curEP = []uint64{res[0].docID}
		}
	}
	ef := efSearch
	if ef < k {
		ef = k
	}
	res := h.searchLayer(q, curEP, ef, 0)
	var out []FlatRecord
	for _, r := range res {
		if h.deleted[r.docID] {
			continue
		}
		out = append(out, FlatRecord{DocID: r.docID, Vector: h.nodes[r.docID].vector})
		if len(out) == k {
			break
		}
	}
	return out
}

// Persist writes every node's vector and per-layer adjacency list.
func (h *HNSW) Persist(backend storage.Storage, name string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out, err := backend.CreateOutput(name)
	if err != nil {
		return err
	}
	w := ioutil.NewStructWriter(out)
	if err := w.Header(hnswMagic, hnswVersion); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteU32(uint32(h.Dim)); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteString(h.Metric.Name()); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteBool(h.hasEntry); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteU64(h.entry); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteVarint(uint64(len(h.nodes))); err != nil {
		_ = w.Close()
		return err
	}
	ids := make([]uint64, 0, len(h.nodes))
	for id := range h.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		n := h.nodes[id]
		if err := writeHNSWNode(w, n); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

func writeHNSWNode(w *ioutil.StructWriter, n *hnswNode) error {
	if err := w.WriteU64(n.docID); err != nil {
		return err
	}
	for _, x := range n.vector {
		if err := w.WriteF32(x); err != nil {
			return err
		}
	}
	if err := w.WriteVarint(uint64(n.topLayer)); err != nil {
		return err
	}
	for layer := 0; layer <= n.topLayer; layer++ {
		var neighbors []uint64
		if layer < len(n.neighbors) {
			neighbors = n.neighbors[layer]
		}
		if err := w.WriteVarint(uint64(len(neighbors))); err != nil {
			return err
		}
		for _, nb := range neighbors {
			if err := w.WriteU64(nb); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadHNSW reads a graph previously written by Persist.
func LoadHNSW(backend storage.Storage, name string, params HNSWParams, seed int64) (*HNSW, error) {
	in, err := backend.OpenInput(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	r := ioutil.NewStructReader(in)
	version, err := r.Header(hnswMagic)
	if err != nil {
		return nil, err
	}
	if version != hnswVersion {
		return nil, errkind.New(errkind.Corruption, "vector.load_hnsw", "unsupported version")
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
		return nil, errkind.New(errkind.Corruption, "vector.load_hnsw", "unknown metric: "+metricName)
	}
	h := NewHNSW(int(dim32), metric, params, seed)
	hasEntry, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	entry, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	h.hasEntry = hasEntry
	h.entry = entry
	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		n, err := readHNSWNode(r, h.Dim)
		if err != nil {
			return nil, err
		}
		h.nodes[n.docID] = n
	}
	return h, nil
}

func readHNSWNode(r *ioutil.StructReader, dim int) (*hnswNode, error) {
	docID, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i], err = r.ReadF32()
		if err != nil {
			return nil, err
		}
	}
	topLayer64, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	topLayer := int(topLayer64)
	n := &hnswNode{docID: docID, vector: vec, topLayer: topLayer, neighbors: make([][]uint64, topLayer+1)}
	for layer := 0; layer <= topLayer; layer++ {
		cnt, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		neighbors := make([]uint64, cnt)
		for j := range neighbors {
			neighbors[j], err = r.ReadU64()
			if err != nil {
				return nil, err
			}
		}
		n.neighbors[layer] = neighbors
	}
	return n, nil
}
