package vector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/storage"
)

// Algorithm selects which ANN structure a VectorIndex uses (§4.8-§4.10).
type Algorithm int

const (
	AlgoFlat Algorithm = iota
	AlgoHNSW
	AlgoIVF
)

// Config configures a VectorIndex at open time.
type Config struct {
	Dim       int
	Metric    Metric
	Algorithm Algorithm
	HNSW      HNSWParams
	IVF       IVFParams
	Seed      int64
}

// DefaultConfig returns an HNSW-backed config with the package defaults.
func DefaultConfig(dim int) Config {
	return Config{Dim: dim, Metric: Cosine, Algorithm: AlgoHNSW, HNSW: DefaultHNSWParams(), IVF: DefaultIVFParams(), Seed: 1}
}

// segment is one immutable, sealed vector segment plus its logical
// deletion set, mirroring the lexical side's segment/bitmap pairing.
type segment struct {
	id      string
	flat    *Flat
	hnsw    *HNSW
	ivf     *IVF
	deleted map[uint64]bool
}

// persist writes s's backing structure to backend under its own id, so
// Open can reload it on a later process start.
func (s *segment) persist(backend storage.Storage, algo Algorithm) error {
	switch algo {
	case AlgoHNSW:
		return s.hnsw.Persist(backend, s.id)
	case AlgoIVF:
		if !s.ivf.trained {
			return nil
		}
		return s.ivf.Persist(backend, s.id)
	default:
		return s.flat.Persist(backend, s.id)
	}
}

func (s *segment) search(query []float32, k int, cfg Config) []FlatRecord {
	switch cfg.Algorithm {
	case AlgoHNSW:
		return s.hnsw.Search(query, k, cfg.HNSW.EfSearch)
	case AlgoIVF:
		return s.ivf.Search(query, k)
	default:
		return s.flat.Search(query, k)
	}
}

// VectorIndex is the multi-segment ANN facade: writes accumulate into an
// active (mutable) segment; Commit seals it. Segments are immutable once
// sealed (§4.9); a background-style Merge (invoked explicitly rather than
// on a timer, since this module has no scheduler) folds live vectors from
// merge candidates into one fresh segment.
type VectorIndex struct {
	mu      sync.RWMutex
	backend storage.Storage
	cfg     Config

	active   *segment
	sealed   []*segment
	nextSeq  int
}

// Open creates a VectorIndex rooted at backend and reloads any segments a
// prior Commit sealed and persisted, so vectors survive a process
// restart without needing the write-ahead log replayed first.
func Open(backend storage.Storage, cfg Config) (*VectorIndex, error) {
	idx := &VectorIndex{backend: backend, cfg: cfg}
	names, err := backend.List()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	for _, name := range names {
		if len(name) < 8 || name[len(name)-7:] != ".vecseg" {
			continue
		}
		seg, err := idx.loadSegment(name)
		if err != nil {
			return nil, err
		}
		idx.sealed = append(idx.sealed, seg)
		idx.nextSeq++
	}
	idx.active = idx.newSegment(fmt.Sprintf("%05d.vecseg", idx.nextSeq))
	return idx, nil
}

// loadSegment reloads one sealed segment persisted by segment.persist,
// picking the loader matching the index's configured algorithm.
func (idx *VectorIndex) loadSegment(name string) (*segment, error) {
	s := &segment{id: name, deleted: make(map[uint64]bool)}
	var err error
	switch idx.cfg.Algorithm {
	case AlgoHNSW:
		s.hnsw, err = LoadHNSW(idx.backend, name, idx.cfg.HNSW, idx.cfg.Seed)
	case AlgoIVF:
		s.ivf, err = LoadIVF(idx.backend, name, idx.cfg.IVF)
	default:
		s.flat, err = LoadFlat(idx.backend, name)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (idx *VectorIndex) newSegment(id string) *segment {
	s := &segment{id: id, deleted: make(map[uint64]bool)}
	switch idx.cfg.Algorithm {
	case AlgoHNSW:
		s.hnsw = NewHNSW(idx.cfg.Dim, idx.cfg.Metric, idx.cfg.HNSW, idx.cfg.Seed)
	case AlgoIVF:
		s.ivf = NewIVF(idx.cfg.Dim, idx.cfg.Metric, idx.cfg.IVF)
	default:
		s.flat = NewFlat(idx.cfg.Dim, idx.cfg.Metric)
	}
	return s
}

// Metric returns the distance metric this index was opened with, so a
// caller that already has a []FlatRecord from Search can turn it back into
// a similarity score without threading Config through separately.
func (idx *VectorIndex) Metric() Metric {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.cfg.Metric
}

// Add inserts a vector into the active segment.
func (idx *VectorIndex) Add(docID uint64, vec []float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	switch idx.cfg.Algorithm {
	case AlgoHNSW:
		return idx.active.hnsw.Insert(docID, vec)
	case AlgoIVF:
		if !idx.active.ivf.trained {
			if err := idx.active.ivf.Train([][]float32{vec}, idx.cfg.Seed); err != nil {
				return err
			}
		}
		return idx.active.ivf.Add(docID, vec)
	default:
		return idx.active.flat.Add(docID, vec)
	}
}

// TrainIVF trains the active segment's IVF cells from sample; required
// once before Add when Algorithm is AlgoIVF and the caller wants
// representative centroids rather than the single-point fallback Add
// otherwise uses.
func (idx *VectorIndex) TrainIVF(sample [][]float32) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.cfg.Algorithm != AlgoIVF {
		return errkind.New(errkind.InvalidConfig, "vector.train_ivf", "index is not IVF")
	}
	return idx.active.ivf.Train(sample, idx.cfg.Seed)
}

// Delete marks docID logically deleted in whichever segment holds it.
func (idx *VectorIndex) Delete(docID uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.active.deleted[docID] = true
	switch idx.cfg.Algorithm {
	case AlgoHNSW:
		idx.active.hnsw.Delete(docID)
	case AlgoIVF:
		idx.active.ivf.Delete(docID)
	default:
		idx.active.flat.Delete(docID)
	}
	for _, s := range idx.sealed {
		s.deleted[docID] = true
		switch idx.cfg.Algorithm {
		case AlgoHNSW:
			s.hnsw.Delete(docID)
		case AlgoIVF:
			s.ivf.Delete(docID)
		default:
			s.flat.Delete(docID)
		}
	}
}

// Commit seals the active segment (even if empty, to keep segment
// numbering monotonic with the lexical side's commit generation),
// persists it to backend, and starts a fresh one.
func (idx *VectorIndex) Commit() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.active.persist(idx.backend, idx.cfg.Algorithm); err != nil {
		return err
	}
	idx.sealed = append(idx.sealed, idx.active)
	idx.nextSeq++
	idx.active = idx.newSegment(fmt.Sprintf("%05d.vecseg", idx.nextSeq))
	return nil
}

// Search queries every segment and merges results by ascending distance
// (approximated here via descending similarity, since HNSW/IVF/Flat all
// expose Metric.Similarity).
func (idx *VectorIndex) Search(query []float32, k int) []FlatRecord {
	idx.mu.RLock()
	segments := append([]*segment{idx.active}, idx.sealed...)
	cfg := idx.cfg
	idx.mu.RUnlock()

	type scored struct {
		rec FlatRecord
		sim float64
	}
	var all []scored
	for _, s := range segments {
		for _, rec := range s.search(query, k, cfg) {
			all = append(all, scored{rec, cfg.Metric.Similarity(query, rec.Vector)})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].sim > all[j].sim })
	if k > len(all) {
		k = len(all)
	}
	out := make([]FlatRecord, k)
	for i := 0; i < k; i++ {
		out[i] = all[i].rec
	}
	return out
}

// Merge rebuilds segments into a single fresh one from their live
// (non-deleted) vectors — the "merge engine" the spec describes as
// selecting segments by policy and atomically replacing the set (§4.9).
// This implementation merges every sealed segment unconditionally; a
// size-tiered or force-merge policy is left to the caller.
func (idx *VectorIndex) Merge() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if len(idx.sealed) < 2 {
		return nil
	}
	merged := idx.newSegment(fmt.Sprintf("%05d.vecseg", idx.nextSeq))
	idx.nextSeq++
	old := idx.sealed
	for _, s := range old {
		for _, rec := range liveRecords(s, idx.cfg.Algorithm) {
			if err := addToSegment(merged, idx.cfg.Algorithm, rec.DocID, rec.Vector); err != nil {
				return err
			}
		}
	}
	if err := merged.persist(idx.backend, idx.cfg.Algorithm); err != nil {
		return err
	}
	for _, s := range old {
		if err := idx.backend.Delete(s.id); err != nil {
			return err
		}
	}
	idx.sealed = []*segment{merged}
	return nil
}

func liveRecords(s *segment, algo Algorithm) []FlatRecord {
	switch algo {
	case AlgoHNSW:
		var out []FlatRecord
		for id, n := range s.hnsw.nodes {
			if !s.deleted[id] {
				out = append(out, FlatRecord{DocID: id, Vector: n.vector})
			}
		}
		return out
	case AlgoIVF:
		var out []FlatRecord
		for _, c := range s.ivf.cells {
			for _, r := range c.records {
				if !s.deleted[r.DocID] {
					out = append(out, r)
				}
			}
		}
		return out
	default:
		var out []FlatRecord
		for _, r := range s.flat.records {
			if !s.deleted[r.DocID] {
				out = append(out, r)
			}
		}
		return out
	}
}

func addToSegment(s *segment, algo Algorithm, docID uint64, vec []float32) error {
	switch algo {
	case AlgoHNSW:
		return s.hnsw.Insert(docID, vec)
	case AlgoIVF:
		if !s.ivf.trained {
			if err := s.ivf.Train([][]float32{vec}, 1); err != nil {
				return err
			}
		}
		return s.ivf.Add(docID, vec)
	default:
		return s.flat.Add(docID, vec)
	}
}
