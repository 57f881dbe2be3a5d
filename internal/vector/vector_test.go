package vector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberdb/ember/internal/storage"
)

func containsDocID(recs []FlatRecord, id uint64) bool {
	for _, r := range recs {
		if r.DocID == id {
			return true
		}
	}
	return false
}

func TestHNSWAddSearchFindsNearest(t *testing.T) {
	h := NewHNSW(2, L2, DefaultHNSWParams(), 1)
	require.NoError(t, h.Insert(1, []float32{0, 0}))
	require.NoError(t, h.Insert(2, []float32{10, 10}))
	require.NoError(t, h.Insert(3, []float32{0.1, 0.1}))
	require.NoError(t, h.Insert(4, []float32{20, 20}))

	results := h.Search([]float32{0, 0}, 2, 64)
	require.Len(t, results, 2)
	require.True(t, containsDocID(results, 1))
	require.True(t, containsDocID(results, 3))
}

func TestHNSWDeleteExcludesFromSearch(t *testing.T) {
	h := NewHNSW(2, L2, DefaultHNSWParams(), 1)
	require.NoError(t, h.Insert(1, []float32{0, 0}))
	require.NoError(t, h.Insert(2, []float32{1, 1}))
	h.Delete(1)

	results := h.Search([]float32{0, 0}, 2, 64)
	require.False(t, containsDocID(results, 1))
	require.True(t, containsDocID(results, 2))
}

func TestHNSWPersistLoadRoundTrip(t *testing.T) {
	backend := storage.NewMemoryBackend()
	params := DefaultHNSWParams()

	h := NewHNSW(2, L2, params, 7)
	require.NoError(t, h.Insert(1, []float32{0, 0}))
	require.NoError(t, h.Insert(2, []float32{5, 5}))
	require.NoError(t, h.Insert(3, []float32{0.2, 0.1}))
	require.NoError(t, h.Persist(backend, "00000.vecseg"))

	loaded, err := LoadHNSW(backend, "00000.vecseg", params, 7)
	require.NoError(t, err)
	require.Equal(t, h.Dim, loaded.Dim)

	results := loaded.Search([]float32{0, 0}, 2, 64)
	require.Len(t, results, 2)
	require.True(t, containsDocID(results, 1))
	require.True(t, containsDocID(results, 3))
}

func TestIVFTrainAddSearch(t *testing.T) {
	idx := NewIVF(2, L2, IVFParams{NClusters: 2, NProbe: 2, KMeansIters: 5})
	sample := [][]float32{{0, 0}, {0.1, 0}, {10, 10}, {10.1, 10}}
	require.NoError(t, idx.Train(sample, 1))

	require.NoError(t, idx.Add(1, []float32{0, 0}))
	require.NoError(t, idx.Add(2, []float32{0.1, 0}))
	require.NoError(t, idx.Add(3, []float32{10, 10}))
	require.NoError(t, idx.Add(4, []float32{10.1, 10}))

	results := idx.Search([]float32{0, 0}, 2)
	require.Len(t, results, 2)
	require.True(t, containsDocID(results, 1))
	require.True(t, containsDocID(results, 2))
}

func TestIVFAddBeforeTrainFails(t *testing.T) {
	idx := NewIVF(2, L2, DefaultIVFParams())
	err := idx.Add(1, []float32{0, 0})
	require.Error(t, err)
}

func TestIVFPersistLoadRoundTrip(t *testing.T) {
	backend := storage.NewMemoryBackend()
	params := IVFParams{NClusters: 2, NProbe: 2, KMeansIters: 5}

	idx := NewIVF(2, L2, params)
	require.NoError(t, idx.Train([][]float32{{0, 0}, {10, 10}}, 1))
	require.NoError(t, idx.Add(1, []float32{0, 0}))
	require.NoError(t, idx.Add(2, []float32{10, 10}))
	require.NoError(t, idx.Persist(backend, "00000.vecseg"))

	loaded, err := LoadIVF(backend, "00000.vecseg", params)
	require.NoError(t, err)

	results := loaded.Search([]float32{0, 0}, 1)
	require.Len(t, results, 1)
	require.Equal(t, uint64(1), results[0].DocID)
}

func TestVectorIndexCommitAndReopenReloadsSealedSegment(t *testing.T) {
	backend := storage.NewMemoryBackend()
	cfg := DefaultConfig(2)
	cfg.Algorithm = AlgoHNSW
	cfg.Metric = L2

	idx, err := Open(backend, cfg)
	require.NoError(t, err)
	require.NoError(t, idx.Add(1, []float32{0, 0}))
	require.NoError(t, idx.Add(2, []float32{5, 5}))
	require.NoError(t, idx.Commit())

	reopened, err := Open(backend, cfg)
	require.NoError(t, err)
	results := reopened.Search([]float32{0, 0}, 1)
	require.Len(t, results, 1)
	require.Equal(t, uint64(1), results[0].DocID)
}

func TestVectorIndexFlatCommitAndReopen(t *testing.T) {
	backend := storage.NewMemoryBackend()
	cfg := DefaultConfig(2)
	cfg.Algorithm = AlgoFlat

	idx, err := Open(backend, cfg)
	require.NoError(t, err)
	require.NoError(t, idx.Add(1, []float32{1, 0}))
	require.NoError(t, idx.Add(2, []float32{0, 1}))
	require.NoError(t, idx.Commit())

	reopened, err := Open(backend, cfg)
	require.NoError(t, err)
	results := reopened.Search([]float32{1, 0}, 1)
	require.Len(t, results, 1)
	require.Equal(t, uint64(1), results[0].DocID)
}
