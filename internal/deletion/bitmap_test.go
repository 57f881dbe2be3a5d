package deletion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberdb/ember/internal/ioutil"
	"github.com/emberdb/ember/internal/storage"
)

func TestBitmapSaveLoadV3RoundTrip(t *testing.T) {
	backend := storage.NewMemoryBackend()
	b := NewBitmap("seg-1", 10, 0, 9)
	b.Delete(2)
	b.Delete(5)
	b.Delete(5) // idempotent

	require.NoError(t, b.Save(backend, "seg-1.delmap"))

	loaded, err := Load(backend, "seg-1.delmap")
	require.NoError(t, err)
	require.Equal(t, "seg-1", loaded.SegmentID)
	require.Equal(t, uint64(10), loaded.TotalDocs)
	require.Equal(t, uint64(0), loaded.MinDocID)
	require.Equal(t, uint64(9), loaded.MaxDocID)
	require.EqualValues(t, currentVersion, loaded.Version)
	require.True(t, loaded.IsDeleted(2))
	require.True(t, loaded.IsDeleted(5))
	require.False(t, loaded.IsDeleted(0))
	require.Equal(t, uint64(2), loaded.DeletedCount())
}

func writeV2(t *testing.T, backend storage.Storage, name, segmentID string, total uint64, lastMod time.Time, ids []uint64) {
	t.Helper()
	out, err := backend.CreateOutput(name)
	require.NoError(t, err)
	w := ioutil.NewStructWriter(out)
	require.NoError(t, w.Header(bitmapMagic, v2HashSet))
	require.NoError(t, w.WriteString(segmentID))
	require.NoError(t, w.WriteU64(total))
	require.NoError(t, w.WriteI64(lastMod.Unix()))
	require.NoError(t, w.WriteVarint(uint64(len(ids))))
	for _, id := range ids {
		require.NoError(t, w.WriteVarint(id))
	}
	require.NoError(t, w.Close())
}

func TestBitmapLoadV2HashSet(t *testing.T) {
	backend := storage.NewMemoryBackend()
	writeV2(t, backend, "seg-2.delmap", "seg-2", 8, time.Unix(1700000000, 0), []uint64{1, 3, 7})

	loaded, err := Load(backend, "seg-2.delmap")
	require.NoError(t, err)
	require.Equal(t, "seg-2", loaded.SegmentID)
	require.EqualValues(t, currentVersion, loaded.Version) // upgraded in memory
	require.True(t, loaded.IsDeleted(1))
	require.True(t, loaded.IsDeleted(3))
	require.True(t, loaded.IsDeleted(7))
	require.False(t, loaded.IsDeleted(2))
	require.Equal(t, uint64(3), loaded.DeletedCount())
}

func writeV1(t *testing.T, backend storage.Storage, name, segmentID string, total uint64, lastMod time.Time, deletedBits []int) {
	t.Helper()
	out, err := backend.CreateOutput(name)
	require.NoError(t, err)
	w := ioutil.NewStructWriter(out)
	require.NoError(t, w.Header(bitmapMagic, v1BitVector))
	require.NoError(t, w.WriteString(segmentID))
	require.NoError(t, w.WriteU64(total))
	require.NoError(t, w.WriteI64(lastMod.Unix()))

	nBytes := 0
	for _, bit := range deletedBits {
		if b := bit/8 + 1; b > nBytes {
			nBytes = b
		}
	}
	vec := make([]byte, nBytes)
	for _, bit := range deletedBits {
		vec[bit/8] |= 1 << uint(bit%8)
	}
	require.NoError(t, w.WriteBytes(vec))
	require.NoError(t, w.Close())
}

func TestBitmapLoadV1BitVector(t *testing.T) {
	backend := storage.NewMemoryBackend()
	writeV1(t, backend, "seg-3.delmap", "seg-3", 5, time.Unix(1700000000, 0), []int{0, 2, 4})

	loaded, err := Load(backend, "seg-3.delmap")
	require.NoError(t, err)
	require.Equal(t, "seg-3", loaded.SegmentID)
	require.EqualValues(t, currentVersion, loaded.Version)
	require.True(t, loaded.IsDeleted(0))
	require.True(t, loaded.IsDeleted(2))
	require.True(t, loaded.IsDeleted(4))
	require.False(t, loaded.IsDeleted(1))
	require.False(t, loaded.IsDeleted(3))
	// v1 never stored min/max; inferred from total_docs.
	require.Equal(t, uint64(0), loaded.MinDocID)
	require.Equal(t, uint64(4), loaded.MaxDocID)
}

func TestBitmapLoadUnsupportedVersionErrors(t *testing.T) {
	backend := storage.NewMemoryBackend()
	out, err := backend.CreateOutput("bad.delmap")
	require.NoError(t, err)
	w := ioutil.NewStructWriter(out)
	require.NoError(t, w.Header(bitmapMagic, 99))
	require.NoError(t, w.Close())

	_, err = Load(backend, "bad.delmap")
	require.Error(t, err)
}

func TestManagerCompactionCandidates(t *testing.T) {
	backend := storage.NewMemoryBackend()
	m := NewManager(backend)
	low := NewBitmap("low", 10, 0, 9)
	high := NewBitmap("high", 10, 0, 9)
	m.Track(low)
	m.Track(high)

	for i := uint64(0); i < 5; i++ {
		require.NoError(t, m.DeleteDocument("high", i))
	}
	require.NoError(t, m.DeleteDocument("low", 0))

	candidates := m.CompactionCandidates()
	require.Equal(t, []string{"high"}, candidates)
}
