// Package deletion implements per-segment logical-deletion bitmaps and the
// DeletionManager that tracks them, persists them, and selects compaction
// candidates (§4.12).
package deletion

import (
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/ioutil"
	"github.com/emberdb/ember/internal/storage"
)

// Bitmap holds the set of deleted local doc ids for one segment, plus the
// counters the on-disk v3 format carries (§4.12).
type Bitmap struct {
	mu sync.RWMutex

	SegmentID    string
	TotalDocs    uint64
	bits         *roaring64.Bitmap
	LastModified time.Time
	Version      uint32
	MinDocID     uint64
	MaxDocID     uint64
}

// NewBitmap creates an empty deletion bitmap for a segment with totalDocs
// live documents and an inclusive [minDocID, maxDocID] local-id range.
func NewBitmap(segmentID string, totalDocs, minDocID, maxDocID uint64) *Bitmap {
	return &Bitmap{
		SegmentID:    segmentID,
		TotalDocs:    totalDocs,
		bits:         roaring64.New(),
		LastModified: time.Now(),
		Version:      currentVersion,
		MinDocID:     minDocID,
		MaxDocID:     maxDocID,
	}
}

// Delete marks local doc id docID as logically deleted. Deleting the same
// id twice has the same effect as deleting it once (§8 idempotence).
func (b *Bitmap) Delete(docID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bits.Add(docID)
	b.LastModified = time.Now()
}

// IsDeleted reports whether docID is marked deleted in this segment.
func (b *Bitmap) IsDeleted(docID uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bits.Contains(docID)
}

// DeletedCount returns how many ids are marked deleted.
func (b *Bitmap) DeletedCount() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bits.GetCardinality()
}

// LiveCount returns TotalDocs minus the deleted count.
func (b *Bitmap) LiveCount() uint64 {
	return b.TotalDocs - b.DeletedCount()
}

// Ratio returns the fraction of documents in the segment that are deleted.
func (b *Bitmap) Ratio() float64 {
	if b.TotalDocs == 0 {
		return 0
	}
	return float64(b.DeletedCount()) / float64(b.TotalDocs)
}

// DeletedIDs returns every deleted local doc id, ascending.
func (b *Bitmap) DeletedIDs() []uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bits.ToArray()
}

const (
	currentVersion = 3
	v1BitVector    = 1
	v2HashSet      = 2
)

var bitmapMagic = [4]byte{0x44, 0x45, 0x4C, 0x42} // "DELB", matches spec's 0x44454C42

// Save persists the bitmap to backend under name, always in the current
// (v3) on-disk format: {segment_id, total_docs, deleted_count,
// last_modified, version, min_doc_id, max_doc_id, deleted_id_count,
// deleted_ids[]} with varint length prefixes (§4.12).
func (b *Bitmap) Save(backend storage.Storage, name string) error {
	b.mu.RLock()
	ids := b.bits.ToArray()
	segmentID, total, lastMod, minID, maxID := b.SegmentID, b.TotalDocs, b.LastModified, b.MinDocID, b.MaxDocID
	b.mu.RUnlock()

	out, err := backend.CreateOutput(name)
	if err != nil {
		return err
	}
	w := ioutil.NewStructWriter(out)
	if err := w.Header(bitmapMagic, currentVersion); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteString(segmentID); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteU64(total); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteU64(uint64(len(ids))); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteI64(lastMod.Unix()); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteU64(minID); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteU64(maxID); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.WriteVarint(uint64(len(ids))); err != nil {
		_ = w.Close()
		return err
	}
	for _, id := range ids {
		if err := w.WriteVarint(id); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

// Load reads a deletion bitmap from backend under name. Versions 1 (bit
// vector) and 2 (hash set) are forward-readable and upgraded in memory to
// v3; when a v1 file's min/max is inferred from total_docs alone (rather
// than stored), a non-zero shard prefix makes that inference wrong — this
// is a known source-format ambiguity, preserved rather than guessed around
// (see DESIGN.md).
func Load(backend storage.Storage, name string) (*Bitmap, error) {
	in, err := backend.OpenInput(name)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	r := ioutil.NewStructReader(in)
	version, err := r.Header(bitmapMagic)
	if err != nil {
		return nil, err
	}

	switch version {
	case currentVersion:
		return loadV3(r)
	case v2HashSet:
		return loadV2(r)
	case v1BitVector:
		return loadV1(r)
	default:
		return nil, errkind.New(errkind.Corruption, "deletion.load", "unsupported deletion bitmap version")
	}
}

func loadV3(r *ioutil.StructReader) (*Bitmap, error) {
	segmentID, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	total, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadU64(); err != nil { // deleted_count, recomputed from bitmap below
		return nil, err
	}
	lastModUnix, err := r.ReadI64()
	if err != nil {
		return nil, err
	}
	minID, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	maxID, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	bm := roaring64.New()
	for i := uint64(0); i < count; i++ {
		id, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		bm.Add(id)
	}
	return &Bitmap{
		SegmentID:    segmentID,
		TotalDocs:    total,
		bits:         bm,
		LastModified: timeFromUnix(lastModUnix),
		Version:      currentVersion,
		MinDocID:     minID,
		MaxDocID:     maxID,
	}, nil
}

// loadV2 reads the legacy hash-set format: {segment_id, total_docs,
// last_modified, deleted_id_count, deleted_ids[]} with no min/max.
func loadV2(r *ioutil.StructReader) (*Bitmap, error) {
	segmentID, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	total, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	lastModUnix, err := r.ReadI64()
	if err != nil {
		return nil, err
	}
	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	bm := roaring64.New()
	var maxID uint64
	for i := uint64(0); i < count; i++ {
		id, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		bm.Add(id)
		if id > maxID {
			maxID = id
		}
	}
	return &Bitmap{
		SegmentID:    segmentID,
		TotalDocs:    total,
		bits:         bm,
		LastModified: timeFromUnix(lastModUnix),
		Version:      currentVersion,
		MinDocID:     0,
		MaxDocID:     inferMax(total, maxID),
	}, nil
}

// loadV1 reads the legacy bit-vector format: {segment_id, total_docs,
// last_modified, bit_vector_bytes}. min/max are inferred from total_docs
// since the format never stored them.
func loadV1(r *ioutil.StructReader) (*Bitmap, error) {
	segmentID, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	total, err := r.ReadU64()
	if err != nil {
		return nil, err
	}
	lastModUnix, err := r.ReadI64()
	if err != nil {
		return nil, err
	}
	vecBytes, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	bm := roaring64.New()
	for i, b := range vecBytes {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) != 0 {
				bm.Add(uint64(i*8 + bit))
			}
		}
	}
	return &Bitmap{
		SegmentID:    segmentID,
		TotalDocs:    total,
		bits:         bm,
		LastModified: timeFromUnix(lastModUnix),
		Version:      currentVersion,
		MinDocID:     0,
		MaxDocID:     inferMax(total, 0),
	}, nil
}

func inferMax(total, observed uint64) uint64 {
	if total == 0 {
		return observed
	}
	return total - 1
}

func timeFromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
