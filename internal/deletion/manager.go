package deletion

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/storage"
)

// DefaultCompactionRatio is the deleted-fraction threshold above which a
// segment becomes a compaction candidate (§4.12).
const DefaultCompactionRatio = 0.3

// Manager tracks every segment's deletion bitmap, persists mutations to
// "<segment>.delmap", and identifies compaction candidates.
type Manager struct {
	mu      sync.RWMutex
	backend storage.Storage
	bitmaps map[string]*Bitmap

	AutoCompact        bool
	CompactionInterval time.Duration
	CompactionRatio    float64
	lastCompaction     time.Time
}

// NewManager creates a DeletionManager backed by backend (conventionally a
// view namespaced to the segment directory).
func NewManager(backend storage.Storage) *Manager {
	return &Manager{
		backend:         backend,
		bitmaps:         make(map[string]*Bitmap),
		CompactionRatio: DefaultCompactionRatio,
	}
}

// Track registers a bitmap (newly created or loaded) under the manager.
func (m *Manager) Track(b *Bitmap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bitmaps[b.SegmentID] = b
}

// Untrack removes a segment's bitmap, used after it has been compacted
// away, and deletes its persisted ".delmap" file.
func (m *Manager) Untrack(segmentID string) error {
	m.mu.Lock()
	delete(m.bitmaps, segmentID)
	m.mu.Unlock()
	return m.backend.Delete(delmapName(segmentID))
}

// Get returns the tracked bitmap for segmentID, if any.
func (m *Manager) Get(segmentID string) (*Bitmap, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bitmaps[segmentID]
	return b, ok
}

func delmapName(segmentID string) string { return fmt.Sprintf("%s.delmap", segmentID) }

// DeleteDocument marks localDocID deleted within segmentID and persists
// the bitmap immediately. Deleting an already-deleted id is a no-op that
// still succeeds (§8 idempotence).
func (m *Manager) DeleteDocument(segmentID string, localDocID uint64) error {
	m.mu.RLock()
	b, ok := m.bitmaps[segmentID]
	m.mu.RUnlock()
	if !ok {
		return errkind.New(errkind.NotFound, "deletion.delete_document", "unknown segment: "+segmentID)
	}
	b.Delete(localDocID)
	return b.Save(m.backend, delmapName(segmentID))
}

// DeleteDocuments is the batch variant of DeleteDocument: it marks all ids
// and persists the bitmap once.
func (m *Manager) DeleteDocuments(segmentID string, localDocIDs []uint64) error {
	m.mu.RLock()
	b, ok := m.bitmaps[segmentID]
	m.mu.RUnlock()
	if !ok {
		return errkind.New(errkind.NotFound, "deletion.delete_documents", "unknown segment: "+segmentID)
	}
	for _, id := range localDocIDs {
		b.Delete(id)
	}
	return b.Save(m.backend, delmapName(segmentID))
}

// IsDeleted reports whether localDocID is deleted in segmentID. An
// untracked segment has no deletions by definition.
func (m *Manager) IsDeleted(segmentID string, localDocID uint64) bool {
	m.mu.RLock()
	b, ok := m.bitmaps[segmentID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return b.IsDeleted(localDocID)
}

// SegmentRatio returns segmentID's deleted fraction, 0 if untracked.
func (m *Manager) SegmentRatio(segmentID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bitmaps[segmentID]
	if !ok {
		return 0
	}
	return b.Ratio()
}

// GlobalRatio returns the deleted fraction across every tracked segment.
func (m *Manager) GlobalRatio() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total, deleted uint64
	for _, b := range m.bitmaps {
		total += b.TotalDocs
		deleted += b.DeletedCount()
	}
	if total == 0 {
		return 0
	}
	return float64(deleted) / float64(total)
}

// TotalDeleted returns the absolute deleted-document count across every
// tracked segment, used alongside GlobalRatio by callers that gate
// compaction on both a ratio and a minimum absolute count (§4.12).
func (m *Manager) TotalDeleted() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var deleted uint64
	for _, b := range m.bitmaps {
		deleted += b.DeletedCount()
	}
	return deleted
}

// CompactionCandidates returns segment ids whose deletion ratio exceeds
// the configured threshold, most-deleted first.
func (m *Manager) CompactionCandidates() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	type scored struct {
		id    string
		ratio float64
	}
	var candidates []scored
	for id, b := range m.bitmaps {
		if b.Ratio() > m.CompactionRatio {
			candidates = append(candidates, scored{id, b.Ratio()})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ratio > candidates[j].ratio })
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	return ids
}

// ShouldAutoCompact reports whether auto-compaction should run now: it
// requires AutoCompact enabled, the configured interval elapsed since the
// last compaction, the ratio threshold crossed by at least one segment,
// and at least one actual candidate (§4.12).
func (m *Manager) ShouldAutoCompact(now time.Time) bool {
	if !m.AutoCompact {
		return false
	}
	m.mu.RLock()
	last := m.lastCompaction
	m.mu.RUnlock()
	if !last.IsZero() && now.Sub(last) < m.CompactionInterval {
		return false
	}
	return len(m.CompactionCandidates()) > 0
}

// MarkCompacted records that a compaction pass just completed now, for
// ShouldAutoCompact's interval check.
func (m *Manager) MarkCompacted(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCompaction = now
}
