// Package docstore implements the DocumentStore (§3, §4.13): an
// append-structured mapping from internal document id to document
// payload, with segment files and an external-id → internal-id index.
package docstore

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/ioutil"
	"github.com/emberdb/ember/internal/storage"
)

var segmentMagic = [4]byte{'E', 'D', 'O', 'C'}

const segmentVersion = 1

// Store is the DocumentStore: documents are appended in memory, assigned a
// DocID, and become durable on Flush, which writes a new immutable segment
// file. The external-id index is many-to-one by default (the latest
// ingest wins); AppendChunk opts into many-to-many for multi-chunk
// documents.
type Store struct {
	mu      sync.RWMutex
	backend storage.Storage
	shard   uint16

	nextLocal uint64 // atomic

	live     map[DocID]*Document
	extIndex map[string]DocID   // latest doc id per external id
	extMulti map[string][]DocID // append-chunk history, oldest first

	pending       map[DocID]*Document
	segmentSeq    int
	segmentIDs    []string
}

// Open creates or reopens a Store rooted at backend (already namespaced by
// the caller, conventionally "documents/").
func Open(backend storage.Storage, shard uint16) (*Store, error) {
	s := &Store{
		backend:  backend,
		shard:    shard,
		live:     make(map[DocID]*Document),
		extIndex: make(map[string]DocID),
		extMulti: make(map[string][]DocID),
		pending:  make(map[DocID]*Document),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	names, err := s.backend.List()
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		if len(name) < 11 || name[len(name)-10:] != ".documents" {
			continue
		}
		if err := s.loadSegment(name); err != nil {
			return err
		}
		s.segmentIDs = append(s.segmentIDs, name)
		s.segmentSeq++
	}
	return nil
}

func (s *Store) loadSegment(name string) error {
	in, err := s.backend.OpenInput(name)
	if err != nil {
		return err
	}
	defer in.Close()
	r := ioutil.NewStructReader(in)
	version, err := r.Header(segmentMagic)
	if err != nil {
		return err
	}
	if version != segmentVersion {
		return errkind.New(errkind.Corruption, "docstore.load_segment", "unsupported version")
	}
	count, err := r.ReadVarint()
	if err != nil {
		return err
	}
	for i := uint64(0); i < count; i++ {
		rawID, err := r.ReadU64()
		if err != nil {
			return err
		}
		id := DocID(rawID)
		doc, err := decodeDocument(r)
		if err != nil {
			return err
		}
		s.live[id] = doc
		if doc.ExternalID != "" {
			s.extIndex[doc.ExternalID] = id
			s.extMulti[doc.ExternalID] = append(s.extMulti[doc.ExternalID], id)
		}
		if local := id.Local(); local >= s.nextLocal {
			s.nextLocal = local + 1
		}
	}
	return nil
}

// Append assigns the next local doc_id (atomic fetch-add), buffers the
// document, and updates the external-id index with many-to-one semantics
// (the new ingest supersedes any prior doc id for the same external id).
func (s *Store) Append(doc *Document) DocID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(doc, false)
}

// AppendChunk is the explicit "append-chunk" ingest path (§3): it keeps the
// external-id mapping many-to-many instead of overwriting it.
func (s *Store) AppendChunk(doc *Document) DocID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(doc, true)
}

func (s *Store) appendLocked(doc *Document, chunk bool) DocID {
	local := atomic.AddUint64(&s.nextLocal, 1) - 1
	id := MakeDocID(s.shard, local)
	s.live[id] = doc
	s.pending[id] = doc
	if doc.ExternalID != "" {
		s.extIndex[doc.ExternalID] = id
		if chunk {
			s.extMulti[doc.ExternalID] = append(s.extMulti[doc.ExternalID], id)
		} else {
			s.extMulti[doc.ExternalID] = []DocID{id}
		}
	}
	return id
}

// AppendWithID restores doc at a previously assigned id without touching
// the local-id counter's atomic fetch-add path. Used by WAL replay on
// reopen to recover a buffered-but-not-yet-flushed write under its
// original id, instead of minting a new one.
func (s *Store) AppendWithID(id DocID, doc *Document, chunk bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live[id] = doc
	s.pending[id] = doc
	if local := id.Local(); local >= s.nextLocal {
		s.nextLocal = local + 1
	}
	if doc.ExternalID != "" {
		s.extIndex[doc.ExternalID] = id
		if chunk {
			s.extMulti[doc.ExternalID] = append(s.extMulti[doc.ExternalID], id)
		} else {
			s.extMulti[doc.ExternalID] = []DocID{id}
		}
	}
}

// Get returns the document for id, if it is present in the latest
// generation (it may still be logically deleted; see the deletion package
// for liveness).
func (s *Store) Get(id DocID) (*Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.live[id]
	return doc, ok
}

// GetByExternalID returns the most recently ingested doc id for extID.
func (s *Store) GetByExternalID(extID string) (DocID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.extIndex[extID]
	return id, ok
}

// GetAllByExternalID returns every doc id ever appended under extID, in
// ingest order — the many-to-many view used for append-chunk documents.
func (s *Store) GetAllByExternalID(extID string) []DocID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.extMulti[extID]
	out := make([]DocID, len(ids))
	copy(out, ids)
	return out
}

// Remove drops id from the latest generation. Used by the write path when
// a doc id is superseded by upsert, or during compaction.
func (s *Store) Remove(id DocID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, id)
	delete(s.pending, id)
}

// Count returns the number of documents in the latest generation.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.live)
}

// AllIDs returns every doc id currently present in the latest generation.
func (s *Store) AllIDs() []DocID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]DocID, 0, len(s.live))
	for id := range s.live {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Flush writes every pending document to a new immutable segment file and
// clears the in-memory pending buffer. A Flush with nothing pending is a
// no-op, matching the commit-with-zero-pending-writes invariant (§8).
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}

	name := fmt.Sprintf("%05d.documents", s.segmentSeq)
	out, err := s.backend.CreateOutput(name)
	if err != nil {
		return err
	}
	w := ioutil.NewStructWriter(out)
	if err := w.Header(segmentMagic, segmentVersion); err != nil {
		_ = w.Close()
		return err
	}
	ids := make([]DocID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if err := w.WriteVarint(uint64(len(ids))); err != nil {
		_ = w.Close()
		return err
	}
	for _, id := range ids {
		if err := w.WriteU64(uint64(id)); err != nil {
			_ = w.Close()
			return err
		}
		if err := encodeDocument(w, s.pending[id]); err != nil {
			_ = w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	s.segmentIDs = append(s.segmentIDs, name)
	s.segmentSeq++
	s.pending = make(map[DocID]*Document)
	return nil
}

// SegmentIDs returns the names of sealed segment files, oldest first.
func (s *Store) SegmentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.segmentIDs))
	copy(out, s.segmentIDs)
	return out
}
