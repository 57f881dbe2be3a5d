// Package wal implements the write-ahead log every mutation appends to
// before taking effect in memory (§4.13): add/upsert/delete entries tagged
// with a monotonic sequence number that also serves as a document version.
package wal

import (
	"encoding/binary"
	"sort"

	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/ioutil"
	"github.com/emberdb/ember/internal/storage"
)

var walMagic = [4]byte{'E', 'W', 'A', 'L'}

const walVersion = 1

// OpKind tags what a WAL entry represents.
type OpKind uint8

const (
	OpAdd OpKind = iota
	OpUpsert
	OpDelete
)

// Entry is one logged mutation. Payload is the caller-serialized document
// or delete target; the WAL itself is payload-agnostic.
type Entry struct {
	Seq     uint64
	Op      OpKind
	DocID   uint64
	Payload []byte
}

// WAL appends entries to a single growing log file and supports replay
// and truncation on commit.
type WAL struct {
	backend storage.Storage
	name    string
	writer  *ioutil.StructWriter
	nextSeq uint64
}

// Open creates or reopens the WAL file name in backend, replaying any
// entries already present and returning them in ascending seq order.
func Open(backend storage.Storage, name string) (*WAL, []Entry, error) {
	var entries []Entry
	if in, err := backend.OpenInput(name); err == nil {
		entries, err = replay(in)
		if err != nil {
			return nil, nil, err
		}
	}
	out, err := backend.CreateOutput(name)
	if err != nil {
		return nil, nil, err
	}
	w := &WAL{backend: backend, name: name, writer: ioutil.NewStructWriter(out)}
	if err := w.writer.Header(walMagic, walVersion); err != nil {
		return nil, nil, err
	}
	var last uint64
	for _, e := range entries {
		if e.Seq+1 > last {
			last = e.Seq + 1
		}
	}
	w.nextSeq = last
	for _, e := range entries {
		if err := w.writer.WriteFramed(encodeEntry(e)); err != nil {
			return nil, nil, err
		}
	}
	return w, entries, nil
}

func replay(in storage.Input) ([]Entry, error) {
	defer in.Close()
	r := ioutil.NewStructReader(in)
	version, err := r.Header(walMagic)
	if err != nil {
		return nil, err
	}
	if version != walVersion {
		return nil, errkind.New(errkind.Corruption, "wal.replay", "unsupported version")
	}
	var entries []Entry
	for {
		frame, err := r.ReadFramed()
		if err != nil {
			break // a short/corrupt trailing frame ends replay, per §7's io/corruption tolerance
		}
		e, err := decodeEntry(frame)
		if err != nil {
			break
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	return entries, nil
}

// encodeEntry/decodeEntry use a tiny self-contained layout (not routed
// through StructWriter, which only targets storage.Output streams):
// varint seq, u8 op, 8-byte little-endian doc id, varint-length payload.
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 0, 16+len(e.Payload))
	var varintBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(varintBuf[:], e.Seq)
	buf = append(buf, varintBuf[:n]...)
	buf = append(buf, byte(e.Op))
	var docIDBuf [8]byte
	binary.LittleEndian.PutUint64(docIDBuf[:], e.DocID)
	buf = append(buf, docIDBuf[:]...)
	n = binary.PutUvarint(varintBuf[:], uint64(len(e.Payload)))
	buf = append(buf, varintBuf[:n]...)
	buf = append(buf, e.Payload...)
	return buf
}

func decodeEntry(frame []byte) (Entry, error) {
	seq, n := binary.Uvarint(frame)
	if n <= 0 {
		return Entry{}, errkind.New(errkind.Corruption, "wal.decode_entry", "bad seq varint")
	}
	frame = frame[n:]
	if len(frame) < 9 {
		return Entry{}, errkind.New(errkind.Corruption, "wal.decode_entry", "truncated entry")
	}
	op := OpKind(frame[0])
	docID := binary.LittleEndian.Uint64(frame[1:9])
	frame = frame[9:]
	payloadLen, n := binary.Uvarint(frame)
	if n <= 0 {
		return Entry{}, errkind.New(errkind.Corruption, "wal.decode_entry", "bad payload length")
	}
	frame = frame[n:]
	if uint64(len(frame)) < payloadLen {
		return Entry{}, errkind.New(errkind.Corruption, "wal.decode_entry", "truncated payload")
	}
	return Entry{Seq: seq, Op: op, DocID: docID, Payload: frame[:payloadLen]}, nil
}

// Append logs a new entry before its in-memory effect is applied,
// returning the assigned sequence number.
func (w *WAL) Append(op OpKind, docID uint64, payload []byte) (uint64, error) {
	seq := w.nextSeq
	w.nextSeq++
	return seq, w.writer.WriteFramed(encodeEntry(Entry{Seq: seq, Op: op, DocID: docID, Payload: payload}))
}

// Truncate resets the log to empty, called once a commit has durably
// flushed every entry up to and including committedSeq (§4.13). The
// storage abstraction offers no partial-file truncation, so a full reset
// is used; nextSeq is preserved so future entries keep strictly
// increasing sequence numbers (they also serve as version tags, §4.13).
func (w *WAL) Truncate(committedSeq uint64) error {
	_ = committedSeq
	if err := w.writer.Close(); err != nil {
		return err
	}
	// Install an empty log right away so the flushed entries are gone even
	// if this WAL is never closed, then reopen a writer for new entries.
	empty, err := w.backend.CreateOutput(w.name)
	if err != nil {
		return err
	}
	ew := ioutil.NewStructWriter(empty)
	if err := ew.Header(walMagic, walVersion); err != nil {
		_ = ew.Close()
		return err
	}
	if err := ew.Close(); err != nil {
		return err
	}
	out, err := w.backend.CreateOutput(w.name)
	if err != nil {
		return err
	}
	w.writer = ioutil.NewStructWriter(out)
	return w.writer.Header(walMagic, walVersion)
}

// Close flushes and closes the underlying log file.
func (w *WAL) Close() error { return w.writer.Close() }
