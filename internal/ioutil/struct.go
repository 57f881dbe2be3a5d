// Package ioutil layers fixed-endian primitives, varints, length-prefixed
// strings/blobs, and CRC framing on top of a storage stream. Every on-disk
// format built on top of it begins with a 4-byte magic and a 4-byte
// version; an unknown version is a hard error (§4.1).
package ioutil

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/storage"
)

// StructWriter appends fixed-width and variable-length primitives to an
// underlying storage.Output stream.
type StructWriter struct {
	out storage.Output
	n   int64 // bytes written, used for offset bookkeeping by callers
}

// NewStructWriter wraps a storage.Output for structured writes.
func NewStructWriter(out storage.Output) *StructWriter {
	return &StructWriter{out: out}
}

// Offset returns the number of bytes written so far.
func (w *StructWriter) Offset() int64 { return w.n }

func (w *StructWriter) write(p []byte) error {
	n, err := w.out.Write(p)
	w.n += int64(n)
	if err != nil {
		return errkind.Wrap(errkind.Io, "structwriter.write", err)
	}
	return nil
}

// Header writes the 4-byte magic followed by a u32 version.
func (w *StructWriter) Header(magic [4]byte, version uint32) error {
	if err := w.write(magic[:]); err != nil {
		return err
	}
	return w.WriteU32(version)
}

func (w *StructWriter) WriteU8(v uint8) error  { return w.write([]byte{v}) }
func (w *StructWriter) WriteBool(v bool) error {
	if v {
		return w.WriteU8(1)
	}
	return w.WriteU8(0)
}

func (w *StructWriter) WriteU16(v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return w.write(b[:])
}

func (w *StructWriter) WriteU32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return w.write(b[:])
}

func (w *StructWriter) WriteU64(v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return w.write(b[:])
}

func (w *StructWriter) WriteI32(v int32) error { return w.WriteU32(uint32(v)) }
func (w *StructWriter) WriteI64(v int64) error { return w.WriteU64(uint64(v)) }

func (w *StructWriter) WriteF32(v float32) error {
	return w.WriteU32(uint32frombits(v))
}

func (w *StructWriter) WriteF64(v float64) error {
	return w.WriteU64(uint64frombits(v))
}

// WriteVarint writes an unsigned LEB128 varint.
func (w *StructWriter) WriteVarint(v uint64) error {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return w.write(buf[:n])
}

// WriteSVarint writes a zig-zag encoded signed varint.
func (w *StructWriter) WriteSVarint(v int64) error {
	return w.WriteVarint(zigzagEncode(v))
}

// WriteString writes a varint length prefix followed by UTF-8 bytes.
func (w *StructWriter) WriteString(s string) error {
	if err := w.WriteVarint(uint64(len(s))); err != nil {
		return err
	}
	return w.write([]byte(s))
}

// WriteBytes writes a varint length prefix followed by raw bytes.
func (w *StructWriter) WriteBytes(b []byte) error {
	if err := w.WriteVarint(uint64(len(b))); err != nil {
		return err
	}
	return w.write(b)
}

// WriteFramed writes a CRC32-checked frame: varint length, payload, u32 crc.
func (w *StructWriter) WriteFramed(payload []byte) error {
	if err := w.WriteVarint(uint64(len(payload))); err != nil {
		return err
	}
	if err := w.write(payload); err != nil {
		return err
	}
	return w.WriteU32(crc32.ChecksumIEEE(payload))
}

// Close flushes and closes the underlying stream.
func (w *StructWriter) Close() error {
	if err := w.out.Sync(); err != nil {
		return errkind.Wrap(errkind.Io, "structwriter.close", err)
	}
	return w.out.Close()
}

// StructReader reads the primitives written by StructWriter from a
// storage.Input stream.
type StructReader struct {
	in storage.Input
}

func NewStructReader(in storage.Input) *StructReader {
	return &StructReader{in: in}
}

func (r *StructReader) read(p []byte) error {
	_, err := io.ReadFull(r.in, p)
	if err != nil {
		return errkind.Wrap(errkind.Io, "structreader.read", err)
	}
	return nil
}

// Header reads and validates the magic; returns the version found.
func (r *StructReader) Header(wantMagic [4]byte) (uint32, error) {
	var gotMagic [4]byte
	if err := r.read(gotMagic[:]); err != nil {
		return 0, err
	}
	if gotMagic != wantMagic {
		return 0, errkind.New(errkind.Corruption, "structreader.header", "bad magic")
	}
	return r.ReadU32()
}

func (r *StructReader) ReadU8() (uint8, error) {
	var b [1]byte
	if err := r.read(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *StructReader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	return v != 0, err
}

func (r *StructReader) ReadU16() (uint16, error) {
	var b [2]byte
	if err := r.read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (r *StructReader) ReadU32() (uint32, error) {
	var b [4]byte
	if err := r.read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (r *StructReader) ReadU64() (uint64, error) {
	var b [8]byte
	if err := r.read(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func (r *StructReader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

func (r *StructReader) ReadI64() (int64, error) {
	v, err := r.ReadU64()
	return int64(v), err
}

func (r *StructReader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	return float32frombits(v), nil
}

func (r *StructReader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	if err != nil {
		return 0, err
	}
	return float64frombits(v), nil
}

// ReadVarint reads an unsigned LEB128 varint.
func (r *StructReader) ReadVarint() (uint64, error) {
	return binary.ReadUvarint(byteReaderOf(r.in))
}

func (r *StructReader) ReadSVarint() (int64, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	return zigzagDecode(v), nil
}

func (r *StructReader) ReadString() (string, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if err := r.read(buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (r *StructReader) ReadBytes() ([]byte, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := r.read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadFramed reads a CRC32-checked frame and validates its checksum.
func (r *StructReader) ReadFramed() ([]byte, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := r.read(buf); err != nil {
		return nil, err
	}
	wantCRC, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(buf) != wantCRC {
		return nil, errkind.New(errkind.Corruption, "structreader.readframed", "crc mismatch")
	}
	return buf, nil
}

func (r *StructReader) Close() error { return r.in.Close() }

// byteReaderOf adapts an io.Reader to io.ByteReader for binary.ReadUvarint,
// reading one byte at a time through the underlying stream.
type singleByteReader struct{ r io.Reader }

func (s singleByteReader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(s.r, b[:])
	return b[0], err
}

func byteReaderOf(r io.Reader) io.ByteReader {
	if br, ok := r.(io.ByteReader); ok {
		return br
	}
	return singleByteReader{r: r}
}

func zigzagEncode(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }
func zigzagDecode(v uint64) int64 { return int64(v>>1) ^ -int64(v&1) }
