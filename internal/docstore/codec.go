package docstore

import (
	"github.com/emberdb/ember/internal/errkind"
	"github.com/emberdb/ember/internal/ioutil"
	"github.com/emberdb/ember/internal/storage"
	"github.com/emberdb/ember/internal/value"
)

// EncodeDocument serializes doc into a standalone byte payload, used by
// callers (the WAL, in particular) that need a document outside of a
// segment file. It round-trips through a scratch in-memory backend so the
// wire format stays identical to what segments store.
func EncodeDocument(doc *Document) ([]byte, error) {
	mem := storage.NewMemoryBackend()
	out, err := mem.CreateOutput("doc")
	if err != nil {
		return nil, err
	}
	w := ioutil.NewStructWriter(out)
	if err := encodeDocument(w, doc); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	in, err := mem.OpenInput("doc")
	if err != nil {
		return nil, err
	}
	defer in.Close()
	data := make([]byte, 0)
	buf := make([]byte, 4096)
	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	return data, nil
}

// DecodeDocument parses a payload produced by EncodeDocument.
func DecodeDocument(data []byte) (*Document, error) {
	mem := storage.NewMemoryBackend()
	out, err := mem.CreateOutput("doc")
	if err != nil {
		return nil, err
	}
	if _, err := out.Write(data); err != nil {
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, err
	}
	in, err := mem.OpenInput("doc")
	if err != nil {
		return nil, err
	}
	defer in.Close()
	r := ioutil.NewStructReader(in)
	return decodeDocument(r)
}

// encodeValue writes a tagged DataValue to w.
func encodeValue(w *ioutil.StructWriter, v value.Value) error {
	if err := w.WriteU8(uint8(v.Kind)); err != nil {
		return err
	}
	switch v.Kind {
	case value.KindNull:
		return nil
	case value.KindBool:
		return w.WriteBool(v.Bool())
	case value.KindInt64:
		return w.WriteSVarint(v.Int64())
	case value.KindFloat64:
		return w.WriteF64(v.Float64())
	case value.KindText:
		return w.WriteString(v.Text())
	case value.KindBytes:
		b := v.BytesValue()
		if err := w.WriteString(b.MIME); err != nil {
			return err
		}
		return w.WriteBytes(b.Blob)
	case value.KindDateTime:
		dt := v.DateTimeValue()
		if err := w.WriteI64(dt.Instant.Unix()); err != nil {
			return err
		}
		if err := w.WriteI64(int64(dt.Instant.Nanosecond())); err != nil {
			return err
		}
		return w.WriteI32(int32(dt.OffsetSeconds))
	case value.KindGeo:
		g := v.GeoValue()
		if err := w.WriteF64(g.Lat); err != nil {
			return err
		}
		return w.WriteF64(g.Lon)
	case value.KindVector:
		vec := v.Vector()
		if err := w.WriteVarint(uint64(len(vec))); err != nil {
			return err
		}
		for _, f := range vec {
			if err := w.WriteF32(f); err != nil {
				return err
			}
		}
		return nil
	default:
		return errkind.New(errkind.Corruption, "docstore.encode_value", "unknown value kind")
	}
}

func decodeValue(r *ioutil.StructReader) (value.Value, error) {
	kindByte, err := r.ReadU8()
	if err != nil {
		return value.Value{}, err
	}
	kind := value.Kind(kindByte)
	switch kind {
	case value.KindNull:
		return value.Null(), nil
	case value.KindBool:
		b, err := r.ReadBool()
		return value.FromBool(b), err
	case value.KindInt64:
		i, err := r.ReadSVarint()
		return value.FromInt64(i), err
	case value.KindFloat64:
		f, err := r.ReadF64()
		return value.FromFloat64(f), err
	case value.KindText:
		s, err := r.ReadString()
		return value.FromText(s), err
	case value.KindBytes:
		mime, err := r.ReadString()
		if err != nil {
			return value.Value{}, err
		}
		blob, err := r.ReadBytes()
		if err != nil {
			return value.Value{}, err
		}
		return value.FromBytes(value.Bytes{MIME: mime, Blob: blob}), nil
	case value.KindDateTime:
		sec, err := r.ReadI64()
		if err != nil {
			return value.Value{}, err
		}
		nsec, err := r.ReadI64()
		if err != nil {
			return value.Value{}, err
		}
		offset, err := r.ReadI32()
		if err != nil {
			return value.Value{}, err
		}
		return value.FromDateTime(newDateTime(sec, nsec, int(offset))), nil
	case value.KindGeo:
		lat, err := r.ReadF64()
		if err != nil {
			return value.Value{}, err
		}
		lon, err := r.ReadF64()
		if err != nil {
			return value.Value{}, err
		}
		return value.FromGeo(value.Geo{Lat: lat, Lon: lon}), nil
	case value.KindVector:
		n, err := r.ReadVarint()
		if err != nil {
			return value.Value{}, err
		}
		vec := make([]float32, n)
		for i := range vec {
			vec[i], err = r.ReadF32()
			if err != nil {
				return value.Value{}, err
			}
		}
		return value.FromVector(vec), nil
	default:
		return value.Value{}, errkind.New(errkind.Corruption, "docstore.decode_value", "unknown value kind")
	}
}

// encodeDocument writes a document's external id and field map to w.
func encodeDocument(w *ioutil.StructWriter, doc *Document) error {
	if err := w.WriteString(doc.ExternalID); err != nil {
		return err
	}
	if err := w.WriteVarint(uint64(len(doc.Fields))); err != nil {
		return err
	}
	for name, v := range doc.Fields {
		if err := w.WriteString(name); err != nil {
			return err
		}
		if err := encodeValue(w, v); err != nil {
			return err
		}
	}
	return nil
}

func decodeDocument(r *ioutil.StructReader) (*Document, error) {
	extID, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	doc := New(extID)
	for i := uint64(0); i < n; i++ {
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := decodeValue(r)
		if err != nil {
			return nil, err
		}
		doc.Fields[name] = v
	}
	return doc, nil
}
