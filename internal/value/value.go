// Package value implements DataValue, the tagged value type carried by
// documents (§3), and its cross-variant ordering.
package value

import (
	"math"
	"time"
)

// Kind tags a DataValue's variant.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindText
	KindBytes
	KindDateTime
	KindGeo
	KindVector
)

// Geo is a latitude/longitude pair.
type Geo struct {
	Lat float64
	Lon float64
}

// DateTime is an instant with an explicit zone offset, preserved as given
// rather than normalized to UTC (callers may want the original offset back).
type DateTime struct {
	Instant time.Time
	OffsetSeconds int
}

// Bytes is an opaque blob with an optional MIME type.
type Bytes struct {
	MIME string
	Blob []byte
}

// Value is the tagged DataValue union. Only the field matching Kind is
// meaningful; constructors below are the supported way to build one.
type Value struct {
	Kind Kind

	boolVal   bool
	intVal    int64
	floatVal  float64
	textVal   string
	bytesVal  Bytes
	timeVal   DateTime
	geoVal    Geo
	vectorVal []float32
}

func Null() Value               { return Value{Kind: KindNull} }
func FromBool(b bool) Value     { return Value{Kind: KindBool, boolVal: b} }
func FromInt64(i int64) Value   { return Value{Kind: KindInt64, intVal: i} }
func FromFloat64(f float64) Value { return Value{Kind: KindFloat64, floatVal: f} }
func FromText(s string) Value   { return Value{Kind: KindText, textVal: s} }
func FromBytes(b Bytes) Value   { return Value{Kind: KindBytes, bytesVal: b} }
func FromDateTime(d DateTime) Value { return Value{Kind: KindDateTime, timeVal: d} }
func FromGeo(g Geo) Value       { return Value{Kind: KindGeo, geoVal: g} }
func FromVector(v []float32) Value { return Value{Kind: KindVector, vectorVal: v} }

func (v Value) Bool() bool           { return v.boolVal }
func (v Value) Int64() int64         { return v.intVal }
func (v Value) Float64() float64     { return v.floatVal }
func (v Value) Text() string         { return v.textVal }
func (v Value) BytesValue() Bytes    { return v.bytesVal }
func (v Value) DateTimeValue() DateTime { return v.timeVal }
func (v Value) GeoValue() Geo        { return v.geoVal }
func (v Value) Vector() []float32    { return v.vectorVal }

// AsNumeric returns the value as a float64 for BKD-tree indexing,
// supporting both Int64 and Float64 fields (§4.7). The second return is
// false for non-numeric kinds.
func (v Value) AsNumeric() (float64, bool) {
	switch v.Kind {
	case KindInt64:
		return float64(v.intVal), true
	case KindFloat64:
		return v.floatVal, true
	default:
		return 0, false
	}
}

// kindRank defines the cross-variant ordering from §3:
// Null < Bool < Int < Float < Text < Bytes (DateTime/Geo/Vector are
// excluded from the total order — they are never range- or sort-compared
// across variants in the spec, only within their own variant/query type).
func kindRank(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindBool:
		return 1
	case KindInt64:
		return 2
	case KindFloat64:
		return 3
	case KindText:
		return 4
	case KindBytes:
		return 5
	default:
		return 6
	}
}

// Compare implements the total order across variants described in §3:
// Null < Bool < Int < Float < Text < Bytes; within a variant, natural
// ordering (floats: NaN equals NaN and sorts above every other float, so
// comparisons stay total).
func Compare(a, b Value) int {
	if a.Kind != b.Kind {
		return kindRank(a.Kind) - kindRank(b.Kind)
	}
	switch a.Kind {
	case KindNull:
		return 0
	case KindBool:
		if a.boolVal == b.boolVal {
			return 0
		}
		if !a.boolVal {
			return -1
		}
		return 1
	case KindInt64:
		switch {
		case a.intVal < b.intVal:
			return -1
		case a.intVal > b.intVal:
			return 1
		default:
			return 0
		}
	case KindFloat64:
		return compareFloat(a.floatVal, b.floatVal)
	case KindText:
		switch {
		case a.textVal < b.textVal:
			return -1
		case a.textVal > b.textVal:
			return 1
		default:
			return 0
		}
	case KindBytes:
		return compareBytes(a.bytesVal.Blob, b.bytesVal.Blob)
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	if aNaN && bNaN {
		return 0
	}
	if aNaN {
		return 1
	}
	if bNaN {
		return -1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}
