package ember

import (
	"time"

	"github.com/emberdb/ember/internal/docstore"
	"github.com/emberdb/ember/internal/value"
)

// Document is a mapping from unique field name to DataValue plus an
// optional external string id (§3).
type Document = docstore.Document

// DocID is the internal 64-bit document id: a 16-bit shard prefix plus a
// 48-bit locally monotonic id.
type DocID = docstore.DocID

// DataValue is the tagged value type carried by documents. Build one with
// Text, Int64, Float64, Bool, DateTimeValue, GeoValue, BytesValue, or
// VectorValue below.
type DataValue = value.Value

// NewDocument creates an empty document with the given external id (may
// be "" for an anonymous document).
func NewDocument(externalID string) *Document { return docstore.New(externalID) }

func Text(s string) DataValue    { return value.FromText(s) }
func Int64(i int64) DataValue    { return value.FromInt64(i) }
func Float64(f float64) DataValue { return value.FromFloat64(f) }
func Bool(b bool) DataValue      { return value.FromBool(b) }
func NullValue() DataValue       { return value.Null() }
func VectorValue(v []float32) DataValue { return value.FromVector(v) }

// DateTimeValue builds a DataValue preserving its original zone offset.
func DateTimeValue(t time.Time, offsetSeconds int) DataValue {
	return value.FromDateTime(value.DateTime{Instant: t, OffsetSeconds: offsetSeconds})
}

// GeoValue builds a latitude/longitude DataValue.
func GeoValue(lat, lon float64) DataValue {
	return value.FromGeo(value.Geo{Lat: lat, Lon: lon})
}

// BytesValue builds an opaque blob DataValue with an optional MIME type.
func BytesValue(mime string, blob []byte) DataValue {
	return value.FromBytes(value.Bytes{MIME: mime, Blob: blob})
}
