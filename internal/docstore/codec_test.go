package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/emberdb/ember/internal/value"
)

func TestEncodeDecodeDocumentRoundTrip(t *testing.T) {
	doc := New("article-42")
	doc.Set("title", value.FromText("hybrid search"))
	doc.Set("views", value.FromInt64(-17))
	doc.Set("score", value.FromFloat64(3.5))
	doc.Set("featured", value.FromBool(true))
	doc.Set("deleted_at", value.Null())
	doc.Set("thumbnail", value.FromBytes(value.Bytes{MIME: "image/png", Blob: []byte{1, 2, 3}}))
	doc.Set("published_at", value.FromDateTime(value.DateTime{
		Instant:       time.Unix(1_700_000_000, 123_000).UTC(),
		OffsetSeconds: -18000,
	}))
	doc.Set("location", value.FromGeo(value.Geo{Lat: 37.7749, Lon: -122.4194}))
	doc.Set("embedding", value.FromVector([]float32{0.1, -0.2, 0.3}))

	data, err := EncodeDocument(doc)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	got, err := DecodeDocument(data)
	require.NoError(t, err)
	require.Equal(t, doc.ExternalID, got.ExternalID)
	require.Len(t, got.Fields, len(doc.Fields))

	require.Equal(t, "hybrid search", got.Fields["title"].Text())
	require.Equal(t, int64(-17), got.Fields["views"].Int64())
	require.InDelta(t, 3.5, got.Fields["score"].Float64(), 1e-12)
	require.Equal(t, true, got.Fields["featured"].Bool())
	require.Equal(t, value.KindNull, got.Fields["deleted_at"].Kind)

	thumb := got.Fields["thumbnail"].BytesValue()
	require.Equal(t, "image/png", thumb.MIME)
	require.Equal(t, []byte{1, 2, 3}, thumb.Blob)

	pub := got.Fields["published_at"].DateTimeValue()
	require.Equal(t, doc.Fields["published_at"].DateTimeValue().Instant.Unix(), pub.Instant.Unix())
	require.Equal(t, -18000, pub.OffsetSeconds)

	loc := got.Fields["location"].GeoValue()
	require.InDelta(t, 37.7749, loc.Lat, 1e-9)
	require.InDelta(t, -122.4194, loc.Lon, 1e-9)

	vec := got.Fields["embedding"].Vector()
	require.Len(t, vec, 3)
	require.InDelta(t, 0.1, vec[0], 1e-6)
	require.InDelta(t, -0.2, vec[1], 1e-6)
	require.InDelta(t, 0.3, vec[2], 1e-6)
}

func TestEncodeDocumentEmptyFields(t *testing.T) {
	doc := New("")
	data, err := EncodeDocument(doc)
	require.NoError(t, err)

	got, err := DecodeDocument(data)
	require.NoError(t, err)
	require.Equal(t, "", got.ExternalID)
	require.Empty(t, got.Fields)
}
