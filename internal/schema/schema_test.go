package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTOML = `
default_fields = ["title", "body"]

[fields.title]
kind = "text"
indexed = true
stored = true

[fields.body]
kind = "text"
indexed = true
stored = false
term_vectors = true

[fields.published_at]
kind = "datetime"
indexed = true
stored = true

[fields.embedding]
kind = "vector"
algorithm = "hnsw"
dimension = 384
metric = "cosine"
hnsw_m = 16
hnsw_ef_construction = 200
`

func TestDecode(t *testing.T) {
	s, err := Decode([]byte(sampleTOML))
	require.NoError(t, err)
	require.Equal(t, []string{"title", "body"}, s.DefaultFields)

	title := s.Fields["title"]
	require.NotNil(t, title.Lexical)
	require.Nil(t, title.Vector)
	require.True(t, title.Lexical.Indexed)
	require.True(t, title.Lexical.Stored)

	body := s.Fields["body"]
	require.True(t, body.Lexical.TermVectors)
	require.False(t, body.Lexical.Stored)

	emb := s.Fields["embedding"]
	require.Nil(t, emb.Lexical)
	require.NotNil(t, emb.Vector)
	require.Equal(t, VectorHNSW, emb.Vector.Algorithm)
	require.Equal(t, 384, emb.Vector.Dimension)
	require.Equal(t, "cosine", emb.Vector.Metric)
	require.Equal(t, 16, emb.Vector.HNSWM)
}

func TestDecodeRejectsFieldWithoutKind(t *testing.T) {
	_, err := Decode([]byte(`
[fields.mystery]
indexed = true
`))
	require.Error(t, err)
}

func TestDecodeHybridField(t *testing.T) {
	s, err := Decode([]byte(`
[fields.summary]
kind = "text"
indexed = true
stored = true
dimension = 128
algorithm = "flat"
`))
	require.NoError(t, err)
	f := s.Fields["summary"]
	require.NotNil(t, f.Lexical)
	require.NotNil(t, f.Vector)
	require.Equal(t, 128, f.Vector.Dimension)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s, err := Decode([]byte(sampleTOML))
	require.NoError(t, err)

	data, err := Encode(s)
	require.NoError(t, err)

	s2, err := Decode(data)
	require.NoError(t, err)
	require.ElementsMatch(t, s.DefaultFields, s2.DefaultFields)
	require.Len(t, s2.Fields, len(s.Fields))
}
