package ember

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchemaTOML = `
default_fields = ["title"]

[fields.title]
kind = "text"
indexed = true
stored = true

[fields.views]
kind = "int"
indexed = true
stored = true

[fields.embedding]
kind = "vector"
algorithm = "flat"
dimension = 3
metric = "cosine"
`

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.toml"), []byte(testSchemaTOML), 0o644))
	e, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngineAddCommitSearchLexical(t *testing.T) {
	e := openTestEngine(t)

	doc1 := NewDocument("doc-1")
	doc1.Set("title", Text("the quick brown fox"))
	doc1.Set("views", Int64(10))
	id1, err := e.AddDocument(doc1)
	require.NoError(t, err)

	doc2 := NewDocument("doc-2")
	doc2.Set("title", Text("a lazy dog sleeps"))
	doc2.Set("views", Int64(3))
	_, err = e.AddDocument(doc2)
	require.NoError(t, err)

	require.NoError(t, e.Commit())

	result, err := e.Search(SearchRequest{
		Query:   NewTermQuery("title", "fox"),
		Limit:   10,
		Hydrate: true,
	})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	require.Equal(t, uint64(id1), result.Hits[0].DocID)
	require.Equal(t, "doc-1", result.Hits[0].ExternalID)
	require.NotNil(t, result.Hits[0].Document)
}

func TestEngineFilterRestrictsResults(t *testing.T) {
	e := openTestEngine(t)

	d1 := NewDocument("popular")
	d1.Set("title", Text("hybrid search engine"))
	d1.Set("views", Int64(100))
	id1, err := e.AddDocument(d1)
	require.NoError(t, err)

	d2 := NewDocument("obscure")
	d2.Set("title", Text("hybrid search engine"))
	d2.Set("views", Int64(1))
	_, err = e.AddDocument(d2)
	require.NoError(t, err)
	require.NoError(t, e.Commit())

	result, err := e.Search(SearchRequest{
		Query:  NewTermQuery("title", "hybrid"),
		Filter: map[string]DataValue{"views": Int64(100)},
		Limit:  10,
	})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	require.Equal(t, uint64(id1), result.Hits[0].DocID)
}

func TestEngineVectorSearchRanksByCosine(t *testing.T) {
	e := openTestEngine(t)

	near := NewDocument("near")
	near.Set("embedding", VectorValue([]float32{1, 0, 0}))
	idNear, err := e.AddDocument(near)
	require.NoError(t, err)

	far := NewDocument("far")
	far.Set("embedding", VectorValue([]float32{0, 1, 0}))
	_, err = e.AddDocument(far)
	require.NoError(t, err)
	require.NoError(t, e.Commit())

	result, err := e.Search(SearchRequest{
		VectorField: "embedding",
		VectorQuery: []float32{1, 0, 0},
		Limit:       10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Hits)
	require.Equal(t, uint64(idNear), result.Hits[0].DocID)
}

func TestEngineHybridSearchFuses(t *testing.T) {
	e := openTestEngine(t)

	d1 := NewDocument("d1")
	d1.Set("title", Text("fox"))
	d1.Set("embedding", VectorValue([]float32{0, 1, 0}))
	_, err := e.AddDocument(d1)
	require.NoError(t, err)

	d2 := NewDocument("d2")
	d2.Set("title", Text("fox fox"))
	d2.Set("embedding", VectorValue([]float32{1, 0, 0}))
	_, err = e.AddDocument(d2)
	require.NoError(t, err)
	require.NoError(t, e.Commit())

	result, err := e.Search(SearchRequest{
		Query:       NewTermQuery("title", "fox"),
		VectorField: "embedding",
		VectorQuery: []float32{1, 0, 0},
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, result.Hits, 2)
}

func TestEngineDeleteRemovesFromSearch(t *testing.T) {
	e := openTestEngine(t)

	doc := NewDocument("gone")
	doc.Set("title", Text("ephemeral"))
	id, err := e.AddDocument(doc)
	require.NoError(t, err)
	require.NoError(t, e.Commit())

	require.NoError(t, e.Delete(id))

	result, err := e.Search(SearchRequest{Query: NewTermQuery("title", "ephemeral"), Limit: 10})
	require.NoError(t, err)
	require.Empty(t, result.Hits)
}

func TestEngineUpsertSupersedesPriorDoc(t *testing.T) {
	e := openTestEngine(t)

	first := NewDocument("article-1")
	first.Set("title", Text("draft version"))
	_, err := e.Upsert(first)
	require.NoError(t, err)
	require.NoError(t, e.Commit())

	second := NewDocument("article-1")
	second.Set("title", Text("final version"))
	id2, err := e.Upsert(second)
	require.NoError(t, err)
	require.NoError(t, e.Commit())

	result, err := e.Search(SearchRequest{Query: NewTermQuery("title", "draft"), Limit: 10})
	require.NoError(t, err)
	require.Empty(t, result.Hits)

	result, err = e.Search(SearchRequest{Query: NewTermQuery("title", "final"), Limit: 10, Hydrate: true})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	require.Equal(t, uint64(id2), result.Hits[0].DocID)
}

func TestEngineReopenReplaysUncommittedWrites(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.toml"), []byte(testSchemaTOML), 0o644))

	e, err := Open(dir)
	require.NoError(t, err)

	doc := NewDocument("buffered")
	doc.Set("title", Text("not yet committed"))
	id, err := e.AddDocument(doc)
	require.NoError(t, err)

	// Close without Commit: the write only ever reached the WAL.
	require.NoError(t, e.Close())

	e2, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e2.Close() })

	got, ok := e2.Get(id)
	require.True(t, ok)
	require.Equal(t, "buffered", got.ExternalID)

	// The replayed write is staged again; Commit makes it searchable.
	require.NoError(t, e2.Commit())
	result, err := e2.Search(SearchRequest{Query: NewTermQuery("title", "committed"), Limit: 10})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	require.Equal(t, uint64(id), result.Hits[0].DocID)
}

func TestEngineRejectsSecondWriterOnSameDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.toml"), []byte(testSchemaTOML), 0o644))

	e, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	_, err = Open(dir)
	require.Error(t, err)
}

func TestEngineShouldCompactAfterDeletes(t *testing.T) {
	e := openTestEngine(t)
	e.cfg.Compaction.MinOrphanCount = 1
	e.cfg.Compaction.OrphanThreshold = 0.1

	doc := NewDocument("x")
	doc.Set("title", Text("compactable"))
	id, err := e.AddDocument(doc)
	require.NoError(t, err)
	require.NoError(t, e.Commit())

	require.False(t, e.ShouldCompact())
	require.NoError(t, e.Delete(id))
	require.True(t, e.ShouldCompact())

	require.NoError(t, e.Optimize())
}
