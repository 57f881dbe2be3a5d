package lexical

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberdb/ember/internal/storage"
)

func sealFromBuilder(t *testing.T, build func(b *SegmentBuilder)) *Segment {
	t.Helper()
	b := NewSegmentBuilder(SimpleAnalyzer{})
	build(b)
	return b.Seal()
}

func TestTermQueryMatches(t *testing.T) {
	seg := sealFromBuilder(t, func(b *SegmentBuilder) {
		b.AddTextField(0, "title", "the quick brown fox")
		b.MarkDoc(0)
		b.AddTextField(1, "title", "a lazy dog sleeps")
		b.MarkDoc(1)
	})

	q := NewTermQuery("title", "fox")
	m := q.Matcher(seg)
	var hits []uint64
	for m.Next() {
		hits = append(hits, m.DocID())
	}
	require.Equal(t, []uint64{0}, hits)
}

func TestBooleanQueryMustAndFilter(t *testing.T) {
	seg := sealFromBuilder(t, func(b *SegmentBuilder) {
		b.AddTextField(0, "title", "quick brown fox")
		b.AddNumericField(0, "views", 10)
		b.MarkDoc(0)
		b.AddTextField(1, "title", "quick lazy dog")
		b.AddNumericField(1, "views", 1)
		b.MarkDoc(1)
		b.AddTextField(2, "title", "slow brown turtle")
		b.AddNumericField(2, "views", 10)
		b.MarkDoc(2)
	})

	// "quick" AND views in [5, 100] must only match doc 0.
	bq := NewBooleanQuery(
		Clause{Query: NewTermQuery("title", "quick"), Occur: Must},
		Clause{Query: &NumericRangeQuery{Field: "views", Min: 5, Max: 100, HasMin: true, HasMax: true, InclusiveMin: true, InclusiveMax: true}, Occur: Filter},
	)
	m := bq.Matcher(seg)
	var hits []uint64
	for m.Next() {
		hits = append(hits, m.DocID())
	}
	require.Equal(t, []uint64{0}, hits)
}

func TestBooleanQueryMustNot(t *testing.T) {
	seg := sealFromBuilder(t, func(b *SegmentBuilder) {
		b.AddTextField(0, "title", "quick brown fox")
		b.MarkDoc(0)
		b.AddTextField(1, "title", "quick lazy dog")
		b.MarkDoc(1)
	})

	bq := NewBooleanQuery(
		Clause{Query: NewTermQuery("title", "quick"), Occur: Must},
		Clause{Query: NewTermQuery("title", "dog"), Occur: MustNot},
	)
	m := bq.Matcher(seg)
	var hits []uint64
	for m.Next() {
		hits = append(hits, m.DocID())
	}
	require.Equal(t, []uint64{0}, hits)
}

func TestPhraseQueryWithSlop(t *testing.T) {
	seg := sealFromBuilder(t, func(b *SegmentBuilder) {
		b.AddTextField(0, "body", "the quick brown fox jumps")
		b.MarkDoc(0)
		b.AddTextField(1, "body", "the quick very brown fox jumps")
		b.MarkDoc(1)
	})

	exact := NewPhraseQuery("body", []string{"quick", "brown"})
	m := exact.Matcher(seg)
	var hits []uint64
	for m.Next() {
		hits = append(hits, m.DocID())
	}
	require.Equal(t, []uint64{0}, hits)

	slopped := NewPhraseQuery("body", []string{"quick", "brown"})
	slopped.Slop = 1
	m = slopped.Matcher(seg)
	hits = nil
	for m.Next() {
		hits = append(hits, m.DocID())
	}
	require.Equal(t, []uint64{0, 1}, hits)
}

func TestFuzzyQueryRewrite(t *testing.T) {
	seg := sealFromBuilder(t, func(b *SegmentBuilder) {
		b.AddTextField(0, "title", "quick brown fox")
		b.MarkDoc(0)
	})

	fq := NewFuzzyQuery("title", "quik", 1, 0)
	require.False(t, fq.IsEmpty(seg))
	m := fq.Matcher(seg)
	var hits []uint64
	for m.Next() {
		hits = append(hits, m.DocID())
	}
	require.Equal(t, []uint64{0}, hits)
}

func TestNumericRangeQuerySurvivesSealAndReload(t *testing.T) {
	backend := storage.NewMemoryBackend()

	seg := sealFromBuilder(t, func(b *SegmentBuilder) {
		b.AddNumericField(0, "views", 1)
		b.MarkDoc(0)
		b.AddNumericField(1, "views", 10)
		b.MarkDoc(1)
		b.AddNumericField(2, "views", 10)
		b.MarkDoc(2)
		b.AddNumericField(3, "views", 20)
		b.MarkDoc(3)
	})
	seg.ID = "00000.lexseg"
	require.NoError(t, seg.Persist(backend, seg.ID))

	reloaded, err := LoadSegment(backend, seg.ID)
	require.NoError(t, err)

	inclusive := &NumericRangeQuery{Field: "views", Min: 10, Max: 20, HasMin: true, HasMax: true, InclusiveMin: true, InclusiveMax: true}
	m := inclusive.Matcher(reloaded)
	var hits []uint64
	for m.Next() {
		hits = append(hits, m.DocID())
	}
	require.Equal(t, []uint64{1, 2, 3}, hits)

	exclusive := &NumericRangeQuery{Field: "views", Min: 10, Max: 20, HasMin: true, HasMax: true, InclusiveMin: false, InclusiveMax: false}
	m = exclusive.Matcher(reloaded)
	hits = nil
	for m.Next() {
		hits = append(hits, m.DocID())
	}
	require.Empty(t, hits)

	lowerExclusiveUpperInclusive := &NumericRangeQuery{Field: "views", Min: 10, Max: 20, HasMin: true, HasMax: true, InclusiveMin: false, InclusiveMax: true}
	m = lowerExclusiveUpperInclusive.Matcher(reloaded)
	hits = nil
	for m.Next() {
		hits = append(hits, m.DocID())
	}
	require.Equal(t, []uint64{3}, hits)
}

func TestIndexOpenReloadsNumericFilterAfterCommit(t *testing.T) {
	backend := storage.NewMemoryBackend()
	idx, err := Open(backend, SimpleAnalyzer{})
	require.NoError(t, err)

	idx.AddNumericField(0, "views", 5)
	idx.AddNumericField(1, "views", 50)
	require.NoError(t, idx.Commit())

	reopened, err := Open(backend, SimpleAnalyzer{})
	require.NoError(t, err)

	q := &NumericRangeQuery{Field: "views", Min: 40, Max: 60, HasMin: true, HasMax: true, InclusiveMin: true, InclusiveMax: true}
	hits := reopened.Search(q, 10)
	require.Len(t, hits, 1)
	require.Equal(t, uint64(1), hits[0].DocID)
}
