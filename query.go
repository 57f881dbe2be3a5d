package ember

import "github.com/emberdb/ember/internal/lexical"

// Query is the lexical query-tree contract (§4.5): TermQuery, PhraseQuery,
// NumericRangeQuery, BooleanQuery, and the multi-term rewrite queries
// (FuzzyQuery, PrefixQuery, WildcardQuery, RegexpQuery) all implement it.
// The query-DSL parser (§6) is out of scope for the core — callers build
// this tree directly or bring their own parser in front of it.
type Query = lexical.Query

// Occur is a boolean clause's participation mode (§4.5).
type Occur = lexical.Occur

const (
	Should  = lexical.Should
	Must    = lexical.Must
	MustNot = lexical.MustNot
	Filter  = lexical.Filter
)

// Clause pairs a sub-query with its Occur mode inside a BooleanQuery.
type Clause = lexical.Clause

// TermQuery, PhraseQuery, etc. are re-exported so callers never need to
// import an internal package to build a query.
type (
	TermQuery         = lexical.TermQuery
	PhraseQuery       = lexical.PhraseQuery
	NumericRangeQuery = lexical.NumericRangeQuery
	BooleanQuery      = lexical.BooleanQuery
	FuzzyQuery        = lexical.FuzzyQuery
	PrefixQuery       = lexical.PrefixQuery
	WildcardQuery     = lexical.WildcardQuery
	RegexpQuery       = lexical.RegexpQuery
)

// RewriteMethod selects how a multi-term query expands into matchable
// terms (§4.6).
type RewriteMethod = lexical.RewriteMethod

const (
	TopTermsScoring  = lexical.TopTermsScoring
	TopTermsBlended  = lexical.TopTermsBlended
	ConstantScoreRewrite = lexical.ConstantScore
	RewriteAsBooleanQuery = lexical.RewriteBooleanQuery
)

func NewTermQuery(field, term string) *TermQuery { return lexical.NewTermQuery(field, term) }

func NewPhraseQuery(field string, terms []string) *PhraseQuery {
	return lexical.NewPhraseQuery(field, terms)
}

// NewNumericRangeQuery builds an inclusive/exclusive range query over
// field; pass hasMin/hasMax false for an open bound (§6 "[lo TO hi]").
func NewNumericRangeQuery(field string, min, max float64, hasMin, hasMax, inclusiveMin, inclusiveMax bool) *NumericRangeQuery {
	return &NumericRangeQuery{
		Field: field, Min: min, Max: max,
		HasMin: hasMin, HasMax: hasMax,
		InclusiveMin: inclusiveMin, InclusiveMax: inclusiveMax,
	}
}

func NewBooleanQuery(clauses ...Clause) *BooleanQuery { return lexical.NewBooleanQuery(clauses...) }

func NewFuzzyQuery(field, term string, maxEdits, prefixLength int) *FuzzyQuery {
	return lexical.NewFuzzyQuery(field, term, maxEdits, prefixLength)
}

func NewPrefixQuery(field, prefix string) *PrefixQuery { return lexical.NewPrefixQuery(field, prefix) }

func NewWildcardQuery(field, pattern string) (*WildcardQuery, error) {
	return lexical.NewWildcardQuery(field, pattern)
}

func NewRegexpQuery(field, pattern string) (*RegexpQuery, error) {
	return lexical.NewRegexpQuery(field, pattern)
}
