package lexical

import (
	"regexp"
	"sort"
)

// RewriteMethod selects how an enumerated multi-term match set is turned
// into a scored query (§4.6).
type RewriteMethod int

const (
	TopTermsScoring RewriteMethod = iota
	TopTermsBlended
	ConstantScore
	RewriteBooleanQuery
)

// DefaultMaxExpansions is FuzzyQuery's default max_expansions (§4.6).
const DefaultMaxExpansions = 50

// termCandidate is one enumerated term awaiting ranking before rewrite.
type termCandidate struct {
	term    string
	docFreq int
}

// rankCandidates sorts cands by ascending doc_freq, ties broken by
// lexicographic term, and keeps the first maxExpansions of them, so the
// rarest terms survive (§4.6).
func rankCandidates(cands []termCandidate, maxExpansions int) []termCandidate {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].docFreq != cands[j].docFreq {
			return cands[i].docFreq < cands[j].docFreq
		}
		return cands[i].term < cands[j].term
	})
	if maxExpansions > 0 && len(cands) > maxExpansions {
		cands = cands[:maxExpansions]
	}
	return cands
}

// enumerateTerms walks dict's sorted TermsEnum from seekPrefix forward,
// collecting every term accepted by the accept predicate, and stopping
// once the enum moves past any term that could still match (callers pass
// a seekPrefix that is a literal required prefix so the walk need not
// scan the whole dictionary).
func enumerateTerms(dict *Dictionary, seekPrefix string, accept func(string) bool) []termCandidate {
	enum := dict.Iterator()
	enum.Seek(seekPrefix)
	var out []termCandidate
	for {
		ts := enum.Current()
		if ts == nil {
			ts = enum.Next()
			if ts == nil {
				break
			}
		}
		if seekPrefix != "" && !hasPrefix(ts.Term, seekPrefix) {
			break
		}
		if accept(ts.Term) {
			out = append(out, termCandidate{term: ts.Term, docFreq: ts.DocFreq})
		}
		if enum.Next() == nil {
			break
		}
	}
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// buildRewritten turns a term candidate set into the BooleanQuery of
// per-term TermQueries that drives execution (§4.6 step 3). For
// ConstantScore every term query's boost is set to boost; for the scoring
// methods the boost is left at 1 and BM25 drives the ranking, since both
// "top terms" variants rank by normal per-term scoring. Selection
// (rankCandidates) does not depend on the method either, so
// TopTermsScoring and TopTermsBlended build the same query.
func buildRewritten(field string, cands []termCandidate, method RewriteMethod, boost float64) Query {
	if len(cands) == 0 {
		return NewBooleanQuery()
	}
	clauses := make([]Clause, len(cands))
	for i, c := range cands {
		tq := NewTermQuery(field, c.term)
		if method == ConstantScore {
			tq.SetBoost(boost)
		}
		clauses[i] = Clause{Query: tq, Occur: Should}
	}
	bq := NewBooleanQuery(clauses...)
	if method != ConstantScore {
		bq.SetBoost(boost)
	}
	return bq
}

// FuzzyQuery rewrites to a BooleanQuery of the dictionary terms within
// max_edits of Term (§4.6).
type FuzzyQuery struct {
	baseQuery
	Field         string
	Term          string
	MaxEdits      int
	PrefixLength  int
	MaxExpansions int
	Method        RewriteMethod
}

func NewFuzzyQuery(field, term string, maxEdits, prefixLength int) *FuzzyQuery {
	return &FuzzyQuery{
		Field: field, Term: term, MaxEdits: maxEdits, PrefixLength: prefixLength,
		MaxExpansions: DefaultMaxExpansions, Method: TopTermsBlended,
	}
}

func (q *FuzzyQuery) rewrite(r Reader) Query {
	d, ok := r.Dictionary(q.Field)
	if !ok {
		return NewBooleanQuery()
	}
	seek := q.Term
	if q.PrefixLength > 0 && q.PrefixLength < len([]rune(q.Term)) {
		seek = string([]rune(q.Term)[:q.PrefixLength])
	} else if q.PrefixLength >= len([]rune(q.Term)) {
		seek = q.Term
	} else {
		seek = ""
	}
	cands := enumerateTerms(d, seek, func(term string) bool {
		return FuzzyAccept(term, q.Term, q.MaxEdits, q.PrefixLength)
	})
	cands = rankCandidates(cands, q.MaxExpansions)
	return buildRewritten(q.Field, cands, q.Method, q.Boost())
}

func (q *FuzzyQuery) Matcher(r Reader) Matcher                           { return q.rewrite(r).Matcher(r) }
func (q *FuzzyQuery) Scorer(r Reader) func(uint64, uint32) float64       { return q.rewrite(r).Scorer(r) }
func (q *FuzzyQuery) Description() string                                { return "fuzzy(" + q.Field + ":" + q.Term + ")" }
func (q *FuzzyQuery) IsEmpty(r Reader) bool                              { return q.rewrite(r).IsEmpty(r) }
func (q *FuzzyQuery) Clone() Query                                       { c := *q; return &c }

// automatonQuery is the shared rewrite path for Prefix/Wildcard/Regexp
// queries: all three reduce to "enumerate terms an automaton accepts"
// (§4.6).
type automatonQuery struct {
	baseQuery
	field  string
	accept func(string) bool
	seek   string
	desc   string
	method RewriteMethod
	maxExp int
}

func (q *automatonQuery) rewrite(r Reader) Query {
	d, ok := r.Dictionary(q.field)
	if !ok {
		return NewBooleanQuery()
	}
	cands := enumerateTerms(d, q.seek, q.accept)
	cands = rankCandidates(cands, q.maxExp)
	return buildRewritten(q.field, cands, q.method, q.Boost())
}

func (q *automatonQuery) Matcher(r Reader) Matcher                     { return q.rewrite(r).Matcher(r) }
func (q *automatonQuery) Scorer(r Reader) func(uint64, uint32) float64 { return q.rewrite(r).Scorer(r) }
func (q *automatonQuery) Description() string                          { return q.desc }
func (q *automatonQuery) IsEmpty(r Reader) bool                        { return q.rewrite(r).IsEmpty(r) }
func (q *automatonQuery) Clone() Query                                 { c := *q; return &c }

// PrefixQuery matches every term beginning with Prefix.
type PrefixQuery struct{ automatonQuery }

func NewPrefixQuery(field, prefix string) *PrefixQuery {
	return &PrefixQuery{automatonQuery{
		field: field, seek: prefix, desc: "prefix(" + field + ":" + prefix + ")",
		method: RewriteBooleanQuery, maxExp: 0,
		accept: func(term string) bool { return hasPrefix(term, prefix) },
	}}
}

// WildcardQuery matches terms against a `*`/`?` glob translated to a
// regexp automaton (§4.6).
type WildcardQuery struct{ automatonQuery }

func NewWildcardQuery(field, pattern string) (*WildcardQuery, error) {
	re, err := wildcardToRegexp(pattern)
	if err != nil {
		return nil, err
	}
	return &WildcardQuery{automatonQuery{
		field: field, seek: literalPrefix(pattern), desc: "wildcard(" + field + ":" + pattern + ")",
		method: RewriteBooleanQuery, maxExp: 0,
		accept: re.MatchString,
	}}, nil
}

// RegexpQuery matches terms against the user's regexp pattern directly.
type RegexpQuery struct{ automatonQuery }

func NewRegexpQuery(field, pattern string) (*RegexpQuery, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexpQuery{automatonQuery{
		field: field, seek: regexpLiteralPrefix(pattern), desc: "regexp(" + field + ":" + pattern + ")",
		method: RewriteBooleanQuery, maxExp: 0,
		accept: re.MatchString,
	}}, nil
}
