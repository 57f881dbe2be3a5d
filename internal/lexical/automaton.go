package lexical

import (
	"regexp"
	"strings"
)

// levenshtein returns the edit distance between a and b, capped at max+1
// once it is certain to exceed max (an early-exit optimization; the exact
// value beyond the cap is not meaningful to callers, who only compare
// against max).
func levenshtein(a, b string, max int) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	prev2 := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			// transposition
			if i > 1 && j > 1 && ra[i-1] == rb[j-2] && ra[i-2] == rb[j-1] {
				if t := prev2[j-2] + 1; t < m {
					m = t
				}
			}
			cur[j] = m
			if m < rowMin {
				rowMin = m
			}
		}
		if rowMin > max {
			return max + 1
		}
		prev, prev2, cur = cur, prev, prev2
	}
	return prev[len(rb)]
}

// FuzzyAccept reports whether term is within maxEdits of query, honoring a
// required exact-match prefix of prefixLength characters (§4.6).
func FuzzyAccept(term, query string, maxEdits, prefixLength int) bool {
	qr := []rune(query)
	tr := []rune(term)
	if prefixLength > 0 {
		n := prefixLength
		if n > len(qr) {
			n = len(qr)
		}
		if len(tr) < n || string(tr[:n]) != string(qr[:n]) {
			return false
		}
	}
	return levenshtein(term, query, maxEdits) <= maxEdits
}

// wildcardToRegexp translates a `*`/`?` glob into an anchored regexp
// (§4.6): `*` becomes `.*`, `?` becomes `.`, everything else is escaped.
func wildcardToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

// literalPrefix returns the longest prefix of pattern that contains no
// wildcard metacharacters, used to seek the dictionary before scanning.
func literalPrefix(pattern string) string {
	for i, r := range pattern {
		if r == '*' || r == '?' {
			return pattern[:i]
		}
	}
	return pattern
}

// regexpLiteralPrefix returns the longest literal prefix of a regexp
// pattern, stripping a leading '^' anchor if present. Used the same way
// as literalPrefix but conservatively: any metacharacter stops the scan.
func regexpLiteralPrefix(pattern string) string {
	p := strings.TrimPrefix(pattern, "^")
	const meta = `\.+*?()|[]{}^$`
	for i, r := range p {
		if strings.ContainsRune(meta, r) {
			return p[:i]
		}
	}
	return p
}
