package lexical

import "strings"

// Token is one analyzed term occurrence, carrying the position and byte
// offsets the phrase/span query machinery needs.
type Token struct {
	Text     string
	Position int
	Start    int
	End      int
}

// Analyzer is the text-analysis pipeline's interface — tokenizer and
// filters are deliberately out of scope for the core (§1); the kernel
// only depends on this contract. SimpleAnalyzer below is a minimal
// concrete analyzer used by tests and the CLI, not a claim to the real
// pluggable pipeline.
type Analyzer interface {
	Analyze(text string) []Token
}

// SimpleAnalyzer lowercases and splits on runs of non-alphanumeric
// characters, assigning strictly increasing positions starting at 0.
type SimpleAnalyzer struct{}

func (SimpleAnalyzer) Analyze(text string) []Token {
	var tokens []Token
	pos := 0
	start := -1
	lower := strings.ToLower(text)
	flush := func(end int) {
		if start < 0 {
			return
		}
		tokens = append(tokens, Token{Text: lower[start:end], Position: pos, Start: start, End: end})
		pos++
		start = -1
	}
	for i, r := range lower {
		if isTokenRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(lower))
	return tokens
}

func isTokenRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	default:
		return false
	}
}

var _ Analyzer = SimpleAnalyzer{}
