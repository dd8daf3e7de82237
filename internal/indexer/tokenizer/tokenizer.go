// Package tokenizer turns text field values into index terms: lower-cased,
// split on non-alphanumeric runes, stop-word filtered and suffix stemmed.
package tokenizer

import (
	"strings"
	"unicode"
)

var defaultStopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"that": {}, "the": {}, "to": {}, "was": {}, "were": {}, "will": {},
	"with": {}, "this": {}, "but": {}, "not": {}, "no": {},
}

// Token is one term and its position among the kept terms.
type Token struct {
	Term     string
	Position int
}

// Analyzer holds the tokenization options for a text field.
type Analyzer struct {
	MinLength int
	Stem      bool
	StopWords map[string]struct{}
}

// Default is the analyzer used for every text field.
var Default = Analyzer{MinLength: 2, Stem: true, StopWords: defaultStopWords}

// Tokens returns the terms of text in order.
func (a Analyzer) Tokens(text string) []Token {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	for _, word := range words {
		if len([]rune(word)) < a.MinLength {
			continue
		}
		if _, stop := a.StopWords[word]; stop {
			continue
		}
		if a.Stem {
			word = stem(word)
		}
		if word == "" {
			continue
		}
		tokens = append(tokens, Token{Term: word, Position: len(tokens)})
	}
	return tokens
}

// Terms returns the distinct terms of text in first-seen order.
func (a Analyzer) Terms(text string) []string {
	tokens := a.Tokens(text)
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok.Term]; ok {
			continue
		}
		seen[tok.Term] = struct{}{}
		terms = append(terms, tok.Term)
	}
	return terms
}

// Tokenize analyzes text with the default analyzer.
func Tokenize(text string) []Token {
	return Default.Tokens(text)
}

type suffixRule struct {
	suffix      string
	replacement string
	minLen      int
}

var suffixRules = []suffixRule{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"ed", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem strips the first matching suffix when enough of the word remains.
func stem(word string) string {
	for _, rule := range suffixRules {
		if !strings.HasSuffix(word, rule.suffix) {
			continue
		}
		if stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement; len(stemmed) >= rule.minLen {
			return stemmed
		}
	}
	return word
}
