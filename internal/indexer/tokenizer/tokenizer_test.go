package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokensDropsStopWordsAndShortWords(t *testing.T) {
	tokens := Tokenize("The Go book of a gopher")
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
		assert.Equal(t, i, tok.Position)
	}
	assert.Equal(t, []string{"go", "book", "gopher"}, terms)
}

func TestTermsStemsAndDeduplicates(t *testing.T) {
	assert.Equal(t, []string{"book", "library"}, Default.Terms("books, Books and libraries"))
}

func TestStem(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"running", "runn"},
		{"libraries", "library"},
		{"classes", "class"},
		{"glass", "glass"},
		{"is", "is"},
		{"relational", "relate"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, stem(tt.in))
		})
	}
}

func TestAnalyzerWithoutStemming(t *testing.T) {
	a := Analyzer{MinLength: 1}
	assert.Equal(t, []string{"a", "books"}, a.Terms("a books"))
}
