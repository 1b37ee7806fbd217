package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, input string) []Token {
	t.Helper()
	l := NewLexer(input)
	require.NoError(t, l.Lex())
	var out []Token
	for {
		tok := l.NextToken()
		out = append(out, tok)
		if tok.Type == TokenEOF {
			return out
		}
	}
}

func TestLexerTokens(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:  "number",
			input: "42",
			expected: []Token{
				{Type: TokenNumber, Value: "42", Col: 1},
			},
		},
		{
			name:  "float with exponent",
			input: "1.5e-3",
			expected: []Token{
				{Type: TokenNumber, Value: "1.5e-3", Col: 1},
			},
		},
		{
			name:  "digit-led identifier",
			input: "24h_ago",
			expected: []Token{
				{Type: TokenIdent, Value: "24h_ago", Col: 1},
			},
		},
		{
			name:  "attribute chain",
			input: "close.24h_ago",
			expected: []Token{
				{Type: TokenIdent, Value: "close", Col: 1},
				{Type: TokenDot, Value: ".", Col: 6},
				{Type: TokenIdent, Value: "24h_ago", Col: 7},
			},
		},
		{
			name:  "operators",
			input: "a <= b ** 2 != c",
			expected: []Token{
				{Type: TokenIdent, Value: "a", Col: 1},
				{Type: TokenLe, Value: "<=", Col: 3},
				{Type: TokenIdent, Value: "b", Col: 6},
				{Type: TokenPower, Value: "**", Col: 8},
				{Type: TokenNumber, Value: "2", Col: 11},
				{Type: TokenNe, Value: "!=", Col: 13},
				{Type: TokenIdent, Value: "c", Col: 16},
			},
		},
		{
			name:  "keywords",
			input: "a and b or not c",
			expected: []Token{
				{Type: TokenIdent, Value: "a", Col: 1},
				{Type: TokenAnd, Value: "and", Col: 3},
				{Type: TokenIdent, Value: "b", Col: 7},
				{Type: TokenOr, Value: "or", Col: 9},
				{Type: TokenNot, Value: "not", Col: 12},
				{Type: TokenIdent, Value: "c", Col: 16},
			},
		},
		{
			name:  "string literal",
			input: "select('close')",
			expected: []Token{
				{Type: TokenIdent, Value: "select", Col: 1},
				{Type: TokenLParen, Value: "(", Col: 7},
				{Type: TokenString, Value: "close", Col: 8},
				{Type: TokenRParen, Value: ")", Col: 15},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := lexAll(t, tt.input)
			require.Len(t, got, len(tt.expected)+1, "tokens plus EOF")
			for i, want := range tt.expected {
				assert.Equal(t, want, got[i], "token %d", i)
			}
		})
	}
}

func TestLexerErrors(t *testing.T) {
	l := NewLexer("close @ 1")
	assert.Error(t, l.Lex())

	l = NewLexer("'unterminated")
	assert.Error(t, l.Lex())

	l = NewLexer("line1\nline2")
	assert.Error(t, l.Lex())
}
