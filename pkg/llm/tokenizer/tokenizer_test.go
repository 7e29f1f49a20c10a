package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokensHeuristicFallback(t *testing.T) {
	tok := &Tokenizer{} // no encoding loaded

	assert.Equal(t, 0, tok.CountTokens(""))
	assert.Equal(t, 1, tok.CountTokens("abc"))
	assert.Equal(t, 1, tok.CountTokens("abcd"))
	assert.Equal(t, 2, tok.CountTokens("abcde"))
}

func TestCountTokensNilReceiver(t *testing.T) {
	var tok *Tokenizer
	assert.Equal(t, 3, tok.CountTokens("hello world!"))
}

func TestTruncateFallback(t *testing.T) {
	tok := &Tokenizer{}
	text := strings.Repeat("a", 100)

	assert.Equal(t, text, tok.Truncate(text, 25))
	assert.Len(t, tok.Truncate(text, 10), 40)
	assert.Equal(t, text, tok.Truncate(text, 0))
	assert.Equal(t, "", tok.Truncate("", 10))
}

func TestRealEncodingRoundTrip(t *testing.T) {
	tok, err := New()
	if err != nil {
		t.Skipf("encoding unavailable: %v", err)
	}

	text := "Click the checkout button and verify the cart total."
	count := tok.CountTokens(text)
	assert.Greater(t, count, 0)
	assert.LessOrEqual(t, count, len(text))

	truncated := tok.Truncate(text, count)
	assert.Equal(t, text, truncated)

	shorter := tok.Truncate(text, 3)
	assert.Less(t, len(shorter), len(text))
	assert.Equal(t, 3, tok.CountTokens(shorter))
}
