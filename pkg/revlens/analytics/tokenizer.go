package analytics

import (
	"strings"
	"unicode"

	"github.com/cognicore/revlens/pkg/revlens/lexicon"
)

// MinTopicRunes is the shortest token, in runes, that can become a topic.
const MinTopicRunes = 4

// Tokenizer splits review text into topic candidates: lower-cased runs of
// letters, digits and underscores, minus stop words and short tokens.
type Tokenizer struct {
	lex *lexicon.Lexicon
}

// NewTokenizer creates a tokenizer filtering with lex's stop words.
func NewTokenizer(lex *lexicon.Lexicon) *Tokenizer {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Tokenizer{lex: lex}
}

// Tokenize returns the topic candidates of text in order of appearance.
func (t *Tokenizer) Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	runes := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		if word := current.String(); runes >= MinTopicRunes && !t.lex.IsStopword(word) {
			tokens = append(tokens, word)
		}
		current.Reset()
		runes = 0
	}

	for _, r := range strings.ToLower(text) {
		if isWordRune(r) {
			current.WriteRune(r)
			runes++
			continue
		}
		flush()
	}
	flush()

	return tokens
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) || r == '_'
}
