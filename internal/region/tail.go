package region

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/codalotl/coderewrite/internal/detectlang"
)

// Stripped is a lossless split of some text into Core and Tail: Core + Tail is exactly the original text.
type Stripped struct {
	Core string // text without its trailing closing characters and whitespace
	Tail string // maximal trailing run of closing characters and whitespace
}

// String reconstructs the original text.
func (s Stripped) String() string {
	return s.Core + s.Tail
}

// StripTail splits text into (core, tail), where tail is the maximal trailing run of runes that are either in closing or whitespace. Scanning goes backward
// from the end and stops at the first rune that is neither.
//
// A trailing line break always lands in the tail, so a text that ends in "\n" has a tail that ends in "\n". StripTail is idempotent: StripTail(s.Core, closing).Tail
// is always "".
func StripTail(text string, closing string) Stripped {
	end := len(text)
	for end > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:end])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		if !unicode.IsSpace(r) && !strings.ContainsRune(closing, r) {
			break
		}
		end -= size
	}
	return Stripped{Core: text[:end], Tail: text[end:]}
}

// StripTailFor is StripTail using lang's closing characters.
func StripTailFor(text string, lang detectlang.Lang) Stripped {
	return StripTail(text, detectlang.ProfileFor(lang).ClosingChars)
}
