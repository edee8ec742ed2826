package glossary

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s rune by rune, keeping any rune whose lowercase form
// would change the encoded length.  Byte offsets into the folded string are
// therefore valid offsets into s.
func Fold(s string) string {
	ascii := true
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return strings.ToLower(s)
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		lr := unicode.ToLower(r)
		if r == utf8.RuneError || utf8.RuneLen(lr) != utf8.RuneLen(r) {
			sb.WriteRune(r)
			continue
		}
		sb.WriteRune(lr)
	}
	if sb.Len() != len(s) {
		// invalid UTF-8 was rewritten as U+FFFD
		return s
	}
	return sb.String()
}

// Key returns the lookup key for an alias or canonical name: NFC, trimmed,
// folded, inner whitespace collapsed to single spaces.
func Key(s string) string {
	s = norm.NFC.String(s)
	return Fold(strings.Join(strings.Fields(s), " "))
}

// IsWordRune reports whether r counts as a word character for boundary
// checks: letters, numbers and underscore.
func IsWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}

// IsBoundary reports whether byte offset i of s sits between a word and a
// non-word character (or a text edge and a word character).
func IsBoundary(s string, i int) bool {
	before, after := false, false
	if i > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:i])
		before = IsWordRune(r)
	}
	if i < len(s) {
		r, _ := utf8.DecodeRuneInString(s[i:])
		after = IsWordRune(r)
	}
	return before != after
}

// FindWord returns the [start, end) offsets of every whole-word,
// case-insensitive occurrence of word in s.
func FindWord(s, word string) [][2]int {
	if word == "" || len(word) > len(s) {
		return nil
	}
	hay, needle := Fold(s), Fold(word)
	var out [][2]int
	for from := 0; from <= len(hay)-len(needle); {
		idx := strings.Index(hay[from:], needle)
		if idx < 0 {
			break
		}
		start := from + idx
		end := start + len(needle)
		if IsBoundary(s, start) && IsBoundary(s, end) {
			out = append(out, [2]int{start, end})
			from = end
			continue
		}
		_, size := utf8.DecodeRuneInString(hay[start:])
		from = start + size
	}
	return out
}
