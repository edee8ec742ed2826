package acronym

import (
	"regexp"
	"strings"

	"github.com/turtacn/doctalk/internal/intelligence/glossary"
)

// Glossary is the read side of a glossary snapshot used by this package.
type Glossary interface {
	Lookup(text string) (glossary.Entry, bool)
	Expansions(acronym string) []string
}

// parenthetical captures "<longform> (<ACRONYM>)": a run of at least three
// word-ish characters starting with a letter, then 2-10 uppercase letters
// in parentheses.
var parenthetical = regexp.MustCompile(`\b([A-Za-z][A-Za-z0-9 /\-]{2,})\s*\(\s*([A-Z]{2,10})\s*\)`)

const minLongform = 3

// ExtractParenthetical returns ACRONYM -> canonical for every parenthetical
// definition in text whose longform is a glossary key.  When the captured
// run is not a key, shorter trailing word sequences of it are tried, longest
// first, so "Patient has myocardial infarction (MI)" still resolves.  Later
// definitions of the same acronym win.
func ExtractParenthetical(text string, g Glossary) map[string]string {
	out := make(map[string]string)
	if text == "" || g == nil {
		return out
	}
	for _, m := range parenthetical.FindAllStringSubmatch(text, -1) {
		acr := m[2]
		if canonical, ok := resolveLongform(m[1], g); ok {
			out[acr] = canonical
		}
	}
	return out
}

func resolveLongform(run string, g Glossary) (string, bool) {
	words := strings.Fields(run)
	for i := range words {
		candidate := strings.Join(words[i:], " ")
		if len(candidate) < minLongform {
			break
		}
		if e, ok := g.Lookup(candidate); ok {
			return e.Canonical, true
		}
	}
	return "", false
}
