package acronym

import (
	"sort"
	"strings"

	"github.com/turtacn/doctalk/internal/intelligence/glossary"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

// NegationScorer decides negation for a byte range.
type NegationScorer interface {
	IsNegated(text string, start, end int) bool
}

// Apply rewrites, in place, the metadata of every span whose surface is an
// acronym in docMap.  Spans whose mapped canonical is unknown to g are left
// alone.
func Apply(spans []clinical.Span, docMap map[string]string, g Glossary) {
	if len(docMap) == 0 || g == nil {
		return
	}
	for i := range spans {
		canonical, ok := docMap[strings.ToUpper(spans[i].Surface)]
		if !ok {
			continue
		}
		e, ok := g.Lookup(canonical)
		if !ok {
			continue
		}
		spans[i].Canonical = e.Canonical
		spans[i].Category = e.Category
		spans[i].Definition = e.Definition
		spans[i].Why = e.Why
		spans[i].Ambiguity = nil
	}
}

// occupancy tracks inclusive ranges already claimed by spans.
type occupancy []clinical.Span

func (o occupancy) overlaps(sp clinical.Span) bool {
	for _, x := range o {
		if x.Overlaps(sp) {
			return true
		}
	}
	return false
}

// Inject creates spans for standalone, case-insensitive occurrences of the
// acronyms in docMap that do not overlap existing spans or each other.
// Acronyms are processed in sorted order so the result is deterministic.
func Inject(text string, docMap map[string]string, g Glossary, neg NegationScorer, existing []clinical.Span) []clinical.Span {
	if text == "" || len(docMap) == 0 || g == nil {
		return nil
	}
	occupied := append(occupancy(nil), existing...)

	var out []clinical.Span
	for _, acr := range sortedKeys(docMap) {
		e, ok := g.Lookup(docMap[acr])
		if !ok {
			continue
		}
		for _, r := range glossary.FindWord(text, acr) {
			sp := newSpan(text, r, e, clinical.SourceAcronym, neg)
			if occupied.overlaps(sp) {
				continue
			}
			occupied = append(occupied, sp)
			out = append(out, sp)
		}
	}
	return out
}

// InjectLexicon creates spans for exact-case occurrences of lexicon
// acronyms that the document map does not cover.  The first known
// expansion becomes the canonical form; with two or more known expansions
// the span carries the full choice list.
func InjectLexicon(text string, docMap map[string]string, g Glossary, neg NegationScorer, existing []clinical.Span, acronyms []string) []clinical.Span {
	if text == "" || g == nil || len(acronyms) == 0 {
		return nil
	}
	occupied := append(occupancy(nil), existing...)

	var out []clinical.Span
	for _, acr := range acronyms {
		if _, resolved := docMap[acr]; resolved {
			continue
		}
		choices := g.Expansions(acr)
		if len(choices) == 0 {
			continue
		}
		e, ok := g.Lookup(choices[0])
		if !ok {
			continue
		}
		for _, r := range glossary.FindWord(text, acr) {
			if text[r[0]:r[1]] != acr {
				continue
			}
			sp := newSpan(text, r, e, clinical.SourceLexicon, neg)
			if occupied.overlaps(sp) {
				continue
			}
			if len(choices) > 1 {
				sp.Ambiguity = &clinical.Ambiguity{Choices: append([]string(nil), choices...)}
			}
			occupied = append(occupied, sp)
			out = append(out, sp)
		}
	}
	return out
}

func newSpan(text string, r [2]int, e glossary.Entry, src clinical.Source, neg NegationScorer) clinical.Span {
	sp := clinical.Span{
		Start:      r[0],
		End:        r[1] - 1,
		Surface:    text[r[0]:r[1]],
		Canonical:  e.Canonical,
		Category:   e.Category,
		Definition: e.Definition,
		Why:        e.Why,
		Source:     src,
	}
	if neg != nil {
		sp.Negated = neg.IsNegated(text, sp.Start, sp.End)
	}
	return sp
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
