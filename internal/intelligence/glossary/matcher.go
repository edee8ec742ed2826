package glossary

import (
	"sort"
	"strings"

	"github.com/coregx/ahocorasick"
	"golang.org/x/text/unicode/norm"
)

// Match is one accepted glossary hit.  End is exclusive.
type Match struct {
	Start   int
	End     int
	Pattern int
}

// matcher finds, at every position, the longest pattern that is delimited by
// word boundaries on both sides, and scans left to right without overlap.
//
// The automaton reports every overlapping hit.  Hits failing the boundary
// check are discarded before the longest-per-start selection, so a rejected
// long candidate never hides a valid shorter one at the same start.
type matcher struct {
	ac        *ahocorasick.Automaton
	patterns  []string
	normalize bool
}

func newMatcher(patterns []string, normalize bool) (*matcher, error) {
	m := &matcher{patterns: patterns, normalize: normalize}
	if len(patterns) == 0 {
		return m, nil
	}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(patterns).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	m.ac = ac
	return m, nil
}

// haystack returns the folded text to scan.  With normalization enabled a
// non-NFC input is composed first and offs maps every byte of the composed
// text back to the start of its source segment; offs is nil otherwise.
func (m *matcher) haystack(text string) (hay string, offs []int) {
	if !m.normalize || norm.NFC.IsNormalString(text) {
		return Fold(text), nil
	}

	var sb strings.Builder
	sb.Grow(len(text))
	offs = make([]int, 0, len(text)+1)
	for pos := 0; pos < len(text); {
		n := norm.NFC.NextBoundaryInString(text[pos:], true)
		if n <= 0 {
			n = len(text) - pos
		}
		seg := norm.NFC.String(text[pos : pos+n])
		for k := range len(seg) {
			if len(seg) == n {
				offs = append(offs, pos+k)
			} else {
				offs = append(offs, pos)
			}
		}
		sb.WriteString(seg)
		pos += n
	}
	offs = append(offs, len(text))
	return Fold(sb.String()), offs
}

func (m *matcher) findAll(text string) []Match {
	if m == nil || m.ac == nil || text == "" {
		return nil
	}

	hay, offs := m.haystack(text)
	hits := m.ac.FindAllOverlapping([]byte(hay))
	if len(hits) == 0 {
		return nil
	}

	best := make(map[int]Match, len(hits))
	for _, h := range hits {
		start, end := int(h.Start), int(h.End)
		if start >= end || end > len(hay) {
			continue
		}
		if offs != nil {
			start, end = offs[start], offs[end]
			if start >= end {
				continue
			}
		}
		if !IsBoundary(text, start) || !IsBoundary(text, end) {
			continue
		}
		if cur, ok := best[start]; ok && cur.End >= end {
			continue
		}
		best[start] = Match{Start: start, End: end, Pattern: int(h.PatternID)}
	}

	starts := make([]int, 0, len(best))
	for s := range best {
		starts = append(starts, s)
	}
	sort.Ints(starts)

	out := make([]Match, 0, len(starts))
	cursor := 0
	for _, s := range starts {
		if s < cursor {
			continue
		}
		mt := best[s]
		out = append(out, mt)
		cursor = mt.End
	}
	return out
}
