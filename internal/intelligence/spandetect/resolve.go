package spandetect

import (
	"sort"

	"github.com/turtacn/doctalk/pkg/types/clinical"
)

// Resolve selects a non-overlapping subset of spans.  Spans are ordered by
// start ascending then length descending and swept left to right; a span is
// kept only when it starts after the end of the last kept span.  The sort is
// stable, so of two spans with equal start and length the one that appears
// first in spans wins.  The input slice is not modified.
func Resolve(spans []clinical.Span) []clinical.Span {
	sorted := make([]clinical.Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].Len() > sorted[j].Len()
	})

	out := make([]clinical.Span, 0, len(sorted))
	lastEnd := -1
	for _, sp := range sorted {
		if sp.Start > lastEnd {
			out = append(out, sp)
			lastEnd = sp.End
		}
	}
	return out
}

func overlapsAny(spans []clinical.Span, sp clinical.Span) bool {
	for _, x := range spans {
		if x.Overlaps(sp) {
			return true
		}
	}
	return false
}
