// Package glossary builds the immutable, read-only glossary index used by
// the span detection pipeline and holds the active index behind an atomic
// pointer so it can be replaced while requests are running.
package glossary

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

// Entry is the metadata attached to every lookup key.
type Entry struct {
	Canonical  string            `json:"canonical"`
	Category   clinical.Category `json:"category"`
	Definition string            `json:"definition,omitempty"`
	Why        string            `json:"why,omitempty"`
}

// Hit is a resolved glossary match over text[Start:End].
type Hit struct {
	Start   int
	End     int
	Surface string
	Entry   Entry
}

// Stats summarises a snapshot.
type Stats struct {
	Terms    int       `json:"terms"`
	Aliases  int       `json:"aliases"`
	Patterns int       `json:"patterns"`
	Acronyms int       `json:"acronyms"`
	BuiltAt  time.Time `json:"built_at"`
}

// Snapshot is an immutable glossary index.  The zero value is not usable;
// use Build or Empty.
type Snapshot struct {
	matcher  *matcher
	patterns []string
	meta     map[string]Entry
	acronyms map[string][]string
	stats    Stats
}

type buildOptions struct {
	normalize bool
	now       func() time.Time
}

// BuildOption customises Build.
type BuildOption func(*buildOptions)

// WithTextNormalization composes non-NFC input text before scanning.
func WithTextNormalization(enabled bool) BuildOption {
	return func(o *buildOptions) { o.normalize = enabled }
}

var acronymPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)

// IsAcronym reports whether s has the shape of a lexicon key: an uppercase
// letter followed by 1-9 uppercase letters or digits.
func IsAcronym(s string) bool {
	return acronymPattern.MatchString(s)
}

// Empty returns a snapshot that matches nothing.
func Empty() *Snapshot {
	s, _ := Build(nil)
	return s
}

// Build validates g and compiles it into a Snapshot.  Every canonical name
// and alias becomes a pattern.  A key claimed by two different terms is a
// corrupt source and fails the build.
func Build(g *clinical.Glossary, opts ...BuildOption) (*Snapshot, error) {
	o := buildOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if g == nil {
		g = &clinical.Glossary{}
	}

	byID := make(map[int64]clinical.Term, len(g.Terms))
	meta := make(map[string]Entry, len(g.Terms)+len(g.Aliases))
	owner := make(map[string]int64, len(g.Terms)+len(g.Aliases))

	claim := func(text string, term clinical.Term) error {
		key := Key(text)
		if key == "" {
			return nil
		}
		if prev, ok := owner[key]; ok {
			if prev == term.ID {
				return nil
			}
			return errors.Newf(errors.ErrCodeDuplicateAlias, "key %q claimed by terms %d and %d", key, prev, term.ID)
		}
		owner[key] = term.ID
		meta[key] = Entry{
			Canonical:  term.Canonical,
			Category:   term.Category,
			Definition: term.Definition,
			Why:        term.Why,
		}
		return nil
	}

	for _, t := range g.Terms {
		if strings.TrimSpace(t.Canonical) == "" {
			return nil, errors.Newf(errors.ErrCodeGlossaryCorrupt, "term %d has an empty canonical name", t.ID)
		}
		if !t.Category.IsValid() {
			return nil, errors.Newf(errors.ErrCodeUnknownCategory, "term %d (%s) has category %q", t.ID, t.Canonical, t.Category)
		}
		if _, dup := byID[t.ID]; dup {
			return nil, errors.Newf(errors.ErrCodeGlossaryCorrupt, "term id %d appears twice", t.ID)
		}
		byID[t.ID] = t
		if err := claim(t.Canonical, t); err != nil {
			return nil, err
		}
	}

	aliasCount := 0
	for _, a := range g.Aliases {
		t, ok := byID[a.TermID]
		if !ok {
			return nil, errors.Newf(errors.ErrCodeGlossaryCorrupt, "alias %q references unknown term %d", a.Text, a.TermID)
		}
		if err := claim(a.Text, t); err != nil {
			return nil, err
		}
		aliasCount++
	}

	patterns := make([]string, 0, len(meta))
	for key := range meta {
		patterns = append(patterns, key)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})

	m, err := newMatcher(patterns, o.normalize)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMatcherBuild, "compile glossary automaton").
			WithDetail(fmt.Sprintf("patterns=%d", len(patterns)))
	}

	acronyms, err := buildLexicon(g.Acronyms, meta)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		matcher:  m,
		patterns: patterns,
		meta:     meta,
		acronyms: acronyms,
		stats: Stats{
			Terms:    len(g.Terms),
			Aliases:  aliasCount,
			Patterns: len(patterns),
			Acronyms: len(acronyms),
			BuiltAt:  o.now(),
		},
	}, nil
}

// buildLexicon keeps, per acronym, the ordered canonical names of the
// expansions the glossary knows.  Acronyms without a known expansion are
// dropped.
func buildLexicon(entries []clinical.Acronym, meta map[string]Entry) (map[string][]string, error) {
	out := make(map[string][]string, len(entries))
	for _, a := range entries {
		acr := strings.ToUpper(strings.TrimSpace(a.Acronym))
		if !acronymPattern.MatchString(acr) {
			return nil, errors.Newf(errors.ErrCodeGlossaryCorrupt, "lexicon acronym %q is not 2-10 uppercase letters or digits", a.Acronym)
		}
		seen := make(map[string]bool, len(a.Expansions))
		choices := out[acr]
		for _, exp := range choices {
			seen[exp] = true
		}
		for _, exp := range a.Expansions {
			e, ok := meta[Key(exp)]
			if !ok || seen[e.Canonical] {
				continue
			}
			seen[e.Canonical] = true
			choices = append(choices, e.Canonical)
		}
		if len(choices) > 0 {
			out[acr] = choices
		}
	}
	return out, nil
}

// Lookup returns the metadata for an alias or canonical name, matched
// case-insensitively.
func (s *Snapshot) Lookup(text string) (Entry, bool) {
	e, ok := s.meta[Key(text)]
	return e, ok
}

// Expansions returns the known canonical expansions of an uppercase
// acronym from the lexicon, in preference order.
func (s *Snapshot) Expansions(acronym string) []string {
	return s.acronyms[strings.ToUpper(acronym)]
}

// Acronyms returns the lexicon acronyms in sorted order.
func (s *Snapshot) Acronyms() []string {
	out := make([]string, 0, len(s.acronyms))
	for a := range s.acronyms {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Match runs the longest-match scan over text and resolves metadata for
// each hit.  Hits are returned in ascending start order and never overlap.
func (s *Snapshot) Match(text string) []Hit {
	raw := s.matcher.findAll(text)
	out := make([]Hit, 0, len(raw))
	for _, m := range raw {
		var key string
		if m.Pattern >= 0 && m.Pattern < len(s.patterns) {
			key = s.patterns[m.Pattern]
		} else {
			key = Key(text[m.Start:m.End])
		}
		e, ok := s.meta[key]
		if !ok {
			continue
		}
		out = append(out, Hit{
			Start:   m.Start,
			End:     m.End,
			Surface: text[m.Start:m.End],
			Entry:   e,
		})
	}
	return out
}

// Stats returns the snapshot summary.
func (s *Snapshot) Stats() Stats { return s.stats }

// Patterns returns a copy of the compiled patterns, longest first.
func (s *Snapshot) Patterns() []string {
	return append([]string(nil), s.patterns...)
}
