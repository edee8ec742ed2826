// Package clinical holds the value types shared by the span detection
// pipeline: glossary terms, aliases and the annotated spans it returns.
package clinical

import (
	"fmt"
	"strings"
)

// Category is the clinical class a term belongs to.
type Category string

const (
	CategoryDiagnosis   Category = "diagnosis"
	CategoryProcedure   Category = "procedure"
	CategoryMedication  Category = "medication"
	CategoryTest        Category = "test"
	CategoryAnatomy     Category = "anatomy"
	CategoryMeasurement Category = "measurement"
)

// Categories lists every valid Category in declaration order.
var Categories = []Category{
	CategoryDiagnosis,
	CategoryProcedure,
	CategoryMedication,
	CategoryTest,
	CategoryAnatomy,
	CategoryMeasurement,
}

// IsValid reports whether c is one of the known categories.
func (c Category) IsValid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// ParseCategory converts a case-insensitive name into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// Term is a glossary concept and its display metadata.
type Term struct {
	ID         int64    `json:"id" yaml:"id"`
	Canonical  string   `json:"canonical" yaml:"canonical"`
	Category   Category `json:"category" yaml:"category"`
	Definition string   `json:"definition,omitempty" yaml:"definition,omitempty"`
	Why        string   `json:"why,omitempty" yaml:"why,omitempty"`
}

// Alias is an alternative surface form owned by exactly one Term.
type Alias struct {
	Text   string `json:"alias" yaml:"alias"`
	TermID int64  `json:"term_id" yaml:"term_id"`
}

// Acronym is a lexicon entry listing the known expansions of an
// abbreviation in preference order.
type Acronym struct {
	Acronym    string   `json:"acronym" yaml:"acronym"`
	Expansions []string `json:"expansions" yaml:"expansions"`
}

// Source identifies which pass produced a span.
type Source string

const (
	SourceGlossary Source = "glossary"
	SourceAcronym  Source = "acronym"
	SourceLexicon  Source = "lexicon"
	SourceNER      Source = "ner"
)

// Ambiguity is attached to spans whose surface maps to more than one
// known concept.
type Ambiguity struct {
	Choices []string `json:"choices"`
}

// Span is an annotation over the inclusive byte range [Start, End] of
// the source text.
type Span struct {
	Start      int        `json:"start"`
	End        int        `json:"end"`
	Surface    string     `json:"surface"`
	Canonical  string     `json:"canonical"`
	Category   Category   `json:"category"`
	Negated    bool       `json:"negated"`
	Definition string     `json:"definition,omitempty"`
	Why        string     `json:"why,omitempty"`
	Ambiguity  *Ambiguity `json:"ambiguity,omitempty"`
	Source     Source     `json:"source,omitempty"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int { return s.End - s.Start + 1 }

// Overlaps reports whether the two inclusive ranges share any byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start <= o.End && o.Start <= s.End
}

// IsAmbiguous reports whether the span carries more than one choice.
func (s Span) IsAmbiguous() bool {
	return s.Ambiguity != nil && len(s.Ambiguity.Choices) > 1
}

// Glossary is the raw content delivered by a glossary source.
type Glossary struct {
	Terms    []Term    `json:"terms" yaml:"terms"`
	Aliases  []Alias   `json:"aliases" yaml:"aliases"`
	Acronyms []Acronym `json:"acronyms,omitempty" yaml:"acronyms,omitempty"`
}
