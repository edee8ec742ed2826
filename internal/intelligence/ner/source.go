// Package ner defines the optional external entity-recognition source and
// an HTTP client for a recognizer running as a sidecar service.
package ner

import (
	"context"
	"strings"

	"github.com/turtacn/doctalk/pkg/types/clinical"
)

// Entity is a recognized mention over the inclusive byte range
// [Start, End] of the input text.
type Entity struct {
	Start    int
	End      int
	Surface  string
	Category clinical.Category
}

// Source recognizes entities in text.  Implementations are best effort;
// callers treat any error as "no entities".
type Source interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, text string) ([]Entity, error)

// Recognize calls f.
func (f SourceFunc) Recognize(ctx context.Context, text string) ([]Entity, error) {
	return f(ctx, text)
}

// DefaultLabels maps biomedical recognizer labels to categories.
var DefaultLabels = map[string]clinical.Category{
	"DISEASE":           clinical.CategoryDiagnosis,
	"SYMPTOM":           clinical.CategoryDiagnosis,
	"CHEMICAL":          clinical.CategoryMedication,
	"DRUG":              clinical.CategoryMedication,
	"TEST":              clinical.CategoryTest,
	"LAB_VALUE":         clinical.CategoryMeasurement,
	"ANATOMICAL_SYSTEM": clinical.CategoryAnatomy,
	"ORGAN":             clinical.CategoryAnatomy,
	"PROCEDURE":         clinical.CategoryProcedure,
}

// LabelMap translates recognizer labels.  Lookups are case-insensitive.
type LabelMap map[string]clinical.Category

// NewLabelMap starts from DefaultLabels and applies overrides.  An override
// with an invalid category is ignored.
func NewLabelMap(overrides map[string]string) LabelMap {
	m := make(LabelMap, len(DefaultLabels)+len(overrides))
	for k, v := range DefaultLabels {
		m[k] = v
	}
	for k, v := range overrides {
		c, err := clinical.ParseCategory(v)
		if err != nil {
			continue
		}
		m[strings.ToUpper(k)] = c
	}
	return m
}

// Category returns the category for label.
func (m LabelMap) Category(label string) (clinical.Category, bool) {
	c, ok := m[strings.ToUpper(strings.TrimSpace(label))]
	return c, ok
}
