package spandetect

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/doctalk/internal/intelligence/acronym"
	"github.com/turtacn/doctalk/internal/intelligence/glossary"
	"github.com/turtacn/doctalk/internal/intelligence/negation"
	"github.com/turtacn/doctalk/internal/intelligence/ner"
	"github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

func TestNewDetector_RequiresCollaborators(t *testing.T) {
	_, err := NewDetector(nil, negation.Default())
	assert.Error(t, err)
	_, err = NewDetector(Static(glossary.Empty()), nil)
	assert.Error(t, err)
}

func TestDetect_EmptyInput(t *testing.T) {
	d := newTestDetector(t)
	for _, text := range []string{"", "   \n\t", "chest pain \xff\xfe"} {
		spans, err := d.Detect(context.Background(), text, "")
		require.NoError(t, err)
		assert.NotNil(t, spans)
		assert.Empty(t, spans, "%q", text)
	}
}

func TestDetect_EmptyGlossaryMatchesNothing(t *testing.T) {
	d, err := NewDetector(Static(glossary.Empty()), negation.Default())
	require.NoError(t, err)
	spans, err := d.Detect(context.Background(), "Patient has chest pain (CP).", "D1")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestDetect_NilSnapshotMatchesNothing(t *testing.T) {
	d, err := NewDetector(Static(nil), negation.Default())
	require.NoError(t, err)
	spans, err := d.Detect(context.Background(), "chest pain", "")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestDetect_LongestMatchPreferred(t *testing.T) {
	d := newTestDetector(t)
	spans, err := d.Detect(context.Background(), "Hemoglobin A1c was 7.2 today.", "")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, 0, spans[0].Start)
	assert.Equal(t, 13, spans[0].End)
	assert.Equal(t, "Hemoglobin A1c", spans[0].Surface)
	assert.Equal(t, "hemoglobin a1c", spans[0].Canonical)
	assert.Equal(t, clinical.CategoryTest, spans[0].Category)
	assert.Equal(t, "average blood sugar", spans[0].Definition)
	assert.Equal(t, clinical.SourceGlossary, spans[0].Source)
}

func TestDetect_NegationDirectionality(t *testing.T) {
	d := newTestDetector(t)

	spans, err := d.Detect(context.Background(), "Patient denies chest pain", "")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "chest pain", spans[0].Canonical)
	assert.True(t, spans[0].Negated)

	spans, err = d.Detect(context.Background(), "Chest pain denies nothing", "")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.False(t, spans[0].Negated)
}

func TestDetect_SentenceScoping(t *testing.T) {
	d := newTestDetector(t)
	spans, err := d.Detect(context.Background(), "No fever. Troponin elevated.", "")
	require.NoError(t, err)
	require.Len(t, spans, 2)

	fever, ok := findSpan(spans, "fever")
	require.True(t, ok)
	assert.True(t, fever.Negated)

	trop, ok := findSpan(spans, "Troponin")
	require.True(t, ok)
	assert.False(t, trop.Negated)
}

func TestDetect_AcronymRoundTrip(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	first, err := d.Detect(ctx, "myocardial infarction (MI)", "D1")
	require.NoError(t, err)
	mi, ok := findSpan(first, "myocardial infarction")
	require.True(t, ok)
	assert.Equal(t, 0, mi.Start)
	assert.Equal(t, 20, mi.End)
	requireNoOverlap(t, first)

	stored, err := d.DocMap(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"MI": "myocardial infarction"}, stored)

	second, err := d.Detect(ctx, "Patient has MI", "D1")
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, 12, second[0].Start)
	assert.Equal(t, 13, second[0].End)
	assert.Equal(t, "MI", second[0].Surface)
	assert.Equal(t, "myocardial infarction", second[0].Canonical)
	assert.Equal(t, clinical.CategoryDiagnosis, second[0].Category)
	assert.Equal(t, "heart muscle damage", second[0].Why)
	assert.Equal(t, clinical.SourceAcronym, second[0].Source)
}

func TestDetect_AcronymIsolationAcrossDocuments(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	_, err := d.Detect(ctx, "Known myocardial infarction (MI).", "D1")
	require.NoError(t, err)

	spans, err := d.Detect(ctx, "Patient has MI", "D2")
	require.NoError(t, err)
	assert.Empty(t, spans)

	spans, err = d.Detect(ctx, "Patient has MI", "")
	require.NoError(t, err)
	assert.Empty(t, spans)

	stored, err := d.DocMap(ctx, "D2")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestDetect_StatelessRequestDoesNotLearn(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	spans, err := d.Detect(ctx, "myocardial infarction (MI), later MI again", "")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "myocardial infarction", spans[0].Surface)
}

func TestDetect_PersistedAcronymOverridesGlossaryMetadata(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()
	require.NoError(t, d.Remember(ctx, "D1", "A1C", "heart failure"))

	spans, err := d.Detect(ctx, "Repeat A1C soon.", "D1")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "heart failure", spans[0].Canonical)
	assert.Equal(t, clinical.CategoryDiagnosis, spans[0].Category)
	assert.Empty(t, spans[0].Definition)
}

func TestDetect_Idempotent(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()
	text := "Patient denies chest pain. Heart failure (HF) noted, HF stable, no fever."

	first, err := d.Detect(ctx, text, "D7")
	require.NoError(t, err)
	second, err := d.Detect(ctx, text, "D7")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	requireNoOverlap(t, first)

	third, err := d.Detect(ctx, text, "")
	require.NoError(t, err)
	fourth, err := d.Detect(ctx, text, "")
	require.NoError(t, err)
	assert.Equal(t, third, fourth)
}

func TestDetect_ResultIsOrderedAndDisjoint(t *testing.T) {
	d := newTestDetector(t)
	text := "Heart failure (HF). HF with chest pain, troponin and a1c; hf and heart attack, no FEVER!"
	spans, err := d.Detect(context.Background(), text, "D3")
	require.NoError(t, err)
	require.NotEmpty(t, spans)
	requireNoOverlap(t, spans)
	for i, sp := range spans {
		assert.Equal(t, text[sp.Start:sp.End+1], sp.Surface)
		if i > 0 {
			assert.Less(t, spans[i-1].End, sp.Start)
		}
	}
	hf := 0
	for _, sp := range spans {
		if sp.Canonical == "heart failure" {
			hf++
		}
	}
	assert.Equal(t, 4, hf)
}

func TestDetect_StoreFailureDegrades(t *testing.T) {
	logger, logs := newObservedLogger()
	metrics := newRecordingMetrics()
	memory := acronym.NewMemory(failingStore{err: fmt.Errorf("connection refused")})
	d := newTestDetector(t, WithMemory(memory), WithLogger(logger), WithMetrics(metrics))

	text := "myocardial infarction (MI). Later MI again."
	spans, err := d.Detect(context.Background(), text, "D1")
	require.NoError(t, err)
	requireNoOverlap(t, spans)

	_, ok := findSpan(spans, "myocardial infarction")
	assert.True(t, ok)
	var acr []clinical.Span
	for _, sp := range spans {
		if sp.Source == clinical.SourceAcronym {
			acr = append(acr, sp)
		}
	}
	require.Len(t, acr, 2, "acronyms learned by this request still apply")
	assert.Equal(t, "myocardial infarction", acr[1].Canonical)

	entries := logs.FilterMessageSnippet("acronym memory unavailable").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "D1", entries[0].ContextMap()["doc_id"])
	assert.Equal(t, 1, metrics.degraded[ComponentAcronymStore])
	assert.Equal(t, 1, metrics.detects)
}

func TestDetect_NERMergedWithSecondPass(t *testing.T) {
	text := "Patient denies chest pain and takes aspirin daily."
	source := ner.SourceFunc(func(_ context.Context, got string) ([]ner.Entity, error) {
		assert.Equal(t, text, got)
		return []ner.Entity{
			{Start: 15, End: 24, Category: clinical.CategoryDiagnosis},
			{Start: 36, End: 42, Category: clinical.CategoryMedication},
			{Start: 36, End: 48, Category: clinical.CategoryMedication},
			{Start: 40, End: 100, Category: clinical.CategoryMedication},
			{Start: 5, End: 3, Category: clinical.CategoryTest},
			{Start: 0, End: 6, Category: clinical.Category("person")},
		}, nil
	})
	d := newTestDetector(t, WithNER(source))

	spans, err := d.Detect(context.Background(), text, "")
	require.NoError(t, err)
	require.Len(t, spans, 2)
	requireNoOverlap(t, spans)

	assert.Equal(t, clinical.SourceGlossary, spans[0].Source)
	assert.Equal(t, "chest pain", spans[0].Canonical)

	assert.Equal(t, clinical.SourceNER, spans[1].Source)
	assert.Equal(t, "aspirin daily", spans[1].Surface)
	assert.Equal(t, "aspirin daily", spans[1].Canonical)
	assert.Equal(t, clinical.CategoryMedication, spans[1].Category)
	assert.True(t, spans[1].Negated)
}

func TestDetect_NERFailureDegrades(t *testing.T) {
	logger, logs := newObservedLogger()
	metrics := newRecordingMetrics()
	source := ner.SourceFunc(func(context.Context, string) ([]ner.Entity, error) {
		return nil, errors.New(errors.ErrCodeNERUnavailable, "sidecar down")
	})
	d := newTestDetector(t, WithNER(source), WithLogger(logger), WithMetrics(metrics))

	spans, err := d.Detect(context.Background(), "chest pain", "")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, 1, logs.FilterMessageSnippet("ner source unavailable").Len())
	assert.Equal(t, 1, metrics.degraded[ComponentNER])
}

func TestDetect_CancelledContext(t *testing.T) {
	metrics := newRecordingMetrics()
	d := newTestDetector(t, WithMetrics(metrics))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Detect(ctx, "chest pain", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTimeout))
	assert.Equal(t, 1, metrics.failures)
}

func TestDetect_ConcurrentLearningSameDocument(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()
	texts := []string{
		"myocardial infarction (MI)",
		"heart failure (HF)",
		"chest pain (CP)",
		"hemoglobin a1c (HBA)",
	}

	var wg sync.WaitGroup
	for round := 0; round < 5; round++ {
		for _, text := range texts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := d.Detect(ctx, text, "shared")
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	stored, err := d.DocMap(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"MI":  "myocardial infarction",
		"HF":  "heart failure",
		"CP":  "chest pain",
		"HBA": "hemoglobin a1c",
	}, stored)
}

func TestDetect_AmbiguousLexiconAndRemember(t *testing.T) {
	snap, err := glossary.Build(&clinical.Glossary{
		Terms: []clinical.Term{
			{ID: 1, Canonical: "multiple sclerosis", Category: clinical.CategoryDiagnosis},
			{ID: 2, Canonical: "morphine sulfate", Category: clinical.CategoryMedication},
		},
		Acronyms: []clinical.Acronym{
			{Acronym: "MS", Expansions: []string{"multiple sclerosis", "morphine sulfate"}},
		},
	})
	require.NoError(t, err)
	d, err := NewDetector(Static(snap), negation.Default())
	require.NoError(t, err)
	ctx := context.Background()

	spans, err := d.Detect(ctx, "History of MS.", "D9")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, clinical.SourceLexicon, spans[0].Source)
	assert.Equal(t, "multiple sclerosis", spans[0].Canonical)
	require.True(t, spans[0].IsAmbiguous())
	assert.Equal(t, []string{"multiple sclerosis", "morphine sulfate"}, spans[0].Ambiguity.Choices)

	require.NoError(t, d.Remember(ctx, "D9", "ms", "Morphine Sulfate"))

	spans, err = d.Detect(ctx, "History of MS.", "D9")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, clinical.SourceAcronym, spans[0].Source)
	assert.Equal(t, "morphine sulfate", spans[0].Canonical)
	assert.Equal(t, clinical.CategoryMedication, spans[0].Category)
	assert.False(t, spans[0].IsAmbiguous())

	spans, err = d.Detect(ctx, "History of MS.", "other")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.True(t, spans[0].IsAmbiguous())
}

func TestRemember_Validation(t *testing.T) {
	d := newTestDetector(t)
	ctx := context.Background()

	err := d.Remember(ctx, "", "MI", "myocardial infarction")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidDocument))

	err = d.Remember(ctx, "D1", "MI", "mental illness")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))

	err = d.Remember(ctx, "D1", "m i", "myocardial infarction")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidAcronym))

	for _, acr := range []string{"M", "M.I.", "MI-2"} {
		err = d.Remember(ctx, "D1", acr, "myocardial infarction")
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidAcronym), acr)
	}

	require.NoError(t, d.Remember(ctx, "D1", "mi", "heart attack"))
	stored, err := d.DocMap(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, "myocardial infarction", stored["MI"])
}

func TestDetectBatch_IndexAligned(t *testing.T) {
	metrics := newRecordingMetrics()
	d := newTestDetector(t, WithBatchConcurrency(2), WithMetrics(metrics))
	docs := []Document{
		{ID: "a", Text: "chest pain"},
		{ID: "b", Text: ""},
		{Text: "no fever"},
		{ID: "a", Text: "troponin and hemoglobin a1c"},
	}
	results, err := d.DetectBatch(context.Background(), docs)
	require.NoError(t, err)
	require.Len(t, results, len(docs))

	assert.Equal(t, "a", results[0].DocID)
	require.Len(t, results[0].Spans, 1)
	assert.Equal(t, "chest pain", results[0].Spans[0].Canonical)
	assert.Empty(t, results[1].Spans)
	require.Len(t, results[2].Spans, 1)
	assert.True(t, results[2].Spans[0].Negated)
	assert.Len(t, results[3].Spans, 2)
	assert.Equal(t, len(docs), metrics.detects)
}

func TestDetectBatch_CancelledContext(t *testing.T) {
	d := newTestDetector(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.DetectBatch(ctx, []Document{{Text: "chest pain"}})
	assert.Error(t, err)
}
