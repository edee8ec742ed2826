package spandetect

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/internal/intelligence/acronym"
	"github.com/turtacn/doctalk/internal/intelligence/glossary"
	"github.com/turtacn/doctalk/internal/intelligence/negation"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

func clinicalGlossary() *clinical.Glossary {
	return &clinical.Glossary{
		Terms: []clinical.Term{
			{ID: 1, Canonical: "hemoglobin a1c", Category: clinical.CategoryTest, Definition: "average blood sugar"},
			{ID: 2, Canonical: "chest pain", Category: clinical.CategoryDiagnosis},
			{ID: 3, Canonical: "fever", Category: clinical.CategoryDiagnosis},
			{ID: 4, Canonical: "troponin", Category: clinical.CategoryTest},
			{ID: 5, Canonical: "myocardial infarction", Category: clinical.CategoryDiagnosis, Why: "heart muscle damage"},
			{ID: 6, Canonical: "heart failure", Category: clinical.CategoryDiagnosis},
		},
		Aliases: []clinical.Alias{
			{Text: "a1c", TermID: 1},
			{Text: "heart attack", TermID: 5},
		},
	}
}

func newTestDetector(t *testing.T, opts ...Option) *Detector {
	t.Helper()
	snap, err := glossary.Build(clinicalGlossary())
	require.NoError(t, err)
	d, err := NewDetector(Static(snap), negation.Default(), opts...)
	require.NoError(t, err)
	return d
}

func newObservedLogger() (logging.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return logging.NewLoggerFromCore(core), logs
}

// failingStore fails every call with err.
type failingStore struct{ err error }

func (s failingStore) Get(context.Context, string) (map[string]string, error) { return nil, s.err }
func (s failingStore) Put(context.Context, string, map[string]string) error    { return s.err }

var _ acronym.Store = failingStore{}

type recordingMetrics struct {
	mu       sync.Mutex
	detects  int
	failures int
	learned  int
	degraded map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{degraded: make(map[string]int)}
}

func (m *recordingMetrics) ObserveDetect(time.Duration, []clinical.Span) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detects++
}

func (m *recordingMetrics) ObserveDetectFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *recordingMetrics) AddAcronymsLearned(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.learned += n
}

func (m *recordingMetrics) IncDegraded(component string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.degraded[component]++
}

func requireNoOverlap(t *testing.T, spans []clinical.Span) {
	t.Helper()
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			require.Falsef(t, spans[i].Overlaps(spans[j]), "spans %d and %d overlap: %+v %+v", i, j, spans[i], spans[j])
		}
	}
}

func findSpan(spans []clinical.Span, surface string) (clinical.Span, bool) {
	for _, sp := range spans {
		if sp.Surface == surface {
			return sp, true
		}
	}
	return clinical.Span{}, false
}
