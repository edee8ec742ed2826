package acronym

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/turtacn/doctalk/internal/intelligence/glossary"
	"github.com/turtacn/doctalk/internal/intelligence/negation"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

func testSnapshot(t *testing.T) *glossary.Snapshot {
	t.Helper()
	s, err := glossary.Build(&clinical.Glossary{
		Terms: []clinical.Term{
			{ID: 1, Canonical: "myocardial infarction", Category: clinical.CategoryDiagnosis, Definition: "heart attack"},
			{ID: 2, Canonical: "congestive heart failure", Category: clinical.CategoryDiagnosis},
			{ID: 3, Canonical: "mitral insufficiency", Category: clinical.CategoryDiagnosis},
			{ID: 4, Canonical: "complete blood count", Category: clinical.CategoryTest},
			{ID: 5, Canonical: "multiple sclerosis", Category: clinical.CategoryDiagnosis},
			{ID: 6, Canonical: "morphine sulfate", Category: clinical.CategoryMedication},
		},
		Aliases: []clinical.Alias{{Text: "heart attack", TermID: 1}},
		Acronyms: []clinical.Acronym{
			{Acronym: "MS", Expansions: []string{"multiple sclerosis", "morphine sulfate"}},
			{Acronym: "CBC", Expansions: []string{"complete blood count"}},
		},
	})
	require.NoError(t, err)
	return s
}

// fakeStore lets tests inject failures.
type fakeStore struct {
	mu     sync.Mutex
	inner  *MemoryStore
	getErr error
	putErr error
	puts   int
}

func newFakeStore() *fakeStore { return &fakeStore{inner: NewMemoryStore()} }

func (f *fakeStore) Get(ctx context.Context, docID string) (map[string]string, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.inner.Get(ctx, docID)
}

func (f *fakeStore) Put(ctx context.Context, docID string, m map[string]string) error {
	f.mu.Lock()
	f.puts++
	err := f.putErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.inner.Put(ctx, docID, m)
}

var scorer = negation.Default()
