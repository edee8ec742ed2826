package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/doctalk/internal/intelligence/acronym"
	"github.com/turtacn/doctalk/pkg/errors"
)

var _ acronym.Store = (*AcronymStore)(nil)

func openMemory(t *testing.T) *AcronymStore {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ", nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))
}

func TestAcronymStore_PutGetUpsert(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	got, err := s.Get(ctx, "D1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Put(ctx, "D1", map[string]string{"mi": "myocardial infarction", "HF": "heart failure"}))
	require.NoError(t, s.Put(ctx, "D1", map[string]string{"MI": "mitral insufficiency"}))
	require.NoError(t, s.Put(ctx, "D2", map[string]string{"CP": "chest pain"}))

	got, err = s.Get(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"MI": "mitral insufficiency", "HF": "heart failure"}, got)

	got, err = s.Get(ctx, "D2")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"CP": "chest pain"}, got)
}

func TestAcronymStore_EmptyDocument(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "", map[string]string{"MI": "x"}))
	got, err := s.Get(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAcronymStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acronyms.db")
	ctx := context.Background()

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "D1", map[string]string{"MI": "myocardial infarction"}))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"MI": "myocardial infarction"}, got)
}

func TestAcronymStore_ConcurrentLearn(t *testing.T) {
	s := openMemory(t)
	memory := acronym.NewMemory(s)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, acr := range []string{"MI", "HF", "CP", "CBC"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := memory.Learn(ctx, "shared", map[string]string{acr: "term " + acr})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestAcronymStore_Closed(t *testing.T) {
	s, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(context.Background(), "D1")
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
}
