package acronym

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/doctalk/pkg/errors"
)

func TestMemory_LoadDocMap(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	got, err := m.LoadDocMap(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, m.SaveChoice(ctx, "D1", "mi", "myocardial infarction"))
	got, err = m.LoadDocMap(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"MI": "myocardial infarction"}, got)

	other, err := m.LoadDocMap(ctx, "D2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemory_SaveChoice_Validation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)

	assert.NoError(t, m.SaveChoice(ctx, "", "MI", "myocardial infarction"))
	assert.True(t, errors.IsCode(m.SaveChoice(ctx, "D1", "", "x"), errors.ErrCodeInvalidAcronym))
	assert.True(t, errors.IsCode(m.SaveChoice(ctx, "D1", "MI", " "), errors.ErrCodeBadRequest))
}

func TestMemory_SaveChoice_Overwrites(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(nil)
	require.NoError(t, m.SaveChoice(ctx, "D1", "MI", "mitral insufficiency"))
	require.NoError(t, m.SaveChoice(ctx, "D1", "MI", "myocardial infarction"))

	got, _ := m.LoadDocMap(ctx, "D1")
	assert.Equal(t, "myocardial infarction", got["MI"])
}

func TestMemory_Learn_MergesWithLearnedPrecedence(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := NewMemory(store)
	require.NoError(t, m.SaveChoice(ctx, "D1", "MI", "mitral insufficiency"))
	require.NoError(t, m.SaveChoice(ctx, "D1", "CHF", "congestive heart failure"))

	merged, err := m.Learn(ctx, "D1", map[string]string{"MI": "myocardial infarction"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"MI":  "myocardial infarction",
		"CHF": "congestive heart failure",
	}, merged)

	stored, _ := m.LoadDocMap(ctx, "D1")
	assert.Equal(t, merged, stored)
}

func TestMemory_Learn_SkipsUnchangedWrites(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	m := NewMemory(store)

	_, err := m.Learn(ctx, "D1", map[string]string{"MI": "myocardial infarction"})
	require.NoError(t, err)
	_, err = m.Learn(ctx, "D1", map[string]string{"MI": "myocardial infarction"})
	require.NoError(t, err)
	_, err = m.Learn(ctx, "D1", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, store.puts)
}

func TestMemory_Learn_NoDocIDNeverPersists(t *testing.T) {
	store := newFakeStore()
	m := NewMemory(store)

	merged, err := m.Learn(context.Background(), "", map[string]string{"mi": "myocardial infarction"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"MI": "myocardial infarction"}, merged)
	assert.Equal(t, 0, store.puts)
}

func TestMemory_Learn_StoreReadFailure(t *testing.T) {
	store := newFakeStore()
	store.getErr = stderrors.New("connection refused")
	m := NewMemory(store)

	merged, err := m.Learn(context.Background(), "D1", map[string]string{"MI": "myocardial infarction"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAcronymStoreUnavailable))
	assert.Equal(t, map[string]string{"MI": "myocardial infarction"}, merged)
}

func TestMemory_Learn_StoreWriteFailureKeepsCode(t *testing.T) {
	store := newFakeStore()
	store.putErr = errors.New(errors.ErrCodeCacheError, "READONLY")
	m := NewMemory(store)

	_, err := m.Learn(context.Background(), "D1", map[string]string{"MI": "myocardial infarction"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, stderrors.New("lock service down")
}

func TestMemory_Learn_LockFailure(t *testing.T) {
	m := NewMemory(nil, WithLocker(failingLocker{}))
	merged, err := m.Learn(context.Background(), "D1", map[string]string{"MI": "myocardial infarction"})
	assert.True(t, errors.IsCode(err, errors.ErrCodeLockNotAcquired))
	assert.Equal(t, "myocardial infarction", merged["MI"])
}

func TestMemory_ConcurrentLearnLosesNoUpdates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(newFakeStore())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acr := fmt.Sprintf("A%02d", i)
			_, err := m.Learn(ctx, "D1", map[string]string{acr: "complete blood count"})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := m.LoadDocMap(ctx, "D1")
	require.NoError(t, err)
	assert.Len(t, got, 20)
}
