package glossary

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

type recordingObserver struct {
	mu       sync.Mutex
	patterns []int
	errs     []error
}

func (r *recordingObserver) ObserveReload(_ time.Duration, patterns int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, patterns)
	r.errs = append(r.errs, err)
}

func TestIndex_StartsEmpty(t *testing.T) {
	idx := NewIndex(nil)
	require.NotNil(t, idx.Snapshot())
	assert.Empty(t, idx.Snapshot().Match("troponin"))

	_, err := idx.Reload(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeGlossaryNotLoaded))
}

func TestIndex_ReloadPublishesSnapshot(t *testing.T) {
	obs := &recordingObserver{}
	idx := NewIndex(ProviderFunc(func(context.Context) (*clinical.Glossary, error) {
		return testGlossary(), nil
	}), WithReloadObserver(obs))

	snap, err := idx.Reload(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, idx.Snapshot())
	assert.Len(t, idx.Snapshot().Match("troponin"), 1)
	assert.Equal(t, []int{10}, obs.patterns)
}

func TestIndex_FailedReloadKeepsPrevious(t *testing.T) {
	fail := false
	idx := NewIndex(ProviderFunc(func(context.Context) (*clinical.Glossary, error) {
		if fail {
			return nil, stderrors.New("connection refused")
		}
		return testGlossary(), nil
	}))

	first, err := idx.Reload(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = idx.Reload(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeGlossaryUnavailable))
	assert.Same(t, first, idx.Snapshot())
}

func TestIndex_CorruptSourceIsConfigurationError(t *testing.T) {
	idx := NewIndex(ProviderFunc(func(context.Context) (*clinical.Glossary, error) {
		return &clinical.Glossary{Terms: []clinical.Term{{ID: 1, Canonical: "x", Category: "bogus"}}}, nil
	}))
	_, err := idx.Reload(context.Background())
	assert.True(t, errors.IsConfiguration(err))

	idx = NewIndex(ProviderFunc(func(context.Context) (*clinical.Glossary, error) { return nil, nil }))
	_, err = idx.Reload(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeGlossaryCorrupt))
}

func TestIndex_ConcurrentReloadsShareOneLoad(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	idx := NewIndex(ProviderFunc(func(context.Context) (*clinical.Glossary, error) {
		loads.Add(1)
		<-release
		return testGlossary(), nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := idx.Reload(context.Background())
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, loads.Load(), int32(8))
	assert.GreaterOrEqual(t, loads.Load(), int32(1))
}

func TestIndex_ReadersNeverSeePartialSnapshot(t *testing.T) {
	a := mustBuild(t)
	b := Empty()
	idx := NewIndex(nil)
	idx.Swap(a)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				n := len(idx.Snapshot().Match("troponin"))
				if n != 0 && n != 1 {
					t.Errorf("unexpected hit count %d", n)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			idx.Swap(b)
		} else {
			idx.Swap(a)
		}
	}
	close(stop)
	wg.Wait()

	assert.NotNil(t, idx.Swap(nil))
	assert.NotNil(t, idx.Snapshot())
}
