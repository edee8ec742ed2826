package glossary

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/pkg/errors"
	"github.com/turtacn/doctalk/pkg/types/clinical"
)

// Provider loads the full glossary content from a backing store.
type Provider interface {
	Load(ctx context.Context) (*clinical.Glossary, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (*clinical.Glossary, error)

// Load calls f.
func (f ProviderFunc) Load(ctx context.Context) (*clinical.Glossary, error) { return f(ctx) }

// ReloadObserver receives reload outcomes.
type ReloadObserver interface {
	ObserveReload(d time.Duration, patterns int, err error)
}

// Index holds the active Snapshot.  Readers call Snapshot and keep using the
// returned value for the whole request; Reload builds a replacement off to
// the side and publishes it with a single atomic store.
type Index struct {
	current  atomic.Pointer[Snapshot]
	provider Provider
	group    singleflight.Group
	logger   logging.Logger
	observer ReloadObserver
	build    []BuildOption
}

// IndexOption customises an Index.
type IndexOption func(*Index)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) IndexOption {
	return func(i *Index) { i.logger = logging.OrNop(l) }
}

// WithReloadObserver sets a metrics sink for reloads.
func WithReloadObserver(o ReloadObserver) IndexOption {
	return func(i *Index) { i.observer = o }
}

// WithBuildOptions forwards options to every Build call.
func WithBuildOptions(opts ...BuildOption) IndexOption {
	return func(i *Index) { i.build = append(i.build, opts...) }
}

// NewIndex returns an Index serving an empty snapshot until the first
// successful Reload.  provider may be nil when snapshots are only installed
// through Swap.
func NewIndex(provider Provider, opts ...IndexOption) *Index {
	idx := &Index{provider: provider, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(idx)
	}
	idx.current.Store(Empty())
	return idx
}

// Snapshot returns the active snapshot.  It never returns nil.
func (i *Index) Snapshot() *Snapshot {
	return i.current.Load()
}

// Swap publishes s and returns the previous snapshot.
func (i *Index) Swap(s *Snapshot) *Snapshot {
	if s == nil {
		s = Empty()
	}
	return i.current.Swap(s)
}

// Reload loads the provider content, builds a new snapshot and publishes it.
// Concurrent callers share a single load.  On failure the active snapshot
// is left untouched.
func (i *Index) Reload(ctx context.Context) (*Snapshot, error) {
	if i.provider == nil {
		return nil, errors.New(errors.ErrCodeGlossaryNotLoaded, "glossary index has no provider")
	}

	v, err, shared := i.group.Do("reload", func() (interface{}, error) {
		start := time.Now()
		snap, err := i.load(ctx)
		patterns := 0
		if snap != nil {
			patterns = snap.Stats().Patterns
		}
		if i.observer != nil {
			i.observer.ObserveReload(time.Since(start), patterns, err)
		}
		if err != nil {
			i.logger.Error("glossary reload failed", logging.Err(err), logging.String("code", errors.GetCode(err).String()))
			return nil, err
		}
		i.current.Store(snap)
		st := snap.Stats()
		i.logger.Info("glossary reloaded",
			logging.Int("terms", st.Terms),
			logging.Int("aliases", st.Aliases),
			logging.Int("patterns", st.Patterns),
			logging.Int("acronyms", st.Acronyms),
			logging.Duration("elapsed", time.Since(start)),
		)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		i.logger.Debug("glossary reload shared with a concurrent caller")
	}
	return v.(*Snapshot), nil
}

func (i *Index) load(ctx context.Context) (*Snapshot, error) {
	g, err := i.provider.Load(ctx)
	if err != nil {
		code := errors.GetCode(err)
		if code == errors.CodeUnknown {
			code = errors.ErrCodeGlossaryUnavailable
		}
		return nil, errors.Wrap(err, code, "load glossary")
	}
	if g == nil {
		return nil, errors.New(errors.ErrCodeGlossaryCorrupt, "glossary provider returned no content")
	}
	return Build(g, i.build...)
}
