package glossaryfile

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/internal/intelligence/glossary"
	"github.com/turtacn/doctalk/pkg/errors"
)

// DefaultDebounce is how long the watcher waits for a burst of writes to
// settle before reloading.
const DefaultDebounce = 250 * time.Millisecond

// Reloader rebuilds the glossary index.  *glossary.Index satisfies it.
type Reloader interface {
	Reload(ctx context.Context) (*glossary.Snapshot, error)
}

// Watcher reloads the glossary index whenever the file changes.  The parent
// directory is watched so editors that replace the file by rename are
// handled.
type Watcher struct {
	path     string
	reloader Reloader
	debounce time.Duration
	logger   logging.Logger
	fsw      *fsnotify.Watcher
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithWatcherLogger(l logging.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logging.OrNop(l) }
}

// NewWatcher starts watching the directory of path.
func NewWatcher(path string, r Reloader, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid glossary path")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create file watcher")
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to watch glossary directory").WithDetail("path=" + abs)
	}
	w := &Watcher{
		path:     abs,
		reloader: r,
		debounce: DefaultDebounce,
		logger:   logging.NewNopLogger(),
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes file events until ctx is done, then closes the watcher.
// A failed reload is logged and the previous snapshot stays active.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("glossary watcher error", logging.Err(err))
		case <-fire:
			fire = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	snap, err := w.reloader.Reload(ctx)
	if err != nil {
		w.logger.Warn("glossary reload failed, keeping previous snapshot",
			logging.String("path", w.path),
			logging.Err(err),
		)
		return
	}
	stats := snap.Stats()
	w.logger.Info("glossary file change applied",
		logging.String("path", w.path),
		logging.Int("patterns", stats.Patterns),
	)
}
