package acronym

import (
	"context"
	"strings"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/pkg/errors"
)

// Memory is the per-document acronym memory.  Every read-modify-write for
// a document runs under that document's lock; different documents proceed
// in parallel.
type Memory struct {
	store  Store
	locker Locker
	logger logging.Logger
}

// MemoryOption customises a Memory.
type MemoryOption func(*Memory)

// WithLocker replaces the default in-process KeyedMutex, e.g. with a
// distributed lock when several processes share one Store.
func WithLocker(l Locker) MemoryOption {
	return func(m *Memory) {
		if l != nil {
			m.locker = l
		}
	}
}

// WithMemoryLogger sets the logger.
func WithMemoryLogger(l logging.Logger) MemoryOption {
	return func(m *Memory) { m.logger = logging.OrNop(l) }
}

// NewMemory wraps store.  A nil store means an in-process MemoryStore.
func NewMemory(store Store, opts ...MemoryOption) *Memory {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Memory{store: store, locker: NewKeyedMutex(), logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadDocMap returns the stored mapping for docID, or an empty map when
// docID is empty.
func (m *Memory) LoadDocMap(ctx context.Context, docID string) (map[string]string, error) {
	if docID == "" {
		return map[string]string{}, nil
	}
	got, err := m.store.Get(ctx, docID)
	if err != nil {
		return nil, storeErr(err, "load acronym map", docID)
	}
	if got == nil {
		got = map[string]string{}
	}
	return got, nil
}

// SaveChoice upserts one mapping for docID.  An empty docID is a no-op.
func (m *Memory) SaveChoice(ctx context.Context, docID, acronym, canonical string) error {
	if docID == "" {
		return nil
	}
	acr, err := NormalizeAcronym(acronym)
	if err != nil {
		return err
	}
	canonical = strings.TrimSpace(canonical)
	if canonical == "" {
		return errors.InvalidParam("canonical must not be empty")
	}

	unlock, err := m.locker.Lock(ctx, docID)
	if err != nil {
		return lockErr(err, docID)
	}
	defer unlock()

	if err := m.store.Put(ctx, docID, map[string]string{acr: canonical}); err != nil {
		return storeErr(err, "save acronym choice", docID)
	}
	m.logger.Debug("acronym choice saved", logging.String("doc_id", docID), logging.String("acronym", acr))
	return nil
}

// Learn persists learned for docID and returns the stored map merged with
// learned, learned entries taking precedence.  Nothing is written when every
// learned entry is already stored with the same value.
//
// On error the returned map still contains learned so the caller can use
// what this request itself established.
func (m *Memory) Learn(ctx context.Context, docID string, learned map[string]string) (map[string]string, error) {
	merged := make(map[string]string, len(learned))
	for k, v := range learned {
		merged[strings.ToUpper(k)] = v
	}
	if docID == "" {
		return merged, nil
	}

	unlock, err := m.locker.Lock(ctx, docID)
	if err != nil {
		return merged, lockErr(err, docID)
	}
	defer unlock()

	stored, err := m.store.Get(ctx, docID)
	if err != nil {
		return merged, storeErr(err, "load acronym map", docID)
	}

	changed := make(map[string]string)
	for k, v := range merged {
		if stored[k] != v {
			changed[k] = v
		}
	}
	for k, v := range stored {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	if len(changed) == 0 {
		return merged, nil
	}

	if err := m.store.Put(ctx, docID, changed); err != nil {
		return merged, storeErr(err, "persist learned acronyms", docID)
	}
	m.logger.Debug("acronyms learned",
		logging.String("doc_id", docID),
		logging.Int("learned", len(changed)),
		logging.Int("known", len(merged)),
	)
	return merged, nil
}

func storeErr(err error, msg, docID string) error {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.ErrCodeAcronymStoreUnavailable
	}
	return errors.Wrap(err, code, msg).WithDetail("doc_id=" + docID)
}

func lockErr(err error, docID string) error {
	code := errors.GetCode(err)
	if code == errors.CodeUnknown {
		code = errors.ErrCodeLockNotAcquired
	}
	return errors.Wrap(err, code, "lock document").WithDetail("doc_id=" + docID)
}
