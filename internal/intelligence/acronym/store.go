// Package acronym implements per-document acronym memory: learning
// ACRONYM -> canonical mappings from parenthetical definitions, persisting
// them through a keyed Store, and turning bare acronym mentions into spans.
package acronym

import (
	"context"
	"strings"
	"sync"

	"github.com/turtacn/doctalk/internal/intelligence/glossary"
	"github.com/turtacn/doctalk/pkg/errors"
)

// Store persists acronym maps keyed by document identifier.
//
// Get returns an empty map for an unknown or empty docID.  Put upserts the
// given entries and never removes others; an empty docID or mapping is a
// no-op.  Both must be idempotent.
type Store interface {
	Get(ctx context.Context, docID string) (map[string]string, error)
	Put(ctx context.Context, docID string, mapping map[string]string) error
}

// NormalizeAcronym uppercases and trims acronym and rejects anything that
// is not 2-10 letters or digits starting with a letter, the same shape the
// lexicon accepts.
func NormalizeAcronym(acronym string) (string, error) {
	a := strings.ToUpper(strings.TrimSpace(acronym))
	if !glossary.IsAcronym(a) {
		return "", errors.Newf(errors.ErrCodeInvalidAcronym, "acronym %q must be a letter followed by 1-9 letters or digits", acronym)
	}
	return a, nil
}

// MemoryStore keeps acronym maps in process memory.  Values are copied on
// the way in and out.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]string)}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, docID string) (map[string]string, error) {
	out := make(map[string]string)
	if docID == "" {
		return out, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.docs[docID] {
		out[k] = v
	}
	return out, nil
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, docID string, mapping map[string]string) error {
	if docID == "" || len(mapping) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[docID]
	if !ok {
		doc = make(map[string]string, len(mapping))
		s.docs[docID] = doc
	}
	for k, v := range mapping {
		doc[strings.ToUpper(k)] = v
	}
	return nil
}

// Len returns the number of documents with stored mappings.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
