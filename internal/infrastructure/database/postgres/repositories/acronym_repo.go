package repositories

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/turtacn/doctalk/internal/infrastructure/database/postgres"
	"github.com/turtacn/doctalk/pkg/errors"
)

const (
	selectAcronymMemory = `SELECT acronym, canonical FROM acronym_memory WHERE doc_id = $1`
	upsertAcronymMemory = `
		INSERT INTO acronym_memory (doc_id, acronym, canonical) VALUES ($1, $2, $3)
		ON CONFLICT (doc_id, acronym) DO UPDATE SET canonical = EXCLUDED.canonical, updated_at = NOW()`
)

// AcronymRepository stores per-document acronym maps in acronym_memory.
// It satisfies acronym.Store.
type AcronymRepository struct {
	conn   *postgres.Connection
	locker *AdvisoryLocker
}

// AcronymRepoOption configures an AcronymRepository.
type AcronymRepoOption func(*AcronymRepository)

// WithAdvisoryLocker runs queries for a document on the connection pinned
// by l while l holds that document's lock.
func WithAdvisoryLocker(l *AdvisoryLocker) AcronymRepoOption {
	return func(r *AcronymRepository) { r.locker = l }
}

func NewAcronymRepository(conn *postgres.Connection, opts ...AcronymRepoOption) *AcronymRepository {
	r := &AcronymRepository{conn: conn}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// db returns the pinned lock connection for docID, or the pool.
func (r *AcronymRepository) db(docID string) sqlSession {
	if r.locker != nil {
		if c, ok := r.locker.session(docID); ok {
			return c
		}
	}
	return r.conn.DB()
}

func (r *AcronymRepository) Get(ctx context.Context, docID string) (map[string]string, error) {
	out := map[string]string{}
	if docID == "" {
		return out, nil
	}
	rows, err := r.db(docID).QueryContext(ctx, selectAcronymMemory, docID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query acronym memory").WithDetail("doc_id=" + docID)
	}
	err = scanAll(rows, func(s *sql.Rows) error {
		var acr, canonical string
		if err := s.Scan(&acr, &canonical); err != nil {
			return err
		}
		out[acr] = canonical
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan acronym memory").WithDetail("doc_id=" + docID)
	}
	return out, nil
}

// Put upserts mapping in one transaction, in acronym order.
func (r *AcronymRepository) Put(ctx context.Context, docID string, mapping map[string]string) error {
	if docID == "" || len(mapping) == 0 {
		return nil
	}
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return withTx(ctx, r.db(docID), func(q queryExecutor) error {
		for _, k := range keys {
			if _, err := q.ExecContext(ctx, upsertAcronymMemory, docID, strings.ToUpper(k), mapping[k]); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert acronym memory").WithDetail("doc_id=" + docID)
			}
		}
		return nil
	})
}
