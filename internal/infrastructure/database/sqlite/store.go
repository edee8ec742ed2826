// Package sqlite provides an embedded acronym store for single-node
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS acronym_memory (
	doc_id     TEXT NOT NULL,
	acronym    TEXT NOT NULL,
	canonical  TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (doc_id, acronym)
)`

const (
	selectAcronyms = `SELECT acronym, canonical FROM acronym_memory WHERE doc_id = ?`
	upsertAcronym  = `INSERT INTO acronym_memory (doc_id, acronym, canonical) VALUES (?, ?, ?)
		ON CONFLICT (doc_id, acronym) DO UPDATE SET canonical = excluded.canonical, updated_at = CURRENT_TIMESTAMP`
)

// AcronymStore keeps acronym memory in a SQLite file.  It satisfies
// acronym.Store.
type AcronymStore struct {
	db     *sql.DB
	logger logging.Logger
}

// Open opens or creates the database at path and ensures the schema.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string, log logging.Logger) (*AcronymStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to open sqlite database")
	}
	// SQLite allows one writer; a single connection also keeps an
	// in-memory database alive for the store's lifetime.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create sqlite schema")
	}
	log = logging.OrNop(log)
	log.Info("sqlite acronym store opened", logging.String("path", path))
	return &AcronymStore{db: db, logger: log}, nil
}

// Get implements acronym.Store.
func (s *AcronymStore) Get(ctx context.Context, docID string) (map[string]string, error) {
	out := map[string]string{}
	if docID == "" {
		return out, nil
	}
	rows, err := s.db.QueryContext(ctx, selectAcronyms, docID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query acronym memory").WithDetail("doc_id=" + docID)
	}
	defer rows.Close()
	for rows.Next() {
		var acr, canonical string
		if err := rows.Scan(&acr, &canonical); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan acronym memory")
		}
		out[acr] = canonical
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read acronym memory")
	}
	return out, nil
}

// Put implements acronym.Store.
func (s *AcronymStore) Put(ctx context.Context, docID string, mapping map[string]string) error {
	if docID == "" || len(mapping) == 0 {
		return nil
	}
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx, upsertAcronym, docID, strings.ToUpper(k), mapping[k]); err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to upsert acronym memory").WithDetail("doc_id=" + docID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit acronym memory")
	}
	return nil
}

// Ping checks the database.
func (s *AcronymStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *AcronymStore) Close() error {
	return s.db.Close()
}
