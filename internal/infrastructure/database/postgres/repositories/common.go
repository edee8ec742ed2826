// Package repositories implements the glossary provider, the acronym
// store and the acronym lock on PostgreSQL.
package repositories

import (
	"context"
	"database/sql"
	"github.com/turtacn/doctalk/pkg/errors"
)

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// txBeginner abstracts sql.DB and sql.Conn
type txBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// sqlSession abstracts sql.DB and sql.Conn
type sqlSession interface {
	queryExecutor
	txBeginner
}

// withTx runs fn inside a transaction on db, rolling back on error.
func withTx(ctx context.Context, db txBeginner, fn func(queryExecutor) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit transaction")
	}
	return nil
}
