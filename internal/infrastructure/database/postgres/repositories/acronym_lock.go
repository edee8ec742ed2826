package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"time"

	"github.com/turtacn/doctalk/internal/infrastructure/database/postgres"
	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/internal/intelligence/acronym"
	"github.com/turtacn/doctalk/pkg/errors"
)

const (
	advisoryLock   = `SELECT pg_advisory_lock(hashtext($1))`
	advisoryUnlock = `SELECT pg_advisory_unlock(hashtext($1))`
)

const unlockTimeout = 2 * time.Second

// AdvisoryLocker serializes acronym memory updates across processes with
// session-level advisory locks.  Each held lock pins one pooled connection;
// an AcronymRepository built WithAdvisoryLocker runs its queries for that
// document on the pinned connection, so a locked update never needs a
// second one.  Callers in the same process queue on an in-process mutex
// before reserving a connection.
// It satisfies acronym.Locker.
type AdvisoryLocker struct {
	conn  *postgres.Connection
	log   logging.Logger
	local *acronym.KeyedMutex

	mu   sync.Mutex
	held map[string]*sql.Conn
}

func NewAdvisoryLocker(conn *postgres.Connection, log logging.Logger) *AdvisoryLocker {
	return &AdvisoryLocker{
		conn:  conn,
		log:   logging.OrNop(log),
		local: acronym.NewKeyedMutex(),
		held:  make(map[string]*sql.Conn),
	}
}

// Lock blocks until the advisory lock for key is held or ctx is done.
func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	name := "acronym:" + key
	release, err := l.local.Lock(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeLockNotAcquired, "failed to take advisory lock").WithDetail("key=" + name)
	}
	c, err := l.conn.DB().Conn(ctx)
	if err != nil {
		release()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to reserve connection for lock")
	}
	if _, err := c.ExecContext(ctx, advisoryLock, name); err != nil {
		_ = c.Close()
		release()
		return nil, errors.Wrap(err, errors.ErrCodeLockNotAcquired, "failed to take advisory lock").WithDetail("key=" + name)
	}
	l.mu.Lock()
	l.held[key] = c
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
			defer release()

			ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
			defer cancel()
			if _, err := c.ExecContext(ctx, advisoryUnlock, name); err != nil {
				l.log.Warn("failed to release advisory lock", logging.String("key", name), logging.Err(err))
				// The lock lives as long as the session, so the connection
				// must not go back to the pool.
				_ = c.Raw(func(interface{}) error { return driver.ErrBadConn })
			}
			_ = c.Close()
		})
	}, nil
}

// session returns the connection pinned by a lock held on key.
func (l *AdvisoryLocker) session(key string) (*sql.Conn, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.held[key]
	return c, ok
}
