package postgres

import (
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/turtacn/doctalk/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/doctalk/migrations"
	"github.com/turtacn/doctalk/pkg/errors"
)

// Migrator applies the schema migrations to a Connection.  Migrations come
// from a directory when one is configured and from the copies embedded in
// the binary otherwise.
type Migrator struct {
	conn   *Connection
	dir    string
	logger logging.Logger
}

// NewMigrator builds a Migrator.  An empty dir selects the embedded
// migrations.
func NewMigrator(conn *Connection, dir string, log logging.Logger) *Migrator {
	return &Migrator{conn: conn, dir: dir, logger: logging.OrNop(log)}
}

func (m *Migrator) instance() (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(m.conn.DB(), &postgres.Config{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create migration driver")
	}
	var mg *migrate.Migrate
	if m.dir != "" {
		mg, err = migrate.NewWithDatabaseInstance("file://"+m.dir, "postgres", driver)
	} else {
		s, serr := iofs.New(migrations.FS, ".")
		if serr != nil {
			return nil, errors.Wrap(serr, errors.ErrCodeInternal, "failed to open embedded migrations")
		}
		mg, err = migrate.NewWithInstance("iofs", s, "postgres", driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create migrate instance")
	}
	return mg, nil
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	mg, err := m.instance()
	if err != nil {
		return err
	}
	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to run migrations")
	}
	version, dirty, _ := m.version(mg)
	m.logger.Info("database migrations completed", logging.Int64("version", int64(version)), logging.Bool("dirty", dirty))
	return nil
}

// Down rolls back steps migrations.
func (m *Migrator) Down(steps int) error {
	if steps <= 0 {
		return errors.Newf(errors.ErrCodeBadRequest, "steps must be greater than 0, got %d", steps)
	}
	mg, err := m.instance()
	if err != nil {
		return err
	}
	if err := mg.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return errors.New(errors.ErrCodeBadRequest, "no migrations to roll back")
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to roll back migrations")
	}
	return nil
}

// Version reports the applied version and whether the last migration
// failed half way.  A database without migrations reports version 0.
func (m *Migrator) Version() (uint, bool, error) {
	mg, err := m.instance()
	if err != nil {
		return 0, false, err
	}
	return m.version(mg)
}

func (m *Migrator) version(mg *migrate.Migrate) (uint, bool, error) {
	version, dirty, err := mg.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get migration version")
	}
	return version, dirty, nil
}

// Force marks version as applied without running it, to recover from a
// dirty state.
func (m *Migrator) Force(version int) error {
	mg, err := m.instance()
	if err != nil {
		return err
	}
	if err := mg.Force(version); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to force migration version")
	}
	return nil
}
