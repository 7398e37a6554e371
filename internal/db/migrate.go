package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/banshee-data/chromatic/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func migrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	return src, nil
}

// run applies step to a migrator bound to the store's connection.
// ErrNoChange is not an error. The migrator is never closed: closing it
// would close the shared *sql.DB.
func (db *DB) run(what string, step func(*migrate.Migrate) error) error {
	src, err := migrationSource()
	if err != nil {
		return err
	}
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	m.Log = migrateLog{}
	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", what, err)
	}
	return nil
}

// MigrateUp applies every pending migration.
func (db *DB) MigrateUp() error {
	return db.run("up", (*migrate.Migrate).Up)
}

// MigrateDown rolls back one migration.
func (db *DB) MigrateDown() error {
	return db.run("down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// MigrateTo moves the schema up or down to version.
func (db *DB) MigrateTo(version uint) error {
	return db.run(fmt.Sprintf("to %d", version), func(m *migrate.Migrate) error { return m.Migrate(version) })
}

// MigrateVersion reports the applied schema version; 0 when none is.
func (db *DB) MigrateVersion() (version uint, dirty bool, err error) {
	err = db.run("version", func(m *migrate.Migrate) error {
		version, dirty, err = m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			version, dirty, err = 0, false, nil
		}
		return err
	})
	return version, dirty, err
}

// LatestMigrationVersion walks the embedded migrations to the last one.
func LatestMigrationVersion() (uint, error) {
	src, err := migrationSource()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("no migrations: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, err
		}
		v = next
	}
}

// migrateLog routes migrate's progress lines to monitoring.Logf.
type migrateLog struct{}

func (migrateLog) Printf(format string, v ...interface{}) {
	monitoring.Logf("db: migrate: "+format, v...)
}

func (migrateLog) Verbose() bool { return false }
