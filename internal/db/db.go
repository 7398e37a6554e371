// Package db persists rainbow grids in sqlite. The schema is managed by
// golang-migrate from SQL files embedded in the binary.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/chromatic/internal/monitoring"
	"github.com/banshee-data/chromatic/internal/timeutil"
)

// ErrNotFound is returned when no stored grid has the requested id.
var ErrNotFound = errors.New("db: rainbow not found")

// DB wraps the sqlite connection pool.
type DB struct {
	*sql.DB
	path  string
	clock timeutil.Clock
}

// pragmas are applied by the driver to every new connection.
const pragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&" + pragmas
	}
	return path + "?" + pragmas
}

// OpenDB opens the database without touching the schema. Use it for the
// migrate command; everything else should call NewDB.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// one writer keeps sqlite from returning SQLITE_BUSY under load
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &DB{DB: sqlDB, path: path, clock: timeutil.Real}, nil
}

// NewDB opens the database and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	version, _, err := db.MigrateVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("db: opened %s at schema version %d", path, version)
	return db, nil
}

// SetClock replaces the clock used to stamp stored grids.
func (db *DB) SetClock(c timeutil.Clock) { db.clock = timeutil.Or(c) }

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }
