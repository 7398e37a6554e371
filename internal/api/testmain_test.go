package api

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/banshee-data/chromatic/internal/db"
	"github.com/banshee-data/chromatic/internal/monitoring"
)

// scratch holds the migrated template database shared by the store tests.
var scratch struct {
	once sync.Once
	dir  string
	data []byte
	err  error
}

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	goleak.VerifyTestMain(m, goleak.Cleanup(func(code int) {
		if scratch.dir != "" {
			_ = os.RemoveAll(scratch.dir)
		}
		os.Exit(code)
	}))
}

// templateBytes migrates one database per test binary and returns its
// checkpointed file contents.
func templateBytes(t *testing.T) []byte {
	t.Helper()
	scratch.once.Do(func() {
		if scratch.dir, scratch.err = os.MkdirTemp("", "chromatic-api-*"); scratch.err != nil {
			return
		}
		path := filepath.Join(scratch.dir, "template.db")
		store, err := db.NewDB(path)
		if err != nil {
			scratch.err = err
			return
		}
		_, err = store.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		if cerr := store.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			scratch.err = err
			return
		}
		scratch.data, scratch.err = os.ReadFile(path)
	})
	if scratch.err != nil {
		t.Fatalf("template database: %v", scratch.err)
	}
	return scratch.data
}

// cloneAPITestDB opens a private copy of the migrated template.
func cloneAPITestDB(t *testing.T) *db.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	if err := os.WriteFile(path, templateBytes(t), 0o600); err != nil {
		t.Fatalf("write test database: %v", err)
	}
	store, err := db.OpenDB(path)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
