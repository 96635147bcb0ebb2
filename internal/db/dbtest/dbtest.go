// Package dbtest opens migrated in-memory SQLite stores for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"weatherdash/internal/config"
	"weatherdash/internal/db/migrate"
)

// Open returns a fresh in-memory store with every migration applied, using
// the default table names. It is closed when the test ends.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	return OpenWithTables(t, config.DefaultTables())
}

func OpenWithTables(t testing.TB, tables config.Tables) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})
	if err := migrate.Run(context.Background(), db, tables); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
