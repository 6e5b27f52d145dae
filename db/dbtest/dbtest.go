// Package dbtest opens throwaway in-memory databases for package tests.
package dbtest

import (
	"testing"

	"balcao/db"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
)

// Open returns a migrated in-memory sqlite handle closed at test cleanup.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// :memory: is per-connection; pin the pool to one.
	gdb.DB().SetMaxOpenConns(1)
	gdb.LogMode(false)
	if err := db.Migrate(gdb); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { gdb.Close() })
	return gdb
}
