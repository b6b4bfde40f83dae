// Package testutil builds SQLite catalog fixtures for feed and cache tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/pkgdb/internal/feeds/sqlitefeed"
)

// NewCatalogDB creates an empty catalog file in a temp directory and
// returns its path together with a writable connection. The connection is
// closed when the test ends.
func NewCatalogDB(t *testing.T, name string) (string, *sql.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".sqlite")
	db, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(sqlitefeed.Schema)
	require.NoError(t, err)
	return path, db
}
