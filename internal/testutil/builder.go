package testutil

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Builder accumulates catalog rows and inserts them with raw SQL, so tests
// can also produce rows the catalog writer would refuse.
type Builder struct {
	t        *testing.T
	db       *sql.DB
	savorCtx string
	packages []packageData
}

// NewBuilder creates a builder for the given catalog connection.
func NewBuilder(t *testing.T, db *sql.DB) *Builder {
	t.Helper()
	return &Builder{t: t, db: db}
}

// WithSavorContext records the catalog's savor context.
func (b *Builder) WithSavorContext(name string) *Builder {
	b.savorCtx = name
	return b
}

// WithPackage adds a package given as "type:name@version".
func (b *Builder) WithPackage(key string, opts ...PackageOption) *Builder {
	p := packageData{key: key}
	for _, opt := range opts {
		opt(&p)
	}
	b.packages = append(b.packages, p)
	return b
}

// Build inserts all accumulated rows.
func (b *Builder) Build() {
	b.t.Helper()
	if b.savorCtx != "" {
		_, err := b.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('savor_context', ?)`, b.savorCtx)
		require.NoError(b.t, err)
	}
	for _, p := range b.packages {
		b.insertPackage(p)
	}
}

func (b *Builder) insertPackage(p packageData) {
	b.t.Helper()
	typ, name, version := splitKey(b.t, p.key)
	res, err := b.db.Exec(
		`INSERT INTO packages (type, name, version, savors) VALUES (?, ?, ?, ?)`,
		typ, name, version, p.savors,
	)
	require.NoError(b.t, err)
	id, err := res.LastInsertId()
	require.NoError(b.t, err)

	for seq, dep := range p.deps {
		dt, dn, dv := splitKey(b.t, dep.target)
		_, err := b.db.Exec(
			`INSERT INTO dependencies (pkg_id, seq, target_type, target_name, target_version, kind, savors)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, seq, dt, dn, dv, dep.kind, dep.savors,
		)
		require.NoError(b.t, err)
	}
}

func splitKey(t *testing.T, key string) (string, string, string) {
	t.Helper()
	typ, rest, ok := strings.Cut(key, ":")
	require.True(t, ok, "key %q has no type", key)
	at := strings.LastIndex(rest, "@")
	require.Positive(t, at, "key %q has no version", key)
	return typ, rest[:at], rest[at+1:]
}
