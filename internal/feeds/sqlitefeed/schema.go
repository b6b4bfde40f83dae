// Package sqlitefeed serves package descriptors from a local SQLite
// catalog. Catalogs are plain files that can be shipped alongside a build
// or produced by mirroring a remote registry.
package sqlitefeed

// Schema creates the catalog tables. The savor context shared by every
// savor set in the catalog is stored in meta under savorContextKey.
const Schema = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS packages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	name TEXT NOT NULL,
	version TEXT NOT NULL,
	savors TEXT NOT NULL DEFAULT '',
	UNIQUE (type, name, version)
);

CREATE TABLE IF NOT EXISTS dependencies (
	pkg_id INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	target_type TEXT NOT NULL,
	target_name TEXT NOT NULL,
	target_version TEXT NOT NULL,
	kind TEXT NOT NULL DEFAULT 'transitive',
	savors TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (pkg_id, seq),
	FOREIGN KEY (pkg_id) REFERENCES packages(id)
);
`

const savorContextKey = "savor_context"
