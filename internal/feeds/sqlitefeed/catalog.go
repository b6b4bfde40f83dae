package sqlitefeed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zjrosen/pkgdb/internal/log"
	"github.com/zjrosen/pkgdb/internal/packagedb"
	"github.com/zjrosen/pkgdb/internal/savor"
)

// Catalog is a writable catalog, used to build feeds from descriptors.
type Catalog struct {
	db       *sql.DB
	savorCtx savor.Context
}

// Create opens or creates the catalog at path and applies the schema. The
// savor context is recorded on first use; reopening with another context
// is an error.
func Create(path string, savorCtx savor.Context) (*Catalog, error) {
	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("create catalog %s: %w", path, err)
	}
	c := &Catalog{db: db, savorCtx: savorCtx}
	if err := c.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create catalog %s: %w", path, err)
	}
	log.Debug(log.CatFeed, "Catalog ready for writing", "path", path)
	return c, nil
}

func (c *Catalog) init(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	existing, err := readSavorContext(ctx, c.db)
	if err != nil {
		return err
	}
	switch {
	case existing.IsZero() && !c.savorCtx.IsZero():
		_, err = c.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, savorContextKey, c.savorCtx.Name())
		return err
	case c.savorCtx.IsZero():
		c.savorCtx = existing
	case existing != c.savorCtx:
		return fmt.Errorf("catalog uses savor context %s, not %s", existing, c.savorCtx)
	}
	return nil
}

// Put stores desc, replacing any previous row for the same key. Feeds and
// ghost data are not stored: the catalog itself is the feed.
func (c *Catalog) Put(ctx context.Context, desc packagedb.Descriptor) (err error) {
	if desc.Ghost {
		return fmt.Errorf("%w: %s: ghosts cannot be stored in a catalog", packagedb.ErrInvalidDescriptor, desc.Key)
	}
	if verr := desc.Validate(); verr != nil {
		return verr
	}
	if err := c.checkContext(desc.Savors); err != nil {
		return fmt.Errorf("%s: %w", desc.Key, err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	key := desc.Key
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM dependencies WHERE pkg_id IN (SELECT id FROM packages WHERE type = ? AND name = ? AND version = ?)`,
		string(key.Type), key.Name, key.Version.String()); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM packages WHERE type = ? AND name = ? AND version = ?`,
		string(key.Type), key.Name, key.Version.String()); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO packages (type, name, version, savors) VALUES (?, ?, ?, ?)`,
		string(key.Type), key.Name, key.Version.String(), desc.Savors.String())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for seq, dep := range desc.Dependencies {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO dependencies (pkg_id, seq, target_type, target_name, target_version, kind, savors)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, seq, string(dep.Target.Type), dep.Target.Name, dep.Target.Version.String(), dep.Kind.String(), dep.Savors.String(),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (c *Catalog) checkContext(s savor.Set) error {
	if s.IsEmpty() || s.Context() == c.savorCtx {
		return nil
	}
	return fmt.Errorf("savor context %s does not match catalog context %q", s.Context(), c.savorCtx.Name())
}

// Close closes the catalog.
func (c *Catalog) Close() error {
	return c.db.Close()
}
