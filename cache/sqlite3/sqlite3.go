// Package sqlite3 implements a digest cache in a Sqlite database,
// so that digests survive from one run to the next.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"
	"time"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/pullsync"
	"github.com/bobg/pullsync/cache"
)

var _ cache.Lister = &Cache{}

// Cache is a Sqlite-based digest cache.
type Cache struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `digests` table if it does not exist.
// (If it does exist, it must have the columns and constraints described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS digests (
  namespace TEXT NOT NULL,
  name TEXT NOT NULL,
  size INTEGER NOT NULL,
  mtime INTEGER NOT NULL,
  digest TEXT NOT NULL,
  PRIMARY KEY (namespace, name, size, mtime)
);
`

// New produces a new Cache using `db` for storage.
// It expects to create the table `digests`,
// or for it already to exist with the correct schema.
// (See Schema.)
func New(ctx context.Context, db *sql.DB) (*Cache, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Cache{db: db}, errors.Wrap(err, "creating schema")
}

// Get implements cache.Cache.
func (c *Cache) Get(ctx context.Context, k cache.Key) (string, error) {
	const q = `SELECT digest FROM digests WHERE namespace = $1 AND name = $2 AND size = $3 AND mtime = $4`

	var digest string
	err := c.db.QueryRowContext(ctx, q, k.Namespace, k.Name, k.Size, k.ModTime.UnixNano()).Scan(&digest)
	if stderrs.Is(err, sql.ErrNoRows) {
		return "", pullsync.ErrNotFound
	}
	return digest, errors.Wrapf(err, "getting digest for %s", k)
}

// Put implements cache.Cache.
// Entries for older versions of the same file
// (same namespace and name)
// are removed.
func (c *Cache) Put(ctx context.Context, k cache.Key, digest string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback()

	const q1 = `DELETE FROM digests WHERE namespace = $1 AND name = $2`
	if _, err = tx.ExecContext(ctx, q1, k.Namespace, k.Name); err != nil {
		return errors.Wrapf(err, "removing stale digests for %s", k.Name)
	}

	const q2 = `INSERT INTO digests (namespace, name, size, mtime, digest) VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, q2, k.Namespace, k.Name, k.Size, k.ModTime.UnixNano(), digest); err != nil {
		return errors.Wrapf(err, "storing digest for %s", k)
	}

	return errors.Wrap(tx.Commit(), "committing transaction")
}

// Each implements cache.Lister.
func (c *Cache) Each(ctx context.Context, f func(cache.Key, string) error) error {
	const q = `SELECT namespace, name, size, mtime, digest FROM digests ORDER BY namespace, name, mtime`
	return sqlutil.ForQueryRows(ctx, c.db, q, func(ns, name string, size, mtime int64, digest string) error {
		return f(cache.Key{Namespace: ns, Name: name, Size: size, ModTime: time.Unix(0, mtime)}, digest)
	})
}

func init() {
	cache.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (cache.Cache, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		// Sqlite allows one writer at a time.
		db.SetMaxOpenConns(1)
		return New(ctx, db)
	})
}
