// Package sqlite3 implements a block store on a Sqlite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/roots"
	"github.com/perrin/gbs/store"
)

var _ roots.Store = &Store{}

// Store is a Sqlite-based block store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `blocks` and `roots` tables if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS blocks (
  ref BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS roots (
  name TEXT PRIMARY KEY NOT NULL,
  blob_id TEXT NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create tables `blocks` and `roots`,
// or for those tables already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, err
}

// Get gets the block with hash `ref`.
func (s *Store) Get(ctx context.Context, ref gbs.Ref) (gbs.Blob, error) {
	const q = `SELECT data FROM blocks WHERE ref = $1`

	var b gbs.Blob
	err := s.db.QueryRowContext(ctx, q, ref[:]).Scan(&b)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, gbs.ErrNotFound
	}
	return b, errors.Wrap(err, "querying block")
}

// Exists tells whether the store holds a block with hash `ref`.
func (s *Store) Exists(ctx context.Context, ref gbs.Ref) (bool, error) {
	const q = `SELECT 1 FROM blocks WHERE ref = $1`

	var one int
	err := s.db.QueryRowContext(ctx, q, ref[:]).Scan(&one)
	if stderrs.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, errors.Wrap(err, "querying block existence")
}

// Put adds a block to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b gbs.Blob) (gbs.Ref, bool, error) {
	const q = `INSERT INTO blocks (ref, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	ref := b.Ref()
	res, err := s.db.ExecContext(ctx, q, ref[:], []byte(b))
	if err != nil {
		return gbs.Zero, false, errors.Wrap(err, "inserting block")
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return gbs.Zero, false, errors.Wrap(err, "counting affected rows")
	}

	return ref, aff > 0, nil
}

// Delete removes the block with hash `ref`.
// Deleting an absent ref is not an error.
func (s *Store) Delete(ctx context.Context, ref gbs.Ref) error {
	const q = `DELETE FROM blocks WHERE ref = $1`

	_, err := s.db.ExecContext(ctx, q, ref[:])
	return errors.Wrap(err, "deleting block")
}

// ListRefs produces all block refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start gbs.Ref, f func(gbs.Ref) error) error {
	const q = `SELECT ref FROM blocks WHERE ref > $1 ORDER BY ref`
	return sqlutil.ForQueryRows(ctx, s.db, q, start[:], func(ref []byte) error {
		return f(gbs.RefFromBytes(ref))
	})
}

// GetRoot returns the BlobID registered under the given name.
func (s *Store) GetRoot(ctx context.Context, name string) (gbs.BlobID, error) {
	const q = `SELECT blob_id FROM roots WHERE name = $1`

	var encoded string
	err := s.db.QueryRowContext(ctx, q, name).Scan(&encoded)
	if stderrs.Is(err, sql.ErrNoRows) {
		return gbs.BlobID{}, gbs.ErrNotFound
	}
	if err != nil {
		return gbs.BlobID{}, errors.Wrapf(err, "querying root %s", name)
	}
	id, err := gbs.ParseBlobID(encoded)
	return id, errors.Wrapf(err, "parsing root %s", name)
}

// PutRoot registers id under the given name, replacing any previous registration.
func (s *Store) PutRoot(ctx context.Context, name string, id gbs.BlobID) error {
	const q = `INSERT INTO roots (name, blob_id) VALUES ($1, $2) ON CONFLICT (name) DO UPDATE SET blob_id = $2`

	_, err := s.db.ExecContext(ctx, q, name, id.String())
	return errors.Wrapf(err, "storing root %s", name)
}

// DeleteRoot removes the registration of the given name, if any.
func (s *Store) DeleteRoot(ctx context.Context, name string) error {
	const q = `DELETE FROM roots WHERE name = $1`

	_, err := s.db.ExecContext(ctx, q, name)
	return errors.Wrapf(err, "deleting root %s", name)
}

// ListRoots lists all roots in the store, in lexicographic name order.
func (s *Store) ListRoots(ctx context.Context, start string, f func(string, gbs.BlobID) error) error {
	const q = `SELECT name, blob_id FROM roots WHERE name > $1 ORDER BY name`
	return sqlutil.ForQueryRows(ctx, s.db, q, start, func(name, encoded string) error {
		id, err := gbs.ParseBlobID(encoded)
		if err != nil {
			return errors.Wrapf(err, "parsing root %s", name)
		}
		return f(name, id)
	})
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (roots.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
