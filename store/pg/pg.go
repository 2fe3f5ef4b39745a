// Package pg implements an item store in a Postgresql database.
package pg

import (
	"bytes"
	"context"
	"database/sql"
	stderrs "errors"
	"io"

	_ "github.com/lib/pq" // register the postgres type for sql.Open
	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

var _ store.Store = &Store{}

// Store is a Postgresql-based item store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `items` table if it does not exist.
// (If it does exist, it must have the columns and constraints described
// here.)
const Schema = `
CREATE TABLE IF NOT EXISTS items (
  kind TEXT NOT NULL,
  id BYTEA NOT NULL,
  data BYTEA NOT NULL,
  PRIMARY KEY (kind, id)
);
`

// New produces a new Store using `db` for storage.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, err
}

// Read returns the blob at (kind, id).
func (s *Store) Read(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (io.ReadCloser, error) {
	const q = `SELECT data FROM items WHERE kind = $1 AND id = $2`

	var data []byte
	err := s.db.QueryRowContext(ctx, q, string(kind.Char()), id[:]).Scan(&data)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(sgfa.ErrNotExist, "%s %s", kind, id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying item")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type temp struct {
	buf  bytes.Buffer
	done bool
}

func (t *temp) Write(p []byte) (int, error) { return t.buf.Write(p) }

func (t *temp) Cancel() error {
	t.done = true
	return nil
}

// Temp creates a scratch buffer; a single insert installs it.
func (s *Store) Temp(context.Context) (store.Temp, error) {
	return &temp{}, nil
}

// Write installs a scratch buffer at (kind, id).
func (s *Store) Write(ctx context.Context, kind sgfa.Kind, id sgfa.Ref, tp store.Temp) error {
	t, ok := tp.(*temp)
	if !ok {
		return errors.Wrap(sgfa.ErrSanity, "temp belongs to another store")
	}
	if t.done {
		return errors.Wrap(sgfa.ErrSanity, "temp already consumed")
	}
	t.done = true

	const q = `INSERT INTO items (kind, id, data) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	_, err := s.db.ExecContext(ctx, q, string(kind.Char()), id[:], t.buf.Bytes())
	return errors.Wrap(err, "inserting item")
}

// Delete removes the blob at (kind, id).
func (s *Store) Delete(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (bool, error) {
	const q = `DELETE FROM items WHERE kind = $1 AND id = $2`

	res, err := s.db.ExecContext(ctx, q, string(kind.Char()), id[:])
	if err != nil {
		return false, errors.Wrap(err, "deleting item")
	}
	aff, err := res.RowsAffected()
	return aff > 0, errors.Wrap(err, "counting affected rows")
}

// Size reports the byte size of the blob at (kind, id).
func (s *Store) Size(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (int64, error) {
	const q = `SELECT LENGTH(data) FROM items WHERE kind = $1 AND id = $2`

	var n int64
	err := s.db.QueryRowContext(ctx, q, string(kind.Char()), id[:]).Scan(&n)
	if stderrs.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrapf(sgfa.ErrNotExist, "%s %s", kind, id)
	}
	return n, errors.Wrap(err, "querying item size")
}

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}) (store.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
