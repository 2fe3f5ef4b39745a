// Package jacket implements the write/read/validate/backup machinery of
// a single filing container.
//
// A jacket lives in a directory holding the info file (which doubles as
// the advisory lock sentinel) and the state index; its items live in an
// injected store, which need not be local. Writers are linearized by
// the exclusive lock; readers take the shared lock and observe a state
// snapshot whose references are always resolvable, because the write
// protocol publishes the history pointer last.
//
// A *Jacket is not safe to share across goroutines without external
// serialization.
package jacket

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

// Jacket is an open handle on a filing container.
type Jacket struct {
	dir    string
	info   *Info
	hash   sgfa.Ref
	items  store.Store
	state  *state
	lk     *lock
	now    func() time.Time
	closed bool
}

// Create makes a new jacket in dir, keeping its items in s.
func Create(dir, idText string, s store.Store) (*Jacket, error) {
	if err := sgfa.CheckIDText(idText); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.Wrap(sgfa.ErrSanity, "no item store")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "ensuring %s exists", dir)
	}

	hash := sgfa.Sum([]byte(idText))
	in := &Info{Version: Version, IDHash: hash.String(), IDText: idText}
	if err := writeInfo(filepath.Join(dir, infoFile), in); err != nil {
		return nil, err
	}
	st := newState(dir)
	if err := st.create(); err != nil {
		return nil, err
	}

	return &Jacket{
		dir:   dir,
		info:  in,
		hash:  hash,
		items: s,
		state: st,
		lk:    newLock(filepath.Join(dir, infoFile)),
		now:   time.Now,
	}, nil
}

// Open opens the jacket in dir, keeping its items in s.
func Open(dir string, s store.Store) (*Jacket, error) {
	if s == nil {
		return nil, errors.Wrap(sgfa.ErrSanity, "no item store")
	}
	in, hash, err := readInfo(filepath.Join(dir, infoFile))
	if err != nil {
		return nil, err
	}
	return &Jacket{
		dir:   dir,
		info:  in,
		hash:  hash,
		items: s,
		state: newState(dir),
		lk:    newLock(filepath.Join(dir, infoFile)),
		now:   time.Now,
	}, nil
}

// Close releases the handle. A closed jacket has no read or write
// surface.
func (j *Jacket) Close() error {
	if j.closed {
		return nil
	}
	j.closed = true
	return j.lk.unlock()
}

func (j *Jacket) guard() error {
	if j.closed {
		return errors.Wrap(sgfa.ErrSanity, "jacket is closed")
	}
	return nil
}

// IDText is the jacket's human-readable identifier.
func (j *Jacket) IDText() string { return j.info.IDText }

// IDHash is the SHA2-256 of IDText; item ids derive from it.
func (j *Jacket) IDHash() sgfa.Ref { return j.hash }

// Store is the jacket's item store.
func (j *Jacket) Store() store.Store { return j.items }

// SetClock replaces the time source used when entry timestamps are left
// unset. Tests use it for determinism.
func (j *Jacket) SetClock(now func() time.Time) {
	j.now = now
}
