// Package file implements an item store as a file hierarchy.
package file

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

var _ store.Store = &Store{}

// Store is a file-based implementation of an item store.
//
// Blobs live at <root>/<xx>/<rest>-<kind-char>, where xx is the first
// two hex digits of the id. Temps are sibling files under root, so
// installation is a hard link.
type Store struct {
	root string
}

// New produces a new Store keeping items beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) path(kind sgfa.Kind, id sgfa.Ref) string {
	h := id.String()
	return filepath.Join(s.root, h[:2], h[2:]+"-"+string(kind.Char()))
}

// Read opens the blob at (kind, id).
func (s *Store) Read(_ context.Context, kind sgfa.Kind, id sgfa.Ref) (io.ReadCloser, error) {
	path := s.path(kind, id)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(sgfa.ErrNotExist, "%s %s", kind, id)
	}
	return f, errors.Wrapf(err, "opening %s", path)
}

type temp struct {
	f    *os.File
	done bool
}

func (t *temp) Write(p []byte) (int, error) { return t.f.Write(p) }

func (t *temp) Cancel() error {
	if t.done {
		return nil
	}
	t.done = true
	t.f.Close()
	return os.Remove(t.f.Name())
}

// Temp creates a scratch file beside the blob hierarchy.
func (s *Store) Temp(_ context.Context) (store.Temp, error) {
	err := os.MkdirAll(s.root, 0755)
	if err != nil {
		return nil, errors.Wrapf(err, "ensuring %s exists", s.root)
	}
	f, err := os.CreateTemp(s.root, "tmp*")
	if err != nil {
		return nil, errors.Wrap(err, "creating temp file")
	}
	return &temp{f: f}, nil
}

// Write installs a temp file at (kind, id) by hard link.
// An already-present id is left as is.
func (s *Store) Write(_ context.Context, kind sgfa.Kind, id sgfa.Ref, tp store.Temp) error {
	t, ok := tp.(*temp)
	if !ok {
		return errors.Wrap(sgfa.ErrSanity, "temp belongs to another store")
	}
	if t.done {
		return errors.Wrap(sgfa.ErrSanity, "temp already consumed")
	}
	t.done = true

	err := t.f.Close()
	if err != nil {
		os.Remove(t.f.Name())
		return errors.Wrap(err, "closing temp file")
	}

	var (
		path = s.path(kind, id)
		dir  = filepath.Dir(path)
	)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		os.Remove(t.f.Name())
		return errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	err = os.Link(t.f.Name(), path)
	if errors.Is(err, os.ErrExist) {
		err = nil
	}
	if rmErr := os.Remove(t.f.Name()); err == nil && rmErr != nil {
		err = rmErr
	}
	return errors.Wrapf(err, "installing %s", path)
}

// Delete removes the blob at (kind, id).
func (s *Store) Delete(_ context.Context, kind sgfa.Kind, id sgfa.Ref) (bool, error) {
	err := os.Remove(s.path(kind, id))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, errors.Wrapf(err, "removing %s %s", kind, id)
}

// Size reports the byte size of the blob at (kind, id).
func (s *Store) Size(_ context.Context, kind sgfa.Kind, id sgfa.Ref) (int64, error) {
	info, err := os.Stat(s.path(kind, id))
	if os.IsNotExist(err) {
		return 0, errors.Wrapf(sgfa.ErrNotExist, "%s %s", kind, id)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "statting %s %s", kind, id)
	}
	return info.Size(), nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (store.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
