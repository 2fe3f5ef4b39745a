// Package mem implements an in-memory item store.
package mem

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

var _ store.Store = &Store{}

// Store is a memory-based implementation of an item store.
type Store struct {
	mu    sync.Mutex
	blobs map[key][]byte
}

type key struct {
	kind sgfa.Kind
	id   sgfa.Ref
}

// New produces a new Store.
func New() *Store {
	return &Store{blobs: make(map[key][]byte)}
}

// Read returns the blob at (kind, id).
func (s *Store) Read(_ context.Context, kind sgfa.Kind, id sgfa.Ref) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[key{kind: kind, id: id}]
	if !ok {
		return nil, errors.Wrapf(sgfa.ErrNotExist, "%s %s", kind, id)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
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

// Temp creates a scratch buffer.
func (s *Store) Temp(context.Context) (store.Temp, error) {
	return &temp{}, nil
}

// Write installs a scratch buffer at (kind, id).
func (s *Store) Write(_ context.Context, kind sgfa.Kind, id sgfa.Ref, tp store.Temp) error {
	t, ok := tp.(*temp)
	if !ok {
		return errors.Wrap(sgfa.ErrSanity, "temp belongs to another store")
	}
	if t.done {
		return errors.Wrap(sgfa.ErrSanity, "temp already consumed")
	}
	t.done = true

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{kind: kind, id: id}
	if _, ok := s.blobs[k]; !ok {
		s.blobs[k] = append([]byte(nil), t.buf.Bytes()...)
	}
	return nil
}

// Delete removes the blob at (kind, id).
func (s *Store) Delete(_ context.Context, kind sgfa.Kind, id sgfa.Ref) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{kind: kind, id: id}
	_, ok := s.blobs[k]
	delete(s.blobs, k)
	return ok, nil
}

// Size reports the byte size of the blob at (kind, id).
func (s *Store) Size(_ context.Context, kind sgfa.Kind, id sgfa.Ref) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blobs[key{kind: kind, id: id}]
	if !ok {
		return 0, errors.Wrapf(sgfa.ErrNotExist, "%s %s", kind, id)
	}
	return int64(len(b)), nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (store.Store, error) {
		return New(), nil
	})
}
