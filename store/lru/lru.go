// Package lru implements a read-through cache wrapping another item
// store.
package lru

import (
	"bytes"
	"context"
	"io"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

var _ store.Store = &Store{}

// Store caches history and entry blobs from a nested store in memory.
// Those are small and bounded; file blobs are not, and pass through
// uncached.
type Store struct {
	s store.Store
	c *lru.Cache
}

// New produces a new Store caching up to `size` blobs from `s`.
func New(s store.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating cache")
	}
	return &Store{s: s, c: c}, nil
}

func cacheKey(kind sgfa.Kind, id sgfa.Ref) string {
	return string(kind.Char()) + id.String()
}

func cacheable(kind sgfa.Kind) bool {
	return kind == sgfa.KindHistory || kind == sgfa.KindEntry
}

// Read returns the blob at (kind, id), from cache when possible.
func (s *Store) Read(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (io.ReadCloser, error) {
	if !cacheable(kind) {
		return s.s.Read(ctx, kind, id)
	}

	k := cacheKey(kind, id)
	if v, ok := s.c.Get(k); ok {
		return io.NopCloser(bytes.NewReader(v.([]byte))), nil
	}

	b, err := store.Get(ctx, s.s, kind, id)
	if err != nil {
		return nil, err
	}
	s.c.Add(k, b)
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Temp creates a scratch blob on the nested store's medium.
func (s *Store) Temp(ctx context.Context) (store.Temp, error) {
	return s.s.Temp(ctx)
}

// Write installs a scratch blob at (kind, id) in the nested store.
func (s *Store) Write(ctx context.Context, kind sgfa.Kind, id sgfa.Ref, t store.Temp) error {
	err := s.s.Write(ctx, kind, id, t)
	if err == nil && cacheable(kind) {
		s.c.Remove(cacheKey(kind, id))
	}
	return err
}

// Delete removes the blob at (kind, id) from the nested store.
func (s *Store) Delete(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (bool, error) {
	if cacheable(kind) {
		s.c.Remove(cacheKey(kind, id))
	}
	return s.s.Delete(ctx, kind, id)
}

// Size reports the byte size of the blob at (kind, id).
func (s *Store) Size(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (int64, error) {
	if cacheable(kind) {
		if v, ok := s.c.Get(cacheKey(kind, id)); ok {
			return int64(len(v.([]byte))), nil
		}
	}
	return s.s.Size(ctx, kind, id)
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (store.Store, error) {
		size, ok := conf["size"].(float64)
		if !ok {
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.New(`"nested" parameter missing "type"`)
		}
		nestedStore, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore, int(size))
	})
}
