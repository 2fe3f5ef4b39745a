// Package store describes the content-addressed item store consumed by
// jackets, and helpers common to its backends.
package store

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
)

// Temp is a scratch blob on a store's medium, created by Store.Temp so
// that Store.Write can install it without copying across media.
// Ownership transfers to the store on Write; a Temp must not be used
// after that.
type Temp interface {
	io.Writer

	// Cancel discards the scratch blob.
	// Calling Cancel after Write has consumed the Temp is a no-op.
	Cancel() error
}

// Store is a content-addressed item store: a mapping from
// (kind, id) to an opaque byte blob.
//
// Stores do not enforce that content hashes to id - that is the
// jacket's responsibility - and do not retry failed operations.
type Store interface {
	// Read returns the blob at (kind, id), positioned at offset 0.
	// The caller must close it. A missing item is sgfa.ErrNotExist.
	Read(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (io.ReadCloser, error)

	// Temp creates a scratch blob on the store's medium.
	Temp(ctx context.Context) (Temp, error)

	// Write consumes t, installing its contents at (kind, id).
	// Installation is atomic: either the full content becomes visible
	// or nothing does. Writing identical content to an existing id is
	// a no-op; a failed Write never tombstones the id.
	Write(ctx context.Context, kind sgfa.Kind, id sgfa.Ref, t Temp) error

	// Delete removes the blob at (kind, id),
	// reporting whether it existed.
	Delete(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (bool, error)

	// Size reports the byte size of the blob at (kind, id).
	// A missing item is sgfa.ErrNotExist. Used as a presence probe.
	Size(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (int64, error)
}

// Get reads the whole blob at (kind, id).
func Get(ctx context.Context, s Store, kind sgfa.Kind, id sgfa.Ref) ([]byte, error) {
	r, err := s.Read(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	return b, errors.Wrapf(err, "reading %s %s", kind, id)
}

// Put writes b at (kind, id) through a store temp.
func Put(ctx context.Context, s Store, kind sgfa.Kind, id sgfa.Ref, b []byte) error {
	t, err := s.Temp(ctx)
	if err != nil {
		return errors.Wrap(err, "creating temp")
	}
	if _, err = t.Write(b); err != nil {
		t.Cancel()
		return errors.Wrapf(err, "writing temp for %s %s", kind, id)
	}
	return s.Write(ctx, kind, id, t)
}

// Exists probes for the blob at (kind, id).
func Exists(ctx context.Context, s Store, kind sgfa.Kind, id sgfa.Ref) (bool, error) {
	_, err := s.Size(ctx, kind, id)
	if errors.Is(err, sgfa.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Copy streams the blob at (kind, id) from src into dst.
func Copy(ctx context.Context, dst, src Store, kind sgfa.Kind, id sgfa.Ref) error {
	r, err := src.Read(ctx, kind, id)
	if err != nil {
		return errors.Wrapf(err, "reading %s %s", kind, id)
	}
	defer r.Close()

	t, err := dst.Temp(ctx)
	if err != nil {
		return errors.Wrap(err, "creating temp")
	}
	if _, err = io.Copy(t, r); err != nil {
		t.Cancel()
		return errors.Wrapf(err, "copying %s %s", kind, id)
	}
	return dst.Write(ctx, kind, id, t)
}
