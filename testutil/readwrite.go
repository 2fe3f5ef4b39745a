// Package testutil holds helpers for testing item-store
// implementations.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

// ReadWrite exercises a Store implementation against the store
// contract: write-then-read fidelity, idempotent rewrite, size probes,
// delete, and the absent sentinel.
func ReadWrite(ctx context.Context, t *testing.T, s store.Store, data []byte) {
	id := sgfa.Sum(data)

	for _, kind := range []sgfa.Kind{sgfa.KindHistory, sgfa.KindEntry, sgfa.KindFile} {
		if _, err := s.Size(ctx, kind, id); !errors.Is(err, sgfa.ErrNotExist) {
			t.Fatalf("Size of absent %s item: got %v, want ErrNotExist", kind, err)
		}
		if _, err := s.Read(ctx, kind, id); !errors.Is(err, sgfa.ErrNotExist) {
			t.Fatalf("Read of absent %s item: got %v, want ErrNotExist", kind, err)
		}
	}

	err := store.Put(ctx, s, sgfa.KindEntry, id, data)
	if err != nil {
		t.Fatal(err)
	}

	// The same id under a different kind is a different item.
	if _, err = s.Size(ctx, sgfa.KindHistory, id); !errors.Is(err, sgfa.ErrNotExist) {
		t.Fatalf("Size across kinds: got %v, want ErrNotExist", err)
	}

	r, err := s.Read(ctx, sgfa.KindEntry, id)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if err = r.Close(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %d bytes, want %d", len(got), len(data))
	}

	n, err := s.Size(ctx, sgfa.KindEntry, id)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(data)) {
		t.Errorf("got size %d, want %d", n, len(data))
	}

	// Rewriting identical content is a no-op.
	if err = store.Put(ctx, s, sgfa.KindEntry, id, data); err != nil {
		t.Fatal(err)
	}
	if got, err = store.Get(ctx, s, sgfa.KindEntry, id); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("content changed after rewrite")
	}

	// A canceled temp leaves no trace.
	tmp, err := s.Temp(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = tmp.Write([]byte("discard")); err != nil {
		t.Fatal(err)
	}
	if err = tmp.Cancel(); err != nil {
		t.Fatal(err)
	}

	existed, err := s.Delete(ctx, sgfa.KindEntry, id)
	if err != nil {
		t.Fatal(err)
	}
	if !existed {
		t.Error("Delete of present item reported absent")
	}
	existed, err = s.Delete(ctx, sgfa.KindEntry, id)
	if err != nil {
		t.Fatal(err)
	}
	if existed {
		t.Error("Delete of absent item reported present")
	}
	if _, err = s.Read(ctx, sgfa.KindEntry, id); !errors.Is(err, sgfa.ErrNotExist) {
		t.Fatalf("Read after delete: got %v, want ErrNotExist", err)
	}
}
