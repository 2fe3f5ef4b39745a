package lru

import (
	"bytes"
	"context"
	"testing"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
	"github.com/sgfa/sgfa/store/mem"
	"github.com/sgfa/sgfa/testutil"
)

func TestStore(t *testing.T) {
	s, err := New(mem.New(), 10)
	if err != nil {
		t.Fatal(err)
	}
	testutil.ReadWrite(context.Background(), t, s, bytes.Repeat([]byte("yubnub "), 1000))
}

func TestReadThrough(t *testing.T) {
	ctx := context.Background()
	nested := mem.New()
	s, err := New(nested, 10)
	if err != nil {
		t.Fatal(err)
	}

	data := []byte("cache me")
	id := sgfa.Sum(data)
	if err = store.Put(ctx, s, sgfa.KindEntry, id, data); err != nil {
		t.Fatal(err)
	}

	// Populate the cache, then remove the blob underneath it: a second
	// read must still succeed from cache.
	if _, err = store.Get(ctx, s, sgfa.KindEntry, id); err != nil {
		t.Fatal(err)
	}
	if _, err = nested.Delete(ctx, sgfa.KindEntry, id); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(ctx, s, sgfa.KindEntry, id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}

	// File blobs pass through uncached.
	if err = store.Put(ctx, s, sgfa.KindFile, id, data); err != nil {
		t.Fatal(err)
	}
	if _, err = store.Get(ctx, s, sgfa.KindFile, id); err != nil {
		t.Fatal(err)
	}
	if _, err = nested.Delete(ctx, sgfa.KindFile, id); err != nil {
		t.Fatal(err)
	}
	if _, err = store.Get(ctx, s, sgfa.KindFile, id); err == nil {
		t.Error("file blob served from cache")
	}
}
