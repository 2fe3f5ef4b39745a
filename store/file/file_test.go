package file

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
	"github.com/sgfa/sgfa/testutil"
)

func TestStore(t *testing.T) {
	testutil.ReadWrite(context.Background(), t, New(t.TempDir()), bytes.Repeat([]byte("yubnub "), 1000))
}

func TestShardLayout(t *testing.T) {
	var (
		ctx  = context.Background()
		root = t.TempDir()
		s    = New(root)
		data = []byte("sharded")
		id   = sgfa.Sum(data)
	)
	err := store.Put(ctx, s, sgfa.KindEntry, id, data)
	if err != nil {
		t.Fatal(err)
	}

	h := id.String()
	path := filepath.Join(root, h[:2], h[2:]+"-e")
	if _, err = os.Stat(path); err != nil {
		t.Errorf("blob not at sharded path: %s", err)
	}

	// No temp files left behind.
	matches, err := filepath.Glob(filepath.Join(root, "tmp*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) > 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}
