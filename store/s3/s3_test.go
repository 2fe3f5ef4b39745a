package s3

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"testing"

	"github.com/sgfa/sgfa/store"
	"github.com/sgfa/sgfa/testutil"
)

const (
	bucketVar   = "SGFA_S3_TESTING_BUCKET"
	endpointVar = "SGFA_S3_TESTING_ENDPOINT"
)

func TestStore(t *testing.T) {
	bucket := os.Getenv(bucketVar)
	if bucket == "" {
		t.Skipf("to run %s, set %s (and optionally %s for MinIO)", t.Name(), bucketVar, endpointVar)
	}

	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		t.Fatal(err)
	}

	conf := map[string]interface{}{
		"bucket": bucket,
		"prefix": hex.EncodeToString(raw[:]) + "/",
	}
	if endpoint := os.Getenv(endpointVar); endpoint != "" {
		conf["endpoint"] = endpoint
	}

	ctx := context.Background()
	s, err := store.Create(ctx, "s3", conf)
	if err != nil {
		t.Fatal(err)
	}
	testutil.ReadWrite(ctx, t, s, bytes.Repeat([]byte("yubnub "), 1000))
}
