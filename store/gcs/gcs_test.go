package gcs

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/sgfa/sgfa/testutil"
)

const (
	credsVar  = "SGFA_GCS_TESTING_CREDS"
	bucketVar = "SGFA_GCS_TESTING_BUCKET"
)

func TestStore(t *testing.T) {
	creds, bucketName := os.Getenv(credsVar), os.Getenv(bucketVar)
	if creds == "" || bucketName == "" {
		t.Skipf("to run %s, set %s and %s", t.Name(), credsVar, bucketVar)
	}

	ctx := context.Background()
	c, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
	if err != nil {
		t.Fatal(err)
	}

	var raw [8]byte
	if _, err = rand.Read(raw[:]); err != nil {
		t.Fatal(err)
	}
	prefix := hex.EncodeToString(raw[:]) + "/"

	s := New(c.Bucket(bucketName), prefix)
	testutil.ReadWrite(ctx, t, s, bytes.Repeat([]byte("yubnub "), 1000))
}
