package pg

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/sgfa/sgfa/testutil"
)

const connVar = "SGFA_PG_TESTING_CONN"

func TestStore(t *testing.T) {
	connstr := os.Getenv(connVar)
	if connstr == "" {
		t.Skipf("to run %s, set %s to a valid Postgresql connection string", t.Name(), connVar)
	}

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	s, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}

	testutil.ReadWrite(ctx, t, s, bytes.Repeat([]byte("yubnub "), 1000))
}
