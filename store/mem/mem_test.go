package mem

import (
	"bytes"
	"context"
	"testing"

	"github.com/sgfa/sgfa/testutil"
)

func TestStore(t *testing.T) {
	testutil.ReadWrite(context.Background(), t, New(), bytes.Repeat([]byte("yubnub "), 1000))
}
