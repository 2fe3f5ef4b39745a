package sgfa

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Ref is the id of an item: a sha256 hash.
type Ref [sha256.Size]byte

// Zero is the zero value of a Ref.
// It is the "previous" hash of history record #1.
var Zero Ref

// Sum computes the Ref of a byte sequence.
func Sum(b []byte) Ref {
	return sha256.Sum256(b)
}

func (r Ref) String() string {
	return hex.EncodeToString(r[:])
}

// IsZero tells whether r is the zero Ref.
func (r Ref) IsZero() bool {
	return r == Zero
}

func (r Ref) Less(other Ref) bool {
	return bytes.Compare(r[:], other[:]) < 0
}

// FromHex parses a 64-digit hex string into r.
func (r *Ref) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return errors.New("wrong length")
	}
	_, err := hex.Decode(r[:], []byte(s))
	return err
}

// RefFromHex parses a 64-digit hex string into a new Ref.
func RefFromHex(s string) (Ref, error) {
	var out Ref
	err := out.FromHex(s)
	return out, err
}
