package jacket

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
)

// Version is the jacket format version this package reads and writes.
const Version = 1

const infoFile = "_info"

// Info is the jacket info blob: the contents of the sentinel file that
// also carries the advisory lock.
type Info struct {
	Version int    `json:"sgfa_jacket_ver"`
	IDHash  string `json:"id_hash"`
	IDText  string `json:"id_text"`
}

func (in *Info) encode() ([]byte, error) {
	b, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding info")
	}
	return append(b, '\n'), nil
}

// check verifies the version and the cryptographic binding between
// id_text and id_hash.
func (in *Info) check() (sgfa.Ref, error) {
	if in.Version != Version {
		return sgfa.Zero, errors.Wrapf(sgfa.ErrCorrupt, "info: unsupported version %d", in.Version)
	}
	if err := sgfa.CheckIDText(in.IDText); err != nil {
		return sgfa.Zero, errors.Wrap(sgfa.ErrCorrupt, "info: malformed id text")
	}
	hash, err := sgfa.RefFromHex(in.IDHash)
	if err != nil {
		return sgfa.Zero, errors.Wrap(sgfa.ErrCorrupt, "info: malformed id hash")
	}
	if hash != sgfa.Sum([]byte(in.IDText)) {
		return sgfa.Zero, errors.Wrap(sgfa.ErrCorrupt, "info: id hash does not match id text")
	}
	return hash, nil
}

func readInfo(path string) (*Info, sgfa.Ref, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, sgfa.Zero, errors.Wrapf(sgfa.ErrNotExist, "jacket info %s", path)
	}
	if err != nil {
		return nil, sgfa.Zero, errors.Wrapf(err, "reading %s", path)
	}

	var in Info
	if err = json.Unmarshal(b, &in); err != nil {
		return nil, sgfa.Zero, errors.Wrapf(sgfa.ErrCorrupt, "info: %s", err)
	}
	hash, err := in.check()
	if err != nil {
		return nil, sgfa.Zero, err
	}
	return &in, hash, nil
}

// writeInfo creates the info file. An existing file means an existing
// jacket.
func writeInfo(path string, in *Info) error {
	b, err := in.encode()
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if os.IsExist(err) {
		return errors.Wrapf(sgfa.ErrSanity, "jacket already exists at %s", path)
	}
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	_, err = f.Write(b)
	return errors.Wrapf(err, "writing %s", path)
}
