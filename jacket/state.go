package jacket

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
)

// The state index is three kinds of fixed-format files in the jacket
// directory:
//
//   _state      10-byte records, 9 zero-padded digits + newline.
//               Record 0 is the current history number; record e is the
//               current revision of entry e. Zero means absent.
//   _list       one line per live tag: 9-digit tag file id, space, name.
//   <9 digits>  per-tag files of 30-byte records,
//               "YYYY-MM-DD HH:MM:SS <9-digit entry>\n",
//               sorted ascending by time.
//
// All mutation happens under the exclusive jacket lock. Per-tag files
// and _list are replaced whole via temp-and-rename; _state records are
// updated in place.

const (
	stateFile   = "_state"
	listFile    = "_list"
	stateRecLen = 10
	tagRecLen   = 30

	maxIndexNum = 999999999
)

// TagItem is one (time, entry) pair filed under a tag.
type TagItem struct {
	Time  string
	Entry int64
}

type state struct {
	dir string
}

func newState(dir string) *state {
	return &state{dir: dir}
}

func (st *state) statePath() string { return filepath.Join(st.dir, stateFile) }
func (st *state) listPath() string  { return filepath.Join(st.dir, listFile) }

func (st *state) tagPath(id int64) string {
	return filepath.Join(st.dir, fmt.Sprintf("%09d", id))
}

// create lays down an empty index: a zero history pointer and no tags.
func (st *state) create() error {
	f, err := os.OpenFile(st.statePath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "creating %s", st.statePath())
	}
	_, err = f.WriteString("000000000\n")
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "initializing %s", st.statePath())
	}
	return errors.Wrapf(os.WriteFile(st.listPath(), nil, 0644), "creating %s", st.listPath())
}

// current reads state record e. Records beyond the end are zero.
func (st *state) current(e int64) (int64, error) {
	f, err := os.Open(st.statePath())
	if os.IsNotExist(err) {
		return 0, errors.Wrap(sgfa.ErrCorrupt, "state index missing")
	}
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s", st.statePath())
	}
	defer f.Close()

	var buf [stateRecLen]byte
	n, err := f.ReadAt(buf[:], e*stateRecLen)
	if n < stateRecLen {
		if err == io.EOF {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "reading %s", st.statePath())
	}
	return parseStateRec(buf[:])
}

func parseStateRec(b []byte) (int64, error) {
	if len(b) != stateRecLen || b[stateRecLen-1] != '\n' {
		return 0, errors.Wrap(sgfa.ErrCorrupt, "malformed state record")
	}
	var v int64
	for _, c := range b[:stateRecLen-1] {
		if c < '0' || c > '9' {
			return 0, errors.Wrap(sgfa.ErrCorrupt, "malformed state record")
		}
		v = v*10 + int64(c-'0')
	}
	return v, nil
}

// setCurrent writes state record e, padding intermediate records with
// zeros.
func (st *state) setCurrent(e, v int64) error {
	if e < 0 || v < 0 || e > maxIndexNum || v > maxIndexNum {
		return errors.Wrap(sgfa.ErrLimits, "state record out of range")
	}
	f, err := os.OpenFile(st.statePath(), os.O_RDWR, 0)
	if os.IsNotExist(err) {
		return errors.Wrap(sgfa.ErrCorrupt, "state index missing")
	}
	if err != nil {
		return errors.Wrapf(err, "opening %s", st.statePath())
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errors.Wrapf(err, "statting %s", st.statePath())
	}
	for off := info.Size(); off < e*stateRecLen; off += stateRecLen {
		if _, err = f.WriteAt([]byte("000000000\n"), off); err != nil {
			return errors.Wrapf(err, "padding %s", st.statePath())
		}
	}
	_, err = f.WriteAt(fmt.Appendf(nil, "%09d\n", v), e*stateRecLen)
	return errors.Wrapf(err, "writing %s", st.statePath())
}

type tagEnt struct {
	id   int64
	name string
}

func (st *state) loadList() ([]tagEnt, error) {
	b, err := os.ReadFile(st.listPath())
	if os.IsNotExist(err) {
		return nil, errors.Wrap(sgfa.ErrCorrupt, "tag directory missing")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", st.listPath())
	}

	var out []tagEnt
	for len(b) > 0 {
		nl := bytes.IndexByte(b, '\n')
		if nl < 0 {
			return nil, errors.Wrap(sgfa.ErrCorrupt, "tag directory: missing newline")
		}
		line := string(b[:nl])
		b = b[nl+1:]
		if len(line) < 11 || line[9] != ' ' {
			return nil, errors.Wrap(sgfa.ErrCorrupt, "tag directory: malformed line")
		}
		var id int64
		for _, c := range line[:9] {
			if c < '0' || c > '9' {
				return nil, errors.Wrap(sgfa.ErrCorrupt, "tag directory: malformed id")
			}
			id = id*10 + int64(c-'0')
		}
		out = append(out, tagEnt{id: id, name: line[10:]})
	}
	return out, nil
}

func (st *state) saveList(ents []tagEnt) error {
	var buf bytes.Buffer
	for _, ent := range ents {
		fmt.Fprintf(&buf, "%09d %s\n", ent.id, ent.name)
	}
	return st.replaceFile(st.listPath(), buf.Bytes())
}

// replaceFile atomically replaces path with the given contents.
func (st *state) replaceFile(path string, b []byte) error {
	f, err := os.CreateTemp(st.dir, "tmpidx*")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	_, err = f.Write(b)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return errors.Wrapf(err, "writing temp for %s", path)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		os.Remove(f.Name())
		return errors.Wrapf(err, "replacing %s", path)
	}
	return nil
}

func parseTagRec(b []byte) (TagItem, error) {
	if len(b) != tagRecLen || b[19] != ' ' || b[tagRecLen-1] != '\n' {
		return TagItem{}, errors.Wrap(sgfa.ErrCorrupt, "malformed tag record")
	}
	timeStr := string(b[:19])
	if sgfa.CheckTime(timeStr) != nil {
		return TagItem{}, errors.Wrap(sgfa.ErrCorrupt, "malformed tag record time")
	}
	var e int64
	for _, c := range b[20 : tagRecLen-1] {
		if c < '0' || c > '9' {
			return TagItem{}, errors.Wrap(sgfa.ErrCorrupt, "malformed tag record entry")
		}
		e = e*10 + int64(c-'0')
	}
	return TagItem{Time: timeStr, Entry: e}, nil
}

func (st *state) loadTag(id int64) ([]TagItem, error) {
	b, err := os.ReadFile(st.tagPath(id))
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(sgfa.ErrCorrupt, "tag file %09d missing", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading tag file %09d", id)
	}
	if len(b)%tagRecLen != 0 {
		return nil, errors.Wrapf(sgfa.ErrCorrupt, "tag file %09d has partial record", id)
	}
	out := make([]TagItem, 0, len(b)/tagRecLen)
	for off := 0; off < len(b); off += tagRecLen {
		item, err := parseTagRec(b[off : off+tagRecLen])
		if err != nil {
			return nil, errors.Wrapf(err, "tag file %09d", id)
		}
		out = append(out, item)
	}
	return out, nil
}

// readTag reports a tag's total size and a newest-first window of up to
// max items after skipping offset. The window is computed with ReadAt;
// the list is never materialized whole.
func (st *state) readTag(name string, offset, max int) (int, []TagItem, error) {
	ents, err := st.loadList()
	if err != nil {
		return 0, nil, err
	}
	var (
		id    int64
		found bool
	)
	for _, ent := range ents {
		if ent.name == name {
			id, found = ent.id, true
			break
		}
	}
	if !found {
		return 0, nil, nil
	}

	f, err := os.Open(st.tagPath(id))
	if os.IsNotExist(err) {
		return 0, nil, errors.Wrapf(sgfa.ErrCorrupt, "tag file %09d missing", id)
	}
	if err != nil {
		return 0, nil, errors.Wrapf(err, "opening tag file %09d", id)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, nil, errors.Wrapf(err, "statting tag file %09d", id)
	}
	if info.Size()%tagRecLen != 0 {
		return 0, nil, errors.Wrapf(sgfa.ErrCorrupt, "tag file %09d has partial record", id)
	}
	total := int(info.Size() / tagRecLen)

	var out []TagItem
	var buf [tagRecLen]byte
	for i := total - 1 - offset; i >= 0 && len(out) < max; i-- {
		if _, err = f.ReadAt(buf[:], int64(i)*tagRecLen); err != nil {
			return 0, nil, errors.Wrapf(err, "reading tag file %09d", id)
		}
		item, err := parseTagRec(buf[:])
		if err != nil {
			return 0, nil, errors.Wrapf(err, "tag file %09d", id)
		}
		out = append(out, item)
	}
	return total, out, nil
}

// listTags enumerates the tag directory in file order.
func (st *state) listTags() ([]string, error) {
	ents, err := st.loadList()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ents))
	for _, ent := range ents {
		out = append(out, ent.name)
	}
	return out, nil
}

// applyDelta folds a tag delta into the index. Each touched tag file is
// replaced atomically; the tag directory is written once at the end.
//
// Inserts land after records with an equal timestamp, so within one
// apply, newer insertions come later. The rebuild path processes
// entries newest-first and passes `before` to insert ahead of equal
// timestamps instead, reconstructing the same order.
func (st *state) applyDelta(delta sgfa.TagDelta, before bool) error {
	if len(delta) == 0 {
		return nil
	}
	ents, err := st.loadList()
	if err != nil {
		return err
	}
	var maxID int64
	for _, ent := range ents {
		if ent.id > maxID {
			maxID = ent.id
		}
	}

	listChanged := false
	for _, tag := range delta.Tags() {
		ops := delta[tag]

		var (
			id    int64
			found bool
			at    int
		)
		for i, ent := range ents {
			if ent.name == tag {
				id, found, at = ent.id, true, i
				break
			}
		}

		var recs []TagItem
		if found {
			recs, err = st.loadTag(id)
			if err != nil {
				return err
			}
		}

		kept := recs[:0:0]
		for _, rec := range recs {
			if _, ok := ops[rec.Entry]; !ok {
				kept = append(kept, rec)
			}
		}

		enums := make([]int64, 0, len(ops))
		for e := range ops {
			enums = append(enums, e)
		}
		sort.Slice(enums, func(i, j int) bool { return enums[i] < enums[j] })
		for _, e := range enums {
			op := ops[e]
			if op.Remove {
				continue
			}
			if e > maxIndexNum {
				return errors.Wrap(sgfa.ErrLimits, "entry number out of range")
			}
			pos := sort.Search(len(kept), func(n int) bool {
				if before {
					return kept[n].Time >= op.Time
				}
				return kept[n].Time > op.Time
			})
			kept = append(kept, TagItem{})
			copy(kept[pos+1:], kept[pos:])
			kept[pos] = TagItem{Time: op.Time, Entry: e}
		}

		if len(kept) == 0 {
			if found {
				if err = os.Remove(st.tagPath(id)); err != nil && !os.IsNotExist(err) {
					return errors.Wrapf(err, "removing tag file %09d", id)
				}
				ents = append(ents[:at], ents[at+1:]...)
				listChanged = true
			}
			continue
		}

		if !found {
			maxID++
			id = maxID
			ents = append(ents, tagEnt{id: id, name: tag})
			listChanged = true
		}
		var buf bytes.Buffer
		for _, rec := range kept {
			fmt.Fprintf(&buf, "%s %09d\n", rec.Time, rec.Entry)
		}
		if err = st.replaceFile(st.tagPath(id), buf.Bytes()); err != nil {
			return err
		}
	}

	if listChanged {
		return st.saveList(ents)
	}
	return nil
}

// reset returns the index to its freshly-created form.
func (st *state) reset() error {
	ents, err := st.loadList()
	if err != nil && !errors.Is(err, sgfa.ErrCorrupt) {
		return err
	}
	for _, ent := range ents {
		if err := os.Remove(st.tagPath(ent.id)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "removing tag file %09d", ent.id)
		}
	}
	// Sweep stray tag files too, in case _list itself was lost.
	dirents, err := os.ReadDir(st.dir)
	if err != nil {
		return errors.Wrapf(err, "reading %s", st.dir)
	}
	for _, de := range dirents {
		name := de.Name()
		if len(name) == 9 && strings.Trim(name, "0123456789") == "" {
			if err := os.Remove(filepath.Join(st.dir, name)); err != nil {
				return errors.Wrapf(err, "removing stray tag file %s", name)
			}
		}
	}
	if err := st.replaceFile(st.statePath(), []byte("000000000\n")); err != nil {
		return err
	}
	return st.replaceFile(st.listPath(), nil)
}
