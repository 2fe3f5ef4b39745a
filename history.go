package sgfa

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// TagAll is the implicit tag tracking every live entry.
const TagAll = "_all"

// EntryRef is one entry update recorded in a history record.
type EntryRef struct {
	Entry    int64
	Revision int64
	Hash     Ref
}

// AttachRef is one attachment payload recorded in a history record.
type AttachRef struct {
	Entry  int64
	Attach int64
	Hash   Ref
}

// History is one record of the jacket's tamper-evident change-log.
// Record h>1 carries the hash of record h-1; record #1 carries the zero
// hash. A History is immutable once processed or decoded.
type History struct {
	jacket   Ref
	history  int64
	entryMax int64
	timeStr  string
	previous Ref
	user     string

	entries     []EntryRef  // input order
	attachments []AttachRef // discovery order

	canonical []byte
}

// NewHistory produces an empty history record bound to a jacket.
func NewHistory(jacket Ref) *History {
	return &History{jacket: jacket}
}

func (h *History) Jacket() Ref     { return h.jacket }
func (h *History) Number() int64   { return h.history }
func (h *History) EntryMax() int64 { return h.entryMax }
func (h *History) TimeStr() string { return h.timeStr }
func (h *History) User() string    { return h.user }

// Previous is the hash of the preceding history record,
// Zero for record #1.
func (h *History) Previous() Ref { return h.previous }

// Entries returns the entry updates this record binds, in input order.
func (h *History) Entries() []EntryRef {
	return append([]EntryRef(nil), h.entries...)
}

// Attachments returns the attachment payloads this record binds,
// in order of discovery across the entries.
func (h *History) Attachments() []AttachRef {
	return append([]AttachRef(nil), h.attachments...)
}

// Process builds this record from a set of entry drafts.
//
// Entries without numbers are assigned them sequentially, starting at
// priorEntryMax+1 in input order. Each draft is finalized into this
// record; the resulting WriteSet carries the attachment payloads to
// persist and the delta the state index must apply.
//
// The delta rules are deterministic: an entry whose timestamp changed
// (or which is new) is re-filed under every one of its tags and TagAll
// at the new timestamp; otherwise only added tags are filed. Tags no
// longer present are tombstoned either way.
func (h *History) Process(hnum int64, prev Ref, priorEntryMax int64, user string, entries []*Entry, at time.Time) (*WriteSet, error) {
	if h.history != 0 {
		return nil, errors.Wrap(ErrSanity, "history already processed")
	}
	if hnum < 1 {
		return nil, errors.Wrap(ErrSanity, "history number must be positive")
	}
	if hnum == 1 && !prev.IsZero() {
		return nil, errors.Wrap(ErrSanity, "history #1 cannot have a predecessor")
	}
	if h.jacket.IsZero() {
		return nil, errors.Wrap(ErrSanity, "history not bound to a jacket")
	}
	if err := CheckUser(user); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.Wrap(ErrSanity, "nothing to process")
	}

	h.history = hnum
	h.previous = prev
	h.user = user
	h.timeStr = at.UTC().Format(TimeFormat)

	numbered := make(map[int64]bool)
	for _, e := range entries {
		if err := e.SetJacket(h.jacket); err != nil {
			return nil, err
		}
		if n, ok := e.Number(); ok {
			if n > priorEntryMax {
				return nil, errors.Wrapf(ErrSanity, "unknown entry number %d", n)
			}
			if numbered[n] {
				return nil, errors.Wrapf(ErrSanity, "entry %d appears twice", n)
			}
			numbered[n] = true
		}
	}
	entryMax := priorEntryMax
	for _, e := range entries {
		if _, ok := e.Number(); !ok {
			if err := e.SetNumber(entryMax + 1); err != nil {
				return nil, err
			}
			entryMax++
		}
	}
	h.entryMax = entryMax

	ws := &WriteSet{Delta: make(TagDelta)}
	for _, e := range entries {
		ch, err := e.update(hnum, at)
		if err != nil {
			return nil, err
		}
		hash, err := e.Hash()
		if err != nil {
			return nil, err
		}
		h.entries = append(h.entries, EntryRef{Entry: e.entry, Revision: e.revision, Hash: hash})

		anums := make([]int64, 0, len(ch.Files))
		for a := range ch.Files {
			anums = append(anums, a)
		}
		sort.Slice(anums, func(i, j int) bool { return anums[i] < anums[j] })
		for _, a := range anums {
			fc := ch.Files[a]
			h.attachments = append(h.attachments, AttachRef{Entry: e.entry, Attach: a, Hash: fc.Hash})
			ws.Files = append(ws.Files, FileWrite{Entry: e.entry, Attach: a, Hash: fc.Hash, Data: fc.Data})
		}

		if ch.TimeChanged {
			for _, t := range e.Tags() {
				ws.Delta.Insert(t, e.entry, e.timeStr)
			}
			ws.Delta.Insert(TagAll, e.entry, e.timeStr)
		} else {
			for _, t := range ch.TagsAdded {
				ws.Delta.Insert(t, e.entry, e.timeStr)
			}
		}
		for _, t := range ch.TagsRemoved {
			ws.Delta.Tombstone(t, e.entry)
		}
	}
	return ws, nil
}

// Next builds this record's successor from a set of entry drafts.
func (h *History) Next(user string, entries []*Entry, at time.Time) (*History, *WriteSet, error) {
	if h.history == 0 {
		return nil, nil, errors.Wrap(ErrSanity, "history not processed")
	}
	prev, err := h.Hash()
	if err != nil {
		return nil, nil, err
	}
	succ := NewHistory(h.jacket)
	ws, err := succ.Process(h.history+1, prev, h.entryMax, user, entries, at)
	if err != nil {
		return nil, nil, err
	}
	return succ, ws, nil
}

// Canonical returns the record's canonical byte encoding.
func (h *History) Canonical() ([]byte, error) {
	if h.history == 0 {
		return nil, errors.Wrap(ErrSanity, "history not processed")
	}
	if h.canonical != nil {
		return h.canonical, nil
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "jckt %s\n", h.jacket)
	fmt.Fprintf(&buf, "hist %d\n", h.history)
	fmt.Fprintf(&buf, "emax %d\n", h.entryMax)
	fmt.Fprintf(&buf, "time %s\n", h.timeStr)
	fmt.Fprintf(&buf, "prev %s\n", h.previous)
	fmt.Fprintf(&buf, "user %s\n", h.user)
	for _, er := range h.entries {
		fmt.Fprintf(&buf, "entr %d %d %s\n", er.Entry, er.Revision, er.Hash)
	}
	for _, ar := range h.attachments {
		fmt.Fprintf(&buf, "atch %d %d %s\n", ar.Entry, ar.Attach, ar.Hash)
	}

	h.canonical = buf.Bytes()
	return h.canonical, nil
}

// Hash is the SHA2-256 of the canonical encoding.
func (h *History) Hash() (Ref, error) {
	c, err := h.Canonical()
	if err != nil {
		return Zero, err
	}
	return Sum(c), nil
}

// DecodeHistory strictly decodes a canonical history encoding.
func DecodeHistory(b []byte) (*History, error) {
	if len(b) == 0 || b[len(b)-1] != '\n' {
		return nil, errors.Wrap(ErrCorrupt, "history: missing final newline")
	}
	lines := strings.Split(string(b), "\n")
	lines = lines[:len(lines)-1]

	var (
		h   = &History{}
		pos = 0
	)
	next := func(field string) (string, bool) {
		if pos >= len(lines) || !strings.HasPrefix(lines[pos], field+" ") {
			return "", false
		}
		v := lines[pos][len(field)+1:]
		pos++
		return v, true
	}
	need := func(field string) (string, error) {
		v, ok := next(field)
		if !ok {
			return "", errors.Wrapf(ErrCorrupt, "history: missing %s", field)
		}
		return v, nil
	}

	v, err := need("jckt")
	if err != nil {
		return nil, err
	}
	if h.jacket, err = parseRef(v); err != nil {
		return nil, errors.Wrap(ErrCorrupt, "history: malformed jckt")
	}
	if v, err = need("hist"); err != nil {
		return nil, err
	}
	if h.history, err = parseNum(v); err != nil || h.history < 1 {
		return nil, errors.Wrap(ErrCorrupt, "history: malformed hist")
	}
	if v, err = need("emax"); err != nil {
		return nil, err
	}
	if h.entryMax, err = parseNum(v); err != nil {
		return nil, errors.Wrap(ErrCorrupt, "history: malformed emax")
	}
	if v, err = need("time"); err != nil {
		return nil, err
	}
	if CheckTime(v) != nil {
		return nil, errors.Wrap(ErrCorrupt, "history: malformed time")
	}
	h.timeStr = v
	if v, err = need("prev"); err != nil {
		return nil, err
	}
	if h.previous, err = parseRef(v); err != nil {
		return nil, errors.Wrap(ErrCorrupt, "history: malformed prev")
	}
	if h.history == 1 && !h.previous.IsZero() {
		return nil, errors.Wrap(ErrCorrupt, "history: record #1 has a predecessor")
	}
	if h.history > 1 && h.previous.IsZero() {
		return nil, errors.Wrap(ErrCorrupt, "history: missing predecessor hash")
	}
	if v, err = need("user"); err != nil {
		return nil, err
	}
	if CheckUser(v) != nil {
		return nil, errors.Wrap(ErrCorrupt, "history: malformed user")
	}
	h.user = v

	seen := make(map[int64]bool)
	for {
		v, ok := next("entr")
		if !ok {
			break
		}
		parts := strings.SplitN(v, " ", 3)
		if len(parts) != 3 {
			return nil, errors.Wrap(ErrCorrupt, "history: malformed entr")
		}
		enum, err := parseNum(parts[0])
		if err != nil || enum < 1 || enum > h.entryMax || seen[enum] {
			return nil, errors.Wrap(ErrCorrupt, "history: malformed entr number")
		}
		rnum, err := parseNum(parts[1])
		if err != nil || rnum < 1 {
			return nil, errors.Wrap(ErrCorrupt, "history: malformed entr revision")
		}
		hash, err := parseRef(parts[2])
		if err != nil {
			return nil, errors.Wrap(ErrCorrupt, "history: malformed entr hash")
		}
		seen[enum] = true
		h.entries = append(h.entries, EntryRef{Entry: enum, Revision: rnum, Hash: hash})
	}
	if len(h.entries) == 0 {
		return nil, errors.Wrap(ErrCorrupt, "history: no entries")
	}

	for {
		v, ok := next("atch")
		if !ok {
			break
		}
		parts := strings.SplitN(v, " ", 3)
		if len(parts) != 3 {
			return nil, errors.Wrap(ErrCorrupt, "history: malformed atch")
		}
		enum, err := parseNum(parts[0])
		if err != nil || !seen[enum] {
			return nil, errors.Wrap(ErrCorrupt, "history: malformed atch entry")
		}
		anum, err := parseNum(parts[1])
		if err != nil || anum < 1 {
			return nil, errors.Wrap(ErrCorrupt, "history: malformed atch number")
		}
		hash, err := parseRef(parts[2])
		if err != nil {
			return nil, errors.Wrap(ErrCorrupt, "history: malformed atch hash")
		}
		h.attachments = append(h.attachments, AttachRef{Entry: enum, Attach: anum, Hash: hash})
	}

	if pos != len(lines) {
		return nil, errors.Wrapf(ErrCorrupt, "history: unexpected line %q", lines[pos])
	}
	return h, nil
}
