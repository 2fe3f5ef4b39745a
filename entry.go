package sgfa

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Attachment is the per-attachment bookkeeping an entry carries:
// the history record that introduced the current payload, and a name.
type Attachment struct {
	History int64
	Name    string
}

// Entry is a versioned record holding a title, a body, tags, and
// attachments.
//
// An Entry with no history number is a draft: it has no canonical form
// and no stable hash, and is never persisted as-is. Finalizing a draft
// happens inside the jacket write protocol, which assigns the history
// number. Mutating a persisted entry turns it back into a draft at the
// next revision number.
type Entry struct {
	jacket    Ref
	entry     int64 // 0 until assigned
	revision  int64
	history   int64 // 0 while draft
	attachMax int64
	timeStr   string // "" until set or defaulted
	title     string
	body      []byte

	tags        map[string]struct{}
	attachments map[int64]Attachment
	pending     map[int64][]byte // payloads awaiting the next finalize

	// Snapshot of the revision this draft was derived from.
	// prevTags == nil means the entry has never been persisted.
	prevTime string
	prevTags map[string]struct{}

	canonical []byte
}

// NewEntry produces an empty draft at revision 1.
func NewEntry() *Entry {
	return &Entry{
		revision:    1,
		tags:        make(map[string]struct{}),
		attachments: make(map[int64]Attachment),
		pending:     make(map[int64][]byte),
	}
}

// markDirty invalidates the cached canonical form. The first mutation of
// a persisted entry clears the history binding and bumps the revision.
func (e *Entry) markDirty() {
	e.canonical = nil
	if e.history != 0 {
		e.history = 0
		e.revision++
	}
}

// Jacket reports the jacket hash the entry is bound to.
func (e *Entry) Jacket() (Ref, bool) {
	return e.jacket, !e.jacket.IsZero()
}

// SetJacket binds the entry to a jacket. The binding is immutable.
func (e *Entry) SetJacket(jacket Ref) error {
	if jacket.IsZero() {
		return errors.Wrap(ErrSanity, "zero jacket hash")
	}
	if !e.jacket.IsZero() {
		if e.jacket != jacket {
			return errors.Wrap(ErrSanity, "entry already bound to another jacket")
		}
		return nil
	}
	e.jacket = jacket
	e.canonical = nil
	return nil
}

// Number reports the entry number, if assigned.
func (e *Entry) Number() (int64, bool) {
	return e.entry, e.entry != 0
}

// SetNumber assigns the entry number. Numbers are assigned once,
// normally by the write protocol.
func (e *Entry) SetNumber(n int64) error {
	if n < 1 {
		return errors.Wrap(ErrSanity, "entry number must be positive")
	}
	if e.entry != 0 {
		if e.entry != n {
			return errors.Wrap(ErrSanity, "entry number already assigned")
		}
		return nil
	}
	e.entry = n
	e.canonical = nil
	return nil
}

func (e *Entry) Revision() int64 { return e.revision }

// History reports the history record this revision was recorded in.
// The second result is false for drafts.
func (e *Entry) History() (int64, bool) {
	return e.history, e.history != 0
}

func (e *Entry) TimeStr() string { return e.timeStr }
func (e *Entry) Title() string   { return e.title }
func (e *Entry) Body() []byte    { return e.body }

// AttachMax is the highest attachment number ever used in this entry.
// Deleting an attachment never frees its number for reuse.
func (e *Entry) AttachMax() int64 { return e.attachMax }

// SetTitle sets the entry title.
func (e *Entry) SetTitle(s string) error {
	if err := CheckTitle(s); err != nil {
		return err
	}
	if s == e.title {
		return nil
	}
	e.markDirty()
	e.title = s
	return nil
}

// SetBody sets the entry body.
func (e *Entry) SetBody(b []byte) error {
	if err := CheckBody(b); err != nil {
		return err
	}
	if bytes.Equal(b, e.body) {
		return nil
	}
	e.markDirty()
	e.body = append([]byte(nil), b...)
	return nil
}

// SetTime sets the entry timestamp. Unset timestamps default to "now
// UTC" when the draft is finalized.
func (e *Entry) SetTime(t time.Time) error {
	return e.SetTimeStr(t.UTC().Format(TimeFormat))
}

// SetTimeStr sets the entry timestamp from its formatted form.
func (e *Entry) SetTimeStr(s string) error {
	if err := CheckTime(s); err != nil {
		return err
	}
	if s == e.timeStr {
		return nil
	}
	e.markDirty()
	e.timeStr = s
	return nil
}

// Tags returns the entry's tags, sorted ascending by code unit.
func (e *Entry) Tags() []string {
	out := make([]string, 0, len(e.tags))
	for t := range e.tags {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// HasTag tells whether the entry carries the given tag (normalized).
func (e *Entry) HasTag(tag string) bool {
	t, err := NormalizeTag(tag)
	if err != nil {
		return false
	}
	_, ok := e.tags[t]
	return ok
}

// AddTag adds a tag, normalizing it first.
func (e *Entry) AddTag(tag string) error {
	t, err := NormalizeTag(tag)
	if err != nil {
		return err
	}
	if _, ok := e.tags[t]; ok {
		return nil
	}
	e.markDirty()
	e.tags[t] = struct{}{}
	return nil
}

// RemoveTag removes a tag. Removing an absent tag is a no-op.
func (e *Entry) RemoveTag(tag string) error {
	t, err := NormalizeTag(tag)
	if err != nil {
		return err
	}
	if _, ok := e.tags[t]; !ok {
		return nil
	}
	e.markDirty()
	delete(e.tags, t)
	return nil
}

// AttachNums returns the live attachment numbers, ascending.
func (e *Entry) AttachNums() []int64 {
	out := make([]int64, 0, len(e.attachments))
	for a := range e.attachments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Attachment returns the bookkeeping for attachment number a.
func (e *Entry) Attachment(a int64) (Attachment, bool) {
	att, ok := e.attachments[a]
	return att, ok
}

// Attach adds a new attachment and returns its number. The payload is
// held until the draft is finalized; the attachment's history of
// introduction is provisional until then.
func (e *Entry) Attach(name string, data []byte) (int64, error) {
	if err := CheckName(name); err != nil {
		return 0, err
	}
	e.markDirty()
	a := e.attachMax + 1
	e.attachMax = a
	e.attachments[a] = Attachment{Name: name}
	e.pending[a] = append([]byte(nil), data...)
	return a, nil
}

// RenameAttach changes an attachment's name. The payload and its history
// of introduction are unchanged.
func (e *Entry) RenameAttach(a int64, name string) error {
	att, ok := e.attachments[a]
	if !ok {
		return errors.Wrapf(ErrNotExist, "attachment %d", a)
	}
	if err := CheckName(name); err != nil {
		return err
	}
	if att.Name == name {
		return nil
	}
	e.markDirty()
	att.Name = name
	e.attachments[a] = att
	return nil
}

// ReplaceAttach supplies a new payload for an existing attachment.
// Its history of introduction resets to the finalizing history record;
// the old payload's item remains reachable through the history chain.
func (e *Entry) ReplaceAttach(a int64, data []byte) error {
	att, ok := e.attachments[a]
	if !ok {
		return errors.Wrapf(ErrNotExist, "attachment %d", a)
	}
	e.markDirty()
	att.History = 0
	e.attachments[a] = att
	e.pending[a] = append([]byte(nil), data...)
	return nil
}

// DeleteAttach removes an attachment. Its number is never reused.
func (e *Entry) DeleteAttach(a int64) error {
	if _, ok := e.attachments[a]; !ok {
		return errors.Wrapf(ErrNotExist, "attachment %d", a)
	}
	e.markDirty()
	delete(e.attachments, a)
	delete(e.pending, a)
	return nil
}

// update finalizes a draft into the given history record, defaulting the
// timestamp to `at` when unset. It returns the change-set relative to
// the previously persisted revision.
func (e *Entry) update(hnum int64, at time.Time) (*Changes, error) {
	if e.history != 0 {
		return nil, errors.Wrap(ErrSanity, "entry is not a draft")
	}
	if hnum < 1 {
		return nil, errors.Wrap(ErrSanity, "history number must be positive")
	}
	if e.jacket.IsZero() {
		return nil, errors.Wrap(ErrSanity, "entry not bound to a jacket")
	}
	if e.entry == 0 {
		return nil, errors.Wrap(ErrSanity, "entry has no number")
	}
	if err := CheckTitle(e.title); err != nil {
		return nil, err
	}
	if err := CheckBody(e.body); err != nil {
		return nil, err
	}
	if e.timeStr == "" {
		e.timeStr = at.UTC().Format(TimeFormat)
	}

	ch := &Changes{
		TimeChanged: e.prevTags == nil || e.timeStr != e.prevTime,
		Files:       make(map[int64]FileChange),
	}
	for t := range e.tags {
		if _, ok := e.prevTags[t]; !ok {
			ch.TagsAdded = append(ch.TagsAdded, t)
		}
	}
	for t := range e.prevTags {
		if _, ok := e.tags[t]; !ok {
			ch.TagsRemoved = append(ch.TagsRemoved, t)
		}
	}
	sort.Strings(ch.TagsAdded)
	sort.Strings(ch.TagsRemoved)

	for a, att := range e.attachments {
		if att.History != 0 {
			continue
		}
		data, ok := e.pending[a]
		if !ok {
			return nil, errors.Wrapf(ErrSanity, "attachment %d has no payload", a)
		}
		att.History = hnum
		e.attachments[a] = att
		ch.Files[a] = FileChange{Data: data, Hash: Sum(data)}
	}

	e.history = hnum
	e.pending = make(map[int64][]byte)
	e.prevTime = e.timeStr
	e.prevTags = make(map[string]struct{}, len(e.tags))
	for t := range e.tags {
		e.prevTags[t] = struct{}{}
	}
	e.canonical = nil
	return ch, nil
}

// Canonical returns the entry's canonical byte encoding.
// Only valid once the entry is finalized.
func (e *Entry) Canonical() ([]byte, error) {
	if e.history == 0 {
		return nil, errors.Wrap(ErrSanity, "draft has no canonical form")
	}
	if e.canonical != nil {
		return e.canonical, nil
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "jckt %s\n", e.jacket)
	fmt.Fprintf(&buf, "entr %d\n", e.entry)
	fmt.Fprintf(&buf, "revn %d\n", e.revision)
	fmt.Fprintf(&buf, "hist %d\n", e.history)
	fmt.Fprintf(&buf, "amax %d\n", e.attachMax)
	fmt.Fprintf(&buf, "time %s\n", e.timeStr)
	fmt.Fprintf(&buf, "titl %s\n", e.title)
	for _, t := range e.Tags() {
		fmt.Fprintf(&buf, "tags %s\n", t)
	}
	for _, a := range e.AttachNums() {
		att := e.attachments[a]
		fmt.Fprintf(&buf, "atch %d %d %s\n", a, att.History, att.Name)
	}
	buf.WriteByte('\n')
	buf.Write(e.body)

	e.canonical = buf.Bytes()
	return e.canonical, nil
}

// Hash is the SHA2-256 of the canonical encoding.
func (e *Entry) Hash() (Ref, error) {
	c, err := e.Canonical()
	if err != nil {
		return Zero, err
	}
	return Sum(c), nil
}

// DecodeEntry strictly decodes a canonical entry encoding.
// Any deviation from the grammar yields ErrCorrupt.
func DecodeEntry(b []byte) (*Entry, error) {
	sep := bytes.Index(b, []byte("\n\n"))
	if sep < 0 {
		return nil, errors.Wrap(ErrCorrupt, "entry: missing body separator")
	}
	head, body := b[:sep+1], b[sep+2:]

	lines := strings.Split(string(head), "\n")
	lines = lines[:len(lines)-1] // head ends with \n

	var (
		e   = NewEntry()
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
			return "", errors.Wrapf(ErrCorrupt, "entry: missing %s", field)
		}
		return v, nil
	}

	v, err := need("jckt")
	if err != nil {
		return nil, err
	}
	if e.jacket, err = parseRef(v); err != nil {
		return nil, errors.Wrap(ErrCorrupt, "entry: malformed jckt")
	}
	if v, err = need("entr"); err != nil {
		return nil, err
	}
	if e.entry, err = parseNum(v); err != nil || e.entry < 1 {
		return nil, errors.Wrap(ErrCorrupt, "entry: malformed entr")
	}
	if v, err = need("revn"); err != nil {
		return nil, err
	}
	if e.revision, err = parseNum(v); err != nil || e.revision < 1 {
		return nil, errors.Wrap(ErrCorrupt, "entry: malformed revn")
	}
	if v, err = need("hist"); err != nil {
		return nil, err
	}
	if e.history, err = parseNum(v); err != nil || e.history < 1 {
		return nil, errors.Wrap(ErrCorrupt, "entry: malformed hist")
	}
	if v, err = need("amax"); err != nil {
		return nil, err
	}
	if e.attachMax, err = parseNum(v); err != nil {
		return nil, errors.Wrap(ErrCorrupt, "entry: malformed amax")
	}
	if v, err = need("time"); err != nil {
		return nil, err
	}
	if CheckTime(v) != nil {
		return nil, errors.Wrap(ErrCorrupt, "entry: malformed time")
	}
	e.timeStr = v
	if v, err = need("titl"); err != nil {
		return nil, err
	}
	if CheckTitle(v) != nil {
		return nil, errors.Wrap(ErrCorrupt, "entry: malformed titl")
	}
	e.title = v

	prevTag := ""
	for {
		v, ok := next("tags")
		if !ok {
			break
		}
		t, err := NormalizeTag(v)
		if err != nil || t != v {
			return nil, errors.Wrap(ErrCorrupt, "entry: malformed tag")
		}
		if prevTag != "" && t <= prevTag {
			return nil, errors.Wrap(ErrCorrupt, "entry: tags out of order")
		}
		prevTag = t
		e.tags[t] = struct{}{}
	}

	var prevAttach int64
	for {
		v, ok := next("atch")
		if !ok {
			break
		}
		parts := strings.SplitN(v, " ", 3)
		if len(parts) != 3 {
			return nil, errors.Wrap(ErrCorrupt, "entry: malformed atch")
		}
		anum, err := parseNum(parts[0])
		if err != nil || anum < 1 || anum <= prevAttach || anum > e.attachMax {
			return nil, errors.Wrap(ErrCorrupt, "entry: malformed atch number")
		}
		hnum, err := parseNum(parts[1])
		if err != nil || hnum < 1 || hnum > e.history {
			return nil, errors.Wrap(ErrCorrupt, "entry: malformed atch history")
		}
		if CheckName(parts[2]) != nil {
			return nil, errors.Wrap(ErrCorrupt, "entry: malformed atch name")
		}
		prevAttach = anum
		e.attachments[anum] = Attachment{History: hnum, Name: parts[2]}
	}

	if pos != len(lines) {
		return nil, errors.Wrapf(ErrCorrupt, "entry: unexpected line %q", lines[pos])
	}
	if CheckBody(body) != nil {
		return nil, errors.Wrap(ErrCorrupt, "entry: malformed body")
	}
	e.body = append([]byte(nil), body...)

	e.prevTime = e.timeStr
	e.prevTags = make(map[string]struct{}, len(e.tags))
	for t := range e.tags {
		e.prevTags[t] = struct{}{}
	}
	return e, nil
}
