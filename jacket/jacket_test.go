package jacket_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/jacket"
	"github.com/sgfa/sgfa/store/file"
	"github.com/sgfa/sgfa/store/mem"
)

func testClock() time.Time {
	return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
}

func newJacket(t *testing.T, idText string) (*jacket.Jacket, string) {
	t.Helper()
	dir := t.TempDir()
	j, err := jacket.Create(dir, idText, file.New(filepath.Join(dir, "items")))
	if err != nil {
		t.Fatal(err)
	}
	j.SetClock(testClock)
	t.Cleanup(func() { j.Close() })
	return j, dir
}

func draft(t *testing.T, title, body string, tags ...string) *sgfa.Entry {
	t.Helper()
	e := sgfa.NewEntry()
	if err := e.SetTitle(title); err != nil {
		t.Fatal(err)
	}
	if err := e.SetBody([]byte(body)); err != nil {
		t.Fatal(err)
	}
	for _, tag := range tags {
		if err := e.AddTag(tag); err != nil {
			t.Fatal(err)
		}
	}
	return e
}

func TestCreateWriteRead(t *testing.T) {
	ctx := context.Background()
	j, _ := newJacket(t, "demo")

	e := draft(t, "hello", "world", "a", "b: c")
	hnum, err := j.Write(ctx, "alice", []*sgfa.Entry{e})
	if err != nil {
		t.Fatal(err)
	}
	if hnum != 1 {
		t.Fatalf("got history %d, want 1", hnum)
	}

	got, err := j.ReadEntry(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title() != "hello" {
		t.Errorf("got title %q, want %q", got.Title(), "hello")
	}
	if string(got.Body()) != "world" {
		t.Errorf("got body %q, want %q", got.Body(), "world")
	}
	if diff := cmp.Diff([]string{"a", "b: c"}, got.Tags()); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	total, items, err := j.ReadTag(ctx, sgfa.TagAll, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || len(items) != 1 || items[0].Entry != 1 {
		t.Errorf("got (%d, %v), want one item for entry 1", total, items)
	}

	// The unnormalized spelling selects the same tag.
	total, _, err = j.ReadTag(ctx, "b:c", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("got %d entries under \"b: c\", want 1", total)
	}

	// The history hash is a pure function of the inputs.
	h1, err := j.ReadHistory(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	hash1, err := h1.Hash()
	if err != nil {
		t.Fatal(err)
	}

	j2, _ := newJacket(t, "demo")
	e2 := draft(t, "hello", "world", "a", "b: c")
	if _, err = j2.Write(ctx, "alice", []*sgfa.Entry{e2}); err != nil {
		t.Fatal(err)
	}
	h2, err := j2.ReadHistory(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	hash2, err := h2.Hash()
	if err != nil {
		t.Fatal(err)
	}
	if hash1 != hash2 {
		t.Error("history #1 hash not stable across identical jackets")
	}
}

func TestWriteConflict(t *testing.T) {
	ctx := context.Background()
	j, _ := newJacket(t, "demo")

	if _, err := j.Write(ctx, "alice", []*sgfa.Entry{draft(t, "hello", "world")}); err != nil {
		t.Fatal(err)
	}

	ea, err := j.ReadEntry(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	eb, err := j.ReadEntry(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err = ea.SetTitle("first wins"); err != nil {
		t.Fatal(err)
	}
	if err = eb.SetTitle("second loses"); err != nil {
		t.Fatal(err)
	}

	if _, err = j.Write(ctx, "alice", []*sgfa.Entry{ea}); err != nil {
		t.Fatal(err)
	}
	if _, err = j.Write(ctx, "bob", []*sgfa.Entry{eb}); !errors.Is(err, sgfa.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}

	// Nothing moved.
	cur, err := j.Current(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if cur != 2 {
		t.Errorf("got current revision %d, want 2", cur)
	}
	curH, err := j.Current(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if curH != 2 {
		t.Errorf("got current history %d, want 2", curH)
	}
	got, err := j.ReadEntry(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title() != "first wins" {
		t.Errorf("got title %q, want %q", got.Title(), "first wins")
	}
}

func TestTagMove(t *testing.T) {
	ctx := context.Background()
	j, _ := newJacket(t, "demo")

	if _, err := j.Write(ctx, "alice", []*sgfa.Entry{draft(t, "hello", "world", "x")}); err != nil {
		t.Fatal(err)
	}

	e, err := j.ReadEntry(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err = e.RemoveTag("x"); err != nil {
		t.Fatal(err)
	}
	if err = e.AddTag("y"); err != nil {
		t.Fatal(err)
	}
	if _, err = j.Write(ctx, "alice", []*sgfa.Entry{e}); err != nil {
		t.Fatal(err)
	}

	for _, c := range []struct {
		tag  string
		want int
	}{
		{tag: "x", want: 0},
		{tag: "y", want: 1},
		{tag: sgfa.TagAll, want: 1},
	} {
		total, _, err := j.ReadTag(ctx, c.tag, 0, 10)
		if err != nil {
			t.Fatal(err)
		}
		if total != c.want {
			t.Errorf("tag %q: got %d entries, want %d", c.tag, total, c.want)
		}
	}

	tags, err := j.ReadList(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{sgfa.TagAll, "y"}, tags); diff != "" {
		t.Errorf("tag directory mismatch (-want +got):\n%s", diff)
	}
}

// threeWrites makes a small jacket history: entry 1 with an attachment,
// entry 2, then a second revision of entry 1.
func threeWrites(ctx context.Context, t *testing.T, j *jacket.Jacket) {
	t.Helper()

	e1 := draft(t, "first", "body one", "a", "b")
	if err := e1.SetTimeStr("2024-01-02 03:04:05"); err != nil {
		t.Fatal(err)
	}
	if _, err := e1.Attach("blob.bin", []byte("attachment payload")); err != nil {
		t.Fatal(err)
	}
	if _, err := j.Write(ctx, "alice", []*sgfa.Entry{e1}); err != nil {
		t.Fatal(err)
	}

	e2 := draft(t, "second", "body two", "b", "c")
	if err := e2.SetTimeStr("2024-01-03 03:04:05"); err != nil {
		t.Fatal(err)
	}
	if _, err := j.Write(ctx, "bob", []*sgfa.Entry{e2}); err != nil {
		t.Fatal(err)
	}

	e1b, err := j.ReadEntry(ctx, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err = e1b.AddTag("d"); err != nil {
		t.Fatal(err)
	}
	if _, err = j.Write(ctx, "alice", []*sgfa.Entry{e1b}); err != nil {
		t.Fatal(err)
	}
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	j, dir := newJacket(t, "demo")
	threeWrites(ctx, t, j)

	opts := jacket.CheckOptions{HashEntry: true, HashAttach: true}
	ok, err := j.Check(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("intact jacket reported invalid")
	}

	// Corrupt the blob for entry 1 revision 1 on disk.
	h := sgfa.EntryItem(j.IDHash(), 1, 1).String()
	path := filepath.Join(dir, "items", h[:2], h[2:]+"-e")
	if err = os.WriteFile(path, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	opts.Log = slog.New(slog.NewTextHandler(&buf, nil))
	ok, err = j.Check(ctx, opts)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("corrupted jacket reported valid")
	}
	if !strings.Contains(buf.String(), "Entry invalid 1-1") {
		t.Errorf("log does not name the corrupt entry:\n%s", buf.String())
	}
}

func TestCheckChainBreak(t *testing.T) {
	ctx := context.Background()
	j, dir := newJacket(t, "demo")
	threeWrites(ctx, t, j)

	// Replace history 2 with history 1's bytes: decodes fine, but both
	// its position and its linkage are wrong.
	h1 := sgfa.HistoryItem(j.IDHash(), 1).String()
	h2 := sgfa.HistoryItem(j.IDHash(), 2).String()
	b, err := os.ReadFile(filepath.Join(dir, "items", h1[:2], h1[2:]+"-h"))
	if err != nil {
		t.Fatal(err)
	}
	if err = os.WriteFile(filepath.Join(dir, "items", h2[:2], h2[2:]+"-h"), b, 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	ok, err := j.Check(ctx, jacket.CheckOptions{Log: slog.New(slog.NewTextHandler(&buf, nil))})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("broken chain reported valid")
	}
	if !strings.Contains(buf.String(), "History invalid 2") {
		t.Errorf("log does not name the broken history:\n%s", buf.String())
	}
}

func TestBackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	j1, _ := newJacket(t, "demo")
	threeWrites(ctx, t, j1)

	sec := mem.New()
	if err := j1.Push(ctx, sec, jacket.BackupOptions{Stat: true}); err != nil {
		t.Fatal(err)
	}

	j2, _ := newJacket(t, "demo")
	if err := j2.Pull(ctx, sec, jacket.BackupOptions{Stat: true}); err != nil {
		t.Fatal(err)
	}

	for e := int64(0); e <= 2; e++ {
		c1, err := j1.Current(ctx, e)
		if err != nil {
			t.Fatal(err)
		}
		c2, err := j2.Current(ctx, e)
		if err != nil {
			t.Fatal(err)
		}
		if c1 != c2 {
			t.Errorf("current[%d]: got %d, want %d", e, c2, c1)
		}
	}

	for e := int64(1); e <= 2; e++ {
		e1, err := j1.ReadEntry(ctx, e, 0)
		if err != nil {
			t.Fatal(err)
		}
		e2, err := j2.ReadEntry(ctx, e, 0)
		if err != nil {
			t.Fatal(err)
		}
		c1, err := e1.Canonical()
		if err != nil {
			t.Fatal(err)
		}
		c2, err := e2.Canonical()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(c1, c2) {
			t.Errorf("entry %d canonical differs after restore", e)
		}
	}

	r, err := j2.ReadAttach(ctx, 1, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "attachment payload" {
		t.Errorf("got attachment %q", got)
	}
}

func stateFiles(t *testing.T, dir string) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, de := range ents {
		name := de.Name()
		isTagFile := len(name) == 9 && strings.Trim(name, "0123456789") == ""
		if name != "_state" && name != "_list" && !isTagFile {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		out[name] = b
	}
	return out
}

func TestStateRebuild(t *testing.T) {
	ctx := context.Background()
	j, dir := newJacket(t, "demo")
	threeWrites(ctx, t, j)

	before := stateFiles(t, dir)
	if len(before) < 3 {
		t.Fatalf("unexpectedly small state: %v", before)
	}

	for name := range before {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			t.Fatal(err)
		}
	}

	if err := j.Rebuild(ctx, 1, 3); err != nil {
		t.Fatal(err)
	}

	after := stateFiles(t, dir)
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("rebuilt state differs (-before +after):\n%s", diff)
	}
}

func TestReadMissing(t *testing.T) {
	ctx := context.Background()
	j, _ := newJacket(t, "demo")

	if _, err := j.ReadEntry(ctx, 1, 0); !errors.Is(err, sgfa.ErrNotExist) {
		t.Fatalf("got %v, want ErrNotExist", err)
	}
	if _, err := j.ReadHistory(ctx, 0); !errors.Is(err, sgfa.ErrNotExist) {
		t.Fatalf("got %v, want ErrNotExist", err)
	}

	if _, err := j.Write(ctx, "alice", []*sgfa.Entry{draft(t, "hello", "world")}); err != nil {
		t.Fatal(err)
	}
	if _, err := j.ReadEntry(ctx, 1, 7); !errors.Is(err, sgfa.ErrNotExist) {
		t.Fatalf("absent revision: got %v, want ErrNotExist", err)
	}
	if _, err := j.ReadHistory(ctx, 7); !errors.Is(err, sgfa.ErrNotExist) {
		t.Fatalf("absent history: got %v, want ErrNotExist", err)
	}
}

func TestReadTagWindow(t *testing.T) {
	ctx := context.Background()
	j, _ := newJacket(t, "demo")

	times := []string{
		"2024-01-01 00:00:00",
		"2024-01-02 00:00:00",
		"2024-01-03 00:00:00",
		"2024-01-04 00:00:00",
		"2024-01-05 00:00:00",
	}
	for i, ts := range times {
		e := draft(t, "entry", "body", "w")
		if err := e.SetTimeStr(ts); err != nil {
			t.Fatal(err)
		}
		if _, err := j.Write(ctx, "alice", []*sgfa.Entry{e}); err != nil {
			t.Fatalf("write %d: %s", i, err)
		}
	}

	total, items, err := j.ReadTag(ctx, "w", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 {
		t.Fatalf("got total %d, want 5", total)
	}
	if len(items) != 2 || items[0].Entry != 5 || items[1].Entry != 4 {
		t.Errorf("got window %v, want entries 5, 4", items)
	}

	// The last page is short.
	_, items, err = j.ReadTag(ctx, "w", 4, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Entry != 1 {
		t.Errorf("got window %v, want entry 1", items)
	}
}

func TestClosedJacket(t *testing.T) {
	ctx := context.Background()
	j, _ := newJacket(t, "demo")
	if err := j.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := j.ReadEntry(ctx, 1, 0); !errors.Is(err, sgfa.ErrSanity) {
		t.Fatalf("read after close: got %v, want ErrSanity", err)
	}
	if _, err := j.Write(ctx, "alice", []*sgfa.Entry{draft(t, "t", "b")}); !errors.Is(err, sgfa.ErrSanity) {
		t.Fatalf("write after close: got %v, want ErrSanity", err)
	}
}

func TestOpenVerifiesBinding(t *testing.T) {
	ctx := context.Background()
	j, dir := newJacket(t, "demo")
	if _, err := j.Write(ctx, "alice", []*sgfa.Entry{draft(t, "hello", "world")}); err != nil {
		t.Fatal(err)
	}
	j.Close()

	// Tamper with id_text: the hash binding must catch it.
	path := filepath.Join(dir, "_info")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err = os.WriteFile(path, bytes.Replace(b, []byte(`"demo"`), []byte(`"mode"`), 1), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err = jacket.Open(dir, file.New(filepath.Join(dir, "items"))); !errors.Is(err, sgfa.ErrCorrupt) {
		t.Fatalf("got %v, want ErrCorrupt", err)
	}
}
