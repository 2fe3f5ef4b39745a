package jacket

import (
	"errors"
	"testing"

	"github.com/sgfa/sgfa"
)

func testState(t *testing.T) *state {
	t.Helper()
	st := newState(t.TempDir())
	if err := st.create(); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestStateRecords(t *testing.T) {
	st := testState(t)

	got, err := st.current(0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0 {
		t.Fatalf("fresh index: got history %d, want 0", got)
	}

	// Writing record 5 pads the gap with zeros.
	if err = st.setCurrent(5, 7); err != nil {
		t.Fatal(err)
	}
	for e, want := range map[int64]int64{0: 0, 3: 0, 5: 7, 99: 0} {
		if got, err = st.current(e); err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("current[%d]: got %d, want %d", e, got, want)
		}
	}

	if err = st.setCurrent(5, 8); err != nil {
		t.Fatal(err)
	}
	if got, err = st.current(5); err != nil {
		t.Fatal(err)
	}
	if got != 8 {
		t.Errorf("current[5]: got %d, want 8", got)
	}

	if err = st.setCurrent(-1, 0); !errors.Is(err, sgfa.ErrLimits) {
		t.Errorf("negative record: got %v, want ErrLimits", err)
	}
	if err = st.setCurrent(1, maxIndexNum+1); !errors.Is(err, sgfa.ErrLimits) {
		t.Errorf("overwide value: got %v, want ErrLimits", err)
	}
}

func TestApplyDeltaTies(t *testing.T) {
	st := testState(t)
	const when = "2024-01-02 03:04:05"

	apply := func(entry int64, before bool) {
		t.Helper()
		d := make(sgfa.TagDelta)
		d.Insert("t", entry, when)
		if err := st.applyDelta(d, before); err != nil {
			t.Fatal(err)
		}
	}

	// Equal timestamps: each later apply lands later...
	apply(1, false)
	apply(2, false)
	// ...unless inserting rebuild-style, which lands earlier.
	apply(3, true)

	total, items, err := st.readTag("t", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Fatalf("got total %d, want 3", total)
	}
	// Newest-first window over [(3), (1), (2)].
	want := []int64{2, 1, 3}
	for i, item := range items {
		if item.Entry != want[i] {
			t.Errorf("window[%d]: got entry %d, want %d", i, item.Entry, want[i])
		}
	}
}

func TestApplyDeltaTombstoneDropsTag(t *testing.T) {
	st := testState(t)

	d := make(sgfa.TagDelta)
	d.Insert("only", 1, "2024-01-02 03:04:05")
	if err := st.applyDelta(d, false); err != nil {
		t.Fatal(err)
	}
	tags, err := st.listTags()
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 || tags[0] != "only" {
		t.Fatalf("got tags %v, want [only]", tags)
	}

	d = make(sgfa.TagDelta)
	d.Tombstone("only", 1)
	if err = st.applyDelta(d, false); err != nil {
		t.Fatal(err)
	}
	if tags, err = st.listTags(); err != nil {
		t.Fatal(err)
	}
	if len(tags) != 0 {
		t.Fatalf("got tags %v after tombstone, want none", tags)
	}

	// An emptied tag's queries come back empty, not corrupt.
	total, items, err := st.readTag("only", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("got (%d, %v), want empty", total, items)
	}
}

func TestLockNesting(t *testing.T) {
	st := testState(t)
	lk := newLock(st.statePath())

	err := lk.withShared(func() error {
		return lk.withShared(func() error { return nil })
	})
	if !errors.Is(err, sgfa.ErrSanity) {
		t.Errorf("nested lock: got %v, want ErrSanity", err)
	}
}
