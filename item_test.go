package sgfa

import "testing"

func TestItemDerivation(t *testing.T) {
	j1 := Sum([]byte("demo"))
	j2 := Sum([]byte("other"))

	// Deterministic.
	if HistoryItem(j1, 1) != HistoryItem(j1, 1) {
		t.Error("history id not deterministic")
	}
	if EntryItem(j1, 2, 3) != EntryItem(j1, 2, 3) {
		t.Error("entry id not deterministic")
	}
	if FileItem(j1, 2, 3, 4) != FileItem(j1, 2, 3, 4) {
		t.Error("file id not deterministic")
	}

	// Distinct across coordinates, kinds, and jackets.
	ids := []Ref{
		HistoryItem(j1, 1),
		HistoryItem(j1, 2),
		HistoryItem(j2, 1),
		EntryItem(j1, 1, 1),
		EntryItem(j1, 1, 2),
		EntryItem(j1, 2, 1),
		FileItem(j1, 1, 1, 1),
		FileItem(j1, 1, 1, 2),
		FileItem(j1, 1, 2, 1),
	}
	seen := make(map[Ref]int)
	for i, id := range ids {
		if prev, ok := seen[id]; ok {
			t.Errorf("ids %d and %d collide", prev, i)
		}
		seen[id] = i
	}
}

func TestRefHex(t *testing.T) {
	r := Sum([]byte("demo"))
	got, err := RefFromHex(r.String())
	if err != nil {
		t.Fatal(err)
	}
	if got != r {
		t.Error("hex round trip changed the ref")
	}

	if _, err = RefFromHex("abc"); err == nil {
		t.Error("short hex accepted")
	}
	if _, err = RefFromHex(r.String()[:63] + "g"); err == nil {
		t.Error("non-hex digit accepted")
	}
	if !Zero.IsZero() || r.IsZero() {
		t.Error("IsZero misreports")
	}
}
