package sgfa

import "fmt"

// Kind distinguishes the three classes of items a store can hold.
type Kind int

const (
	KindHistory Kind = iota
	KindEntry
	KindFile
)

// Char is the single-character form of k used in store layouts.
func (k Kind) Char() byte {
	switch k {
	case KindHistory:
		return 'h'
	case KindEntry:
		return 'e'
	case KindFile:
		return 'f'
	}
	return '?'
}

func (k Kind) String() string {
	switch k {
	case KindHistory:
		return "history"
	case KindEntry:
		return "entry"
	case KindFile:
		return "file"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Item ids are derived from the jacket hash, the item kind, and the
// item's coordinates, so that the same logical object hashes to the same
// id in every store, and a single store can host multiple jackets
// without collision.

// HistoryItem derives the id of history record number n.
func HistoryItem(jacket Ref, n int64) Ref {
	return Sum(fmt.Appendf(nil, "%s history %d\n", jacket, n))
}

// EntryItem derives the id of revision r of entry number e.
func EntryItem(jacket Ref, e, r int64) Ref {
	return Sum(fmt.Appendf(nil, "%s entry %d %d\n", jacket, e, r))
}

// FileItem derives the id of attachment number a of entry e as
// introduced (or replaced) in history record h.
func FileItem(jacket Ref, e, a, h int64) Ref {
	return Sum(fmt.Appendf(nil, "%s attach %d %d %d\n", jacket, e, a, h))
}
