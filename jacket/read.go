package jacket

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

// ReadEntry fetches revision r of entry e, or the current revision when
// r is zero. A missing entry is ErrNotExist; a missing blob at the
// current revision is ErrCorrupt, since the state index vouches for it.
func (j *Jacket) ReadEntry(ctx context.Context, e, r int64) (*sgfa.Entry, error) {
	if err := j.guard(); err != nil {
		return nil, err
	}
	if e < 1 || r < 0 {
		return nil, errors.Wrap(sgfa.ErrSanity, "bad entry coordinates")
	}

	var out *sgfa.Entry
	err := j.lk.withShared(func() error {
		cur, err := j.state.current(e)
		if err != nil {
			return err
		}
		atCurrent := r == 0 || r == cur
		if r == 0 {
			if cur == 0 {
				return errors.Wrapf(sgfa.ErrNotExist, "entry %d", e)
			}
			r = cur
		}

		b, err := store.Get(ctx, j.items, sgfa.KindEntry, sgfa.EntryItem(j.hash, e, r))
		if errors.Is(err, sgfa.ErrNotExist) {
			if atCurrent && cur != 0 {
				return errors.Wrapf(sgfa.ErrCorrupt, "entry %d-%d missing from store", e, r)
			}
			return errors.Wrapf(sgfa.ErrNotExist, "entry %d-%d", e, r)
		}
		if err != nil {
			return err
		}
		out, err = sgfa.DecodeEntry(b)
		return err
	})
	return out, err
}

// ReadHistory fetches history record h, or the current record when h is
// zero.
func (j *Jacket) ReadHistory(ctx context.Context, h int64) (*sgfa.History, error) {
	if err := j.guard(); err != nil {
		return nil, err
	}
	if h < 0 {
		return nil, errors.Wrap(sgfa.ErrSanity, "bad history number")
	}

	var out *sgfa.History
	err := j.lk.withShared(func() error {
		cur, err := j.state.current(0)
		if err != nil {
			return err
		}
		if h == 0 {
			if cur == 0 {
				return errors.Wrap(sgfa.ErrNotExist, "jacket has no history")
			}
			out, err = j.loadHistory(ctx, cur)
			return err
		}

		b, err := store.Get(ctx, j.items, sgfa.KindHistory, sgfa.HistoryItem(j.hash, h))
		if errors.Is(err, sgfa.ErrNotExist) {
			return errors.Wrapf(sgfa.ErrNotExist, "history %d", h)
		}
		if err != nil {
			return err
		}
		out, err = sgfa.DecodeHistory(b)
		return err
	})
	return out, err
}

// ReadAttach opens attachment a of entry e as introduced in history h.
// When h is zero it is resolved through the entry's current revision.
// The caller must close the handle; nothing is cached.
func (j *Jacket) ReadAttach(ctx context.Context, e, a, h int64) (io.ReadCloser, error) {
	if err := j.guard(); err != nil {
		return nil, err
	}
	if e < 1 || a < 1 || h < 0 {
		return nil, errors.Wrap(sgfa.ErrSanity, "bad attachment coordinates")
	}

	var out io.ReadCloser
	err := j.lk.withShared(func() error {
		if h == 0 {
			cur, err := j.state.current(e)
			if err != nil {
				return err
			}
			if cur == 0 {
				return errors.Wrapf(sgfa.ErrNotExist, "entry %d", e)
			}
			b, err := store.Get(ctx, j.items, sgfa.KindEntry, sgfa.EntryItem(j.hash, e, cur))
			if errors.Is(err, sgfa.ErrNotExist) {
				return errors.Wrapf(sgfa.ErrCorrupt, "entry %d-%d missing from store", e, cur)
			}
			if err != nil {
				return err
			}
			ent, err := sgfa.DecodeEntry(b)
			if err != nil {
				return err
			}
			att, ok := ent.Attachment(a)
			if !ok {
				return errors.Wrapf(sgfa.ErrNotExist, "attachment %d-%d", e, a)
			}
			h = att.History
		}

		r, err := j.items.Read(ctx, sgfa.KindFile, sgfa.FileItem(j.hash, e, a, h))
		if errors.Is(err, sgfa.ErrNotExist) {
			return errors.Wrapf(sgfa.ErrNotExist, "attachment %d-%d-%d", e, a, h)
		}
		out = r
		return err
	})
	return out, err
}

// ReadTag reports a tag's total entry count and a newest-first window
// of up to max items after skipping offset.
func (j *Jacket) ReadTag(ctx context.Context, tag string, offset, max int) (int, []TagItem, error) {
	if err := j.guard(); err != nil {
		return 0, nil, err
	}
	if offset < 0 || max < 1 {
		return 0, nil, errors.Wrap(sgfa.ErrSanity, "bad window")
	}
	if tag != sgfa.TagAll {
		var err error
		if tag, err = sgfa.NormalizeTag(tag); err != nil {
			return 0, nil, err
		}
	}

	var (
		total int
		items []TagItem
	)
	err := j.lk.withShared(func() error {
		var err error
		total, items, err = j.state.readTag(tag, offset, max)
		return err
	})
	return total, items, err
}

// ReadList enumerates the tag directory.
func (j *Jacket) ReadList(ctx context.Context) ([]string, error) {
	if err := j.guard(); err != nil {
		return nil, err
	}
	var out []string
	err := j.lk.withShared(func() error {
		var err error
		out, err = j.state.listTags()
		return err
	})
	return out, err
}

// Current reports the current revision of entry e, or the current
// history number when e is zero. Zero means absent.
func (j *Jacket) Current(ctx context.Context, e int64) (int64, error) {
	if err := j.guard(); err != nil {
		return 0, err
	}
	if e < 0 {
		return 0, errors.Wrap(sgfa.ErrSanity, "bad entry number")
	}
	var out int64
	err := j.lk.withShared(func() error {
		var err error
		out, err = j.state.current(e)
		return err
	})
	return out, err
}
