package jacket

import (
	"context"

	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

// Write commits a set of entry drafts as one history record and returns
// the new history number.
//
// For each draft with an assigned entry number, the draft's revision
// must be exactly one past the entry's current revision; otherwise the
// write fails with ErrConflict and mutates nothing. Unnumbered drafts
// are assigned the next entry numbers.
//
// Persistence order matters: entry blobs, attachment blobs, tag lists,
// the history blob, and finally the history pointer. The pointer bump
// is the commit point for readers; a crash beforehand leaves orphan
// blobs but cannot corrupt the index.
func (j *Jacket) Write(ctx context.Context, user string, entries []*sgfa.Entry) (int64, error) {
	if err := j.guard(); err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, errors.Wrap(sgfa.ErrSanity, "nothing to write")
	}

	var hnum int64
	err := j.lk.withExclusive(func() error {
		for _, e := range entries {
			n, ok := e.Number()
			if !ok {
				continue
			}
			cur, err := j.state.current(n)
			if err != nil {
				return err
			}
			if e.Revision() != cur+1 {
				return errors.Wrapf(sgfa.ErrConflict, "entry %d: revision %d does not follow current %d", n, e.Revision(), cur)
			}
		}

		curH, err := j.state.current(0)
		if err != nil {
			return err
		}

		var (
			h  *sgfa.History
			ws *sgfa.WriteSet
			at = j.now()
		)
		if curH == 0 {
			h = sgfa.NewHistory(j.hash)
			ws, err = h.Process(1, sgfa.Zero, 0, user, entries, at)
			if err != nil {
				return err
			}
		} else {
			prior, err := j.loadHistory(ctx, curH)
			if err != nil {
				return err
			}
			h, ws, err = prior.Next(user, entries, at)
			if err != nil {
				return err
			}
		}
		hnum = h.Number()

		for _, e := range entries {
			n, _ := e.Number()
			canon, err := e.Canonical()
			if err != nil {
				return err
			}
			id := sgfa.EntryItem(j.hash, n, e.Revision())
			if err = store.Put(ctx, j.items, sgfa.KindEntry, id, canon); err != nil {
				return errors.Wrapf(err, "persisting entry %d-%d", n, e.Revision())
			}
			if err = j.state.setCurrent(n, e.Revision()); err != nil {
				return err
			}
		}

		for _, fw := range ws.Files {
			id := sgfa.FileItem(j.hash, fw.Entry, fw.Attach, hnum)
			if err = store.Put(ctx, j.items, sgfa.KindFile, id, fw.Data); err != nil {
				return errors.Wrapf(err, "persisting attachment %d-%d", fw.Entry, fw.Attach)
			}
		}

		if err = j.state.applyDelta(ws.Delta, false); err != nil {
			return err
		}

		canon, err := h.Canonical()
		if err != nil {
			return err
		}
		if err = store.Put(ctx, j.items, sgfa.KindHistory, sgfa.HistoryItem(j.hash, hnum), canon); err != nil {
			return errors.Wrapf(err, "persisting history %d", hnum)
		}

		return j.state.setCurrent(0, hnum)
	})
	if err != nil {
		return 0, err
	}
	return hnum, nil
}

// loadHistory fetches and decodes a history record the state index
// claims to exist.
func (j *Jacket) loadHistory(ctx context.Context, n int64) (*sgfa.History, error) {
	b, err := store.Get(ctx, j.items, sgfa.KindHistory, sgfa.HistoryItem(j.hash, n))
	if errors.Is(err, sgfa.ErrNotExist) {
		return nil, errors.Wrapf(sgfa.ErrCorrupt, "history %d missing from store", n)
	}
	if err != nil {
		return nil, err
	}
	h, err := sgfa.DecodeHistory(b)
	if err != nil {
		return nil, err
	}
	if h.Jacket() != j.hash || h.Number() != n {
		return nil, errors.Wrapf(sgfa.ErrCorrupt, "history %d does not match its id", n)
	}
	return h, nil
}
