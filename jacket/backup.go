package jacket

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

// BackupOptions parameterize Push, Pull, and the rebuild they drive.
type BackupOptions struct {
	// Min is the first history number; zero means 1.
	Min int64

	// Max is the last history number. For Push, zero means the current
	// history. For Pull, zero means "until the source runs out."
	Max int64

	// SkipEntries and SkipFiles leave entry or attachment blobs out.
	SkipEntries bool
	SkipFiles   bool

	// Stat probes the destination for presence before copying,
	// skipping blobs that are already there.
	Stat bool

	Log *slog.Logger
}

func (opts *BackupOptions) logger() *slog.Logger {
	if opts.Log != nil {
		return opts.Log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Push copies the history range and the blobs it references into dst.
// It never deletes from dst, and walks histories in ascending order, so
// dst is always consistent with some prefix of the chain.
func (j *Jacket) Push(ctx context.Context, dst store.Store, opts BackupOptions) error {
	if err := j.guard(); err != nil {
		return err
	}
	log := opts.logger()

	return j.lk.withShared(func() error {
		min := opts.Min
		if min < 1 {
			min = 1
		}
		max := opts.Max
		if max == 0 {
			var err error
			if max, err = j.state.current(0); err != nil {
				return err
			}
		}

		for n := min; n <= max; n++ {
			b, err := store.Get(ctx, j.items, sgfa.KindHistory, sgfa.HistoryItem(j.hash, n))
			if errors.Is(err, sgfa.ErrNotExist) {
				log.Warn(fmt.Sprintf("History missing %d", n))
				continue
			}
			if err != nil {
				return err
			}
			if err = j.copyTo(ctx, dst, sgfa.KindHistory, sgfa.HistoryItem(j.hash, n), opts.Stat); err != nil {
				return err
			}

			h, err := sgfa.DecodeHistory(b)
			if err != nil {
				return err
			}
			eg, ctx2 := errgroup.WithContext(ctx)
			if !opts.SkipEntries {
				for _, er := range h.Entries() {
					id := sgfa.EntryItem(j.hash, er.Entry, er.Revision)
					eg.Go(func() error {
						return j.copyTo(ctx2, dst, sgfa.KindEntry, id, opts.Stat)
					})
				}
			}
			if !opts.SkipFiles {
				for _, ar := range h.Attachments() {
					id := sgfa.FileItem(j.hash, ar.Entry, ar.Attach, n)
					eg.Go(func() error {
						return j.copyTo(ctx2, dst, sgfa.KindFile, id, opts.Stat)
					})
				}
			}
			if err = eg.Wait(); err != nil {
				return err
			}
		}
		return nil
	})
}

// copyTo copies one blob from the jacket's store into dst, optionally
// probing dst first.
func (j *Jacket) copyTo(ctx context.Context, dst store.Store, kind sgfa.Kind, id sgfa.Ref, stat bool) error {
	if stat {
		ok, err := store.Exists(ctx, dst, kind, id)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	err := store.Copy(ctx, dst, j.items, kind, id)
	if errors.Is(err, sgfa.ErrNotExist) {
		// The chain references a blob the source lost; the validator
		// reports these, backup just moves on.
		return nil
	}
	return err
}

// Pull fetches the history range and the blobs it references from src
// into the jacket's store, then rebuilds the state index. The exclusive
// lock is held for the entire restore, rebuild included.
func (j *Jacket) Pull(ctx context.Context, src store.Store, opts BackupOptions) error {
	if err := j.guard(); err != nil {
		return err
	}
	log := opts.logger()

	return j.lk.withExclusive(func() error {
		min := opts.Min
		if min < 1 {
			min = 1
		}

		var newest int64
		for n := min; opts.Max == 0 || n <= opts.Max; n++ {
			id := sgfa.HistoryItem(j.hash, n)
			if opts.Stat {
				ok, err := store.Exists(ctx, j.items, sgfa.KindHistory, id)
				if err != nil {
					return err
				}
				if ok {
					newest = n
					continue
				}
			}

			b, err := store.Get(ctx, src, sgfa.KindHistory, id)
			if errors.Is(err, sgfa.ErrNotExist) {
				if opts.Max == 0 {
					break
				}
				log.Warn(fmt.Sprintf("History missing %d", n))
				continue
			}
			if err != nil {
				return err
			}
			if err = store.Put(ctx, j.items, sgfa.KindHistory, id, b); err != nil {
				return err
			}

			h, err := sgfa.DecodeHistory(b)
			if err != nil {
				return err
			}
			eg, ctx2 := errgroup.WithContext(ctx)
			if !opts.SkipEntries {
				for _, er := range h.Entries() {
					eid := sgfa.EntryItem(j.hash, er.Entry, er.Revision)
					eg.Go(func() error {
						return j.fetchFrom(ctx2, src, sgfa.KindEntry, eid, opts.Stat)
					})
				}
			}
			if !opts.SkipFiles {
				for _, ar := range h.Attachments() {
					fid := sgfa.FileItem(j.hash, ar.Entry, ar.Attach, n)
					eg.Go(func() error {
						return j.fetchFrom(ctx2, src, sgfa.KindFile, fid, opts.Stat)
					})
				}
			}
			if err = eg.Wait(); err != nil {
				return err
			}
			newest = n
		}

		return j.rebuild(ctx, min, newest)
	})
}

// fetchFrom copies one blob from src into the jacket's store,
// optionally probing locally first.
func (j *Jacket) fetchFrom(ctx context.Context, src store.Store, kind sgfa.Kind, id sgfa.Ref, stat bool) error {
	if stat {
		ok, err := store.Exists(ctx, j.items, kind, id)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	err := store.Copy(ctx, j.items, src, kind, id)
	if errors.Is(err, sgfa.ErrNotExist) {
		return nil
	}
	return err
}

// Rebuild re-derives the state index from the history range [min, max].
// It is the sole recovery mechanism after restore or index corruption;
// min == 1 resets the index first.
func (j *Jacket) Rebuild(ctx context.Context, min, max int64) error {
	if err := j.guard(); err != nil {
		return err
	}
	return j.lk.withExclusive(func() error {
		return j.rebuild(ctx, min, max)
	})
}

// rebuild walks the range downward: the first time an entry is seen is
// its newest revision in range, which becomes current. Tag deltas
// accumulate and flush every 250 entries.
func (j *Jacket) rebuild(ctx context.Context, min, max int64) error {
	if min < 1 {
		min = 1
	}
	if min == 1 {
		if err := j.state.reset(); err != nil {
			return err
		}
	}

	var (
		seen   = make(map[int64]bool)
		delta  = make(sgfa.TagDelta)
		count  = 0
		newest int64
	)
	for n := max; n >= min; n-- {
		b, err := store.Get(ctx, j.items, sgfa.KindHistory, sgfa.HistoryItem(j.hash, n))
		if errors.Is(err, sgfa.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		h, err := sgfa.DecodeHistory(b)
		if err != nil {
			return err
		}
		if newest == 0 {
			newest = n
		}

		for _, er := range h.Entries() {
			if seen[er.Entry] {
				continue
			}
			seen[er.Entry] = true

			eb, err := store.Get(ctx, j.items, sgfa.KindEntry, sgfa.EntryItem(j.hash, er.Entry, er.Revision))
			if errors.Is(err, sgfa.ErrNotExist) {
				return errors.Wrapf(sgfa.ErrCorrupt, "entry %d-%d missing from store", er.Entry, er.Revision)
			}
			if err != nil {
				return err
			}
			ent, err := sgfa.DecodeEntry(eb)
			if err != nil {
				return err
			}

			newTags := make(map[string]bool)
			for _, t := range ent.Tags() {
				newTags[t] = true
			}

			// On a partial rebuild a previously-current revision may
			// carry tags this one dropped; tombstone those.
			if min > 1 {
				oldCur, err := j.state.current(er.Entry)
				if err != nil {
					return err
				}
				if oldCur > 0 && oldCur != er.Revision {
					oldB, err := store.Get(ctx, j.items, sgfa.KindEntry, sgfa.EntryItem(j.hash, er.Entry, oldCur))
					if err == nil {
						if oldEnt, err := sgfa.DecodeEntry(oldB); err == nil {
							for _, t := range oldEnt.Tags() {
								if !newTags[t] {
									delta.Tombstone(t, er.Entry)
								}
							}
						}
					} else if !errors.Is(err, sgfa.ErrNotExist) {
						return err
					}
				}
			}

			if err = j.state.setCurrent(er.Entry, er.Revision); err != nil {
				return err
			}
			for _, t := range ent.Tags() {
				delta.Insert(t, er.Entry, ent.TimeStr())
			}
			delta.Insert(sgfa.TagAll, er.Entry, ent.TimeStr())

			count++
			if count%250 == 0 {
				if err = j.state.applyDelta(delta, true); err != nil {
					return err
				}
				delta = make(sgfa.TagDelta)
			}
		}
	}

	if err := j.state.applyDelta(delta, true); err != nil {
		return err
	}
	return j.state.setCurrent(0, newest)
}
