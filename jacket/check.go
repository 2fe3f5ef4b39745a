package jacket

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

// CheckOptions parameterize a validation walk.
type CheckOptions struct {
	// MinHistory is the first history number to walk; zero means 1.
	MinHistory int64

	// MaxHistory, when nonzero, is the last history number to walk.
	// Check reports false unless the walk actually reaches it.
	MaxHistory int64

	// MissHistory is how many absent history records to tolerate
	// before giving up and reporting the prior unbroken extent.
	MissHistory int

	// MaxHash, when nonzero, must equal the hash of record MaxHistory.
	MaxHash sgfa.Ref

	// HashEntry re-hashes every entry blob each record references.
	HashEntry bool

	// HashAttach re-hashes every attachment blob each record
	// references.
	HashAttach bool

	Log *slog.Logger
}

// Check walks the history chain and reports whether it is intact.
//
// A missing entry or attachment blob is a warning - prior revisions may
// legitimately be absent from a partial store - but a blob whose hash
// does not match the chain's record, or a record whose previous-hash
// linkage breaks, marks the jacket invalid.
func (j *Jacket) Check(ctx context.Context, opts CheckOptions) (bool, error) {
	if err := j.guard(); err != nil {
		return false, err
	}
	log := opts.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	min := opts.MinHistory
	if min < 1 {
		min = 1
	}

	var (
		valid      = true
		reachedMax = false
		miss       = 0
		lastGood   int64
		lastHash   sgfa.Ref
		prevHash   sgfa.Ref
		prevKnown  = min == 1
	)
	err := j.lk.withShared(func() error {
		for n := min; ; n++ {
			if opts.MaxHistory > 0 && n > opts.MaxHistory {
				reachedMax = true
				break
			}

			b, err := store.Get(ctx, j.items, sgfa.KindHistory, sgfa.HistoryItem(j.hash, n))
			if errors.Is(err, sgfa.ErrNotExist) {
				miss++
				log.Warn(fmt.Sprintf("History missing %d", n))
				if miss > opts.MissHistory {
					if lastGood >= min {
						log.Info(fmt.Sprintf("Valid extent %d-%d", min, lastGood))
					}
					break
				}
				prevKnown = false
				continue
			}
			if err != nil {
				return err
			}

			hash := sgfa.Sum(b)
			h, err := sgfa.DecodeHistory(b)
			if err != nil || h.Number() != n || h.Jacket() != j.hash {
				log.Error(fmt.Sprintf("History invalid %d", n))
				valid = false
				prevHash, prevKnown = hash, true
				continue
			}
			if prevKnown && h.Previous() != prevHash {
				log.Error(fmt.Sprintf("History invalid %d", n))
				valid = false
			}
			prevHash, prevKnown = hash, true
			lastGood, lastHash = n, hash

			if opts.HashEntry {
				for _, er := range h.Entries() {
					eb, err := store.Get(ctx, j.items, sgfa.KindEntry, sgfa.EntryItem(j.hash, er.Entry, er.Revision))
					if errors.Is(err, sgfa.ErrNotExist) {
						log.Warn(fmt.Sprintf("Entry missing %d-%d", er.Entry, er.Revision))
						continue
					}
					if err != nil {
						return err
					}
					if sgfa.Sum(eb) != er.Hash {
						log.Error(fmt.Sprintf("Entry invalid %d-%d", er.Entry, er.Revision))
						valid = false
					}
				}
			}
			if opts.HashAttach {
				for _, ar := range h.Attachments() {
					ok, err := j.hashAttach(ctx, log, ar, n)
					if err != nil {
						return err
					}
					if !ok {
						valid = false
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	if reachedMax {
		if lastGood != opts.MaxHistory {
			valid = false
		} else if !opts.MaxHash.IsZero() && lastHash != opts.MaxHash {
			log.Error(fmt.Sprintf("History hash mismatch %d", opts.MaxHistory))
			valid = false
		}
	}
	return valid && (opts.MaxHistory == 0 || reachedMax), nil
}

// hashAttach streams one attachment blob and compares its hash against
// the chain's record. Reports true when the blob is valid or merely
// missing.
func (j *Jacket) hashAttach(ctx context.Context, log *slog.Logger, ar sgfa.AttachRef, hnum int64) (bool, error) {
	r, err := j.items.Read(ctx, sgfa.KindFile, sgfa.FileItem(j.hash, ar.Entry, ar.Attach, hnum))
	if errors.Is(err, sgfa.ErrNotExist) {
		log.Warn(fmt.Sprintf("Attachment missing %d-%d", ar.Entry, ar.Attach))
		return true, nil
	}
	if err != nil {
		return false, err
	}
	defer r.Close()

	hasher := sha256.New()
	if _, err = io.Copy(hasher, r); err != nil {
		return false, errors.Wrapf(err, "hashing attachment %d-%d", ar.Entry, ar.Attach)
	}
	var got sgfa.Ref
	copy(got[:], hasher.Sum(nil))
	if got != ar.Hash {
		log.Error(fmt.Sprintf("Attachment invalid %d-%d", ar.Entry, ar.Attach))
		return false, nil
	}
	return true, nil
}
