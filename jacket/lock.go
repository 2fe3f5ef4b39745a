package jacket

import (
	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
)

type lockMode int

const (
	lockNone lockMode = iota
	lockShared
	lockExclusive
)

// lock is the advisory shared/exclusive lock over a jacket. It lives on
// the info file, coordinating processes on one host. There is no atomic
// upgrade: moving between modes releases the held lock first, so a
// reader that needs to write must restart its transaction.
type lock struct {
	fl   *flock.Flock
	mode lockMode
}

func newLock(path string) *lock {
	return &lock{fl: flock.New(path)}
}

func (l *lock) shared() error {
	if l.mode == lockShared {
		return nil
	}
	if l.mode != lockNone {
		if err := l.unlock(); err != nil {
			return err
		}
	}
	if err := l.fl.RLock(); err != nil {
		return errors.Wrap(err, "acquiring shared lock")
	}
	l.mode = lockShared
	return nil
}

func (l *lock) exclusive() error {
	if l.mode == lockExclusive {
		return nil
	}
	if l.mode != lockNone {
		if err := l.unlock(); err != nil {
			return err
		}
	}
	if err := l.fl.Lock(); err != nil {
		return errors.Wrap(err, "acquiring exclusive lock")
	}
	l.mode = lockExclusive
	return nil
}

func (l *lock) unlock() error {
	if l.mode == lockNone {
		return nil
	}
	if err := l.fl.Unlock(); err != nil {
		return errors.Wrap(err, "releasing lock")
	}
	l.mode = lockNone
	return nil
}

// withShared runs fn under the shared lock, releasing on all exit
// paths.
func (l *lock) withShared(fn func() error) error {
	if l.mode != lockNone {
		return errors.Wrap(sgfa.ErrSanity, "lock already held")
	}
	if err := l.shared(); err != nil {
		return err
	}
	defer l.unlock()
	return fn()
}

// withExclusive runs fn under the exclusive lock, releasing on all exit
// paths.
func (l *lock) withExclusive(fn func() error) error {
	if l.mode != lockNone {
		return errors.Wrap(sgfa.ErrSanity, "lock already held")
	}
	if err := l.exclusive(); err != nil {
		return err
	}
	defer l.unlock()
	return fn()
}
