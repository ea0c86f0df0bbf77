package guard

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/haukened/restraint/internal/block/common/utils"
)

// ErrBusy reports that another restraint process holds the guard.
var ErrBusy = errors.New("another restraint process is managing the block")

// Guard is an OS-level advisory file lock that keeps two restraint processes
// from driving the block engine at the same time. The lock is released by the
// kernel if the holder dies, so a killed process never wedges it.
type Guard struct {
	fl *flock.Flock
}

// New returns a guard on the lock file at path, creating its directory.
func New(path string) (*Guard, error) {
	if err := utils.MkdirAllOwned(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create guard directory: %w", err)
	}
	return &Guard{fl: flock.New(path)}, nil
}

// TryAcquire takes the guard without waiting. acquired is false when another
// process holds it.
func (g *Guard) TryAcquire() (acquired bool, err error) {
	ok, err := g.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", g.fl.Path(), err)
	}
	if ok {
		g.handBack()
	}
	return ok, nil
}

// Acquire waits up to wait for the guard, polling every retry.
func (g *Guard) Acquire(ctx context.Context, wait, retry time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ok, err := g.fl.TryLockContext(ctx, retry)
	if ok {
		g.handBack()
		return nil
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("lock %s: %w", g.fl.Path(), err)
	}
	return fmt.Errorf("%w (lock file %s)", ErrBusy, g.fl.Path())
}

// handBack keeps a lock file created by a root process usable by the owner of
// the state directory. Failure only matters to a later unprivileged run.
func (g *Guard) handBack() {
	_ = utils.MatchParentOwner(g.fl.Path())
}

// Held reports whether this process holds the guard.
func (g *Guard) Held() bool { return g.fl.Locked() }

// Release gives the guard up. Releasing an unheld guard is a no-op.
func (g *Guard) Release() error {
	if !g.fl.Locked() {
		return nil
	}
	return g.fl.Unlock()
}

// Path returns the lock file path.
func (g *Guard) Path() string { return g.fl.Path() }
