// Package fslock holds exclusive advisory file locks (flock(2)).
//
// A lock guards a dedicated lock file next to the resource ("db.sqlite.lock").
// flock is per open file description: two Acquire calls in one process
// exclude each other like two processes do. Unix only.
package fslock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrTimeout is returned when the lock is still held by someone else
	// when the context ends.
	ErrTimeout = errors.New("fslock: lock timeout")

	// ErrOpen is returned when the lock file cannot be created or opened.
	ErrOpen = errors.New("fslock: failed to open lock file")
)

// retryInterval is the pause between non-blocking lock attempts.
const retryInterval = 10 * time.Millisecond

const filePerms = 0o600

// Lock is a held lock. Call [Lock.Close] to release it.
type Lock struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes an exclusive lock on path + ".lock", retrying until ctx
// ends. The lock file is created if missing and never removed.
func Acquire(ctx context.Context, path string) (*Lock, error) {
	lockPath := path + ".lock"

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, filePerms) //nolint:gosec // path is from caller
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	for {
		err = unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Lock{path: lockPath, file: file}, nil
		}

		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = file.Close()

			return nil, fmt.Errorf("fslock: flock %s: %w", lockPath, err)
		}

		select {
		case <-ctx.Done():
			_ = file.Close()

			return nil, fmt.Errorf("%w: %s: %w", ErrTimeout, lockPath, ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}

// Close releases the lock. Idempotent.
func (l *Lock) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("fslock: unlock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("fslock: close: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}
