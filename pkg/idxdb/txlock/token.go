package txlock

import (
	"context"
	"slices"
)

// Token is an admitted transaction's claim on its stores.
//
// The scheduler keeps it until [Scheduler.Complete] or [Scheduler.Fail]. The
// token's completion handle ([Token.Done], [Token.Wait]) resolves at that
// point.
type Token struct {
	id         string
	storeNames []string
	exclusive  bool
	owner      *Scheduler

	done chan struct{}
	err  error // written before done is closed

	// completed is guarded by owner.mu.
	completed bool
}

// ID returns a unique, time-ordered transaction id.
func (t *Token) ID() string {
	return t.id
}

// StoreNames returns the resolved store scope. Never empty.
func (t *Token) StoreNames() []string {
	return slices.Clone(t.storeNames)
}

// Exclusive reports whether the token holds exclusive locks.
func (t *Token) Exclusive() bool {
	return t.exclusive
}

// Covers reports whether store is in the token's scope.
func (t *Token) Covers(store string) bool {
	return slices.Contains(t.storeNames, store)
}

// Done is closed once the transaction completed or failed.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Err returns nil while the transaction runs or after it completed, and the
// failure reason after it failed.
func (t *Token) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the transaction completes and returns its result: nil
// on completion, the failure reason on failure, or ctx's error.
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
