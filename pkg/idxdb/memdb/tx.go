package memdb

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
	"github.com/calvinalkan/idxdb/pkg/idxdb/txlock"
)

// tx is an admitted transaction. Its stores are read from dirty when the
// transaction wrote them, from the committed set otherwise.
type tx struct {
	db    *DB
	token *txlock.Token

	mu       sync.Mutex
	dirty    map[string]*storeData
	finished bool
}

func (t *tx) ID() string { return t.token.ID() }
func (t *tx) StoreNames() []string { return t.token.StoreNames() }
func (t *tx) Exclusive() bool { return t.token.Exclusive() }
func (t *tx) Done() <-chan struct{} { return t.token.Done() }
func (t *tx) Wait(ctx context.Context) error { return t.token.Wait(ctx) }

func (t *tx) Store(name string) (idxdb.Store, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return nil, idxdb.ErrTransactionDone
	}

	if !t.token.Covers(name) {
		return nil, idxdb.Annotate(idxdb.ErrStoreNotFound, name, "")
	}

	schema, _ := t.db.schema.Store(name)

	return &store{tx: t, name: name, schema: schema}, nil
}

// Commit publishes every written store at once.
func (t *tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return idxdb.ErrTransactionDone
	}

	t.finished = true

	if len(t.dirty) > 0 {
		t.db.publish(t.dirty)
		t.db.log.Debug("memdb: committed", slog.String("tx", t.token.ID()), slog.Int("stores", len(t.dirty)))
	}

	t.dirty = nil

	err := t.db.sched.Complete(t.token)
	if err != nil {
		return fmt.Errorf("memdb: commit: %w", err)
	}

	return nil
}

// Abort drops the working copies. Idempotent.
func (t *tx) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return nil
	}

	t.finished = true
	t.dirty = nil

	err := t.db.sched.Fail(t.token, idxdb.ErrAborted)
	if err != nil {
		return fmt.Errorf("memdb: abort: %w", err)
	}

	return nil
}

// read returns the data a read in this transaction observes.
func (t *tx) read(ctx context.Context, name string) (*storeData, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return nil, idxdb.ErrTransactionDone
	}

	if d, ok := t.dirty[name]; ok {
		return d, nil
	}

	return t.db.committedStore(name), nil
}

// write returns this transaction's working copy of a store, cloning the
// committed data on first use.
func (t *tx) write(ctx context.Context, name string) (*storeData, error) {
	err := ctx.Err()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finished {
		return nil, idxdb.ErrTransactionDone
	}

	if !t.token.Exclusive() {
		return nil, idxdb.ErrReadOnly
	}

	if d, ok := t.dirty[name]; ok {
		return d, nil
	}

	if t.dirty == nil {
		t.dirty = make(map[string]*storeData)
	}

	d := t.db.committedStore(name).clone()
	t.dirty[name] = d

	return d, nil
}

// reset replaces a store's working copy with empty data.
func (t *tx) reset(ctx context.Context, name string, schema idxdb.StoreSchema) error {
	_, err := t.write(ctx, name)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.dirty[name] = newStoreData(schema)

	return nil
}
