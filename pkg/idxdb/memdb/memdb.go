// Package memdb is the in-process reference backend for [idxdb.Provider].
//
// Each store is a B-tree of items by encoded primary key plus one B-tree per
// secondary index, ordered by (encoded key, primary key). Nothing is
// persisted.
//
// # Transactions
//
// Shared transactions read the committed trees directly; the scheduler keeps
// writers of the same stores out while they run. An exclusive transaction
// clones a store's trees on first access (copy-on-write, O(1)) and works on
// the clone. Commit swaps the clones in under a mutex, so other transactions
// never see partial writes; abort drops them.
package memdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
	"github.com/calvinalkan/idxdb/pkg/idxdb/txlock"
)

// Options configures [Open]. The zero value is usable.
type Options struct {
	// Logger receives transaction events. Nil discards.
	Logger *slog.Logger
}

// DB is an in-memory [idxdb.Provider]. Safe for concurrent use.
type DB struct {
	schema idxdb.Schema
	sched  *txlock.Scheduler
	log    *slog.Logger
	closed atomic.Bool

	// mu guards committed. Trees reachable from committed are only mutated
	// through a clone.
	mu        sync.RWMutex
	committed map[string]*storeData
}

var _ idxdb.Provider = (*DB)(nil)

// Open validates schema and returns an empty database.
func Open(schema idxdb.Schema, opts Options) (*DB, error) {
	err := schema.Validate()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db := &DB{
		schema:    schema,
		log:       logger,
		sched:     txlock.New(schema.StoreNames(), txlock.Options{Logger: logger}),
		committed: make(map[string]*storeData, len(schema.Stores)),
	}

	for _, st := range schema.Stores {
		db.committed[st.Name] = newStoreData(st)
	}

	return db, nil
}

// Schema implements [idxdb.Provider].
func (db *DB) Schema() idxdb.Schema {
	return db.schema
}

// OpenTransaction implements [idxdb.Provider].
func (db *DB) OpenTransaction(ctx context.Context, storeNames []string, exclusive bool) (idxdb.Transaction, error) {
	if db.closed.Load() {
		return nil, idxdb.ErrProviderClosing
	}

	token, err := db.sched.OpenTransaction(ctx, storeNames, exclusive)
	if err != nil {
		return nil, fmt.Errorf("memdb: open transaction: %w", err)
	}

	return &tx{db: db, token: token}, nil
}

// Close stops admitting transactions and waits for running ones. The data is
// kept until the DB is garbage collected.
func (db *DB) Close(ctx context.Context) error {
	if ctx == nil {
		return errors.New("memdb: context is nil")
	}

	db.closed.Store(true)

	select {
	case <-db.sched.CloseWhenPossible():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("memdb: waiting for transactions: %w", ctx.Err())
	}
}

func (db *DB) committedStore(name string) *storeData {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.committed[name]
}

func (db *DB) publish(dirty map[string]*storeData) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for name, d := range dirty {
		db.committed[name] = d
	}
}
