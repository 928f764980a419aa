package idxdb

import (
	"context"

	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
)

// Item is a stored record. Only fields reachable through a [KeyPath] are
// interpreted; everything else is opaque.
//
// Providers copy items on the way in and out, so callers may mutate what they
// pass and receive.
type Item = map[string]any

// KeyPath names the field or fields a key is derived from.
type KeyPath = keycodec.KeyPath

// Single returns a key path over one (possibly dotted) field.
func Single(field string) KeyPath {
	return keycodec.Single(field)
}

// Compound returns a key path over an ordered list of fields.
func Compound(fields ...string) KeyPath {
	return keycodec.Compound(fields...)
}

// Provider is an opened database.
type Provider interface {
	// Schema returns the schema the provider was opened with.
	Schema() Schema

	// OpenTransaction blocks until a transaction over storeNames is admitted.
	// Empty storeNames means every store. Exclusive transactions may write;
	// shared ones only read and may run concurrently with each other.
	OpenTransaction(ctx context.Context, storeNames []string, exclusive bool) (Transaction, error)

	// Close stops admitting transactions, waits until running ones finish
	// (or ctx ends) and releases resources. Idempotent.
	Close(ctx context.Context) error
}

// Transaction is an admitted unit of work.
//
// Writes are visible inside the transaction immediately and to others only
// after [Transaction.Commit]. Every transaction must end with Commit or
// Abort; until then it holds its store locks.
type Transaction interface {
	ID() string
	StoreNames() []string
	Exclusive() bool

	// Store returns a handle bound to this transaction. Fails with
	// [ErrStoreNotFound] for stores outside the transaction's scope.
	Store(name string) (Store, error)

	// Commit publishes the transaction's writes atomically and releases its
	// locks. Fails with [ErrTransactionDone] after Commit or Abort.
	Commit() error

	// Abort discards the transaction's writes and releases its locks.
	// No-op after Commit or Abort.
	Abort() error

	// Done is closed when the transaction finished.
	Done() <-chan struct{}

	// Wait blocks until the transaction finished: nil after a commit,
	// [ErrAborted] (or the commit failure) otherwise.
	Wait(ctx context.Context) error
}

// Store is a transaction-scoped view of one store.
//
// Missing data is never an error: lookups return nil items or empty slices.
type Store interface {
	// Get returns the item with primary key key, or nil.
	Get(ctx context.Context, key any) (Item, error)

	// GetMultiple returns the items for keys, omitting keys without a match.
	GetMultiple(ctx context.Context, keys []any) ([]Item, error)

	// Put inserts or replaces items by primary key. Either every item is
	// written or none is.
	Put(ctx context.Context, items ...Item) error

	// Remove deletes the items with the given primary keys. Missing keys are
	// ignored.
	Remove(ctx context.Context, keys ...any) error

	// RemoveRange deletes every item the range matches on the named index
	// ("" for the primary key).
	RemoveRange(ctx context.Context, indexName string, r KeyRange) error

	// OpenPrimaryKey returns the primary key as an [Index].
	OpenPrimaryKey() Index

	// OpenIndex returns a secondary index. Fails with [ErrIndexNotFound].
	OpenIndex(name string) (Index, error)

	// ClearAllData deletes every item of the store.
	ClearAllData(ctx context.Context) error
}

// RangeReader is the part of [Index] the full-text resolver needs.
type RangeReader interface {
	GetRange(ctx context.Context, r KeyRange, opts QueryOptions) ([]Item, error)
}

// Index reads a store through one key path.
//
// Results are ordered by encoded key, then primary key. Limit and offset count
// index entries; on a multi-entry index one item may appear once per matching
// key.
type Index interface {
	RangeReader

	Schema() IndexSchema

	GetAll(ctx context.Context, opts QueryOptions) ([]Item, error)
	GetOnly(ctx context.Context, key any, opts QueryOptions) ([]Item, error)

	CountAll(ctx context.Context) (int, error)
	CountOnly(ctx context.Context, key any) (int, error)
	CountRange(ctx context.Context, r KeyRange) (int, error)

	// GetKeysForRange returns the primary keys of the entries in range.
	GetKeysForRange(ctx context.Context, r KeyRange) ([]any, error)

	// FullTextSearch matches phrase against a full-text index; see
	// [ResolveFullText]. Fails with [ErrNotFullTextIndex] on other indexes.
	FullTextSearch(ctx context.Context, phrase string, res Resolution, limit int) ([]Item, error)
}
