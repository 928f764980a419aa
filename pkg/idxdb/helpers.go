package idxdb

import (
	"context"
	"errors"
	"fmt"
)

// Update runs fn in an exclusive transaction over stores and commits when fn
// returns nil. On error (or panic) the transaction is aborted.
func Update(ctx context.Context, p Provider, stores []string, fn func(tx Transaction) error) error {
	return run(ctx, p, stores, true, fn)
}

// View runs fn in a shared transaction over stores.
func View(ctx context.Context, p Provider, stores []string, fn func(tx Transaction) error) error {
	return run(ctx, p, stores, false, fn)
}

func run(ctx context.Context, p Provider, stores []string, exclusive bool, fn func(tx Transaction) error) error {
	tx, err := p.OpenTransaction(ctx, stores, exclusive)
	if err != nil {
		return err
	}

	// No-op once committed.
	defer func() { _ = tx.Abort() }()

	err = fn(tx)
	if err != nil {
		abortErr := tx.Abort()

		return errors.Join(err, abortErr)
	}

	return tx.Commit()
}

func withStore(ctx context.Context, p Provider, store string, exclusive bool, fn func(s Store) error) error {
	return run(ctx, p, []string{store}, exclusive, func(tx Transaction) error {
		s, err := tx.Store(store)
		if err != nil {
			return err
		}

		return fn(s)
	})
}

func withIndex(ctx context.Context, p Provider, store, index string, fn func(ix Index) error) error {
	return withStore(ctx, p, store, false, func(s Store) error {
		ix, err := OpenIndexOrPrimary(s, index)
		if err != nil {
			return err
		}

		return fn(ix)
	})
}

// OpenIndexOrPrimary opens the named index, or the primary key for "".
func OpenIndexOrPrimary(s Store, name string) (Index, error) {
	if name == "" {
		return s.OpenPrimaryKey(), nil
	}

	return s.OpenIndex(name)
}

// Get reads one item in its own shared transaction.
func Get(ctx context.Context, p Provider, store string, key any) (Item, error) {
	var out Item

	err := withStore(ctx, p, store, false, func(s Store) error {
		var err error

		out, err = s.Get(ctx, key)

		return err
	})

	return out, err
}

// GetMultiple reads several items in its own shared transaction.
func GetMultiple(ctx context.Context, p Provider, store string, keys []any) ([]Item, error) {
	var out []Item

	err := withStore(ctx, p, store, false, func(s Store) error {
		var err error

		out, err = s.GetMultiple(ctx, keys)

		return err
	})

	return out, err
}

// Put writes items in their own exclusive transaction.
func Put(ctx context.Context, p Provider, store string, items ...Item) error {
	return withStore(ctx, p, store, true, func(s Store) error {
		return s.Put(ctx, items...)
	})
}

// Remove deletes items by primary key in their own exclusive transaction.
func Remove(ctx context.Context, p Provider, store string, keys ...any) error {
	return withStore(ctx, p, store, true, func(s Store) error {
		return s.Remove(ctx, keys...)
	})
}

// RemoveRange deletes the items matched on index ("" for the primary key) in
// its own exclusive transaction.
func RemoveRange(ctx context.Context, p Provider, store, index string, r KeyRange) error {
	return withStore(ctx, p, store, true, func(s Store) error {
		return s.RemoveRange(ctx, index, r)
	})
}

// ClearAllData empties a store in its own exclusive transaction.
func ClearAllData(ctx context.Context, p Provider, store string) error {
	return withStore(ctx, p, store, true, func(s Store) error {
		return s.ClearAllData(ctx)
	})
}

// GetAll reads every entry of index ("" for the primary key).
func GetAll(ctx context.Context, p Provider, store, index string, opts QueryOptions) ([]Item, error) {
	var out []Item

	err := withIndex(ctx, p, store, index, func(ix Index) error {
		var err error

		out, err = ix.GetAll(ctx, opts)

		return err
	})

	return out, err
}

// GetOnly reads the entries of index equal to key.
func GetOnly(ctx context.Context, p Provider, store, index string, key any, opts QueryOptions) ([]Item, error) {
	var out []Item

	err := withIndex(ctx, p, store, index, func(ix Index) error {
		var err error

		out, err = ix.GetOnly(ctx, key, opts)

		return err
	})

	return out, err
}

// GetRange reads the entries of index inside r.
func GetRange(ctx context.Context, p Provider, store, index string, r KeyRange, opts QueryOptions) ([]Item, error) {
	var out []Item

	err := withIndex(ctx, p, store, index, func(ix Index) error {
		var err error

		out, err = ix.GetRange(ctx, r, opts)

		return err
	})

	return out, err
}

// CountAll counts the entries of index.
func CountAll(ctx context.Context, p Provider, store, index string) (int, error) {
	var n int

	err := withIndex(ctx, p, store, index, func(ix Index) error {
		var err error

		n, err = ix.CountAll(ctx)

		return err
	})

	return n, err
}

// CountOnly counts the entries of index equal to key.
func CountOnly(ctx context.Context, p Provider, store, index string, key any) (int, error) {
	var n int

	err := withIndex(ctx, p, store, index, func(ix Index) error {
		var err error

		n, err = ix.CountOnly(ctx, key)

		return err
	})

	return n, err
}

// CountRange counts the entries of index inside r.
func CountRange(ctx context.Context, p Provider, store, index string, r KeyRange) (int, error) {
	var n int

	err := withIndex(ctx, p, store, index, func(ix Index) error {
		var err error

		n, err = ix.CountRange(ctx, r)

		return err
	})

	return n, err
}

// GetKeysForRange returns the primary keys of the entries of index inside r.
func GetKeysForRange(ctx context.Context, p Provider, store, index string, r KeyRange) ([]any, error) {
	var out []any

	err := withIndex(ctx, p, store, index, func(ix Index) error {
		var err error

		out, err = ix.GetKeysForRange(ctx, r)

		return err
	})

	return out, err
}

// FullTextSearch searches a full-text index in its own shared transaction.
func FullTextSearch(ctx context.Context, p Provider, store, index, phrase string, res Resolution, limit int) ([]Item, error) {
	if index == "" {
		return nil, fmt.Errorf("%w: primary key", ErrNotFullTextIndex)
	}

	var out []Item

	err := withIndex(ctx, p, store, index, func(ix Index) error {
		var err error

		out, err = ix.FullTextSearch(ctx, phrase, res, limit)

		return err
	})

	return out, err
}
