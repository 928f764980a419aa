package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
)

// index reads one key table of a store. name is "" for the primary key,
// which reads the store table itself.
type index struct {
	store  *store
	name   string
	schema idxdb.IndexSchema
}

func (ix *index) annotate(err error) error {
	return idxdb.Annotate(err, ix.store.name, ix.name)
}

func (ix *index) Schema() idxdb.IndexSchema {
	return ix.schema
}

func (ix *index) GetAll(ctx context.Context, opts idxdb.QueryOptions) ([]idxdb.Item, error) {
	return ix.GetRange(ctx, idxdb.KeyRange{}, opts)
}

func (ix *index) GetOnly(ctx context.Context, key any, opts idxdb.QueryOptions) ([]idxdb.Item, error) {
	return ix.GetRange(ctx, idxdb.Only(key), opts)
}

func (ix *index) GetRange(ctx context.Context, r idxdb.KeyRange, opts idxdb.QueryOptions) ([]idxdb.Item, error) {
	err := opts.Validate()
	if err != nil {
		return nil, ix.annotate(err)
	}

	out := []idxdb.Item{}

	err = ix.query(ctx, r, opts, func(rows *sql.Rows) error {
		var raw string

		err := rows.Scan(&raw)
		if err != nil {
			return err
		}

		item, err := decodeItem(raw)
		if err != nil {
			return err
		}

		out = append(out, item)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (ix *index) CountAll(ctx context.Context) (int, error) {
	return ix.CountRange(ctx, idxdb.KeyRange{})
}

func (ix *index) CountOnly(ctx context.Context, key any) (int, error) {
	return ix.CountRange(ctx, idxdb.Only(key))
}

func (ix *index) CountRange(ctx context.Context, r idxdb.KeyRange) (int, error) {
	er, err := r.Encode(ix.schema.KeyPath)
	if err != nil {
		return 0, ix.annotate(err)
	}

	q, err := ix.store.tx.reader(ctx)
	if err != nil {
		return 0, ix.annotate(err)
	}

	table, col := ix.table()
	where, args := rangeWhere(col, er)

	var n int

	err = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+where, args...).Scan(&n)
	if err != nil {
		return 0, ix.annotate(fmt.Errorf("sqlite: count: %w", err))
	}

	return n, nil
}

func (ix *index) GetKeysForRange(ctx context.Context, r idxdb.KeyRange) ([]any, error) {
	items, err := ix.GetRange(ctx, r, idxdb.QueryOptions{})
	if err != nil {
		return nil, err
	}

	primary := ix.store.schema.PrimaryKeyPath
	out := make([]any, 0, len(items))

	for _, item := range items {
		out = append(out, keycodec.Extract(item, primary))
	}

	return out, nil
}

func (ix *index) FullTextSearch(ctx context.Context, phrase string, res idxdb.Resolution, limit int) ([]idxdb.Item, error) {
	items, err := idxdb.ResolveFullText(ctx, ix, ix.schema, ix.store.schema.PrimaryKeyPath, phrase, res, limit)
	if err != nil {
		return nil, ix.annotate(err)
	}

	return items, nil
}

// table returns the table to scan and its key column.
func (ix *index) table() (string, string) {
	if ix.name == "" {
		return storeTable(ix.store.name), "pk"
	}

	return indexTable(ix.store.name, ix.name), "k"
}

// query runs an ordered, paged scan yielding the item of every entry in r.
func (ix *index) query(ctx context.Context, r idxdb.KeyRange, opts idxdb.QueryOptions, fn func(*sql.Rows) error) error {
	er, err := r.Encode(ix.schema.KeyPath)
	if err != nil {
		return ix.annotate(err)
	}

	q, err := ix.store.tx.reader(ctx)
	if err != nil {
		return ix.annotate(err)
	}

	dir := "ASC"
	if opts.Reverse {
		dir = "DESC"
	}

	limit := opts.Limit
	if limit == 0 {
		limit = -1
	}

	var stmt string

	var args []any

	if ix.name == "" {
		where, wargs := rangeWhere("pk", er)
		stmt = "SELECT item FROM " + storeTable(ix.store.name) + where +
			" ORDER BY pk " + dir + " LIMIT ? OFFSET ?"
		args = wargs
	} else {
		where, wargs := rangeWhere("x.k", er)
		stmt = "SELECT s.item FROM " + indexTable(ix.store.name, ix.name) + " AS x" +
			" JOIN " + storeTable(ix.store.name) + " AS s ON s.pk = x.pk" + where +
			" ORDER BY x.k " + dir + ", x.pk " + dir + " LIMIT ? OFFSET ?"
		args = wargs
	}

	args = append(args, limit, opts.Offset)

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return ix.annotate(fmt.Errorf("sqlite: query: %w", err))
	}

	for rows.Next() {
		err = fn(rows)
		if err != nil {
			_ = rows.Close()

			return ix.annotate(fmt.Errorf("sqlite: scan: %w", err))
		}
	}

	err = errors.Join(rows.Err(), rows.Close())
	if err != nil {
		return ix.annotate(fmt.Errorf("sqlite: scan: %w", err))
	}

	return nil
}

// primaryKeys returns the encoded primary keys of every entry in er.
func (ix *index) primaryKeys(ctx context.Context, q *sql.Tx, er idxdb.EncodedRange) ([]string, error) {
	table, col := ix.table()
	where, args := rangeWhere(col, er)

	rows, err := q.QueryContext(ctx, "SELECT DISTINCT pk FROM "+table+where, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}

	var pks []string

	for rows.Next() {
		var pk string

		err = rows.Scan(&pk)
		if err != nil {
			_ = rows.Close()

			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}

		pks = append(pks, pk)
	}

	err = errors.Join(rows.Err(), rows.Close())
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan: %w", err)
	}

	return pks, nil
}
