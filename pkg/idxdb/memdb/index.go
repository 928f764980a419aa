package memdb

import (
	"context"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
)

// index reads one tree of a store. name is "" for the primary key.
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

	err = ix.scan(ctx, r, opts, func(e entry) {
		out = append(out, idxdb.CloneItem(e.item))
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
	n := 0

	err := ix.scan(ctx, r, idxdb.QueryOptions{}, func(entry) { n++ })
	if err != nil {
		return 0, err
	}

	return n, nil
}

func (ix *index) GetKeysForRange(ctx context.Context, r idxdb.KeyRange) ([]any, error) {
	primary := ix.store.schema.PrimaryKeyPath
	out := []any{}

	err := ix.scan(ctx, r, idxdb.QueryOptions{}, func(e entry) {
		out = append(out, keycodec.Extract(idxdb.CloneItem(e.item), primary))
	})
	if err != nil {
		return nil, err
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

func (ix *index) scan(ctx context.Context, r idxdb.KeyRange, opts idxdb.QueryOptions, fn func(entry)) error {
	er, err := r.Encode(ix.schema.KeyPath)
	if err != nil {
		return ix.annotate(err)
	}

	d, err := ix.store.tx.read(ctx, ix.store.name)
	if err != nil {
		return ix.annotate(err)
	}

	scan(d.tree(ix.name), er, opts.Reverse, opts.Offset, opts.Limit, func(e entry) bool {
		fn(e)

		return true
	})

	return nil
}
