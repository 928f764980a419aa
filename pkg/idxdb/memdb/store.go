package memdb

import (
	"context"
	"fmt"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
)

type store struct {
	tx     *tx
	name   string
	schema idxdb.StoreSchema
}

func (s *store) annotate(err error) error {
	return idxdb.Annotate(err, s.name, "")
}

func (s *store) Get(ctx context.Context, key any) (idxdb.Item, error) {
	pk, err := keycodec.Encode(key, s.schema.PrimaryKeyPath)
	if err != nil {
		return nil, s.annotate(err)
	}

	d, err := s.tx.read(ctx, s.name)
	if err != nil {
		return nil, s.annotate(err)
	}

	item, ok := d.get(pk)
	if !ok {
		return nil, nil
	}

	return idxdb.CloneItem(item), nil
}

func (s *store) GetMultiple(ctx context.Context, keys []any) ([]idxdb.Item, error) {
	pks, err := keycodec.EncodeList(keys, s.schema.PrimaryKeyPath)
	if err != nil {
		return nil, s.annotate(err)
	}

	d, err := s.tx.read(ctx, s.name)
	if err != nil {
		return nil, s.annotate(err)
	}

	out := make([]idxdb.Item, 0, len(pks))

	for _, pk := range pks {
		if item, ok := d.get(pk); ok {
			out = append(out, idxdb.CloneItem(item))
		}
	}

	return out, nil
}

// pendingPut is one validated item of a put batch.
type pendingPut struct {
	pk   string
	item idxdb.Item
	keys map[string][]string // index name -> encoded keys
}

// Put validates the whole batch before touching any tree, so a bad item
// leaves the store unchanged.
func (s *store) Put(ctx context.Context, items ...idxdb.Item) error {
	d, err := s.tx.write(ctx, s.name)
	if err != nil {
		return s.annotate(err)
	}

	batch, err := s.prepare(items)
	if err != nil {
		return err
	}

	err = s.checkUnique(d, batch)
	if err != nil {
		return err
	}

	for _, p := range batch {
		d.remove(p.pk)
		d.insert(p.pk, p.item, p.keys)
	}

	return nil
}

// prepare derives keys for every item. A primary key appearing twice keeps
// the last item.
func (s *store) prepare(items []idxdb.Item) ([]pendingPut, error) {
	batch := make([]pendingPut, 0, len(items))
	pos := make(map[string]int, len(items))

	for i, item := range items {
		if item == nil {
			return nil, s.annotate(fmt.Errorf("%w: item %d is nil", idxdb.ErrInvalidKeyShape, i))
		}

		pk, err := idxdb.PrimaryKey(s.schema, item)
		if err != nil {
			return nil, s.annotate(fmt.Errorf("item %d: %w", i, err))
		}

		cloned := idxdb.CloneItem(item)

		keys := make(map[string][]string, len(s.schema.Indexes))
		for _, ix := range s.schema.Indexes {
			if k := idxdb.IndexKeys(ix, cloned); len(k) > 0 {
				keys[ix.Name] = k
			}
		}

		p := pendingPut{pk: pk, item: cloned, keys: keys}

		if at, dup := pos[pk]; dup {
			batch[at] = p

			continue
		}

		pos[pk] = len(batch)
		batch = append(batch, p)
	}

	return batch, nil
}

// checkUnique rejects the batch when a unique index key would belong to two
// primary keys after the put. Entries of items the batch rewrites do not
// count; their new keys are checked within the batch.
func (s *store) checkUnique(d *storeData, batch []pendingPut) error {
	inBatch := make(map[string]struct{}, len(batch))
	for _, p := range batch {
		inBatch[p.pk] = struct{}{}
	}

	for _, ix := range s.schema.Indexes {
		if !ix.Unique {
			continue
		}

		tree := d.indexes[ix.Name]
		owners := make(map[string]string)

		for _, p := range batch {
			for _, k := range p.keys[ix.Name] {
				if owner, taken := owners[k]; taken && owner != p.pk {
					return idxdb.Annotate(idxdb.ErrConstraint, s.name, ix.Name)
				}

				owners[k] = p.pk

				conflict := false

				tree.AscendRange(entry{key: k}, entry{key: k, pk: maxPK}, func(e entry) bool {
					if _, rewritten := inBatch[e.pk]; !rewritten && e.pk != p.pk {
						conflict = true

						return false
					}

					return true
				})

				if conflict {
					return idxdb.Annotate(idxdb.ErrConstraint, s.name, ix.Name)
				}
			}
		}
	}

	return nil
}

func (s *store) Remove(ctx context.Context, keys ...any) error {
	pks, err := keycodec.EncodeList(keys, s.schema.PrimaryKeyPath)
	if err != nil {
		return s.annotate(err)
	}

	d, err := s.tx.write(ctx, s.name)
	if err != nil {
		return s.annotate(err)
	}

	for _, pk := range pks {
		d.remove(pk)
	}

	return nil
}

func (s *store) RemoveRange(ctx context.Context, indexName string, r idxdb.KeyRange) error {
	ix, err := s.index(indexName)
	if err != nil {
		return err
	}

	er, err := r.Encode(ix.schema.KeyPath)
	if err != nil {
		return idxdb.Annotate(err, s.name, indexName)
	}

	d, err := s.tx.write(ctx, s.name)
	if err != nil {
		return s.annotate(err)
	}

	var pks []string

	scan(d.tree(indexName), er, false, 0, 0, func(e entry) bool {
		pks = append(pks, e.pk)

		return true
	})

	for _, pk := range pks {
		d.remove(pk)
	}

	return nil
}

func (s *store) ClearAllData(ctx context.Context) error {
	return s.annotate(s.tx.reset(ctx, s.name, s.schema))
}

func (s *store) OpenPrimaryKey() idxdb.Index {
	return &index{store: s, schema: s.schema.PrimaryIndex()}
}

func (s *store) OpenIndex(name string) (idxdb.Index, error) {
	ix, err := s.index(name)
	if err != nil {
		return nil, err
	}

	return ix, nil
}

func (s *store) index(name string) (*index, error) {
	if name == "" {
		return &index{store: s, schema: s.schema.PrimaryIndex()}, nil
	}

	schema, ok := s.schema.Index(name)
	if !ok {
		return nil, idxdb.Annotate(idxdb.ErrIndexNotFound, s.name, name)
	}

	return &index{store: s, name: name, schema: schema}, nil
}
