package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
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

	q, err := s.tx.reader(ctx)
	if err != nil {
		return nil, s.annotate(err)
	}

	item, err := s.get(ctx, q, pk)
	if err != nil {
		return nil, s.annotate(err)
	}

	return item, nil
}

func (s *store) get(ctx context.Context, q *sql.Tx, pk string) (idxdb.Item, error) {
	var raw string

	err := q.QueryRowContext(ctx, "SELECT item FROM "+storeTable(s.name)+" WHERE pk = ?", pk).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("sqlite: get: %w", err)
	}

	return decodeItem(raw)
}

func (s *store) GetMultiple(ctx context.Context, keys []any) ([]idxdb.Item, error) {
	pks, err := keycodec.EncodeList(keys, s.schema.PrimaryKeyPath)
	if err != nil {
		return nil, s.annotate(err)
	}

	q, err := s.tx.reader(ctx)
	if err != nil {
		return nil, s.annotate(err)
	}

	out := make([]idxdb.Item, 0, len(pks))

	for _, pk := range pks {
		item, err := s.get(ctx, q, pk)
		if err != nil {
			return nil, s.annotate(err)
		}

		if item != nil {
			out = append(out, item)
		}
	}

	return out, nil
}

// pendingPut is one validated item of a put batch.
type pendingPut struct {
	pk   string
	raw  string
	keys map[string][]string // index name -> encoded keys
}

// Put validates and serializes the whole batch before writing, then applies
// it under a savepoint.
func (s *store) Put(ctx context.Context, items ...idxdb.Item) error {
	q, err := s.tx.writer(ctx)
	if err != nil {
		return s.annotate(err)
	}

	batch, err := s.prepare(items)
	if err != nil {
		return s.annotate(err)
	}

	return savepoint(ctx, q, func() error {
		// Old entries of every rewritten item go first, so keys may move
		// between items of one batch.
		for _, p := range batch {
			err := s.deleteEntries(ctx, q, p.pk)
			if err != nil {
				return s.annotate(err)
			}
		}

		for _, p := range batch {
			err := s.insert(ctx, q, p)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *store) prepare(items []idxdb.Item) ([]pendingPut, error) {
	batch := make([]pendingPut, 0, len(items))
	pos := make(map[string]int, len(items))

	for i, item := range items {
		if item == nil {
			return nil, fmt.Errorf("%w: item %d is nil", idxdb.ErrInvalidKeyShape, i)
		}

		pk, err := idxdb.PrimaryKey(s.schema, item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		raw, err := encodeItem(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}

		keys := make(map[string][]string, len(s.schema.Indexes))
		for _, ix := range s.schema.Indexes {
			if k := idxdb.IndexKeys(ix, item); len(k) > 0 {
				keys[ix.Name] = k
			}
		}

		p := pendingPut{pk: pk, raw: raw, keys: keys}

		if at, dup := pos[pk]; dup {
			batch[at] = p

			continue
		}

		pos[pk] = len(batch)
		batch = append(batch, p)
	}

	return batch, nil
}

func (s *store) insert(ctx context.Context, q *sql.Tx, p pendingPut) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO "+storeTable(s.name)+" (pk, item) VALUES (?, ?) ON CONFLICT (pk) DO UPDATE SET item = excluded.item",
		p.pk, p.raw)
	if err != nil {
		return s.annotate(fmt.Errorf("sqlite: put: %w", err))
	}

	for _, ix := range s.schema.Indexes {
		insert := "INSERT INTO " + indexTable(s.name, ix.Name) + " (k, pk) VALUES (?, ?)"

		for _, k := range p.keys[ix.Name] {
			_, err = q.ExecContext(ctx, insert, k, p.pk)
			if err != nil {
				return idxdb.Annotate(mapConstraint(err), s.name, ix.Name)
			}
		}
	}

	return nil
}

func (s *store) deleteEntries(ctx context.Context, q *sql.Tx, pk string) error {
	for _, ix := range s.schema.Indexes {
		_, err := q.ExecContext(ctx, "DELETE FROM "+indexTable(s.name, ix.Name)+" WHERE pk = ?", pk)
		if err != nil {
			return fmt.Errorf("sqlite: delete entries of %q: %w", ix.Name, err)
		}
	}

	return nil
}

func (s *store) remove(ctx context.Context, q *sql.Tx, pks []string) error {
	return savepoint(ctx, q, func() error {
		for _, pk := range pks {
			err := s.deleteEntries(ctx, q, pk)
			if err != nil {
				return err
			}

			_, err = q.ExecContext(ctx, "DELETE FROM "+storeTable(s.name)+" WHERE pk = ?", pk)
			if err != nil {
				return fmt.Errorf("sqlite: remove: %w", err)
			}
		}

		return nil
	})
}

func (s *store) Remove(ctx context.Context, keys ...any) error {
	pks, err := keycodec.EncodeList(keys, s.schema.PrimaryKeyPath)
	if err != nil {
		return s.annotate(err)
	}

	q, err := s.tx.writer(ctx)
	if err != nil {
		return s.annotate(err)
	}

	return s.annotate(s.remove(ctx, q, pks))
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

	q, err := s.tx.writer(ctx)
	if err != nil {
		return s.annotate(err)
	}

	pks, err := ix.primaryKeys(ctx, q, er)
	if err != nil {
		return ix.annotate(err)
	}

	return s.annotate(s.remove(ctx, q, pks))
}

func (s *store) ClearAllData(ctx context.Context) error {
	q, err := s.tx.writer(ctx)
	if err != nil {
		return s.annotate(err)
	}

	return s.annotate(savepoint(ctx, q, func() error {
		tables := []string{storeTable(s.name)}
		for _, ix := range s.schema.Indexes {
			tables = append(tables, indexTable(s.name, ix.Name))
		}

		for _, table := range tables {
			_, err := q.ExecContext(ctx, "DELETE FROM "+table)
			if err != nil {
				return fmt.Errorf("sqlite: clear: %w", err)
			}
		}

		return nil
	}))
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
