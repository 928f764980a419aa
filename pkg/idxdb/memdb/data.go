package memdb

import (
	"github.com/google/btree"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
)

const btreeDegree = 16

// maxPK sorts after every encoded primary key (they start with an ASCII
// tag), so entry{key, maxPK} is the last possible entry for key.
const maxPK = "\xff"

// entry is one key of a tree. The primary tree stores key == pk.
type entry struct {
	key  string
	pk   string
	item idxdb.Item
}

func lessEntry(a, b entry) bool {
	if a.key != b.key {
		return a.key < b.key
	}

	return a.pk < b.pk
}

// storeData is the content of one store: items by primary key plus one tree
// per secondary index. Trees share nodes copy-on-write after clone.
type storeData struct {
	schema  idxdb.StoreSchema
	primary *btree.BTreeG[entry]
	indexes map[string]*btree.BTreeG[entry]
}

func newStoreData(schema idxdb.StoreSchema) *storeData {
	d := &storeData{
		schema:  schema,
		primary: btree.NewG(btreeDegree, lessEntry),
		indexes: make(map[string]*btree.BTreeG[entry], len(schema.Indexes)),
	}

	for _, ix := range schema.Indexes {
		d.indexes[ix.Name] = btree.NewG(btreeDegree, lessEntry)
	}

	return d
}

// clone returns a lazily copied working set. Writes to the clone never show
// up in d.
func (d *storeData) clone() *storeData {
	c := &storeData{
		schema:  d.schema,
		primary: d.primary.Clone(),
		indexes: make(map[string]*btree.BTreeG[entry], len(d.indexes)),
	}

	for name, tree := range d.indexes {
		c.indexes[name] = tree.Clone()
	}

	return c
}

// tree returns the tree of index name, "" being the primary key.
func (d *storeData) tree(name string) *btree.BTreeG[entry] {
	if name == "" {
		return d.primary
	}

	return d.indexes[name]
}

func (d *storeData) get(pk string) (idxdb.Item, bool) {
	e, ok := d.primary.Get(entry{key: pk, pk: pk})
	if !ok {
		return nil, false
	}

	return e.item, true
}

// insert stores item under pk and adds its index entries. Any previous item
// under pk must have been removed.
func (d *storeData) insert(pk string, item idxdb.Item, keys map[string][]string) {
	d.primary.ReplaceOrInsert(entry{key: pk, pk: pk, item: item})

	for name, ixKeys := range keys {
		tree := d.indexes[name]
		for _, k := range ixKeys {
			tree.ReplaceOrInsert(entry{key: k, pk: pk, item: item})
		}
	}
}

// remove deletes the item under pk and every index entry derived from it.
func (d *storeData) remove(pk string) bool {
	old, ok := d.primary.Delete(entry{key: pk, pk: pk})
	if !ok {
		return false
	}

	for _, ix := range d.schema.Indexes {
		tree := d.indexes[ix.Name]
		for _, k := range idxdb.IndexKeys(ix, old.item) {
			tree.Delete(entry{key: k, pk: pk})
		}
	}

	return true
}

// scan visits the entries of tree inside r in key order (descending when
// reverse), skipping offset entries and stopping after limit (0: no limit)
// or when fn returns false.
func scan(tree *btree.BTreeG[entry], r idxdb.EncodedRange, reverse bool, offset, limit int, fn func(entry) bool) {
	if r.Empty() {
		return
	}

	skipped, taken := 0, 0

	visit := func(e entry) bool {
		if !reverse && !r.BelowHigh(e.key) {
			return false
		}

		if reverse && !r.AboveLow(e.key) {
			return false
		}

		if !r.Contains(e.key) {
			// Exclusive bound at the start of the walk.
			return true
		}

		if skipped < offset {
			skipped++

			return true
		}

		if !fn(e) {
			return false
		}

		taken++

		return limit == 0 || taken < limit
	}

	switch {
	case !reverse && r.HasLow:
		tree.AscendGreaterOrEqual(entry{key: r.Low}, visit)
	case !reverse:
		tree.Ascend(visit)
	case r.HasHigh:
		tree.DescendLessOrEqual(entry{key: r.High, pk: maxPK}, visit)
	default:
		tree.Descend(visit)
	}
}
