package idxdbtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
)

// RunBehavior applies operations derived from data to model and real, both
// opened with [Schema], and fails tb on the first diverging result.
//
// Every operation runs in its own transaction except "tx" operations, which
// group a few writes and then commit or abort.
func RunBehavior(tb testing.TB, data []byte, model, real idxdb.Provider, maxOps int) {
	tb.Helper()

	ctx := context.Background()
	gen := &opGen{s: NewByteStream(data)}
	history := make([]string, 0, maxOps)

	for i := 0; i < maxOps && gen.s.HasMore(); i++ {
		op := gen.next()
		history = append(history, op.String())

		want := op.apply(ctx, model)
		got := op.apply(ctx, real)

		err := compareResults(want, got)
		if err != nil {
			tb.Fatalf("op %d %s: %v\nhistory:\n  %s", i+1, op, err, strings.Join(history, "\n  "))
		}
	}

	// Final state.
	for _, store := range []string{"docs", "nums"} {
		all := readAllOp{store: store}

		err := compareResults(all.apply(ctx, model), all.apply(ctx, real))
		if err != nil {
			tb.Fatalf("final state of %s: %v\nhistory:\n  %s", store, err, strings.Join(history, "\n  "))
		}
	}
}

type result struct {
	value any
	err   error
}

var errorClasses = []error{
	idxdb.ErrConstraint,
	idxdb.ErrInvalidKeyShape,
	idxdb.ErrUnsupportedKeyType,
	idxdb.ErrInvalidInput,
	idxdb.ErrIndexNotFound,
	idxdb.ErrNotFullTextIndex,
}

func errorClass(err error) string {
	if err == nil {
		return "ok"
	}

	for _, class := range errorClasses {
		if errors.Is(err, class) {
			return class.Error()
		}
	}

	return "other: " + err.Error()
}

func compareResults(want, got result) error {
	if a, b := errorClass(want.err), errorClass(got.err); a != b {
		return fmt.Errorf("error mismatch: model %q (%v), real %q (%v)", a, want.err, b, got.err)
	}

	if diff := cmp.Diff(want.value, got.value, cmpopts.EquateEmpty()); diff != "" {
		return fmt.Errorf("value mismatch (-model +real):\n%s", diff)
	}

	return nil
}

type op interface {
	apply(ctx context.Context, p idxdb.Provider) result
	String() string
}

// opGen derives operations over the docs and nums stores of [Schema].
type opGen struct {
	s *ByteStream
}

var (
	genIDs    = []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	genWords  = []string{"alpha", "alps", "beta", "Béta", "gamma", "gam", "delta", "Émile", "x"}
	genEmails = []string{"a@x", "b@x", "c@x"}
	genTags   = []string{"red", "green", "blue", "re"}
	genOwners = []string{"ann", "bob"}
	genIndex  = []string{"", "n", "tags", "email", "owner", "txt"}
)

func (g *opGen) next() op {
	switch g.s.NextInt(12) {
	case 0, 1, 2:
		return putOp{store: "docs", items: g.items()}
	case 3:
		return putOp{store: "nums", items: []idxdb.Item{{"n": g.number(), "v": g.word()}}}
	case 4:
		return removeOp{store: "docs", keys: []any{g.id(), g.id()}}
	case 5:
		ix := Pick(g.s, genIndex)

		return removeRangeOp{index: ix, r: g.keyRange(ix)}
	case 6:
		ix := Pick(g.s, genIndex)

		return getRangeOp{index: ix, r: g.keyRange(ix), opts: idxdb.QueryOptions{
			Reverse: g.s.NextBool(),
			Limit:   g.s.NextInt(4),
			Offset:  g.s.NextInt(3),
		}}
	case 7:
		ix := Pick(g.s, genIndex)

		return countRangeOp{index: ix, r: g.keyRange(ix), keys: g.s.NextBool()}
	case 8:
		res := idxdb.ResolveAnd
		if g.s.NextBool() {
			res = idxdb.ResolveOr
		}

		words := []string{g.prefix()}
		if g.s.NextBool() {
			words = append(words, g.prefix())
		}

		return searchOp{phrase: strings.Join(words, " "), res: res, limit: g.s.NextInt(3)}
	case 9:
		if g.s.OneIn(3) {
			return clearStoreOp{store: "docs"}
		}

		return getOp{keys: []any{g.id(), g.id()}}
	default:
		t := txOp{commit: !g.s.OneIn(3)}
		for range 1 + g.s.NextInt(3) {
			if g.s.OneIn(3) {
				t.ops = append(t.ops, removeOp{store: "docs", keys: []any{g.id()}})
			} else {
				t.ops = append(t.ops, putOp{store: "docs", items: g.items()})
			}
		}

		return t
	}
}

func (g *opGen) id() string { return Pick(g.s, genIDs) }

func (g *opGen) word() string { return Pick(g.s, genWords) }

func (g *opGen) number() float64 { return float64(g.s.NextInt(11)-5) / 2 }

func (g *opGen) prefix() string {
	w := []rune(strings.ToLower(g.word()))

	return string(w[:1+g.s.NextInt(len(w))])
}

func (g *opGen) items() []idxdb.Item {
	n := 1 + g.s.NextInt(3)
	items := make([]idxdb.Item, 0, n)

	for range n {
		item := idxdb.Item{"id": g.id()}

		switch {
		case g.s.OneIn(24):
			delete(item, "id")
		case g.s.OneIn(24):
			item["id"] = true
		}

		if g.s.NextBool() {
			item["n"] = g.number()
		}

		if g.s.OneIn(3) {
			item["email"] = Pick(g.s, genEmails)
		}

		if g.s.NextBool() {
			tags := []any{}
			for range g.s.NextInt(4) {
				tags = append(tags, Pick(g.s, genTags))
			}

			item["tags"] = tags
		}

		if g.s.NextBool() {
			item["txt"] = g.word() + " " + g.word()
		}

		if g.s.OneIn(3) {
			item["meta"] = map[string]any{"owner": Pick(g.s, genOwners)}
		}

		items = append(items, item)
	}

	return items
}

func (g *opGen) key(index string) any {
	switch index {
	case "":
		return g.id()
	case "n":
		return g.number()
	case "tags":
		return Pick(g.s, genTags)
	case "email":
		return Pick(g.s, genEmails)
	case "owner":
		return Pick(g.s, genOwners)
	default:
		return g.prefix()
	}
}

func (g *opGen) keyRange(index string) idxdb.KeyRange {
	switch g.s.NextInt(4) {
	case 0:
		return idxdb.KeyRange{}
	case 1:
		return idxdb.Only(g.key(index))
	case 2:
		return idxdb.LowerBound(g.key(index), g.s.NextBool())
	default:
		return idxdb.Bound(g.key(index), g.key(index), g.s.NextBool(), g.s.NextBool())
	}
}

type putOp struct {
	store string
	items []idxdb.Item
}

func (o putOp) apply(ctx context.Context, p idxdb.Provider) result {
	return result{err: idxdb.Put(ctx, p, o.store, o.items...)}
}

func (o putOp) applyTo(ctx context.Context, s idxdb.Store) error {
	return s.Put(ctx, o.items...)
}

func (o putOp) String() string { return fmt.Sprintf("put %s %v", o.store, o.items) }

type removeOp struct {
	store string
	keys  []any
}

func (o removeOp) apply(ctx context.Context, p idxdb.Provider) result {
	return result{err: idxdb.Remove(ctx, p, o.store, o.keys...)}
}

func (o removeOp) applyTo(ctx context.Context, s idxdb.Store) error {
	return s.Remove(ctx, o.keys...)
}

func (o removeOp) String() string { return fmt.Sprintf("remove %s %v", o.store, o.keys) }

type removeRangeOp struct {
	index string
	r     idxdb.KeyRange
}

func (o removeRangeOp) apply(ctx context.Context, p idxdb.Provider) result {
	return result{err: idxdb.RemoveRange(ctx, p, "docs", o.index, o.r)}
}

func (o removeRangeOp) String() string { return fmt.Sprintf("removeRange docs.%s %s", o.index, o.r) }

type getRangeOp struct {
	index string
	r     idxdb.KeyRange
	opts  idxdb.QueryOptions
}

func (o getRangeOp) apply(ctx context.Context, p idxdb.Provider) result {
	items, err := idxdb.GetRange(ctx, p, "docs", o.index, o.r, o.opts)

	return result{value: items, err: err}
}

func (o getRangeOp) String() string {
	return fmt.Sprintf("getRange docs.%s %s %+v", o.index, o.r, o.opts)
}

type countRangeOp struct {
	index string
	r     idxdb.KeyRange
	keys  bool
}

func (o countRangeOp) apply(ctx context.Context, p idxdb.Provider) result {
	if o.keys {
		keys, err := idxdb.GetKeysForRange(ctx, p, "docs", o.index, o.r)

		return result{value: keys, err: err}
	}

	n, err := idxdb.CountRange(ctx, p, "docs", o.index, o.r)

	return result{value: n, err: err}
}

func (o countRangeOp) String() string {
	return fmt.Sprintf("countRange docs.%s %s keys=%v", o.index, o.r, o.keys)
}

type searchOp struct {
	phrase string
	res    idxdb.Resolution
	limit  int
}

func (o searchOp) apply(ctx context.Context, p idxdb.Provider) result {
	items, err := idxdb.FullTextSearch(ctx, p, "docs", "txt", o.phrase, o.res, o.limit)

	return result{value: items, err: err}
}

func (o searchOp) String() string {
	return fmt.Sprintf("search %q %s limit=%d", o.phrase, o.res, o.limit)
}

type getOp struct {
	keys []any
}

func (o getOp) apply(ctx context.Context, p idxdb.Provider) result {
	items, err := idxdb.GetMultiple(ctx, p, "docs", o.keys)

	return result{value: items, err: err}
}

func (o getOp) String() string { return fmt.Sprintf("get docs %v", o.keys) }

type clearStoreOp struct {
	store string
}

func (o clearStoreOp) apply(ctx context.Context, p idxdb.Provider) result {
	return result{err: idxdb.ClearAllData(ctx, p, o.store)}
}

func (o clearStoreOp) String() string { return "clear " + o.store }

type readAllOp struct {
	store string
}

func (o readAllOp) apply(ctx context.Context, p idxdb.Provider) result {
	items, err := idxdb.GetAll(ctx, p, o.store, "", idxdb.QueryOptions{})

	return result{value: items, err: err}
}

func (o readAllOp) String() string { return "readAll " + o.store }

type storeWrite interface {
	applyTo(ctx context.Context, s idxdb.Store) error
	String() string
}

// txOp groups writes in one transaction. Failed writes are recorded and the
// transaction continues; the result lists every write's error class.
type txOp struct {
	ops    []storeWrite
	commit bool
}

func (o txOp) apply(ctx context.Context, p idxdb.Provider) result {
	tx, err := p.OpenTransaction(ctx, []string{"docs"}, true)
	if err != nil {
		return result{err: err}
	}

	s, err := tx.Store("docs")
	if err != nil {
		_ = tx.Abort()

		return result{err: err}
	}

	classes := make([]string, 0, len(o.ops))
	for _, w := range o.ops {
		classes = append(classes, errorClass(w.applyTo(ctx, s)))
	}

	if !o.commit {
		return result{value: classes, err: tx.Abort()}
	}

	return result{value: classes, err: tx.Commit()}
}

func (o txOp) String() string {
	parts := make([]string, len(o.ops))
	for i, w := range o.ops {
		parts[i] = w.String()
	}

	return fmt.Sprintf("tx(commit=%v) [%s]", o.commit, strings.Join(parts, "; "))
}
