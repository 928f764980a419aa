// Package idxdbtest is a conformance suite for [idxdb.Provider]
// implementations.
//
// A backend test calls [Run] with a constructor:
//
//	func Test_Conformance(t *testing.T) {
//	    idxdbtest.Run(t, func(t *testing.T, schema idxdb.Schema) idxdb.Provider {
//	        db, err := memdb.Open(schema, memdb.Options{})
//	        ...
//	        return db
//	    })
//	}
//
// Items in the suite only use strings, float64 numbers, []any and nested
// maps, so backends that serialize items (JSON) compare equal.
package idxdbtest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
)

// OpenFunc returns a fresh, empty provider for schema. It should register
// cleanup with t.
type OpenFunc func(t *testing.T, schema idxdb.Schema) idxdb.Provider

// Schema returns the schema every suite test runs against.
//
//   - docs: primary key "id"; indexes txt (full-text), tags (multi-entry),
//     email (unique), n, owner (meta.owner), when
//   - nums: primary key "n"
//   - pairs: compound primary key [p, q]; index qp over [q, p]
func Schema() idxdb.Schema {
	return idxdb.Schema{
		Version: 1,
		Stores: []idxdb.StoreSchema{
			{
				Name:           "docs",
				PrimaryKeyPath: idxdb.Single("id"),
				Indexes: []idxdb.IndexSchema{
					{Name: "txt", KeyPath: idxdb.Single("txt"), FullText: true},
					{Name: "tags", KeyPath: idxdb.Single("tags"), MultiEntry: true},
					{Name: "email", KeyPath: idxdb.Single("email"), Unique: true},
					{Name: "n", KeyPath: idxdb.Single("n")},
					{Name: "owner", KeyPath: idxdb.Single("meta.owner")},
					{Name: "when", KeyPath: idxdb.Single("when")},
				},
			},
			{
				Name:           "nums",
				PrimaryKeyPath: idxdb.Single("n"),
			},
			{
				Name:           "pairs",
				PrimaryKeyPath: idxdb.Compound("p", "q"),
				Indexes: []idxdb.IndexSchema{
					{Name: "qp", KeyPath: idxdb.Compound("q", "p")},
				},
			},
		},
	}
}

// Run executes every conformance test as a parallel subtest of t.
func Run(t *testing.T, open OpenFunc) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, p idxdb.Provider)
	}{
		{"Get_Returns_Item_When_Put_In_Same_Transaction", testReadYourOwnWrites},
		{"Get_Returns_Nil_When_Key_Missing", testGetMissing},
		{"GetMultiple_Omits_Missing_Keys", testGetMultiple},
		{"Reader_Waits_For_Writer_And_Sees_Commit", testIsolationCommit},
		{"Reader_Sees_Old_Data_When_Writer_Aborts", testIsolationAbort},
		{"Abort_Leaves_Committed_Data_Unchanged", testAbortRestores},
		{"Put_Is_Atomic_When_One_Item_Is_Malformed", testPutAtomic},
		{"Put_Replaces_Index_Entries_When_Item_Overwritten", testPutReplacesIndexEntries},
		{"Put_Keeps_Last_Item_When_Batch_Repeats_Key", testPutBatchLastWins},
		{"Put_Copies_Item_When_Caller_Mutates", testPutCopies},
		{"Put_Copies_Typed_Slice_When_Caller_Mutates", testPutCopiesTypedSlice},
		{"Unique_Index_Rejects_Duplicate_Key", testUnique},
		{"Unique_Index_Allows_Key_Handover_In_One_Put", testUniqueHandover},
		{"Remove_Deletes_Item_And_Index_Entries", testRemove},
		{"RemoveRange_Deletes_Matched_Items_On_Index", testRemoveRange},
		{"ClearAllData_Empties_Store_And_Indexes", testClearAllData},
		{"GetRange_Honors_Bounds", testRangeBounds},
		{"GetRange_Orders_Numbers_Across_Sign", testNumberOrdering},
		{"GetAll_Honors_Reverse_Limit_Offset", testPaging},
		{"Count_Matches_Entries", testCounts},
		{"GetKeysForRange_Returns_Primary_Keys", testGetKeysForRange},
		{"MultiEntry_Index_Derives_One_Entry_Per_Element", testMultiEntry},
		{"MultiEntry_Paging_Counts_Entries", testMultiEntryPaging},
		{"Compound_Primary_Key_Round_Trips", testCompoundKey},
		{"Dotted_Key_Path_Indexes_Nested_Field", testDottedPath},
		{"Date_Index_Orders_By_Time", testDateIndex},
		{"Items_Without_Index_Value_Are_Excluded", testSparseIndex},
		{"FullTextSearch_Resolves_And_Or", testFullTextScenario},
		{"FullTextSearch_Matches_Prefixes_And_Folds_Accents", testFullTextPrefix},
		{"FullTextSearch_Honors_Limit", testFullTextLimit},
		{"Errors_Report_Malformed_Keys", testKeyErrors},
		{"Errors_Report_Unknown_Names", testNameErrors},
		{"Shared_Transaction_Rejects_Writes", testReadOnly},
		{"Finished_Transaction_Rejects_Use", testFinished},
		{"Wait_Reports_Outcome", testWait},
		{"Invalid_Query_Options_Are_Rejected", testInvalidOptions},
		{"Close_Rejects_New_Transactions", testClose},
		{"Helpers_Run_Single_Operations", testHelpers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := open(t, Schema())
			tt.fn(t, p)
		})
	}
}

// --- helpers ---

func update(t *testing.T, p idxdb.Provider, store string, fn func(s idxdb.Store)) {
	t.Helper()

	err := idxdb.Update(t.Context(), p, []string{store}, func(tx idxdb.Transaction) error {
		s, err := tx.Store(store)
		if err != nil {
			return err
		}

		fn(s)

		return nil
	})
	if err != nil {
		t.Fatalf("update %s: %v", store, err)
	}
}

func put(t *testing.T, p idxdb.Provider, store string, items ...idxdb.Item) {
	t.Helper()

	err := idxdb.Put(t.Context(), p, store, items...)
	if err != nil {
		t.Fatalf("put %s: %v", store, err)
	}
}

func ids(items []idxdb.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprint(item["id"]))
	}

	return out
}

func sortedIDs(items []idxdb.Item) []string {
	out := ids(items)
	slices.Sort(out)

	return out
}

func nums(items []idxdb.Item) []float64 {
	out := make([]float64, 0, len(items))
	for _, item := range items {
		n, _ := item["n"].(float64)
		out = append(out, n)
	}

	return out
}

func diff(t *testing.T, what string, want, got any) {
	t.Helper()

	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("%s mismatch (-want +got):\n%s", what, d)
	}
}

func mustErr(t *testing.T, what string, err, want error) {
	t.Helper()

	if !errors.Is(err, want) {
		t.Fatalf("%s: error = %v, want %v", what, err, want)
	}
}

// must is called as must(f())(t) so that f's results spread into it.
func must[T any](v T, err error) func(*testing.T) T {
	return func(t *testing.T) T {
		t.Helper()

		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		return v
	}
}

func openTx(t *testing.T, p idxdb.Provider, stores []string, exclusive bool) idxdb.Transaction {
	t.Helper()

	tx, err := p.OpenTransaction(t.Context(), stores, exclusive)
	if err != nil {
		t.Fatalf("open transaction: %v", err)
	}

	t.Cleanup(func() { _ = tx.Abort() })

	return tx
}

func storeOf(t *testing.T, tx idxdb.Transaction, name string) idxdb.Store {
	t.Helper()

	s, err := tx.Store(name)
	if err != nil {
		t.Fatalf("store %s: %v", name, err)
	}

	return s
}

func indexOf(t *testing.T, s idxdb.Store, name string) idxdb.Index {
	t.Helper()

	ix, err := idxdb.OpenIndexOrPrimary(s, name)
	if err != nil {
		t.Fatalf("index %s: %v", name, err)
	}

	return ix
}

func numsRange(t *testing.T, p idxdb.Provider, r idxdb.KeyRange, opts idxdb.QueryOptions) []float64 {
	t.Helper()

	return nums(must(idxdb.GetRange(t.Context(), p, "nums", "", r, opts))(t))
}

// --- transactions and isolation ---

func testReadYourOwnWrites(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	tx := openTx(t, p, []string{"docs"}, true)
	s := storeOf(t, tx, "docs")

	item := idxdb.Item{"id": "a1", "txt": "hello", "n": 1.0, "meta": map[string]any{"owner": "bob"}}

	if err := s.Put(ctx, item); err != nil {
		t.Fatal(err)
	}

	got := must(s.Get(ctx, "a1"))(t)
	diff(t, "get before commit", item, got)

	diff(t, "index before commit", []string{"a1"}, ids(must(indexOf(t, s, "owner").GetOnly(ctx, "bob", idxdb.QueryOptions{}))(t)))

	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	diff(t, "get after commit", item, must(idxdb.Get(ctx, p, "docs", "a1"))(t))
}

func testGetMissing(t *testing.T, p idxdb.Provider) {
	got, err := idxdb.Get(t.Context(), p, "docs", "nope")
	if err != nil || got != nil {
		t.Fatalf("Get(missing) = %v, %v; want nil, nil", got, err)
	}

	all := must(idxdb.GetAll(t.Context(), p, "docs", "", idxdb.QueryOptions{}))(t)
	if len(all) != 0 {
		t.Fatalf("GetAll on empty store = %v", all)
	}
}

func testGetMultiple(t *testing.T, p idxdb.Provider) {
	put(t, p, "docs", idxdb.Item{"id": "a"}, idxdb.Item{"id": "b"}, idxdb.Item{"id": "c"})

	got := must(idxdb.GetMultiple(t.Context(), p, "docs", []any{"c", "x", "a"}))(t)
	diff(t, "GetMultiple", []string{"a", "c"}, sortedIDs(got))
}

func testIsolationCommit(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs", idxdb.Item{"id": "a", "v": "old"})

	writer := openTx(t, p, []string{"docs"}, true)
	s := storeOf(t, writer, "docs")

	if err := s.Put(ctx, idxdb.Item{"id": "a", "v": "new"}); err != nil {
		t.Fatal(err)
	}

	seen := make(chan idxdb.Item, 1)

	go func() {
		item, _ := idxdb.Get(context.Background(), p, "docs", "a")
		seen <- item
	}()

	select {
	case item := <-seen:
		t.Fatalf("reader ran during uncommitted write and saw %v", item)
	case <-time.After(30 * time.Millisecond):
	}

	if err := writer.Commit(); err != nil {
		t.Fatal(err)
	}

	select {
	case item := <-seen:
		diff(t, "reader after commit", idxdb.Item{"id": "a", "v": "new"}, item)
	case <-time.After(5 * time.Second):
		t.Fatal("reader not admitted after commit")
	}
}

func testIsolationAbort(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs", idxdb.Item{"id": "a", "v": "old"})

	writer := openTx(t, p, []string{"docs"}, true)
	s := storeOf(t, writer, "docs")

	if err := s.Put(ctx, idxdb.Item{"id": "a", "v": "new"}, idxdb.Item{"id": "b"}); err != nil {
		t.Fatal(err)
	}

	seen := make(chan []idxdb.Item, 1)

	go func() {
		items, _ := idxdb.GetAll(context.Background(), p, "docs", "", idxdb.QueryOptions{})
		seen <- items
	}()

	if err := writer.Abort(); err != nil {
		t.Fatal(err)
	}

	select {
	case items := <-seen:
		diff(t, "reader after abort", []idxdb.Item{{"id": "a", "v": "old"}}, items)
	case <-time.After(5 * time.Second):
		t.Fatal("reader not admitted after abort")
	}
}

func testAbortRestores(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs",
		idxdb.Item{"id": "a", "tags": []any{"x"}, "email": "a@x"},
		idxdb.Item{"id": "b", "tags": []any{"y"}},
	)

	before := must(idxdb.GetAll(ctx, p, "docs", "", idxdb.QueryOptions{}))(t)

	tx := openTx(t, p, []string{"docs"}, true)
	s := storeOf(t, tx, "docs")

	if err := s.Put(ctx, idxdb.Item{"id": "a", "tags": []any{"z"}}, idxdb.Item{"id": "c", "email": "a@x"}); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(ctx, "b"); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearAllData(ctx); err != nil {
		t.Fatal(err)
	}

	if err := tx.Abort(); err != nil {
		t.Fatal(err)
	}

	diff(t, "items after abort", before, must(idxdb.GetAll(ctx, p, "docs", "", idxdb.QueryOptions{}))(t))
	diff(t, "tags after abort", []string{"a"}, ids(must(idxdb.GetOnly(ctx, p, "docs", "tags", "x", idxdb.QueryOptions{}))(t)))
	diff(t, "email after abort", []string{"a"}, ids(must(idxdb.GetOnly(ctx, p, "docs", "email", "a@x", idxdb.QueryOptions{}))(t)))

	if n := must(idxdb.CountOnly(ctx, p, "docs", "tags", "z"))(t); n != 0 {
		t.Fatalf("aborted tag still indexed: %d", n)
	}
}

// --- writes ---

func testPutAtomic(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()

	err := idxdb.Put(ctx, p, "docs", idxdb.Item{"id": "good"}, idxdb.Item{"txt": "no id"})
	mustErr(t, "put without primary key", err, idxdb.ErrInvalidKeyShape)

	err = idxdb.Put(ctx, p, "docs", idxdb.Item{"id": "good"}, idxdb.Item{"id": true})
	mustErr(t, "put with bool key", err, idxdb.ErrUnsupportedKeyType)

	err = idxdb.Put(ctx, p, "pairs", idxdb.Item{"p": 1.0})
	mustErr(t, "put with partial compound key", err, idxdb.ErrInvalidKeyShape)

	if n := must(idxdb.CountAll(ctx, p, "docs", ""))(t); n != 0 {
		t.Fatalf("failed put left %d items", n)
	}
}

func testPutReplacesIndexEntries(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs", idxdb.Item{"id": "a", "n": 1.0, "tags": []any{"red", "blue"}, "txt": "alpha"})
	put(t, p, "docs", idxdb.Item{"id": "a", "n": 2.0, "tags": []any{"green"}, "txt": "beta"})

	if n := must(idxdb.CountOnly(ctx, p, "docs", "n", 1.0))(t); n != 0 {
		t.Fatalf("stale n entry: %d", n)
	}

	diff(t, "n=2", []string{"a"}, ids(must(idxdb.GetOnly(ctx, p, "docs", "n", 2.0, idxdb.QueryOptions{}))(t)))

	if n := must(idxdb.CountAll(ctx, p, "docs", "tags"))(t); n != 1 {
		t.Fatalf("tag entries = %d, want 1", n)
	}

	hits := must(idxdb.FullTextSearch(ctx, p, "docs", "txt", "alpha", idxdb.ResolveOr, 0))(t)
	if len(hits) != 0 {
		t.Fatalf("stale full-text entry: %v", hits)
	}
}

func testPutBatchLastWins(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs", idxdb.Item{"id": "a", "n": 1.0}, idxdb.Item{"id": "a", "n": 2.0})

	diff(t, "item", idxdb.Item{"id": "a", "n": 2.0}, must(idxdb.Get(ctx, p, "docs", "a"))(t))

	if n := must(idxdb.CountAll(ctx, p, "docs", "n"))(t); n != 1 {
		t.Fatalf("n entries = %d, want 1", n)
	}
}

func testPutCopies(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	item := idxdb.Item{"id": "a", "meta": map[string]any{"owner": "bob"}}
	put(t, p, "docs", item)

	item["meta"].(map[string]any)["owner"] = "eve"

	got := must(idxdb.Get(ctx, p, "docs", "a"))(t)
	diff(t, "stored item", idxdb.Item{"id": "a", "meta": map[string]any{"owner": "bob"}}, got)

	got["meta"].(map[string]any)["owner"] = "mallory"

	diff(t, "owner index", []string{"a"}, ids(must(idxdb.GetOnly(ctx, p, "docs", "owner", "bob", idxdb.QueryOptions{}))(t)))
}

func testPutCopiesTypedSlice(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	tags := []int{1, 2}
	put(t, p, "docs", idxdb.Item{"id": "x", "tags": tags})

	tags[0] = 99

	got := must(idxdb.Get(ctx, p, "docs", "x"))(t)
	if s := fmt.Sprint(got["tags"]); s != "[1 2]" {
		t.Fatalf("stored tags = %s, want [1 2]", s)
	}

	diff(t, "tags=1", []string{"x"}, ids(must(idxdb.GetOnly(ctx, p, "docs", "tags", 1, idxdb.QueryOptions{}))(t)))

	if n := must(idxdb.CountOnly(ctx, p, "docs", "tags", 99))(t); n != 0 {
		t.Fatalf("tags=99 count = %d, want 0", n)
	}
}

func testUnique(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs", idxdb.Item{"id": "a", "email": "x@y"})

	err := idxdb.Put(ctx, p, "docs", idxdb.Item{"id": "b", "email": "x@y"})
	mustErr(t, "duplicate unique key", err, idxdb.ErrConstraint)

	var iErr *idxdb.Error
	if !errors.As(err, &iErr) || iErr.Store != "docs" || iErr.Index != "email" {
		t.Fatalf("constraint error lacks context: %v", err)
	}

	err = idxdb.Put(ctx, p, "docs", idxdb.Item{"id": "c", "email": "c@y"}, idxdb.Item{"id": "d", "email": "c@y"})
	mustErr(t, "duplicate within batch", err, idxdb.ErrConstraint)

	// Rewriting the owner keeps its key.
	put(t, p, "docs", idxdb.Item{"id": "a", "email": "x@y", "v": 2.0})

	diff(t, "items", []string{"a"}, ids(must(idxdb.GetAll(ctx, p, "docs", "", idxdb.QueryOptions{}))(t)))
}

func testUniqueHandover(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs", idxdb.Item{"id": "a", "email": "x@y"})
	put(t, p, "docs", idxdb.Item{"id": "a", "email": "new@y"}, idxdb.Item{"id": "b", "email": "x@y"})

	diff(t, "x@y owner", []string{"b"}, ids(must(idxdb.GetOnly(ctx, p, "docs", "email", "x@y", idxdb.QueryOptions{}))(t)))
}

func testRemove(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs",
		idxdb.Item{"id": "a", "tags": []any{"red"}, "txt": "quick fox", "email": "a@x"},
		idxdb.Item{"id": "b", "tags": []any{"red"}},
	)

	if err := idxdb.Remove(ctx, p, "docs", "a", "missing"); err != nil {
		t.Fatal(err)
	}

	diff(t, "remaining", []string{"b"}, ids(must(idxdb.GetAll(ctx, p, "docs", "", idxdb.QueryOptions{}))(t)))
	diff(t, "red", []string{"b"}, ids(must(idxdb.GetOnly(ctx, p, "docs", "tags", "red", idxdb.QueryOptions{}))(t)))

	if n := must(idxdb.CountAll(ctx, p, "docs", "txt"))(t); n != 0 {
		t.Fatalf("full-text entries after remove = %d", n)
	}

	// The unique key is free again.
	put(t, p, "docs", idxdb.Item{"id": "c", "email": "a@x"})
}

func testRemoveRange(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()

	for i := 1; i <= 5; i++ {
		put(t, p, "docs", idxdb.Item{"id": fmt.Sprintf("d%d", i), "n": float64(i)})
	}

	put(t, p, "docs", idxdb.Item{"id": "nonum"})

	if err := idxdb.RemoveRange(ctx, p, "docs", "n", idxdb.Bound(2.0, 4.0, false, false)); err != nil {
		t.Fatal(err)
	}

	diff(t, "after index range", []string{"d1", "d5", "nonum"}, ids(must(idxdb.GetAll(ctx, p, "docs", "", idxdb.QueryOptions{}))(t)))

	if err := idxdb.RemoveRange(ctx, p, "docs", "", idxdb.UpperBound("d5", true)); err != nil {
		t.Fatal(err)
	}

	diff(t, "after primary range", []string{"d5", "nonum"}, ids(must(idxdb.GetAll(ctx, p, "docs", "", idxdb.QueryOptions{}))(t)))

	if n := must(idxdb.CountAll(ctx, p, "docs", "n"))(t); n != 1 {
		t.Fatalf("n entries = %d, want 1", n)
	}
}

func testClearAllData(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs", idxdb.Item{"id": "a", "tags": []any{"x"}, "email": "e"})
	put(t, p, "nums", idxdb.Item{"n": 1.0})

	if err := idxdb.ClearAllData(ctx, p, "docs"); err != nil {
		t.Fatal(err)
	}

	for _, ix := range []string{"", "tags", "email"} {
		if n := must(idxdb.CountAll(ctx, p, "docs", ix))(t); n != 0 {
			t.Fatalf("index %q has %d entries after clear", ix, n)
		}
	}

	if n := must(idxdb.CountAll(ctx, p, "nums", ""))(t); n != 1 {
		t.Fatalf("other store affected by clear: %d", n)
	}

	// Writes after a clear in the same transaction survive.
	update(t, p, "docs", func(s idxdb.Store) {
		must(0, s.ClearAllData(ctx))(t)
		must(0, s.Put(ctx, idxdb.Item{"id": "z", "email": "e"}))(t)
	})

	diff(t, "after clear+put", []string{"z"}, ids(must(idxdb.GetOnly(ctx, p, "docs", "email", "e", idxdb.QueryOptions{}))(t)))
}

// --- queries ---

func testRangeBounds(t *testing.T, p idxdb.Provider) {
	for i := 1; i <= 5; i++ {
		put(t, p, "nums", idxdb.Item{"n": float64(i)})
	}

	tests := []struct {
		name string
		r    idxdb.KeyRange
		want []float64
	}{
		{"[2,4)", idxdb.Bound(2, 4, false, true), []float64{2, 3}},
		{"[2,4]", idxdb.Bound(2, 4, false, false), []float64{2, 3, 4}},
		{"(2,4]", idxdb.Bound(2, 4, true, false), []float64{3, 4}},
		{"(2,4)", idxdb.Bound(2, 4, true, true), []float64{3}},
		{">=4", idxdb.LowerBound(4, false), []float64{4, 5}},
		{">4", idxdb.LowerBound(4, true), []float64{5}},
		{"<=2", idxdb.UpperBound(2, false), []float64{1, 2}},
		{"<2", idxdb.UpperBound(2, true), []float64{1}},
		{"only 3", idxdb.Only(3), []float64{3}},
		{"empty (3,3)", idxdb.Bound(3, 3, true, true), []float64{}},
		{"inverted", idxdb.Bound(4, 2, false, false), []float64{}},
		{"all", idxdb.KeyRange{}, []float64{1, 2, 3, 4, 5}},
	}

	for _, tt := range tests {
		diff(t, tt.name, tt.want, numsRange(t, p, tt.r, idxdb.QueryOptions{}))
		diff(t, tt.name+" reversed", reversed(tt.want), numsRange(t, p, tt.r, idxdb.QueryOptions{Reverse: true}))
	}
}

func reversed(in []float64) []float64 {
	out := slices.Clone(in)
	slices.Reverse(out)

	return out
}

func testNumberOrdering(t *testing.T, p idxdb.Provider) {
	values := []float64{-1e9, -250.5, -3, -1, -0.25, 0, 0.001, 1, 2.5, 10, 99, 1e12}

	items := make([]idxdb.Item, 0, len(values))
	for _, i := range []int{5, 0, 11, 3, 8, 1, 10, 2, 7, 4, 9, 6} {
		items = append(items, idxdb.Item{"n": values[i]})
	}

	put(t, p, "nums", items...)

	diff(t, "ascending", values, numsRange(t, p, idxdb.KeyRange{}, idxdb.QueryOptions{}))
	diff(t, "negative range", []float64{-3, -1, -0.25}, numsRange(t, p, idxdb.Bound(-3, 0, false, true), idxdb.QueryOptions{}))
	diff(t, "around zero", []float64{-0.25, 0, 0.001}, numsRange(t, p, idxdb.Bound(-0.5, 0.5, false, false), idxdb.QueryOptions{}))
}

func testPaging(t *testing.T, p idxdb.Provider) {
	for i := 1; i <= 10; i++ {
		put(t, p, "nums", idxdb.Item{"n": float64(i)})
	}

	tests := []struct {
		name string
		opts idxdb.QueryOptions
		want []float64
	}{
		{"limit", idxdb.QueryOptions{Limit: 3}, []float64{1, 2, 3}},
		{"offset", idxdb.QueryOptions{Offset: 8}, []float64{9, 10}},
		{"offset+limit", idxdb.QueryOptions{Offset: 2, Limit: 2}, []float64{3, 4}},
		{"reverse+limit", idxdb.QueryOptions{Reverse: true, Limit: 2}, []float64{10, 9}},
		{"reverse+offset+limit", idxdb.QueryOptions{Reverse: true, Offset: 1, Limit: 3}, []float64{9, 8, 7}},
		{"offset past end", idxdb.QueryOptions{Offset: 20}, []float64{}},
	}

	for _, tt := range tests {
		diff(t, tt.name, tt.want, numsRange(t, p, idxdb.KeyRange{}, tt.opts))
	}

	diff(t, "range+reverse+limit", []float64{7, 6},
		numsRange(t, p, idxdb.Bound(3, 7, false, false), idxdb.QueryOptions{Reverse: true, Limit: 2}))
}

func testCounts(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()

	for i := 1; i <= 5; i++ {
		put(t, p, "nums", idxdb.Item{"n": float64(i)})
	}

	if n := must(idxdb.CountAll(ctx, p, "nums", ""))(t); n != 5 {
		t.Fatalf("CountAll = %d", n)
	}

	if n := must(idxdb.CountOnly(ctx, p, "nums", "", 3))(t); n != 1 {
		t.Fatalf("CountOnly(3) = %d", n)
	}

	if n := must(idxdb.CountOnly(ctx, p, "nums", "", 42))(t); n != 0 {
		t.Fatalf("CountOnly(42) = %d", n)
	}

	if n := must(idxdb.CountRange(ctx, p, "nums", "", idxdb.Bound(2, 4, false, true)))(t); n != 2 {
		t.Fatalf("CountRange([2,4)) = %d", n)
	}
}

func testGetKeysForRange(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs",
		idxdb.Item{"id": "a", "n": 3.0},
		idxdb.Item{"id": "b", "n": 1.0},
		idxdb.Item{"id": "c", "n": 2.0},
	)

	got := must(idxdb.GetKeysForRange(ctx, p, "docs", "n", idxdb.Bound(1, 2, false, false)))(t)
	diff(t, "keys by n", []any{"b", "c"}, got)

	put(t, p, "pairs", idxdb.Item{"p": 1.0, "q": "x"}, idxdb.Item{"p": 2.0, "q": "y"})

	got = must(idxdb.GetKeysForRange(ctx, p, "pairs", "", idxdb.KeyRange{}))(t)
	diff(t, "compound keys", []any{[]any{1.0, "x"}, []any{2.0, "y"}}, got)
}

// --- index kinds ---

func testMultiEntry(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs", idxdb.Item{"id": "x", "tags": []any{"red", "blue"}})

	diff(t, "red", []string{"x"}, ids(must(idxdb.GetOnly(ctx, p, "docs", "tags", "red", idxdb.QueryOptions{}))(t)))
	diff(t, "green", []string{}, ids(must(idxdb.GetOnly(ctx, p, "docs", "tags", "green", idxdb.QueryOptions{}))(t)))

	if n := must(idxdb.CountAll(ctx, p, "docs", "tags"))(t); n != 2 {
		t.Fatalf("CountAll(tags) = %d, want 2", n)
	}

	// Duplicates collapse; a scalar is a one-element array; invalid elements
	// are skipped.
	put(t, p, "docs",
		idxdb.Item{"id": "y", "tags": []any{"red", "red", true, nil}},
		idxdb.Item{"id": "z", "tags": "blue"},
	)

	diff(t, "red after dupes", []string{"x", "y"}, ids(must(idxdb.GetOnly(ctx, p, "docs", "tags", "red", idxdb.QueryOptions{}))(t)))
	diff(t, "blue scalar", []string{"x", "z"}, ids(must(idxdb.GetOnly(ctx, p, "docs", "tags", "blue", idxdb.QueryOptions{}))(t)))

	if n := must(idxdb.CountAll(ctx, p, "docs", "tags"))(t); n != 4 {
		t.Fatalf("CountAll(tags) = %d, want 4", n)
	}
}

func testMultiEntryPaging(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs",
		idxdb.Item{"id": "a", "tags": []any{"k1", "k2"}},
		idxdb.Item{"id": "b", "tags": []any{"k1", "k3"}},
	)

	// Entries in order: (k1,a) (k1,b) (k2,a) (k3,b).
	all := must(idxdb.GetAll(ctx, p, "docs", "tags", idxdb.QueryOptions{}))(t)
	diff(t, "all entries", []string{"a", "b", "a", "b"}, ids(all))

	page := must(idxdb.GetAll(ctx, p, "docs", "tags", idxdb.QueryOptions{Offset: 1, Limit: 2}))(t)
	diff(t, "page", []string{"b", "a"}, ids(page))

	rev := must(idxdb.GetAll(ctx, p, "docs", "tags", idxdb.QueryOptions{Reverse: true, Limit: 3}))(t)
	diff(t, "reverse", []string{"b", "a", "b"}, ids(rev))
}

func testCompoundKey(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "pairs",
		idxdb.Item{"p": 1.0, "q": "b", "v": "1b"},
		idxdb.Item{"p": 1.0, "q": "a", "v": "1a"},
		idxdb.Item{"p": 2.0, "q": "a", "v": "2a"},
		idxdb.Item{"p": "s", "q": "a", "v": "sa"},
	)

	got := must(idxdb.Get(ctx, p, "pairs", []any{1.0, "b"}))(t)
	diff(t, "get", idxdb.Item{"p": 1.0, "q": "b", "v": "1b"}, got)

	only := must(idxdb.GetOnly(ctx, p, "pairs", "", []any{2, "a"}, idxdb.QueryOptions{}))(t)
	diff(t, "only", []any{"2a"}, values(only))

	all := must(idxdb.GetAll(ctx, p, "pairs", "", idxdb.QueryOptions{}))(t)
	diff(t, "tuple order", []any{"1a", "1b", "2a", "sa"}, values(all))

	byQ := must(idxdb.GetRange(ctx, p, "pairs", "qp", idxdb.Bound([]any{"a", 1}, []any{"a", 2}, false, false), idxdb.QueryOptions{}))(t)
	diff(t, "qp range", []any{"1a", "2a"}, values(byQ))

	_, err := idxdb.Get(ctx, p, "pairs", 1.0)
	mustErr(t, "scalar for compound", err, idxdb.ErrInvalidKeyShape)

	multi := must(idxdb.GetMultiple(ctx, p, "pairs", []any{[]any{1, "a"}, []any{9, "z"}}))(t)
	diff(t, "get multiple", []any{"1a"}, values(multi))
}

func values(items []idxdb.Item) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, item["v"])
	}

	return out
}

func testDottedPath(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs",
		idxdb.Item{"id": "a", "meta": map[string]any{"owner": "bob"}},
		idxdb.Item{"id": "b", "meta": map[string]any{"owner": "alice"}},
		idxdb.Item{"id": "c", "meta": "flat"},
	)

	diff(t, "owners", []string{"b", "a"}, ids(must(idxdb.GetAll(ctx, p, "docs", "owner", idxdb.QueryOptions{}))(t)))
}

func testDateIndex(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	put(t, p, "docs",
		idxdb.Item{"id": "late", "when": base.Add(48 * time.Hour)},
		idxdb.Item{"id": "early", "when": base},
		idxdb.Item{"id": "mid", "when": base.Add(24 * time.Hour)},
	)

	diff(t, "by date", []string{"early", "mid", "late"}, ids(must(idxdb.GetAll(ctx, p, "docs", "when", idxdb.QueryOptions{}))(t)))

	got := must(idxdb.Get(ctx, p, "docs", "early"))(t)
	if when, ok := got["when"].(time.Time); !ok || !when.Equal(base) {
		t.Fatalf("when = %#v, want %v", got["when"], base)
	}

	r := idxdb.Bound(base.Add(time.Hour), base.Add(72*time.Hour), false, false)
	diff(t, "date range", []string{"mid", "late"}, ids(must(idxdb.GetRange(ctx, p, "docs", "when", r, idxdb.QueryOptions{}))(t)))

	// Dates sort after every number.
	put(t, p, "docs", idxdb.Item{"id": "num", "when": 1e15})
	diff(t, "number before date", []string{"num", "early", "mid", "late"}, ids(must(idxdb.GetAll(ctx, p, "docs", "when", idxdb.QueryOptions{}))(t)))
}

func testSparseIndex(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs",
		idxdb.Item{"id": "a", "n": 1.0},
		idxdb.Item{"id": "b"},
		idxdb.Item{"id": "c", "n": nil},
		idxdb.Item{"id": "d", "n": map[string]any{"x": 1.0}},
		idxdb.Item{"id": "e", "n": []any{1.0}},
	)

	if n := must(idxdb.CountAll(ctx, p, "docs", "n"))(t); n != 1 {
		t.Fatalf("n entries = %d, want 1", n)
	}

	if n := must(idxdb.CountAll(ctx, p, "docs", ""))(t); n != 5 {
		t.Fatalf("items = %d, want 5", n)
	}
}

func testFullTextScenario(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs",
		idxdb.Item{"id": "a1", "txt": "the quick brown fox"},
		idxdb.Item{"id": "a2", "txt": "bob likes his dog"},
	)

	search := func(phrase string, res idxdb.Resolution) []string {
		return sortedIDs(must(idxdb.FullTextSearch(ctx, p, "docs", "txt", phrase, res, 0))(t))
	}

	diff(t, "brown AND", []string{"a1"}, search("brown", idxdb.ResolveAnd))
	diff(t, "b z OR", []string{"a1", "a2"}, search("b z", idxdb.ResolveOr))
	diff(t, "b z AND", []string{}, search("b z", idxdb.ResolveAnd))
	diff(t, "quick fox AND", []string{"a1"}, search("quick fox", idxdb.ResolveAnd))
	diff(t, "empty phrase", []string{}, search("  ?! ", idxdb.ResolveOr))
}

func testFullTextPrefix(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs",
		idxdb.Item{"id": "a", "txt": "Crème brûlée, Café!"},
		idxdb.Item{"id": "b", "txt": "cafeteria"},
		idxdb.Item{"id": "c", "txt": 42.0},
	)

	got := sortedIDs(must(idxdb.FullTextSearch(ctx, p, "docs", "txt", "CAFE", idxdb.ResolveAnd, 0))(t))
	diff(t, "cafe prefix", []string{"a", "b"}, got)

	got = sortedIDs(must(idxdb.FullTextSearch(ctx, p, "docs", "txt", "creme cafe", idxdb.ResolveAnd, 0))(t))
	diff(t, "creme and cafe", []string{"a"}, got)

	got = sortedIDs(must(idxdb.FullTextSearch(ctx, p, "docs", "txt", "brulee", idxdb.ResolveOr, 0))(t))
	diff(t, "folded", []string{"a"}, got)
}

func testFullTextLimit(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()

	for i := range 5 {
		put(t, p, "docs", idxdb.Item{"id": fmt.Sprintf("d%d", i), "txt": "shared words here"})
	}

	got := must(idxdb.FullTextSearch(ctx, p, "docs", "txt", "shared words", idxdb.ResolveOr, 2))(t)
	if len(got) != 2 {
		t.Fatalf("limited search returned %d items", len(got))
	}

	got = must(idxdb.FullTextSearch(ctx, p, "docs", "txt", "shared words", idxdb.ResolveAnd, 0))(t)
	if len(got) != 5 {
		t.Fatalf("unlimited search returned %d items", len(got))
	}
}

// --- errors ---

func testKeyErrors(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()

	_, err := idxdb.Get(ctx, p, "docs", []any{"a", "b"})
	mustErr(t, "tuple for single key", err, idxdb.ErrInvalidKeyShape)

	_, err = idxdb.Get(ctx, p, "docs", true)
	mustErr(t, "bool key", err, idxdb.ErrUnsupportedKeyType)

	_, err = idxdb.GetRange(ctx, p, "docs", "n", idxdb.Bound(1, false, false, false), idxdb.QueryOptions{})
	mustErr(t, "bool bound", err, idxdb.ErrUnsupportedKeyType)

	_, err = idxdb.GetOnly(ctx, p, "docs", "", nil, idxdb.QueryOptions{})
	mustErr(t, "nil only", err, idxdb.ErrInvalidKeyShape)

	err = idxdb.Remove(ctx, p, "docs", "ok", []any{1})
	mustErr(t, "remove with tuple", err, idxdb.ErrInvalidKeyShape)

	_, err = idxdb.GetMultiple(ctx, p, "pairs", []any{"x"})
	mustErr(t, "get multiple scalar for compound", err, idxdb.ErrInvalidKeyShape)
}

func testNameErrors(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()

	_, err := p.OpenTransaction(ctx, []string{"nope"}, false)
	mustErr(t, "unknown store", err, idxdb.ErrUnknownStore)

	tx := openTx(t, p, []string{"docs"}, false)

	_, err = tx.Store("nums")
	mustErr(t, "store outside scope", err, idxdb.ErrStoreNotFound)

	s := storeOf(t, tx, "docs")

	_, err = s.OpenIndex("nope")
	mustErr(t, "unknown index", err, idxdb.ErrIndexNotFound)

	_, err = indexOf(t, s, "n").FullTextSearch(ctx, "x", idxdb.ResolveOr, 0)
	mustErr(t, "search on plain index", err, idxdb.ErrNotFullTextIndex)

	_, err = s.OpenPrimaryKey().FullTextSearch(ctx, "x", idxdb.ResolveOr, 0)
	mustErr(t, "search on primary key", err, idxdb.ErrNotFullTextIndex)

	if got := indexOf(t, s, "tags").Schema(); !got.MultiEntry || got.Name != "tags" {
		t.Fatalf("index schema = %+v", got)
	}
}

func testReadOnly(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	tx := openTx(t, p, []string{"docs"}, false)
	s := storeOf(t, tx, "docs")

	mustErr(t, "put", s.Put(ctx, idxdb.Item{"id": "a"}), idxdb.ErrReadOnly)
	mustErr(t, "remove", s.Remove(ctx, "a"), idxdb.ErrReadOnly)
	mustErr(t, "remove range", s.RemoveRange(ctx, "", idxdb.KeyRange{}), idxdb.ErrReadOnly)
	mustErr(t, "clear", s.ClearAllData(ctx), idxdb.ErrReadOnly)

	if tx.Exclusive() {
		t.Fatal("shared transaction reports exclusive")
	}

	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func testFinished(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	tx := openTx(t, p, []string{"docs"}, true)
	s := storeOf(t, tx, "docs")
	ix := indexOf(t, s, "n")

	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	mustErr(t, "commit twice", tx.Commit(), idxdb.ErrTransactionDone)

	if err := tx.Abort(); err != nil {
		t.Fatalf("abort after commit: %v", err)
	}

	_, err := tx.Store("docs")
	mustErr(t, "store after commit", err, idxdb.ErrTransactionDone)

	_, err = s.Get(ctx, "a")
	mustErr(t, "get after commit", err, idxdb.ErrTransactionDone)

	mustErr(t, "put after commit", s.Put(ctx, idxdb.Item{"id": "a"}), idxdb.ErrTransactionDone)

	_, err = ix.CountAll(ctx)
	mustErr(t, "count after commit", err, idxdb.ErrTransactionDone)
}

func testWait(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()

	committed := openTx(t, p, []string{"docs"}, true)
	if committed.ID() == "" || !slices.Equal(committed.StoreNames(), []string{"docs"}) {
		t.Fatalf("transaction identity: id=%q stores=%v", committed.ID(), committed.StoreNames())
	}

	if err := committed.Commit(); err != nil {
		t.Fatal(err)
	}

	<-committed.Done()

	if err := committed.Wait(ctx); err != nil {
		t.Fatalf("Wait after commit = %v", err)
	}

	aborted := openTx(t, p, nil, true)
	diff(t, "all stores", []string{"docs", "nums", "pairs"}, aborted.StoreNames())

	if err := aborted.Abort(); err != nil {
		t.Fatal(err)
	}

	mustErr(t, "Wait after abort", aborted.Wait(ctx), idxdb.ErrAborted)
}

func testInvalidOptions(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()

	_, err := idxdb.GetAll(ctx, p, "nums", "", idxdb.QueryOptions{Limit: -1})
	mustErr(t, "negative limit", err, idxdb.ErrInvalidInput)

	_, err = idxdb.GetAll(ctx, p, "nums", "", idxdb.QueryOptions{Offset: -1})
	mustErr(t, "negative offset", err, idxdb.ErrInvalidInput)

	_, err = idxdb.FullTextSearch(ctx, p, "docs", "txt", "x", idxdb.Resolution(7), 0)
	mustErr(t, "bad resolution", err, idxdb.ErrInvalidInput)
}

func testClose(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	put(t, p, "docs", idxdb.Item{"id": "a"})

	tx := openTx(t, p, []string{"docs"}, false)

	closed := make(chan error, 1)

	go func() { closed <- p.Close(context.Background()) }()

	select {
	case err := <-closed:
		t.Fatalf("Close returned while a transaction runs: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	// The running transaction keeps working.
	if _, err := storeOf(t, tx, "docs").Get(ctx, "a"); err != nil {
		t.Fatal(err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}

	_, err := p.OpenTransaction(ctx, nil, false)
	mustErr(t, "open after close", err, idxdb.ErrProviderClosing)

	if err := p.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func testHelpers(t *testing.T, p idxdb.Provider) {
	ctx := t.Context()
	boom := errors.New("boom")

	err := idxdb.Update(ctx, p, []string{"docs"}, func(tx idxdb.Transaction) error {
		s, err := tx.Store("docs")
		if err != nil {
			return err
		}

		if err := s.Put(ctx, idxdb.Item{"id": "rolled back"}); err != nil {
			return err
		}

		return boom
	})
	mustErr(t, "failing update", err, boom)

	err = idxdb.View(ctx, p, []string{"docs"}, func(tx idxdb.Transaction) error {
		n, err := storeOf(t, tx, "docs").OpenPrimaryKey().CountAll(ctx)
		if err != nil {
			return err
		}

		if n != 0 {
			return fmt.Errorf("rolled back write visible: %d items", n)
		}

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	diff(t, "provider schema", Schema(), p.Schema())
}
