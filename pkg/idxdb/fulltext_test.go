package idxdb_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
)

// tokenIndex serves full-text range reads from items kept in memory.
type tokenIndex struct {
	ix    idxdb.IndexSchema
	items []idxdb.Item
	calls int
	err   error
}

type tokenEntry struct {
	key, id string
	item    idxdb.Item
}

func (f *tokenIndex) GetRange(_ context.Context, r idxdb.KeyRange, opts idxdb.QueryOptions) ([]idxdb.Item, error) {
	f.calls++

	if f.err != nil {
		return nil, f.err
	}

	er, err := r.Encode(f.ix.KeyPath)
	if err != nil {
		return nil, err
	}

	var entries []tokenEntry

	for _, item := range f.items {
		for _, k := range idxdb.IndexKeys(f.ix, item) {
			if er.Contains(k) {
				entries = append(entries, tokenEntry{key: k, id: item["id"].(string), item: item})
			}
		}
	}

	slices.SortFunc(entries, func(a, b tokenEntry) int {
		if c := strings.Compare(a.key, b.key); c != 0 {
			return c
		}

		return strings.Compare(a.id, b.id)
	})

	out := make([]idxdb.Item, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.item)
	}

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}

	return out, nil
}

var textIndex = idxdb.IndexSchema{Name: "txt", KeyPath: idxdb.Single("txt"), FullText: true}

func newTokenIndex(docs map[string]string) *tokenIndex {
	f := &tokenIndex{ix: textIndex}

	for id, txt := range docs {
		f.items = append(f.items, idxdb.Item{"id": id, "txt": txt})
	}

	return f
}

func resolveIDs(t *testing.T, f *tokenIndex, phrase string, res idxdb.Resolution, limit int) []string {
	t.Helper()

	items, err := idxdb.ResolveFullText(t.Context(), f, textIndex, idxdb.Single("id"), phrase, res, limit)
	require.NoError(t, err)

	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item["id"].(string))
	}

	return out
}

func Test_ResolveFullText_Combines_Terms_By_Resolution(t *testing.T) {
	t.Parallel()

	f := newTokenIndex(map[string]string{
		"a1": "the quick brown fox",
		"a2": "bob likes his dog",
		"a3": "brown dog",
	})

	tests := []struct {
		phrase string
		res    idxdb.Resolution
		want   []string
	}{
		{"brown", idxdb.ResolveAnd, []string{"a1", "a3"}},
		{"brown dog", idxdb.ResolveAnd, []string{"a3"}},
		{"brown dog", idxdb.ResolveOr, []string{"a1", "a3", "a2"}},
		{"b z", idxdb.ResolveOr, []string{"a2", "a1", "a3"}},
		{"b z", idxdb.ResolveAnd, []string{}},
		{"DOG bro", idxdb.ResolveAnd, []string{"a3"}},
		{"cat", idxdb.ResolveOr, []string{}},
	}

	for _, tt := range tests {
		got := resolveIDs(t, f, tt.phrase, tt.res, 0)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Fatalf("%q %s mismatch (-want +got):\n%s", tt.phrase, tt.res, diff)
		}
	}
}

func Test_ResolveFullText_Collapses_Item_When_Several_Tokens_Share_Prefix(t *testing.T) {
	t.Parallel()

	f := newTokenIndex(map[string]string{"a": "bread breakfast brew"})

	require.Equal(t, []string{"a"}, resolveIDs(t, f, "bre", idxdb.ResolveAnd, 0))
}

func Test_ResolveFullText_Truncates_When_Limit_Positive(t *testing.T) {
	t.Parallel()

	f := newTokenIndex(map[string]string{"a": "go", "b": "go", "c": "go"})

	require.Equal(t, []string{"a", "b"}, resolveIDs(t, f, "go", idxdb.ResolveOr, 2))
	require.Len(t, resolveIDs(t, f, "go", idxdb.ResolveOr, 0), 3)
}

func Test_ResolveFullText_Returns_Empty_Without_Reads_When_No_Terms(t *testing.T) {
	t.Parallel()

	f := newTokenIndex(map[string]string{"a": "x"})

	items, err := idxdb.ResolveFullText(t.Context(), f, textIndex, idxdb.Single("id"), " ,.; ", idxdb.ResolveAnd, 0)
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)
	require.Zero(t, f.calls)
}

func Test_ResolveFullText_Fails_When_Input_Invalid(t *testing.T) {
	t.Parallel()

	f := newTokenIndex(nil)
	pk := idxdb.Single("id")

	_, err := idxdb.ResolveFullText(t.Context(), f, idxdb.IndexSchema{Name: "n", KeyPath: pk}, pk, "x", idxdb.ResolveOr, 0)
	require.ErrorIs(t, err, idxdb.ErrNotFullTextIndex)

	_, err = idxdb.ResolveFullText(t.Context(), f, textIndex, pk, "x", idxdb.ResolveOr, -1)
	require.ErrorIs(t, err, idxdb.ErrInvalidInput)

	_, err = idxdb.ResolveFullText(t.Context(), f, textIndex, pk, "x", idxdb.Resolution(5), 0)
	require.ErrorIs(t, err, idxdb.ErrInvalidInput)

	f.err = errors.New("disk gone")

	_, err = idxdb.ResolveFullText(t.Context(), f, textIndex, pk, "x", idxdb.ResolveOr, 0)
	require.ErrorContains(t, err, `term "x": disk gone`)
}
