package idxdb_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
)

func Test_PrimaryKey_Encodes_Key_When_Present(t *testing.T) {
	t.Parallel()

	store := idxdb.StoreSchema{Name: "s", PrimaryKeyPath: idxdb.Compound("a", "b.c")}

	pk, err := idxdb.PrimaryKey(store, idxdb.Item{"a": 1, "b": map[string]any{"c": "x"}})
	require.NoError(t, err)
	require.Equal(t, "A10241%&Cx", pk)

	_, err = idxdb.PrimaryKey(store, idxdb.Item{"a": 1})
	require.ErrorIs(t, err, idxdb.ErrInvalidKeyShape)

	_, err = idxdb.PrimaryKey(store, idxdb.Item{"a": 1, "b": map[string]any{"c": false}})
	require.ErrorIs(t, err, idxdb.ErrUnsupportedKeyType)
}

func Test_IndexKeys_Derives_Keys_Per_Index_Kind(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ix   idxdb.IndexSchema
		item idxdb.Item
		want []string
	}{
		{
			name: "plain string",
			ix:   idxdb.IndexSchema{KeyPath: idxdb.Single("s")},
			item: idxdb.Item{"s": "x"},
			want: []string{"Cx"},
		},
		{
			name: "plain date",
			ix:   idxdb.IndexSchema{KeyPath: idxdb.Single("d")},
			item: idxdb.Item{"d": day},
			want: []string{"B10361.7145216"},
		},
		{
			name: "compound",
			ix:   idxdb.IndexSchema{KeyPath: idxdb.Compound("s", "n")},
			item: idxdb.Item{"s": "x", "n": 10},
			want: []string{"Cx%&A10251"},
		},
		{
			name: "missing value",
			ix:   idxdb.IndexSchema{KeyPath: idxdb.Single("s")},
			item: idxdb.Item{},
			want: nil,
		},
		{
			name: "unsupported value",
			ix:   idxdb.IndexSchema{KeyPath: idxdb.Single("s")},
			item: idxdb.Item{"s": true},
			want: nil,
		},
		{
			name: "array on plain index",
			ix:   idxdb.IndexSchema{KeyPath: idxdb.Single("s")},
			item: idxdb.Item{"s": []any{"a"}},
			want: nil,
		},
		{
			name: "multi-entry dedupes and skips invalid",
			ix:   idxdb.IndexSchema{KeyPath: idxdb.Single("t"), MultiEntry: true},
			item: idxdb.Item{"t": []any{"b", "a", "b", nil, true, 1}},
			want: []string{"Cb", "Ca", "A10241"},
		},
		{
			name: "multi-entry scalar",
			ix:   idxdb.IndexSchema{KeyPath: idxdb.Single("t"), MultiEntry: true},
			item: idxdb.Item{"t": "solo"},
			want: []string{"Csolo"},
		},
		{
			name: "multi-entry typed slice",
			ix:   idxdb.IndexSchema{KeyPath: idxdb.Single("t"), MultiEntry: true},
			item: idxdb.Item{"t": []string{"x", "y"}},
			want: []string{"Cx", "Cy"},
		},
		{
			name: "full-text tokens",
			ix:   idxdb.IndexSchema{KeyPath: idxdb.Single("txt"), FullText: true},
			item: idxdb.Item{"txt": "The the Café"},
			want: []string{"Cthe", "Ccafe"},
		},
		{
			name: "full-text non-string",
			ix:   idxdb.IndexSchema{KeyPath: idxdb.Single("txt"), FullText: true},
			item: idxdb.Item{"txt": 42},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := idxdb.IndexKeys(tt.ix, tt.item)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("keys mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_CloneItem_Copies_Nested_Containers(t *testing.T) {
	t.Parallel()

	orig := idxdb.Item{
		"m": map[string]any{"k": "v"},
		"l": []any{map[string]any{"x": 1.0}, "s"},
		"s": []string{"a"},
	}

	c := idxdb.CloneItem(orig)

	c["m"].(map[string]any)["k"] = "changed"
	c["l"].([]any)[0].(map[string]any)["x"] = 2.0
	c["s"].([]string)[0] = "b"
	c["new"] = true

	want := idxdb.Item{
		"m": map[string]any{"k": "v"},
		"l": []any{map[string]any{"x": 1.0}, "s"},
		"s": []string{"a"},
	}

	if diff := cmp.Diff(want, orig); diff != "" {
		t.Fatalf("original mutated (-want +got):\n%s", diff)
	}

	require.Nil(t, idxdb.CloneItem(nil))
}

func Test_CloneItem_Copies_Typed_Slices_And_Maps(t *testing.T) {
	t.Parallel()

	orig := idxdb.Item{
		"ints":   []int{1, 2},
		"floats": []float64{1.5},
		"nested": map[string][]string{"k": {"a"}},
		"lists":  [][]any{{"x"}},
	}

	c := idxdb.CloneItem(orig)

	c["ints"].([]int)[0] = 99
	c["floats"].([]float64)[0] = 0
	c["nested"].(map[string][]string)["k"][0] = "b"
	c["lists"].([][]any)[0][0] = "y"

	want := idxdb.Item{
		"ints":   []int{1, 2},
		"floats": []float64{1.5},
		"nested": map[string][]string{"k": {"a"}},
		"lists":  [][]any{{"x"}},
	}

	if diff := cmp.Diff(want, orig); diff != "" {
		t.Fatalf("original mutated (-want +got):\n%s", diff)
	}
}
