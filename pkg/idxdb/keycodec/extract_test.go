package keycodec_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
)

func Test_Extract_Returns_Key_When_Fields_Present(t *testing.T) {
	t.Parallel()

	item := map[string]any{
		"id":   "a1",
		"n":    3.0,
		"meta": map[string]any{"owner": "bob", "rank": 2.0},
		"tags": []any{"red", "blue"},
		"nil":  nil,
	}

	tests := []struct {
		name string
		path keycodec.KeyPath
		want any
	}{
		{name: "single", path: keycodec.Single("id"), want: "a1"},
		{name: "dotted", path: keycodec.Single("meta.owner"), want: "bob"},
		{name: "array value", path: keycodec.Single("tags"), want: []any{"red", "blue"}},
		{name: "compound", path: keycodec.Compound("id", "meta.rank"), want: []any{"a1", 2.0}},
		{name: "missing field", path: keycodec.Single("nope"), want: nil},
		{name: "missing nested", path: keycodec.Single("meta.nope"), want: nil},
		{name: "through scalar", path: keycodec.Single("id.x"), want: nil},
		{name: "compound with missing component", path: keycodec.Compound("id", "nope"), want: nil},
		{name: "compound with nil component", path: keycodec.Compound("id", "nil"), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := keycodec.Extract(item, tt.path)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Extract mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_Value_Prefers_Literal_Key_When_Field_Contains_Dot(t *testing.T) {
	t.Parallel()

	item := map[string]any{
		"a.b": "literal",
		"a":   map[string]any{"b": "nested"},
	}

	if got := keycodec.Value(item, "a.b"); got != "literal" {
		t.Fatalf("Value = %v, want literal", got)
	}
}

func Test_SetValue_Creates_Intermediate_Maps_When_Missing(t *testing.T) {
	t.Parallel()

	item := map[string]any{"a": 1.0}
	keycodec.SetValue(item, "meta.created.by", "me")

	want := map[string]any{
		"a":    1.0,
		"meta": map[string]any{"created": map[string]any{"by": "me"}},
	}
	if diff := cmp.Diff(want, item); diff != "" {
		t.Fatalf("SetValue mismatch (-want +got):\n%s", diff)
	}
}

func Test_KeyPath_Validate_Rejects_Bad_Paths(t *testing.T) {
	t.Parallel()

	bad := []keycodec.KeyPath{
		{},
		keycodec.Single(""),
		keycodec.Compound("a"),
		keycodec.Compound("a", ""),
		keycodec.Single(".a"),
		keycodec.Single("a..b"),
		keycodec.Single("a."),
	}

	for _, p := range bad {
		require.Error(t, p.Validate(), "path %#v", p)
	}

	require.NoError(t, keycodec.Single("a.b").Validate())
	require.NoError(t, keycodec.Compound("a", "b.c").Validate())
}

func Test_KeyPath_JSON_Uses_String_Or_Array_When_Marshaling(t *testing.T) {
	t.Parallel()

	type doc struct {
		Single   keycodec.KeyPath `json:"single"`
		Compound keycodec.KeyPath `json:"compound"`
	}

	in := doc{Single: keycodec.Single("id"), Compound: keycodec.Compound("a", "b")}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	require.JSONEq(t, `{"single":"id","compound":["a","b"]}`, string(data))

	var out doc
	require.NoError(t, json.Unmarshal(data, &out))
	require.True(t, out.Single.Equal(in.Single), "single = %s", out.Single)
	require.True(t, out.Compound.Equal(in.Compound), "compound = %s", out.Compound)
	require.True(t, out.Compound.IsCompound())
	require.Equal(t, "[a,b]", out.Compound.String())

	var bad keycodec.KeyPath
	require.Error(t, json.Unmarshal([]byte(`42`), &bad))
}
