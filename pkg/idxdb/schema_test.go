package idxdb_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/idxdb/pkg/idxdb"
)

const schemaJSONC = `{
	// bumped on every layout change
	"version": 3,
	"stores": [
		{
			"name": "users",
			"primaryKeyPath": "id",
			"indexes": [
				{"name": "email", "keyPath": "email", "unique": true},
				{"name": "tags", "keyPath": "tags", "multiEntry": true},
				{"name": "bio", "keyPath": "profile.bio", "fullText": true},
			],
		},
		{"name": "edges", "primaryKeyPath": ["from", "to"]},
	],
}`

func Test_ParseSchema_Reads_JSONC_When_Comments_And_Trailing_Commas(t *testing.T) {
	t.Parallel()

	got, err := idxdb.ParseSchema([]byte(schemaJSONC))
	require.NoError(t, err)

	want := idxdb.Schema{
		Version: 3,
		Stores: []idxdb.StoreSchema{
			{
				Name:           "users",
				PrimaryKeyPath: idxdb.Single("id"),
				Indexes: []idxdb.IndexSchema{
					{Name: "email", KeyPath: idxdb.Single("email"), Unique: true},
					{Name: "tags", KeyPath: idxdb.Single("tags"), MultiEntry: true},
					{Name: "bio", KeyPath: idxdb.Single("profile.bio"), FullText: true},
				},
			},
			{Name: "edges", PrimaryKeyPath: idxdb.Compound("from", "to")},
		},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("schema mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, []string{"users", "edges"}, got.StoreNames())

	users, ok := got.Store("users")
	require.True(t, ok)

	ix, ok := users.Index("bio")
	require.True(t, ok)
	require.True(t, ix.FullText)

	_, ok = users.Index("nope")
	require.False(t, ok)

	_, ok = got.Store("nope")
	require.False(t, ok)

	primary := users.PrimaryIndex()
	require.True(t, primary.Unique)
	require.Empty(t, primary.Name)
	require.True(t, primary.KeyPath.Equal(idxdb.Single("id")))
}

func Test_ParseSchema_Returns_ErrInvalidSchema_When_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{"syntax", `{"version": `, "invalid JSONC"},
		{"wrong type", `{"version": "one"}`, "invalid JSON"},
		{"no stores", `{"version": 1, "stores": []}`, "no stores declared"},
		{"negative version", `{"version": -1, "stores": [{"name": "a", "primaryKeyPath": "id"}]}`, "negative"},
		{"store without name", `{"stores": [{"primaryKeyPath": "id"}]}`, "name is empty"},
		{"duplicate store", `{"stores": [{"name": "a", "primaryKeyPath": "id"}, {"name": "a", "primaryKeyPath": "id"}]}`, "declared twice"},
		{"missing primary key", `{"stores": [{"name": "a"}]}`, "primary key"},
		{"duplicate index", `{"stores": [{"name": "a", "primaryKeyPath": "id", "indexes": [{"name": "x", "keyPath": "x"}, {"name": "x", "keyPath": "y"}]}]}`, "declared twice"},
		{"compound multi-entry", `{"stores": [{"name": "a", "primaryKeyPath": "id", "indexes": [{"name": "x", "keyPath": ["x", "y"], "multiEntry": true}]}]}`, "single key path"},
		{"multi-entry full-text", `{"stores": [{"name": "a", "primaryKeyPath": "id", "indexes": [{"name": "x", "keyPath": "x", "multiEntry": true, "fullText": true}]}]}`, "both"},
		{"unique full-text", `{"stores": [{"name": "a", "primaryKeyPath": "id", "indexes": [{"name": "x", "keyPath": "x", "unique": true, "fullText": true}]}]}`, "cannot be unique"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := idxdb.ParseSchema([]byte(tt.doc))
			require.ErrorIs(t, err, idxdb.ErrInvalidSchema)
			require.ErrorContains(t, err, tt.wantMsg)
		})
	}
}

func Test_Validate_Reports_All_Problems_When_Several(t *testing.T) {
	t.Parallel()

	schema := idxdb.Schema{
		Stores: []idxdb.StoreSchema{
			{Name: "a"},
			{Name: "b", PrimaryKeyPath: idxdb.Single("id"), Indexes: []idxdb.IndexSchema{{KeyPath: idxdb.Single("x")}}},
		},
	}

	err := schema.Validate()
	require.ErrorIs(t, err, idxdb.ErrInvalidSchema)
	require.ErrorContains(t, err, `store "a": primary key`)
	require.ErrorContains(t, err, `store "b": index 0: name is empty`)
}

func Test_LoadSchema_Names_File_When_Invalid(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"stores": []}`), 0o600))

	_, err := idxdb.LoadSchema(path)
	require.ErrorIs(t, err, idxdb.ErrInvalidSchema)
	require.ErrorContains(t, err, path)

	_, err = idxdb.LoadSchema(filepath.Join(dir, "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(path, []byte(schemaJSONC), 0o600))

	schema, err := idxdb.LoadSchema(path)
	require.NoError(t, err)
	require.Equal(t, 3, schema.Version)
}
