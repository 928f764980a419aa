package idxdb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Schema declares the stores of a database. Immutable once a provider is
// opened with it.
type Schema struct {
	Version int           `json:"version"`
	Stores  []StoreSchema `json:"stores"`
}

// StoreSchema declares one store: its primary key path and secondary indexes.
type StoreSchema struct {
	Name           string        `json:"name"`
	PrimaryKeyPath KeyPath       `json:"primaryKeyPath"`
	Indexes        []IndexSchema `json:"indexes,omitempty"`
}

// IndexSchema declares a secondary index.
type IndexSchema struct {
	Name    string  `json:"name"`
	KeyPath KeyPath `json:"keyPath"`

	// Unique rejects puts that give two items the same index key.
	Unique bool `json:"unique,omitempty"`

	// MultiEntry derives one key per element of an array field.
	MultiEntry bool `json:"multiEntry,omitempty"`

	// FullText derives one key per token of a text field.
	FullText bool `json:"fullText,omitempty"`

	// IncludeDataInIndex and DoNotBackfill are hints for backends that keep
	// separate index storage or run migrations. Carried, not interpreted.
	IncludeDataInIndex bool `json:"includeDataInIndex,omitempty"`
	DoNotBackfill      bool `json:"doNotBackfill,omitempty"`
}

// StoreNames returns the store names in declaration order.
func (s Schema) StoreNames() []string {
	names := make([]string, len(s.Stores))
	for i, st := range s.Stores {
		names[i] = st.Name
	}

	return names
}

// Store returns the schema of the named store.
func (s Schema) Store(name string) (StoreSchema, bool) {
	for _, st := range s.Stores {
		if st.Name == name {
			return st, true
		}
	}

	return StoreSchema{}, false
}

// Index returns the schema of the named index.
func (s StoreSchema) Index(name string) (IndexSchema, bool) {
	for _, ix := range s.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}

	return IndexSchema{}, false
}

// PrimaryIndex describes the primary key as an index: unique, over the
// primary key path, with an empty name.
func (s StoreSchema) PrimaryIndex() IndexSchema {
	return IndexSchema{KeyPath: s.PrimaryKeyPath, Unique: true}
}

// Validate checks the schema is usable by a provider. All problems are
// reported, joined, and wrapped in [ErrInvalidSchema].
func (s Schema) Validate() error {
	var errs []error

	if s.Version < 0 {
		errs = append(errs, fmt.Errorf("version %d is negative", s.Version))
	}

	if len(s.Stores) == 0 {
		errs = append(errs, errors.New("no stores declared"))
	}

	seen := make(map[string]struct{}, len(s.Stores))

	for i, st := range s.Stores {
		if st.Name == "" {
			errs = append(errs, fmt.Errorf("store %d: name is empty", i))

			continue
		}

		if _, dup := seen[st.Name]; dup {
			errs = append(errs, fmt.Errorf("store %q: declared twice", st.Name))
		}

		seen[st.Name] = struct{}{}

		errs = append(errs, st.validate()...)
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("%w: %w", ErrInvalidSchema, errors.Join(errs...))
}

func (s StoreSchema) validate() []error {
	var errs []error

	err := s.PrimaryKeyPath.Validate()
	if err != nil {
		errs = append(errs, fmt.Errorf("store %q: primary key: %w", s.Name, err))
	}

	seen := make(map[string]struct{}, len(s.Indexes))

	for i, ix := range s.Indexes {
		if ix.Name == "" {
			errs = append(errs, fmt.Errorf("store %q: index %d: name is empty", s.Name, i))

			continue
		}

		if _, dup := seen[ix.Name]; dup {
			errs = append(errs, fmt.Errorf("store %q: index %q: declared twice", s.Name, ix.Name))
		}

		seen[ix.Name] = struct{}{}

		err := ix.KeyPath.Validate()
		if err != nil {
			errs = append(errs, fmt.Errorf("store %q: index %q: %w", s.Name, ix.Name, err))
		}

		if (ix.MultiEntry || ix.FullText) && ix.KeyPath.IsCompound() {
			errs = append(errs, fmt.Errorf("store %q: index %q: multi-entry and full-text indexes need a single key path", s.Name, ix.Name))
		}

		if ix.MultiEntry && ix.FullText {
			errs = append(errs, fmt.Errorf("store %q: index %q: cannot be both multi-entry and full-text", s.Name, ix.Name))
		}

		if ix.FullText && ix.Unique {
			errs = append(errs, fmt.Errorf("store %q: index %q: full-text index cannot be unique", s.Name, ix.Name))
		}
	}

	return errs
}

// ParseSchema parses a JSONC (JSON with comments and trailing commas) schema
// document and validates it.
func ParseSchema(data []byte) (Schema, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Schema{}, fmt.Errorf("%w: invalid JSONC: %w", ErrInvalidSchema, err)
	}

	var schema Schema

	err = json.Unmarshal(standardized, &schema)
	if err != nil {
		return Schema{}, fmt.Errorf("%w: invalid JSON: %w", ErrInvalidSchema, err)
	}

	err = schema.Validate()
	if err != nil {
		return Schema{}, err
	}

	return schema, nil
}

// LoadSchema reads and parses a schema file. See [ParseSchema].
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("reading schema: %w", err)
	}

	schema, err := ParseSchema(data)
	if err != nil {
		return Schema{}, fmt.Errorf("%s: %w", path, err)
	}

	return schema, nil
}
