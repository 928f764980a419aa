package keycodec

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// KeyPath names the item field (or fields) a key is derived from.
//
// A path is either single ([Single]) or compound ([Compound]). Compound paths
// produce tuple keys ([]any) whose components are compared left to right.
//
// Each field may address nested maps with dots: "meta.created".
//
// In JSON a single path is a string and a compound path an array of strings,
// matching the schema files accepted by idxdb.ParseSchema.
type KeyPath struct {
	fields   []string
	compound bool
}

// Single returns a path over one field.
func Single(field string) KeyPath {
	return KeyPath{fields: []string{field}}
}

// Compound returns a path over an ordered list of fields.
// A valid compound path has at least two components; see [KeyPath.Validate].
func Compound(fields ...string) KeyPath {
	return KeyPath{fields: slices.Clone(fields), compound: true}
}

// IsZero reports whether the path names no field at all.
func (p KeyPath) IsZero() bool {
	return len(p.fields) == 0
}

// IsCompound reports whether keys for this path are tuples.
func (p KeyPath) IsCompound() bool {
	return p.compound
}

// Len returns the number of components (1 for single paths).
func (p KeyPath) Len() int {
	return len(p.fields)
}

// Field returns the field of a single path, or the first component of a
// compound path.
func (p KeyPath) Field() string {
	if len(p.fields) == 0 {
		return ""
	}

	return p.fields[0]
}

// Fields returns a copy of the path components.
func (p KeyPath) Fields() []string {
	return slices.Clone(p.fields)
}

// Equal reports whether both paths name the same fields with the same shape.
func (p KeyPath) Equal(other KeyPath) bool {
	return p.compound == other.compound && slices.Equal(p.fields, other.fields)
}

// Validate checks the path is usable for key derivation.
func (p KeyPath) Validate() error {
	if len(p.fields) == 0 {
		return errors.New("key path is empty")
	}

	if p.compound && len(p.fields) < 2 {
		return fmt.Errorf("compound key path %s needs at least 2 components", p)
	}

	for _, field := range p.fields {
		if field == "" {
			return fmt.Errorf("key path %s has an empty component", p)
		}

		if strings.HasPrefix(field, ".") || strings.HasSuffix(field, ".") || strings.Contains(field, "..") {
			return fmt.Errorf("key path %s has a malformed component %q", p, field)
		}
	}

	return nil
}

// String formats single paths as the field name and compound paths as
// "[a,b]".
func (p KeyPath) String() string {
	if !p.compound {
		return p.Field()
	}

	return "[" + strings.Join(p.fields, ",") + "]"
}

// MarshalJSON implements json.Marshaler.
func (p KeyPath) MarshalJSON() ([]byte, error) {
	if p.compound {
		return json.Marshal(p.fields)
	}

	return json.Marshal(p.Field())
}

// UnmarshalJSON accepts a string (single path) or an array of strings
// (compound path).
func (p *KeyPath) UnmarshalJSON(data []byte) error {
	var single string

	err := json.Unmarshal(data, &single)
	if err == nil {
		*p = Single(single)

		return nil
	}

	var fields []string

	err = json.Unmarshal(data, &fields)
	if err != nil {
		return fmt.Errorf("key path must be a string or an array of strings: %w", err)
	}

	*p = Compound(fields...)

	return nil
}
