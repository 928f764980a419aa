package keycodec

import "strings"

// Extract reads the key value for path out of item.
//
// For a single path it returns the field value. For a compound path it returns
// a []any with one value per component. It returns nil when any component is
// missing or nil; callers treat that as "no key".
//
// Extract does not validate the value types; [Encode] does.
func Extract(item map[string]any, path KeyPath) any {
	if !path.IsCompound() {
		return Value(item, path.Field())
	}

	out := make([]any, path.Len())

	for i, field := range path.fields {
		v := Value(item, field)
		if v == nil {
			return nil
		}

		out[i] = v
	}

	return out
}

// Value reads a possibly dotted field from item. Intermediate values must be
// maps; anything else yields nil.
func Value(item map[string]any, field string) any {
	if item == nil {
		return nil
	}

	head, rest, nested := strings.Cut(field, ".")
	if !nested {
		return item[field]
	}

	// A literal key containing a dot wins over the nested lookup.
	if v, ok := item[field]; ok {
		return v
	}

	child, ok := item[head].(map[string]any)
	if !ok {
		return nil
	}

	return Value(child, rest)
}

// SetValue writes v at a possibly dotted field, creating intermediate maps as
// needed. It overwrites non-map intermediates.
func SetValue(item map[string]any, field string, v any) {
	head, rest, nested := strings.Cut(field, ".")
	if !nested {
		item[field] = v

		return
	}

	child, ok := item[head].(map[string]any)
	if !ok {
		child = map[string]any{}
		item[head] = child
	}

	SetValue(child, rest, v)
}
