package idxdb

import (
	"fmt"
	"reflect"
	"time"

	"github.com/calvinalkan/idxdb/pkg/idxdb/fulltext"
	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
)

// PrimaryKey returns the encoded primary key of item.
// Fails with [ErrInvalidKeyShape] when the key is missing.
func PrimaryKey(store StoreSchema, item Item) (string, error) {
	key := keycodec.Extract(item, store.PrimaryKeyPath)
	if key == nil {
		return "", fmt.Errorf("%w: item has no primary key at %s", ErrInvalidKeyShape, store.PrimaryKeyPath)
	}

	enc, err := keycodec.Encode(key, store.PrimaryKeyPath)
	if err != nil {
		return "", fmt.Errorf("primary key: %w", err)
	}

	return enc, nil
}

// IndexKeys returns the distinct encoded keys item contributes to ix.
//
//   - plain and unique indexes: one key, none when the value is missing or
//     not a valid key
//   - multi-entry: one key per valid element of an array value; a scalar
//     value counts as a one-element array
//   - full-text: one key per token of a string value
func IndexKeys(ix IndexSchema, item Item) []string {
	value := keycodec.Extract(item, ix.KeyPath)
	if value == nil {
		return nil
	}

	switch {
	case ix.FullText:
		text, ok := value.(string)
		if !ok {
			return nil
		}

		tokens := fulltext.Tokenize(text)
		keys := make([]string, 0, len(tokens))

		for _, token := range tokens {
			enc, err := keycodec.EncodeValue(token)
			if err == nil {
				keys = append(keys, enc)
			}
		}

		return keys

	case ix.MultiEntry:
		elems := keycodec.Elements(value)
		keys := make([]string, 0, len(elems))
		seen := make(map[string]struct{}, len(elems))

		for _, elem := range elems {
			enc, err := keycodec.EncodeValue(elem)
			if err != nil {
				continue
			}

			if _, dup := seen[enc]; dup {
				continue
			}

			seen[enc] = struct{}{}
			keys = append(keys, enc)
		}

		return keys

	default:
		enc, err := keycodec.Encode(value, ix.KeyPath)
		if err != nil {
			return nil
		}

		return []string{enc}
	}
}

// CloneItem deep-copies nested maps and slices of item. Other values are
// copied shallowly.
func CloneItem(item Item) Item {
	if item == nil {
		return nil
	}

	out := make(Item, len(item))
	for k, v := range item {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneItem(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}

		return out
	case nil, string, float64, bool, time.Time:
		return v
	default:
		return cloneReflect(reflect.ValueOf(v)).Interface()
	}
}

// cloneReflect copies typed slices and maps such as []int or
// map[string][]string, recursing into their elements.
func cloneReflect(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}

		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := range rv.Len() {
			out.Index(i).Set(cloneElem(rv.Index(i)))
		}

		return out
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}

		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())

		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value()))
		}

		return out
	default:
		return rv
	}
}

func cloneElem(ev reflect.Value) reflect.Value {
	if ev.Kind() != reflect.Interface {
		return cloneReflect(ev)
	}

	if ev.IsNil() {
		return ev
	}

	out := reflect.New(ev.Type()).Elem()
	out.Set(reflect.ValueOf(cloneValue(ev.Interface())))

	return out
}
