// Package keycodec encodes typed keys into strings whose byte order matches
// the natural order of the keys.
//
// Every backend compares keys as encoded strings, so the codec is the single
// definition of key ordering:
//
//	numbers < dates < strings
//
// Each scalar is prefixed with a type tag ('A' numbers, 'B' dates, 'C'
// strings). Compound keys join their encoded components with [Joiner], which
// keeps tuple ordering (first component dominates) as long as no string
// component is a proper prefix of another followed by a byte below '%'.
// For example ["a b", 1] encodes below ["a", 1] because ' ' < '%'. Such
// keys still round-trip and match exactly; only their relative order is off.
//
// The encoding is shared with other implementations of the same storage
// contract and must not change within a deployment.
package keycodec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Joiner separates the encoded components of a compound key.
const Joiner = "%&"

const (
	tagNumber = "A"
	tagDate   = "B"
	tagString = "C"

	// exponentBias shifts base-10 exponents (-324..308) into positive
	// territory so they can be zero padded and compared as text.
	exponentBias  = 1024
	exponentWidth = 4
)

// Encode encodes key for path.
//
// A single path takes a scalar key. A compound path takes a tuple ([]any or
// any other slice) with exactly one component per path field.
//
// Returns [ErrInvalidKeyShape] on arity mismatch and [ErrUnsupportedKeyType]
// for components that are not numbers, dates or strings.
func Encode(key any, path KeyPath) (string, error) {
	if !path.IsCompound() {
		if _, isList := asList(key); isList {
			return "", fmt.Errorf("%w: single key path %q got a compound key %v", ErrInvalidKeyShape, path, key)
		}

		return EncodeValue(key)
	}

	parts, isList := asList(key)
	if !isList {
		return "", fmt.Errorf("%w: compound key path %s got a non-compound key %v", ErrInvalidKeyShape, path, key)
	}

	if len(parts) != path.Len() {
		return "", fmt.Errorf("%w: compound key path %s has %d components, key has %d",
			ErrInvalidKeyShape, path, path.Len(), len(parts))
	}

	encoded := make([]string, len(parts))

	for i, part := range parts {
		if _, nested := asList(part); nested {
			return "", fmt.Errorf("%w: compound key component %d is itself a list", ErrInvalidKeyShape, i)
		}

		s, err := EncodeValue(part)
		if err != nil {
			return "", fmt.Errorf("component %d: %w", i, err)
		}

		encoded[i] = s
	}

	return strings.Join(encoded, Joiner), nil
}

// EncodeList encodes every key in keys for path.
// It fails on the first malformed key; nothing is returned in that case.
func EncodeList(keys []any, path KeyPath) ([]string, error) {
	out := make([]string, 0, len(keys))

	for _, key := range keys {
		s, err := Encode(key, path)
		if err != nil {
			return nil, err
		}

		out = append(out, s)
	}

	return out, nil
}

// NormalizeKeys turns "one key or a list of keys" into a list of keys.
//
// For a single path, a list is taken as a list of keys and a scalar as one
// key. For a compound path, a list whose first element is itself a list is a
// list of keys; any other list is one compound key.
func NormalizeKeys(keyOrKeys any, path KeyPath) []any {
	list, isList := asList(keyOrKeys)
	if !isList {
		return []any{keyOrKeys}
	}

	if !path.IsCompound() {
		return list
	}

	if len(list) > 0 {
		if _, nested := asList(list[0]); nested {
			return list
		}
	}

	return []any{keyOrKeys}
}

// EncodeValue encodes one scalar key component.
func EncodeValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: nil", ErrUnsupportedKeyType)
	case string:
		return tagString + val, nil
	case time.Time:
		return tagDate + EncodeNumber(float64(val.UnixMilli())), nil
	case *time.Time:
		if val == nil {
			return "", fmt.Errorf("%w: nil *time.Time", ErrUnsupportedKeyType)
		}

		return tagDate + EncodeNumber(float64(val.UnixMilli())), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return "", fmt.Errorf("%w: json number %q: %w", ErrUnsupportedKeyType, val, err)
		}

		return tagNumber + EncodeNumber(f), nil
	}

	f, ok := toFloat(v)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrUnsupportedKeyType, v)
	}

	return tagNumber + EncodeNumber(f), nil
}

// EncodeNumber encodes n without a type tag.
//
// Zero, NaN and the infinities encode as their literal text ("0", "NaN",
// "Infinity", "-Infinity"). They order consistently among themselves but are
// not meant to interleave with finite non-zero numbers.
//
// Finite non-zero numbers are written in scientific form m * 10^e with
// 1 <= m < 10:
//
//	positive: %04d(1024+e) m
//	negative: "-" %04d(1024-e) (10-m)
//
// Both subtractions invert ordering so more negative numbers sort first.
// The mantissa is the shortest decimal that round-trips n, and 10-m is
// computed on its digits, so distinct numbers never collide.
func EncodeNumber(n float64) string {
	switch {
	case n == 0:
		return "0"
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}

	negative := n < 0
	if negative {
		n = -n
	}

	mantissa, exponent := scientific(n)

	if negative {
		return "-" + padExponent(exponentBias-exponent) + complement(mantissa)
	}

	return padExponent(exponentBias+exponent) + mantissa
}

// scientific splits a finite positive n into its decimal mantissa digits
// ("d" or "d.ddd", no trailing zeros) and base-10 exponent.
func scientific(n float64) (string, int) {
	s := strconv.FormatFloat(n, 'e', -1, 64)

	mantissa, exp, _ := strings.Cut(s, "e")

	exponent, err := strconv.Atoi(exp)
	if err != nil {
		// FormatFloat always yields a valid exponent.
		panic(fmt.Sprintf("keycodec: unexpected float format %q", s))
	}

	return mantissa, exponent
}

// complement returns 10-m for a mantissa produced by scientific.
func complement(m string) string {
	whole, frac, hasFrac := strings.Cut(m, ".")
	d := int(whole[0] - '0')

	if !hasFrac {
		return strconv.Itoa(10 - d)
	}

	out := make([]byte, 0, len(m))
	out = append(out, byte('0'+9-d), '.')

	last := len(frac) - 1
	for i := range last {
		out = append(out, '9'-frac[i]+'0')
	}

	out = append(out, byte('0'+10-int(frac[last]-'0')))

	return string(out)
}

func padExponent(e int) string {
	s := strconv.Itoa(e)
	if len(s) >= exponentWidth {
		return s
	}

	return strings.Repeat("0", exponentWidth-len(s)) + s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// asList reports whether v is a tuple and returns its elements.
// []byte is not a tuple; it is an unsupported scalar.
func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case nil:
		return nil, false
	case []any:
		return list, true
	case []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}

	return out, true
}

// IsList reports whether v would be treated as a tuple (or a multi-entry
// array) by the codec.
func IsList(v any) bool {
	_, ok := asList(v)

	return ok
}

// Elements returns the elements of a list value, or v itself as a single
// element when it is not a list.
func Elements(v any) []any {
	if list, ok := asList(v); ok {
		return list
	}

	return []any{v}
}

// Compare encodes a and b for path and compares the encodings.
func Compare(a, b any, path KeyPath) (int, error) {
	ea, err := Encode(a, path)
	if err != nil {
		return 0, err
	}

	eb, err := Encode(b, path)
	if err != nil {
		return 0, err
	}

	return strings.Compare(ea, eb), nil
}
