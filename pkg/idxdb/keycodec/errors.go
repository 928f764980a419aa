package keycodec

import "errors"

// Sentinel errors returned by the codec.
//
// Both are recoverable: the caller supplied a malformed key and may retry with
// a corrected one.
var (
	// ErrInvalidKeyShape indicates the key's arity does not match the key
	// path: a scalar for a compound path, a tuple for a single path, a tuple
	// with the wrong number of components, or a missing key.
	ErrInvalidKeyShape = errors.New("keycodec: invalid key shape")

	// ErrUnsupportedKeyType indicates a key component that is not a number,
	// a date ([time.Time]) or a string.
	ErrUnsupportedKeyType = errors.New("keycodec: unsupported key type")
)
