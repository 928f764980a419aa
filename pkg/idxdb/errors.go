package idxdb

import (
	"errors"
	"strings"

	"github.com/calvinalkan/idxdb/pkg/idxdb/keycodec"
	"github.com/calvinalkan/idxdb/pkg/idxdb/txlock"
)

// Key errors. Recoverable: retry with a corrected key.
var (
	// ErrInvalidKeyShape indicates a key whose arity does not match the key
	// path, or an item without a usable primary key.
	ErrInvalidKeyShape = keycodec.ErrInvalidKeyShape

	// ErrUnsupportedKeyType indicates a key component that is not a number,
	// a date or a string.
	ErrUnsupportedKeyType = keycodec.ErrUnsupportedKeyType
)

// Scheduler errors. ErrDoubleCompletion and ErrUnknownTransaction are caller
// bugs; ErrProviderClosing means the provider must not be used again.
var (
	ErrUnknownStore       = txlock.ErrUnknownStore
	ErrProviderClosing    = txlock.ErrProviderClosing
	ErrDoubleCompletion   = txlock.ErrDoubleCompletion
	ErrUnknownTransaction = txlock.ErrUnknownTransaction
)

var (
	// ErrStoreNotFound indicates a store outside the transaction's scope.
	ErrStoreNotFound = errors.New("idxdb: store not in transaction scope")

	// ErrIndexNotFound indicates an index name the store schema does not
	// declare.
	ErrIndexNotFound = errors.New("idxdb: index not found")

	// ErrNotFullTextIndex indicates a full-text search on an index without
	// FullText.
	ErrNotFullTextIndex = errors.New("idxdb: not a full-text index")

	// ErrInvalidSchema indicates a schema that fails [Schema.Validate].
	ErrInvalidSchema = errors.New("idxdb: invalid schema")

	// ErrConstraint indicates a put that would give two items the same key
	// in a unique index. The whole put is rejected.
	ErrConstraint = errors.New("idxdb: unique constraint violated")

	// ErrTransactionDone indicates use of a transaction, or a store or index
	// handle obtained from it, after commit or abort.
	ErrTransactionDone = errors.New("idxdb: transaction finished")

	// ErrReadOnly indicates a mutation inside a shared transaction.
	ErrReadOnly = errors.New("idxdb: transaction is read-only")

	// ErrAborted is the completion result of an aborted transaction.
	ErrAborted = errors.New("idxdb: transaction aborted")

	// ErrInvalidInput indicates malformed query options.
	ErrInvalidInput = errors.New("idxdb: invalid input")
)

// Error carries the store and index an operation failed on.
//
// The cause comes first, followed by the context:
//
//	idxdb: unique constraint violated (store=users index=email)
//
// Use [errors.As] to read the fields and [errors.Is] to match sentinels:
//
//	var iErr *idxdb.Error
//	if errors.As(err, &iErr) {
//	    fmt.Println("failed on", iErr.Store)
//	}
type Error struct {
	Store string
	Index string
	Err   error
}

// Error formats as "<cause> (store=X index=Y)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}

	suffix := e.suffix()

	switch {
	case suffix == "":
		return cause
	case cause == "":
		return suffix
	default:
		return cause + " " + suffix
	}
}

// Unwrap returns the cause for [errors.Is] and [errors.As].
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

func (e *Error) suffix() string {
	var parts []string

	if e.Store != "" {
		parts = append(parts, "store="+e.Store)
	}

	if e.Index != "" {
		parts = append(parts, "index="+e.Index)
	}

	if len(parts) == 0 {
		return ""
	}

	return "(" + strings.Join(parts, " ") + ")"
}

// Annotate attaches store and index context to err. If err already carries an
// [*Error], its empty fields are filled in place. Nil stays nil.
func Annotate(err error, store, index string) error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		if existing.Store == "" {
			existing.Store = store
		}

		if existing.Index == "" {
			existing.Index = index
		}

		return err
	}

	return &Error{Store: store, Index: index, Err: err}
}
