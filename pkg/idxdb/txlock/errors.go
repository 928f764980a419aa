package txlock

import "errors"

var (
	// ErrUnknownStore indicates a requested store name is not part of the
	// scheduler's store set. Returned before the request is queued.
	ErrUnknownStore = errors.New("txlock: unknown store")

	// ErrProviderClosing indicates the scheduler is closing and admits no new
	// transactions. Requests still pending when closing starts fail with it too.
	ErrProviderClosing = errors.New("txlock: provider closing")

	// ErrDoubleCompletion indicates Complete or Fail was called for a token that
	// was already completed. This is a caller bug.
	ErrDoubleCompletion = errors.New("txlock: transaction completed twice")

	// ErrUnknownTransaction indicates a token this scheduler does not track.
	// This is a caller bug.
	ErrUnknownTransaction = errors.New("txlock: unknown transaction")

	// ErrFailed is the completion result of a token failed with a nil reason.
	ErrFailed = errors.New("txlock: transaction failed")
)
