package twab

import "github.com/stellar/go/support/errors"

var (
	// ErrWrongArrayLength is returned when a batch query exceeds the configured batch length.
	ErrWrongArrayLength = errors.New("wrong array length")
	// ErrLengthMismatch is returned when the start and end arrays of a batch query differ in length.
	ErrLengthMismatch = errors.New("start and end times length mismatch")
	// ErrInvalidRange is returned when the start of an averaging window is not before its end.
	ErrInvalidRange = errors.New("start time must be before end time")
	// ErrInsufficientBalance is returned when burning or transferring more than a holder owns.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrZeroAddress is returned when a balance leg names the zero address.
	ErrZeroAddress = errors.New("zero address")
	// ErrBalanceOverflow is returned when a balance would exceed 2^256-1.
	ErrBalanceOverflow = errors.New("balance overflow")
	// ErrStaleTimestamp is returned when a change is dated before the latest recorded change.
	ErrStaleTimestamp = errors.New("timestamp is before the latest recorded change")
)
