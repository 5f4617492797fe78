package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload is returned when a hex payload has an odd length
	// or contains a character that is not a hexadecimal digit.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrIncompleteSequence is returned when UTF-16BE input ends in the
	// middle of a code unit or in the middle of a surrogate pair.
	ErrIncompleteSequence = errors.New("incomplete UTF-16 sequence")

	// ErrInvalidSequence is returned when UTF-16BE input contains an
	// unpaired surrogate.
	ErrInvalidSequence = errors.New("invalid UTF-16 sequence")
)

// SequenceError reports the byte offset at which decoding failed.
type SequenceError struct {
	// Offset is the index of the first offending byte in the input.
	Offset int
	// Err is one of the sentinel errors of this package.
	Err error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%v at byte offset %d", e.Err, e.Offset)
}

func (e *SequenceError) Unwrap() error {
	return e.Err
}
