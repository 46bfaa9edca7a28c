package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a node or table does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDecode matches every *DecodeError via errors.Is.
	ErrDecode = errors.New("decode error")

	// ErrLoad matches every bulk-load failure via errors.Is.
	ErrLoad = errors.New("load error")
)

// DecodeError reports a malformed wire buffer.
//
// Offset is the byte position within the supplied buffer at which decoding
// stopped.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at offset %d: %s", e.Offset, e.Reason)
}

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

func decodeErrorf(offset int, format string, args ...any) error {
	return &DecodeError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
