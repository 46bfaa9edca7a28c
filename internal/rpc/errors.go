package rpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreamware/graphps/internal/graph"
)

// Code is a response status. Zero means success.
type Code int32

const (
	CodeOK             Code = 0
	CodeInternal       Code = -1
	CodeProtocol       Code = -2
	CodeNotFound       Code = -3
	CodeLoad           Code = -4
	CodeUnknownCommand Code = -5
	CodeUnavailable    Code = -6
	CodeUnsupported    Code = -7
)

var (
	// ErrProtocol marks a request missing a field or carrying parameters of
	// the wrong count or length.
	ErrProtocol = errors.New("protocol error")

	// ErrInternal is the generic failure for unclassified handler errors.
	ErrInternal = errors.New("server internal error")

	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnavailable is returned while the server is not serving.
	ErrUnavailable = errors.New("server unavailable")

	// ErrUnsupported is returned when a table lacks the capability a
	// command needs.
	ErrUnsupported = errors.New("unsupported operation")
)

// Protocolf returns an error matching ErrProtocol.
func Protocolf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// RemoteError is a non-zero response received from a server.
type RemoteError struct {
	Code    Code
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

// Is maps the response code back to the matching sentinel.
func (e *RemoteError) Is(target error) bool {
	switch e.Code {
	case CodeInternal:
		return target == ErrInternal
	case CodeProtocol:
		return target == ErrProtocol
	case CodeNotFound:
		return target == graph.ErrNotFound
	case CodeLoad:
		return target == graph.ErrLoad
	case CodeUnknownCommand:
		return target == ErrUnknownCommand
	case CodeUnavailable:
		return target == ErrUnavailable
	case CodeUnsupported:
		return target == ErrUnsupported
	}
	return false
}

// CodeOf classifies err. Errors without a specific class map to
// CodeInternal.
func CodeOf(err error) Code {
	var remote *RemoteError
	switch {
	case err == nil:
		return CodeOK
	case errors.As(err, &remote):
		return remote.Code
	case errors.Is(err, ErrProtocol), errors.Is(err, graph.ErrDecode):
		return CodeProtocol
	case errors.Is(err, graph.ErrLoad):
		return CodeLoad
	case errors.Is(err, graph.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnknownCommand):
		return CodeUnknownCommand
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeUnavailable
	case errors.Is(err, ErrUnsupported):
		return CodeUnsupported
	}
	return CodeInternal
}
