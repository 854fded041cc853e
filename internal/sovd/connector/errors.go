package connector

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is the failure class of a command execution.
type Kind string

const (
	KindTimeout         Kind = "timeout"
	KindUnreachable     Kind = "unreachable"
	KindInvalidResponse Kind = "invalid_response"
	KindInternal        Kind = "internal"
)

// Message is the human readable text stored on a failed command.
func (k Kind) Message() string {
	switch k {
	case KindTimeout:
		return "Vehicle connection timeout"
	case KindUnreachable:
		return "Vehicle unreachable"
	case KindInvalidResponse:
		return "Invalid response from vehicle"
	default:
		return "Internal error during command execution"
	}
}

// ErrConfig is wrapped by errors returned from New.
var ErrConfig = errors.New("connector configuration")

// ExecutionError is the classified cause of a failed attempt.
type ExecutionError struct {
	Kind Kind
	Err  error

	transient bool
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Transient reports whether another attempt may succeed.
func (e *ExecutionError) Transient() bool {
	return e.transient
}

func protocolError(format string, args ...any) *ExecutionError {
	return &ExecutionError{Kind: KindInvalidResponse, Err: fmt.Errorf(format, args...)}
}

func internalError(err error) *ExecutionError {
	return &ExecutionError{Kind: KindInternal, Err: err}
}

// Classify maps a transport error to its failure class. Only Unavailable and
// DeadlineExceeded are transient.
func Classify(err error) *ExecutionError {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee
	}

	code := status.Code(err)
	if code == codes.Unknown {
		// Errors that never went through the transport.
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			code = codes.DeadlineExceeded
		case errors.Is(err, context.Canceled):
			code = codes.Canceled
		}
	}

	switch code {
	case codes.DeadlineExceeded:
		return &ExecutionError{Kind: KindTimeout, Err: err, transient: true}
	case codes.Unavailable:
		return &ExecutionError{Kind: KindUnreachable, Err: err, transient: true}
	case codes.NotFound:
		return &ExecutionError{Kind: KindUnreachable, Err: err}
	default:
		return &ExecutionError{Kind: KindInternal, Err: err}
	}
}
