package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/relq/internal/ir"
)

// CodeTransport is the error code of every transport failure.
const CodeTransport = "TRANSPORT"

// Error is a failed fetch.
type Error struct {
	// Code is always CodeTransport.
	Code string

	// Message is a human-readable description.
	Message string

	// Resource is the resource being fetched.
	Resource string

	// Descriptor is the descriptor id of the failed fetch.
	Descriptor string

	// Temporary reports whether retrying the same fetch may succeed.
	Temporary bool

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: fetch %s: %s", e.Code, e.Resource, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a transport error for a fetch of resource with params.
func NewError(resource string, params ir.ReferenceParams, temporary bool, cause error, format string, args ...any) *Error {
	return &Error{
		Code:       CodeTransport,
		Message:    fmt.Sprintf(format, args...),
		Resource:   resource,
		Descriptor: ir.DescriptorID(resource, params),
		Temporary:  temporary,
		Cause:      cause,
	}
}

// AsError converts any fetch failure into *Error. Errors that already are
// transport errors are returned as is; context deadline errors are
// temporary, cancellation is not.
func AsError(resource string, params ir.ReferenceParams, err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	temporary := errors.Is(err, context.DeadlineExceeded)
	return NewError(resource, params, temporary, err, "fetch failed")
}

// IsTransportError reports whether err is or wraps a transport error.
func IsTransportError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// IsTemporary reports whether err is a temporary transport error.
func IsTemporary(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Temporary
	}
	return false
}
