package coordinator

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes request errors.
type ErrorCode string

const (
	// CodeTransportFailed indicates the fetch collaborator failed.
	CodeTransportFailed ErrorCode = "TRANSPORT_FAILED"

	// CodeStoreFailed indicates the fetched records could not be written.
	CodeStoreFailed ErrorCode = "STORE_FAILED"

	// CodeInvalidResult indicates a fetched record has no usable identifier.
	CodeInvalidResult ErrorCode = "INVALID_RESULT"

	// CodeInvalidQuery indicates the query is missing required fields.
	CodeInvalidQuery ErrorCode = "INVALID_QUERY"

	// CodeStopped indicates the coordinator stopped before settling.
	CodeStopped ErrorCode = "STOPPED"
)

// RequestError is the error reported in a view. It unwraps to the cause,
// so transport.IsTemporary and friends see through it.
type RequestError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Resource is the queried resource.
	Resource string

	// Descriptor is the descriptor id of the failed fetch.
	Descriptor string

	// Token is the fetch token of the failed flight, if any.
	Token string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	msg := fmt.Sprintf("%s: %s (resource=%s)", e.Code, e.Message, e.Resource)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *RequestError) Unwrap() error {
	return e.Cause
}

// CodeOf returns the code of the RequestError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func newRequestError(code ErrorCode, f *flight, cause error, format string, args ...any) *RequestError {
	return &RequestError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		Resource:   f.query.Resource,
		Descriptor: f.descriptor,
		Token:      f.token,
		Cause:      cause,
	}
}
