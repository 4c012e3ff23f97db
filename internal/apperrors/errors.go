// Package apperrors implements the tagged-variant error taxonomy from the
// core's error-handling design: every failure kind carries a human-readable
// message, a subset carry structured detail, and the HTTP boundary maps
// kinds to status codes through a table rather than type switches.
package apperrors

import "fmt"

// Kind tags an error with one of the taxonomy entries.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindAuthentication    Kind = "authentication"
	KindRateLimit         Kind = "rate_limit"
	KindTransientNetwork  Kind = "transient_network"
	KindAPIError          Kind = "api_error"
	KindValidation        Kind = "validation"
	KindPlanValidation    Kind = "plan_validation"
	KindExecutionTimeout  Kind = "execution_timeout"
	KindExecutionRuntime  Kind = "execution_runtime"
	KindEmptyData         Kind = "empty_data"
	KindParsing           Kind = "parsing"
	KindShapeValidation   Kind = "shape_validation"
	KindStoreCreation     Kind = "store_creation"
	KindEndpointMissing   Kind = "endpoint_missing"
	KindInternal          Kind = "internal"
)

// Error is the core's single error type. Kind drives retry policy and the
// HTTP status mapping; Detail and RetryAfter are optional structured fields.
type Error struct {
	Kind       Kind
	Message    string
	Detail     string
	RetryAfter int // seconds; only meaningful for KindRateLimit
	Cause      error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind, wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithDetail attaches a structured detail string and returns the receiver.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// Retryable reports whether the taxonomy marks this kind as
// locally-recoverable by the component that raised it.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimit, KindTransientNetwork:
		return true
	default:
		return false
	}
}

// StatusCode is the table-driven mapping from error kind to HTTP status,
// used only at the server boundary.
func StatusCode(err error) int {
	kind := KindInternal
	var e *Error
	if ok := As(err, &e); ok {
		kind = e.Kind
	}
	code, ok := statusTable[kind]
	if !ok {
		return 500
	}
	return code
}

var statusTable = map[Kind]int{
	KindValidation:      400,
	KindPlanValidation:  400,
	KindEndpointMissing: 404,
	KindConfiguration:   500,
	KindAuthentication:  502,
	KindRateLimit:       502,
	KindTransientNetwork: 502,
	KindAPIError:        502,
	KindExecutionTimeout: 504,
	KindExecutionRuntime: 500,
	KindEmptyData:        422,
	KindParsing:          502,
	KindShapeValidation:  422,
	KindStoreCreation:    500,
	KindInternal:         500,
}

// As is a narrow local helper mirroring errors.As for *Error, avoiding an
// import cycle concern callers would otherwise hit spelling out errors.As
// at every call site.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
