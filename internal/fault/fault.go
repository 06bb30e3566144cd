// Package fault defines the failure taxonomy shared by every pipeline stage.
package fault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// Unexpected is the catch-all for failures that fit no other kind.
	Unexpected Kind = iota
	// InvalidSource means the request URL was rejected before any network call.
	InvalidSource
	// RenditionUnavailable means no rendition matched the requested quality class.
	RenditionUnavailable
	// ResolutionFailed means metadata could not be resolved from the remote host.
	ResolutionFailed
	// NetworkError means the media bytes could not be fetched.
	NetworkError
	// TransformFailed means the transcoder exited abnormally or produced nothing.
	TransformFailed
	// DeliveryFailed means the result could not be written to the caller.
	DeliveryFailed
)

var kindNames = map[Kind]string{
	Unexpected:           "Unexpected",
	InvalidSource:        "InvalidSource",
	RenditionUnavailable: "RenditionUnavailable",
	ResolutionFailed:     "ResolutionFailed",
	NetworkError:         "NetworkError",
	TransformFailed:      "TransformFailed",
	DeliveryFailed:       "DeliveryFailed",
}

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Kinds lists every kind, in declaration order.
func Kinds() []Kind {
	return []Kind{Unexpected, InvalidSource, RenditionUnavailable, ResolutionFailed, NetworkError, TransformFailed, DeliveryFailed}
}

// Error is the error type returned by pipeline stages.
type Error struct {
	Kind Kind
	// Op names the stage or operation that failed ("resolve", "acquire", ...).
	Op string
	// Status is the HTTP status reported by the remote host, 0 if unknown.
	Status int
	// Diagnostic holds detail meant for logs, e.g. the transcoder's stderr.
	Diagnostic string
	// Committed is set by delivery once response headers have been sent.
	Committed bool
	Err error
}

// E builds an Error of the given kind.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// WithStatus records the remote HTTP status.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithDiagnostic attaches diagnostic output.
func (e *Error) WithDiagnostic(d string) *Error {
	e.Diagnostic = d
	return e
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (remote status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf returns the kind of err, Unexpected when err carries none.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return Unexpected
}

// Is reports whether err is a fault of the given kind.
func Is(err error, kind Kind) bool {
	fe, ok := As(err)
	return ok && fe.Kind == kind
}

// IsCanceled reports whether err stems from the caller going away.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// HTTPStatus maps err to the status code sent to the caller.
func HTTPStatus(err error) int {
	fe, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch fe.Kind {
	case InvalidSource, RenditionUnavailable:
		return http.StatusBadRequest
	case ResolutionFailed, NetworkError:
		if fe.Status == http.StatusTooManyRequests || fe.Status == http.StatusForbidden {
			return fe.Status
		}
	}
	return http.StatusInternalServerError
}

// Message returns the short caller-facing text for err.
func Message(err error) string {
	fe, ok := As(err)
	if !ok {
		return "Unexpected error"
	}
	switch HTTPStatus(err) {
	case http.StatusTooManyRequests:
		return "The remote host is rate limiting requests, please try again later"
	case http.StatusForbidden:
		return "The remote host refused access to this media"
	}
	switch fe.Kind {
	case InvalidSource:
		return "Invalid source URL"
	case RenditionUnavailable:
		return "Requested format is not available for this media"
	case ResolutionFailed:
		return "Failed to resolve media information"
	case NetworkError:
		return "Failed to fetch media"
	case TransformFailed:
		return "Failed to process media"
	case DeliveryFailed:
		return "Failed to deliver media"
	}
	return "Unexpected error"
}
