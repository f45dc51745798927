// Package status holds the fixed outcome taxonomy of a cellular session and the error type
// every stage uses to report which outcome it detected.
package status

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Status is the single outcome of a cellular session attempt.
type Status int

const (
	Success Status = iota
	UnexpectedError
	UnknownHttpResponse
	ErrorReadingHttpResponse
	UnableToInstantiateSockets
	ErrorPerformingSSLHandshake
	CannotSpecifySSLIOConnection
	CannotObtainNetworkInterfaces
	CannotFindRoutesForHttpRequest
	CannotSpecifySSLFunctionsNeeded
	ErrorPerformingSSLWriteOperation
	CannotFindRemoteAddressOfRemoteUrl
	CannotConnectSocketToRemoteAddress
	PeersCertificateDoesNotMatchWithRequestedUrl
	SSLSessionDidNotCloseGracefullyAfterPerformingSSLReadOperation
)

var names = [...]string{
	Success:                            "Success",
	UnexpectedError:                    "UnexpectedError",
	UnknownHttpResponse:                "UnknownHttpResponse",
	ErrorReadingHttpResponse:           "ErrorReadingHttpResponse",
	UnableToInstantiateSockets:         "UnableToInstantiateSockets",
	ErrorPerformingSSLHandshake:        "ErrorPerformingSSLHandshake",
	CannotSpecifySSLIOConnection:       "CannotSpecifySSLIOConnection",
	CannotObtainNetworkInterfaces:      "CannotObtainNetworkInterfaces",
	CannotFindRoutesForHttpRequest:     "CannotFindRoutesForHttpRequest",
	CannotSpecifySSLFunctionsNeeded:    "CannotSpecifySSLFunctionsNeeded",
	ErrorPerformingSSLWriteOperation:   "ErrorPerformingSSLWriteOperation",
	CannotFindRemoteAddressOfRemoteUrl: "CannotFindRemoteAddressOfRemoteUrl",
	CannotConnectSocketToRemoteAddress: "CannotConnectSocketToRemoteAddress",
	PeersCertificateDoesNotMatchWithRequestedUrl:                   "PeersCertificateDoesNotMatchWithRequestedUrl",
	SSLSessionDidNotCloseGracefullyAfterPerformingSSLReadOperation: "SSLSessionDidNotCloseGracefullyAfterPerformingSSLReadOperation",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(names) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return names[s]
}

// Parse returns the Status with the given name.
func Parse(name string) (Status, bool) {
	for i, n := range names {
		if n == name {
			return Status(i), true
		}
	}
	return UnexpectedError, false
}

// All returns every status in declaration order.
func All() []Status {
	all := make([]Status, len(names))
	for i := range names {
		all[i] = Status(i)
	}
	return all
}

// MarshalText renders the status by name so results read well in JSON and YAML.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *Status) UnmarshalText(text []byte) error {
	v, ok := Parse(string(text))
	if !ok {
		return fmt.Errorf("unknown status: %q", string(text))
	}
	*s = v
	return nil
}

// Error is a stage failure classified at the point of detection.
type Error struct {
	Status Status
	// Detail is human readable diagnostic text, safe to hand to the caller.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Detail != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Status, e.Detail, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Status, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Status, e.Err)
	default:
		return e.Status.String()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns a classified error without an underlying cause.
func New(s Status, format string, args ...interface{}) error {
	return &Error{Status: s, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies err. A nil err still yields an error so callers can use it for synthesized
// failures.
func Wrap(s Status, err error, detail string) error {
	if err != nil {
		err = errors.WithStack(err)
	}
	return &Error{Status: s, Detail: detail, Err: err}
}

// Wrapf is Wrap with a formatted detail.
func Wrapf(s Status, err error, format string, args ...interface{}) error {
	return Wrap(s, err, fmt.Sprintf(format, args...))
}

// Of returns the status carried by err. Errors that were never classified map to
// UnexpectedError and a nil error maps to Success.
func Of(err error) Status {
	if err == nil {
		return Success
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Status
	}
	return UnexpectedError
}

// Detail returns the diagnostic text attached to err, falling back to err.Error().
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) && se.Detail != "" {
		if se.Err != nil {
			return se.Detail + ": " + se.Err.Error()
		}
		return se.Detail
	}
	return err.Error()
}
