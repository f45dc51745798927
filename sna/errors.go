package sna

import (
	"fmt"

	"github.com/agentuity/go-cellular/status"
)

// ErrorKind is the category of a verification failure.
type ErrorKind int

const (
	KindInvalidURL ErrorKind = iota + 1
	KindNoResultFromURL
	KindTooManyRedirects
	KindNetworkingError
	KindCellularNetworkNotAvailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidURL:
		return "InvalidURL"
	case KindNoResultFromURL:
		return "NoResultFromURL"
	case KindTooManyRedirects:
		return "TooManyRedirects"
	case KindNetworkingError:
		return "NetworkingError"
	case KindCellularNetworkNotAvailable:
		return "CellularNetworkNotAvailable"
	}
	return "Unknown"
}

// Error is returned by ProcessURL. Status is only meaningful for KindNetworkingError.
type Error struct {
	Kind   ErrorKind
	Status status.Status
	URL    string
	Detail string
	Err    error
}

var (
	ErrInvalidURL                  = &Error{Kind: KindInvalidURL}
	ErrNoResultFromURL             = &Error{Kind: KindNoResultFromURL}
	ErrTooManyRedirects            = &Error{Kind: KindTooManyRedirects}
	ErrNetworking                  = &Error{Kind: KindNetworkingError}
	ErrCellularNetworkNotAvailable = &Error{Kind: KindCellularNetworkNotAvailable}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Description() + ": " + e.Err.Error()
	}
	return e.Description()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind, so errors.Is(err, ErrInvalidURL) works for any invalid url error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Description is the short text suitable for an end user.
func (e *Error) Description() string {
	switch e.Kind {
	case KindInvalidURL:
		return "Invalid url, please check the format."
	case KindNoResultFromURL:
		return "Unable to get a valid result from the requested URL."
	case KindTooManyRedirects:
		return "Too many redirects while processing the URL."
	case KindNetworkingError:
		return fmt.Sprintf("Networking error, cause: %s", e.Status)
	case KindCellularNetworkNotAvailable:
		return "Cellular network not available"
	}
	return "Unknown error"
}

// TechnicalError explains the failure to a developer.
func (e *Error) TechnicalError() string {
	switch e.Kind {
	case KindInvalidURL:
		return fmt.Sprintf("unable to parse %q as an absolute https url", e.URL)
	case KindNoResultFromURL:
		return "the response carried neither a redirect nor a success marker, the url may be corrupted or expired"
	case KindTooManyRedirects:
		return fmt.Sprintf("gave up following redirects at %s", e.URL)
	case KindNetworkingError:
		if e.Detail != "" {
			return fmt.Sprintf("cellular request to %s failed with %s: %s", e.URL, e.Status, e.Detail)
		}
		return fmt.Sprintf("cellular request to %s failed with %s", e.URL, e.Status)
	case KindCellularNetworkNotAvailable:
		return "the interface monitor never reported the cellular interface as up with an address"
	}
	return e.Error()
}
