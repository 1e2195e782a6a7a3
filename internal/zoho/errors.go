package zoho

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a transport-level request failure.
type ErrorKind int

const (
	KindUnauthorized ErrorKind = iota
	KindRateLimited
	KindServerError
	KindTimeout
	KindNetworkError
	KindExhausted
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimited:
		return "rate limited"
	case KindServerError:
		return "server error"
	case KindTimeout:
		return "timeout"
	case KindNetworkError:
		return "network error"
	case KindExhausted:
		return "retries exhausted"
	default:
		return "unknown"
	}
}

// RequestError is a transport, auth or throttle failure surfaced by the
// request executor. Business-level non-2xx statuses are not
// RequestErrors; those responses are returned to the caller as-is.
type RequestError struct {
	Kind   ErrorKind
	Status int // HTTP status when one was observed, 0 otherwise
	Err    error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsKind reports whether err is a RequestError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Kind == kind
}
