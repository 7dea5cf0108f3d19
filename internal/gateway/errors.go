package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnavailable is returned when the gateway cannot be reached or answers 5xx.
	ErrUnavailable = errors.New("gateway unavailable")

	// ErrTimeout is returned when the call exceeded its deadline. The remote
	// outcome is unknown.
	ErrTimeout = errors.New("gateway timeout")

	// ErrRejected is returned when the gateway refused the request (4xx).
	ErrRejected = errors.New("gateway rejected request")

	// ErrUnauthorized is returned when credentials or the bearer token were refused.
	ErrUnauthorized = errors.New("gateway unauthorized")

	// ErrMalformedResponse is returned when a response does not match the
	// expected shape, including unknown status values.
	ErrMalformedResponse = errors.New("gateway returned malformed response")
)

// Error is the typed failure returned by every Client call.
type Error struct {
	Op         string // preview, push, status, token
	Kind       error  // one of the Err* sentinels above
	StatusCode int    // HTTP status, zero for transport failures
	Message    string // remote message, never shown to end users
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("gateway %s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the sentinel kind so callers can use errors.Is(err, ErrTimeout).
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether the gateway answered 404, meaning it has no
// record of the requested order.
func IsNotFound(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound
}
