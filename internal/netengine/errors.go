package netengine

import "errors"

// Sentinel errors for the network error taxonomy (spec §7: TransportError,
// HttpStatusError, Timeout).
var (
	ErrTransport  = errors.New("netengine: transport error")
	ErrHTTPStatus = errors.New("netengine: unexpected http status")
	ErrTimeout    = errors.New("netengine: timeout")
)

// HTTPStatusError wraps ErrHTTPStatus with the actual status code so
// callers can branch on it without string matching.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return friendlyHTTPError(e.StatusCode).Error()
}

func (e *HTTPStatusError) Unwrap() error { return ErrHTTPStatus }
