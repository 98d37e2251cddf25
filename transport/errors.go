package transport

import "fmt"

// HTTPError is returned for any response with status >= 400 that isn't
// translated into a more specific sentinel elsewhere (see client.go), and
// for a 3xx redirect left unresolved after MaxRedirects hops.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("webdav: http %d: %s", e.Code, e.Message)
}

// NetworkError wraps a transport-level failure: connect/timeout/TLS/IO, or
// a response that exceeded the size cap.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("webdav: %s: %v", e.Op, e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// AuthenticationError marks an HTTP 401 specifically, distinct from other
// 4xx HTTPErrors, so callers can prompt for new credentials.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return "webdav: authentication failed: " + e.Message }

// ConflictError marks an HTTP 412 precondition failure on PUT or DELETE.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string { return "webdav: conflict: " + e.Detail }
