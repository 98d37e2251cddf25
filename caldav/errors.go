package caldav

import "errors"

// Sentinel errors surfaced by the CalDAV client and sync layers.
var (
	// ErrSyncTokenExpired signals a server-reported invalid/expired
	// sync-token (HTTP 403/410, or a quirks-recognized body marker). The
	// caller falls back to a full sync.
	ErrSyncTokenExpired = errors.New("caldav: sync-token expired or invalid")

	// ErrPreconditionFailed names an HTTP 412 on PUT/DELETE. Client itself
	// reports a 412 as *transport.ConflictError and does not return this
	// value.
	ErrPreconditionFailed = errors.New("caldav: precondition failed (HTTP 412)")

	// ErrMergeNotSupported signals a conflict strategy that requires a
	// structural merge the core does not implement.
	ErrMergeNotSupported = errors.New("caldav: merge conflict resolution not supported")
)
