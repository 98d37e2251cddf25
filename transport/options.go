package transport

import "time"

// Options configures retry, redirect and safety limits for a Client. The
// zero value is not usable; construct via DefaultOptions().
type Options struct {
	UserAgent string

	// MaxRedirects bounds manual redirect following (default 5).
	MaxRedirects int
	// MaxRetries bounds retry attempts after the first try (default 2,
	// i.e. up to 3 attempts total).
	MaxRetries int
	// InitialBackoff/MaxBackoff bound the exponential retry delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// DefaultRetryAfter is used for HTTP 429 responses that omit
	// Retry-After or set it to 0.
	DefaultRetryAfter time.Duration
	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes int64

	// Connect/Read/Write are advisory timeouts a caller should apply to
	// the underlying http.Client/Transport/Dialer; the transport.Client
	// itself does not construct a dialer.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DefaultOptions returns the contract's defaults: 5 redirects, 2 retries,
// 500ms/2000ms backoff bounds, 30s default Retry-After, 10 MiB cap, and the
// §5 connect/read/write timeout defaults.
func DefaultOptions() Options {
	return Options{
		UserAgent:         "caldavsync/1.0",
		MaxRedirects:      5,
		MaxRetries:        2,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        2000 * time.Millisecond,
		DefaultRetryAfter: 30 * time.Second,
		MaxResponseBytes:  10 << 20,
		ConnectTimeout:    30 * time.Second,
		ReadTimeout:       300 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
}
