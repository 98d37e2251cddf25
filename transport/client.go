package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kestrelsync/caldavsync/internal/davxml"
)

// Client executes WebDAV/CalDAV HTTP methods with authentication, manual
// redirect preservation, retry/backoff and a response-size cap. It is
// stateless and safe for concurrent use from multiple goroutines (§5).
type Client struct {
	hc   *http.Client
	auth Authentication
	opts Options
	log  zerolog.Logger
}

// NewClient builds a transport Client. rt may be nil to use
// http.DefaultTransport. Redirects are never followed automatically: the
// underlying http.Client's CheckRedirect always returns the sentinel that
// stops net/http from doing so, because Authorization must be preserved
// manually across host changes (e.g. iCloud partition redirects).
func NewClient(rt http.RoundTripper, auth Authentication, opts Options) *Client {
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &Client{
		hc: &http.Client{
			Transport: rt,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		auth: auth,
		opts: opts,
		log:  log.With().Str("component", "webdav-transport").Logger(),
	}
}

// rawResponse is the outcome of executing one logical request (after
// following redirects and exhausting retries on the final hop).
type rawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Propfind issues a PROPFIND with the given XML body and Depth header
// ("0", "1", or "infinity").
func (c *Client) Propfind(ctx context.Context, rawURL, body, depth string) (*davxml.MultiStatus, error) {
	resp, err := c.doXML(ctx, "PROPFIND", rawURL, body, depth)
	if err != nil {
		return nil, err
	}
	return c.parseMultiStatus(resp)
}

// Report issues a REPORT with the given XML body and Depth header.
func (c *Client) Report(ctx context.Context, rawURL, body, depth string) (*davxml.MultiStatus, error) {
	resp, err := c.doXML(ctx, "REPORT", rawURL, body, depth)
	if err != nil {
		return nil, err
	}
	return c.parseMultiStatus(resp)
}

// ReportRaw issues a REPORT and returns the raw response body instead of
// parsing it as a multistatus. Used for reports whose success response is
// a single non-multistatus body (e.g. free-busy-query, RFC 4791 §7.10).
func (c *Client) ReportRaw(ctx context.Context, rawURL, body, depth string) ([]byte, error) {
	resp, err := c.doXML(ctx, "REPORT", rawURL, body, depth)
	if err != nil {
		return nil, err
	}
	if err := translateStatus(resp.StatusCode, ""); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) parseMultiStatus(resp *rawResponse) (*davxml.MultiStatus, error) {
	if err := translateStatus(resp.StatusCode, ""); err != nil {
		return nil, err
	}
	ms, err := davxml.ParseMultiStatus(resp.Body)
	if err != nil {
		return nil, err
	}
	return ms, nil
}

// Mkcalendar issues a MKCALENDAR with the given XML body.
func (c *Client) Mkcalendar(ctx context.Context, rawURL, body string) error {
	resp, err := c.doXML(ctx, "MKCALENDAR", rawURL, body, "")
	if err != nil {
		return err
	}
	return translateStatus(resp.StatusCode, "")
}

func (c *Client) doXML(ctx context.Context, method, rawURL, body, depth string) (*rawResponse, error) {
	headers := map[string]string{"Content-Type": "application/xml; charset=utf-8"}
	if depth != "" {
		headers["Depth"] = depth
	}
	return c.do(ctx, method, rawURL, []byte(body), headers)
}

// GetResult is the outcome of a GET against an event resource.
type GetResult struct {
	Data        []byte
	ETag        string
	ContentType string
}

// Get fetches a single resource body by URL. A 404 is returned as an
// HTTPError with Code 404.
func (c *Client) Get(ctx context.Context, rawURL string) (*GetResult, error) {
	resp, err := c.do(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, &HTTPError{Code: 404, Message: "not found"}
	}
	if err := translateStatus(resp.StatusCode, ""); err != nil {
		return nil, err
	}
	return &GetResult{
		Data:        resp.Body,
		ETag:        NormalizeETag(resp.Header.Get("ETag")),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// ConditionalGetResult is the outcome of a GetConditional call.
type ConditionalGetResult struct {
	NotModified bool
	Data        []byte
	ETag        string
	LastModified string
	CacheControl string
	Expires      string
	ContentType  string
}

// GetConditional fetches a resource, sending If-None-Match and/or
// If-Modified-Since when the caller already holds a cached representation
// (subscription one-shot ICS fetch, spec §4.K). A 304 response short-
// circuits with NotModified=true and no body.
func (c *Client) GetConditional(ctx context.Context, rawURL, etag, lastModified string) (*ConditionalGetResult, error) {
	headers := map[string]string{}
	if etag != "" {
		headers["If-None-Match"] = FormatETagHeader(etag)
	}
	if lastModified != "" {
		headers["If-Modified-Since"] = lastModified
	}

	resp, err := c.do(ctx, http.MethodGet, rawURL, nil, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotModified {
		return &ConditionalGetResult{NotModified: true}, nil
	}
	if err := translateStatus(resp.StatusCode, ""); err != nil {
		return nil, err
	}
	return &ConditionalGetResult{
		Data:         resp.Body,
		ETag:         NormalizeETag(resp.Header.Get("ETag")),
		LastModified: resp.Header.Get("Last-Modified"),
		CacheControl: resp.Header.Get("Cache-Control"),
		Expires:      resp.Header.Get("Expires"),
		ContentType:  resp.Header.Get("Content-Type"),
	}, nil
}

// PutResult is the outcome of a successful PUT.
type PutResult struct {
	ETag     string
	Location string
}

// Put creates or updates an event resource. If ifNoneMatch is true, sends
// "If-None-Match: *" (CREATE semantics). Otherwise, if etag is non-empty,
// sends "If-Match: <quoted etag>" (UPDATE semantics). A 412 response is
// translated to ConflictError.
func (c *Client) Put(ctx context.Context, rawURL string, body []byte, etag string, ifNoneMatch bool) (*PutResult, error) {
	headers := map[string]string{"Content-Type": "text/calendar; charset=utf-8"}
	if ifNoneMatch {
		headers["If-None-Match"] = "*"
	} else if etag != "" {
		headers["If-Match"] = FormatETagHeader(etag)
	}

	resp, err := c.do(ctx, http.MethodPut, rawURL, body, headers)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusPreconditionFailed {
		return nil, &ConflictError{Detail: "ETag conflict"}
	}
	if err := translateStatus(resp.StatusCode, ""); err != nil {
		return nil, err
	}
	return &PutResult{
		ETag:     NormalizeETag(resp.Header.Get("ETag")),
		Location: resp.Header.Get("Location"),
	}, nil
}

// Delete removes an event resource. A 404 is treated as success (already
// gone); a 412 is translated to ConflictError.
func (c *Client) Delete(ctx context.Context, rawURL string, etag string) error {
	headers := map[string]string{}
	if etag != "" {
		headers["If-Match"] = FormatETagHeader(etag)
	}
	resp, err := c.do(ctx, http.MethodDelete, rawURL, nil, headers)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode == http.StatusPreconditionFailed {
		return &ConflictError{Detail: "ETag conflict"}
	}
	return translateStatus(resp.StatusCode, "")
}

func translateStatus(code int, detail string) error {
	switch {
	case code == http.StatusNoContent:
		return nil
	case code == http.StatusUnauthorized:
		return &AuthenticationError{Message: "HTTP 401"}
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusMultiStatus:
		return nil
	case code >= 300 && code < 400:
		// A redirect that survived MaxRedirects hops: surfaced unchanged.
		return &HTTPError{Code: code, Message: "unresolved redirect"}
	case code >= 400:
		return &HTTPError{Code: code, Message: detail}
	}
	return nil
}

// do executes method against rawURL, following redirects manually
// (preserving Authorization across host changes) and retrying transient
// failures with exponential backoff, per the transport contract.
func (c *Client) do(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) (*rawResponse, error) {
	currentURL := rawURL
	var resp *rawResponse
	for hop := 0; hop <= c.opts.MaxRedirects; hop++ {
		var err error
		resp, err = c.doWithRetry(ctx, method, currentURL, body, headers)
		if err != nil {
			return nil, err
		}
		if isRedirectStatus(resp.StatusCode) {
			loc := resp.Header.Get("Location")
			if loc == "" {
				return resp, nil
			}
			next, err := resolveRedirect(currentURL, loc)
			if err != nil {
				return resp, nil
			}
			currentURL = next
			continue
		}
		return resp, nil
	}
	// Exceeded MaxRedirects hops: surface the last redirect response
	// unchanged rather than firing another live request.
	return resp, nil
}

func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveRedirect(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(loc).String(), nil
}

func (c *Client) doWithRetry(ctx context.Context, method, rawURL string, body []byte, headers map[string]string) (*rawResponse, error) {
	backoff := c.opts.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
		if err != nil {
			return nil, &NetworkError{Op: "build request", Err: err}
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if h := c.auth.Header(); h != "" {
			req.Header.Set("Authorization", h)
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.hc.Do(req)
		if err != nil {
			if !isRetryableNetErr(err) || attempt == c.opts.MaxRetries {
				return nil, &NetworkError{Op: method, Err: err}
			}
			lastErr = err
			c.sleep(ctx, backoff)
			backoff = nextBackoff(backoff, c.opts.MaxBackoff)
			continue
		}

		data, err := readCapped(resp.Body, c.opts.MaxResponseBytes)
		resp.Body.Close()
		if err != nil {
			return nil, &NetworkError{Op: "read response body", Err: err}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			if attempt == c.opts.MaxRetries {
				return &rawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
			}
			c.sleep(ctx, retryAfterDuration(resp.Header.Get("Retry-After"), c.opts.DefaultRetryAfter))
			continue
		}

		if resp.StatusCode >= 500 {
			if attempt == c.opts.MaxRetries {
				return &rawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
			}
			c.sleep(ctx, backoff)
			backoff = nextBackoff(backoff, c.opts.MaxBackoff)
			continue
		}

		return &rawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
	}

	return nil, &NetworkError{Op: method, Err: lastErr}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func retryAfterDuration(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

// isRetryableNetErr classifies transport-level failures. TLS handshake
// failures fast-fail; socket timeouts, DNS failures, connect failures, and
// reset/connection-related I/O errors are retried.
func isRetryableNetErr(err error) bool {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "tls") || strings.Contains(msg, "certificate") || strings.Contains(msg, "x509") {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if strings.Contains(msg, "reset") || strings.Contains(msg, "connection") {
		return true
	}
	return false
}

// readCapped reads at most max+1 bytes; if more than max bytes are
// present, it returns an error instead of the truncated data, matching
// the "fail, don't silently truncate" contract for the 10 MiB cap.
func readCapped(r io.Reader, max int64) ([]byte, error) {
	limited := io.LimitReader(r, max+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("response body exceeds %d byte cap", max)
	}
	return data, nil
}
