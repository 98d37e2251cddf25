package transport

import "strings"

// NormalizeETag strips a single pair of surrounding double quotes, if
// present. It is idempotent on already-unquoted values.
func NormalizeETag(etag string) string {
	etag = strings.TrimSpace(etag)
	if len(etag) >= 2 && strings.HasPrefix(etag, `"`) && strings.HasSuffix(etag, `"`) {
		return etag[1 : len(etag)-1]
	}
	return etag
}

// FormatETagHeader re-adds exactly one pair of surrounding double quotes,
// the form required by If-Match/If-None-Match (RFC 7232). Safe to call on
// an already-quoted value: it normalizes first.
func FormatETagHeader(etag string) string {
	return `"` + NormalizeETag(etag) + `"`
}
