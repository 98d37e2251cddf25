// Package subscription implements the read-only, unauthenticated-or-basic
// ICS subscription feed fetch (spec §4.K): a single conditional GET of a
// published calendar, distinct from the authenticated CalDAV collections
// the rest of the module syncs against.
package subscription

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kestrelsync/caldavsync/icalendar"
	"github.com/kestrelsync/caldavsync/transport"
)

// Default and bounds for the computed refresh interval (spec §4.K).
const (
	DefaultRefreshInterval = 6 * time.Hour
	MinRefreshInterval     = 15 * time.Minute
)

// CacheState is the opaque conditional-GET state a caller persists
// between fetches of the same feed.
type CacheState struct {
	ETag         string
	LastModified string
}

// FetchResult is the outcome of one Fetch call.
type FetchResult struct {
	NotModified   bool
	Events        []EventSnapshot
	CalendarName  string
	CalendarColor string
	CacheState    CacheState
	NextRefresh   time.Duration
}

// EventSnapshot is a decoded subscription event; subscriptions are
// read-only so callers get the same fields sync does, minus any href/etag
// (a subscription feed has no per-event resource identity).
type EventSnapshot struct {
	UID         string
	Summary     string
	Description string
	Location    string
	DTStart     *int64
	DTEnd       *int64
	RRule       string
}

var (
	calNameRe    = regexp.MustCompile(`(?i)X-WR-CALNAME:(.*)`)
	calColorRe   = regexp.MustCompile(`(?i)X-APPLE-CALENDAR-COLOR:(.*)`)
	refreshRe    = regexp.MustCompile(`(?i)REFRESH-INTERVAL(?:;VALUE=DURATION)?:(.*)`)
	durationRe   = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)
	maxAgeRe     = regexp.MustCompile(`max-age=(\d+)`)
)

// Fetcher performs one-shot conditional fetches of a published ICS feed.
type Fetcher struct {
	tc *transport.Client
}

func NewFetcher(tc *transport.Client) *Fetcher {
	return &Fetcher{tc: tc}
}

// Fetch retrieves feedURL, sending conditional headers from prev when
// available. On 304 it returns NotModified=true and echoes prev's
// CacheState back unchanged.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string, prev CacheState) (*FetchResult, error) {
	res, err := f.tc.GetConditional(ctx, feedURL, prev.ETag, prev.LastModified)
	if err != nil {
		return nil, err
	}
	if res.NotModified {
		return &FetchResult{NotModified: true, CacheState: prev, NextRefresh: DefaultRefreshInterval}, nil
	}

	events, err := icalendar.Decode(res.Data)
	if err != nil {
		return nil, fmt.Errorf("subscription: decode %s: %w", feedURL, err)
	}

	out := make([]EventSnapshot, 0, len(events))
	for _, ev := range events {
		out = append(out, EventSnapshot{
			UID:         ev.UID,
			Summary:     ev.Summary,
			Description: ev.Description,
			Location:    ev.Location,
			DTStart:     ev.DTStart,
			DTEnd:       ev.DTEnd,
			RRule:       ev.RRule,
		})
	}

	body := string(res.Data)
	next := nextRefresh(body, res.CacheControl, res.Expires)

	return &FetchResult{
		Events:        out,
		CalendarName:  firstMatch(calNameRe, body),
		CalendarColor: firstMatch(calColorRe, body),
		CacheState:    CacheState{ETag: res.ETag, LastModified: res.LastModified},
		NextRefresh:   next,
	}, nil
}

func firstMatch(re *regexp.Regexp, body string) string {
	m := re.FindStringSubmatch(body)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(strings.TrimSuffix(m[1], "\r"))
}

// nextRefresh picks the first of (REFRESH-INTERVAL, Cache-Control
// max-age, Expires, DefaultRefreshInterval), clamped to MinRefreshInterval.
func nextRefresh(body, cacheControl, expires string) time.Duration {
	if raw := firstMatch(refreshRe, body); raw != "" {
		if d, ok := parseICalDuration(raw); ok {
			return clampRefresh(d)
		}
	}
	if m := maxAgeRe.FindStringSubmatch(cacheControl); len(m) == 2 {
		if secs, err := strconv.Atoi(m[1]); err == nil {
			return clampRefresh(time.Duration(secs) * time.Second)
		}
	}
	if expires != "" {
		if t, err := http.ParseTime(expires); err == nil {
			return clampRefresh(time.Until(t))
		}
	}
	return DefaultRefreshInterval
}

func clampRefresh(d time.Duration) time.Duration {
	if d < MinRefreshInterval {
		return MinRefreshInterval
	}
	return d
}

// parseICalDuration parses an RFC 5545 DURATION value (e.g. "PT1H",
// "P1DT6H"). Weeks ("PnW") are not used by REFRESH-INTERVAL in practice
// and are left unsupported.
func parseICalDuration(raw string) (time.Duration, bool) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "+")
	m := durationRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	var total time.Duration
	if m[1] != "" {
		n, _ := strconv.Atoi(m[1])
		total += time.Duration(n) * 24 * time.Hour
	}
	if m[2] != "" {
		n, _ := strconv.Atoi(m[2])
		total += time.Duration(n) * time.Hour
	}
	if m[3] != "" {
		n, _ := strconv.Atoi(m[3])
		total += time.Duration(n) * time.Minute
	}
	if m[4] != "" {
		n, _ := strconv.Atoi(m[4])
		total += time.Duration(n) * time.Second
	}
	return total, true
}
