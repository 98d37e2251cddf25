package caldav

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelsync/caldavsync/icalendar"
	"github.com/kestrelsync/caldavsync/internal/davxml"
	"github.com/kestrelsync/caldavsync/transport"
)

// Client provides the high-level CalDAV operations (spec §4.F) built on
// the WebDAV transport and the multistatus parser/request builder. It
// holds no per-calendar state and is safe for concurrent use.
type Client struct {
	tc *transport.Client
}

// NewClient wraps a transport.Client with CalDAV-level operations.
func NewClient(tc *transport.Client) *Client {
	return &Client{tc: tc}
}

// EventWithRef pairs a decoded event with the server resource it came
// from.
type EventWithRef struct {
	Href  string
	ETag  string
	Event CalendarEvent
}

// GetCtag reads only the collection's ctag.
func (c *Client) GetCtag(ctx context.Context, calendarURL string) (string, error) {
	ms, err := c.tc.Propfind(ctx, calendarURL, davxml.PropfindCtag(), "0")
	if err != nil {
		return "", err
	}
	for _, resp := range ms.Responses {
		if v, ok := resp.Properties["getctag"]; ok {
			return v, nil
		}
	}
	return "", nil
}

// FetchEvents runs a calendar-query REPORT, optionally restricted to a
// VEVENT time-range. Events whose payload fails the iCalendar decoder are
// dropped silently (spec §4.F); decode failures are returned alongside the
// successfully decoded events so the caller can log them.
func (c *Client) FetchEvents(ctx context.Context, calendarURL string, start, end time.Time) ([]EventWithRef, []error) {
	ms, err := c.tc.Report(ctx, calendarURL, davxml.CalendarQuery(start, end), "1")
	if err != nil {
		return nil, []error{err}
	}
	return decodeResponses(ms)
}

// FetchEventsByHref runs a calendar-multiget REPORT for the given hrefs.
func (c *Client) FetchEventsByHref(ctx context.Context, calendarURL string, hrefs []string) ([]EventWithRef, []error) {
	if len(hrefs) == 0 {
		return nil, nil
	}
	ms, err := c.tc.Report(ctx, calendarURL, davxml.CalendarMultiget(hrefs), "1")
	if err != nil {
		return nil, []error{err}
	}
	return decodeResponses(ms)
}

func decodeResponses(ms *davxml.MultiStatus) ([]EventWithRef, []error) {
	var out []EventWithRef
	var errs []error
	for _, resp := range ms.Responses {
		if resp.CalendarData == "" {
			continue
		}
		events, err := icalendar.Decode([]byte(resp.CalendarData))
		if err != nil {
			errs = append(errs, &icalendar.ParseError{Href: resp.Href, Err: err})
			continue
		}
		for _, ev := range events {
			out = append(out, EventWithRef{Href: resp.Href, ETag: resp.ETag, Event: ev})
		}
	}
	return out, errs
}

// SyncCollectionResult is the decoded result of a sync-collection REPORT
// (RFC 6578).
type SyncCollectionResult struct {
	Added        []EventWithRef // responses that carried calendar-data
	AddedHrefs   []string       // responses with an etag but no calendar-data
	DeletedHrefs []string
	NewSyncToken string
}

// SyncCollection runs a sync-collection REPORT against the given prior
// sync-token (empty string performs an initial/probe sync).
func (c *Client) SyncCollection(ctx context.Context, calendarURL, syncToken string) (*SyncCollectionResult, error) {
	ms, err := c.tc.Report(ctx, calendarURL, davxml.SyncCollection(syncToken), "1")
	if err != nil {
		return nil, err
	}

	result := &SyncCollectionResult{NewSyncToken: ms.SyncToken}
	for _, resp := range ms.Responses {
		switch {
		case resp.Status == 404:
			result.DeletedHrefs = append(result.DeletedHrefs, resp.Href)
		case resp.CalendarData != "":
			events, err := icalendar.Decode([]byte(resp.CalendarData))
			if err != nil {
				continue // dropped silently, per §4.F
			}
			for _, ev := range events {
				result.Added = append(result.Added, EventWithRef{Href: resp.Href, ETag: resp.ETag, Event: ev})
			}
		case resp.ETag != "":
			result.AddedHrefs = append(result.AddedHrefs, resp.Href)
		}
	}
	return result, nil
}

// CreateEventRaw PUTs a new event at "<calendarUrl>/<uid>.ics" with
// If-None-Match: * (CREATE semantics).
func (c *Client) CreateEventRaw(ctx context.Context, calendarURL, uid string, icalData []byte) (*EventRef, error) {
	href := strings.TrimSuffix(calendarURL, "/") + "/" + uid + ".ics"
	res, err := c.tc.Put(ctx, href, icalData, "", true)
	if err != nil {
		return nil, err
	}
	resultHref := href
	if res.Location != "" {
		resultHref = res.Location
	}
	return &EventRef{Href: resultHref, ETag: res.ETag}, nil
}

// UpdateEventRaw PUTs an update to an existing event at url, sending
// If-Match when etag is non-empty.
func (c *Client) UpdateEventRaw(ctx context.Context, url string, icalData []byte, etag string) (string, error) {
	res, err := c.tc.Put(ctx, url, icalData, etag, false)
	if err != nil {
		return "", err
	}
	return res.ETag, nil
}

// DeleteEvent deletes the resource at url, sending If-Match when etag is
// non-empty. A 404 is treated as success by the transport layer.
func (c *Client) DeleteEvent(ctx context.Context, url, etag string) error {
	return c.tc.Delete(ctx, url, etag)
}

// Freebusy issues a single free-busy-query REPORT against calendarURL.
// Aggregation across multiple calendars/requests is explicitly out of
// scope (spec §1 Non-goals); this is the one-request primitive the
// request builder already has to support.
func (c *Client) Freebusy(ctx context.Context, calendarURL string, start, end time.Time) ([]byte, error) {
	data, err := c.tc.ReportRaw(ctx, calendarURL, davxml.FreeBusyQuery(start, end), "")
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("caldav: empty free-busy response")
	}
	return data, nil
}
