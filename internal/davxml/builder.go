package davxml

import (
	"fmt"
	"strings"
	"time"
)

// EscapeXMLText escapes the five XML predefined entities. All user-supplied
// text (display names, descriptions, hrefs) MUST pass through this before
// being embedded in a request body.
func EscapeXMLText(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

// timeRangeUTC formats a time the way Apple/most CalDAV servers expect in a
// calendar-query time-range filter: YYYYMMDDTHHMMSSZ, UTC.
func timeRangeUTC(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// PropfindPrincipal builds the depth-0 PROPFIND body used to discover
// DAV:current-user-principal.
func PropfindPrincipal() string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<D:propfind xmlns:D="DAV:">` +
		`<D:prop><D:current-user-principal/></D:prop>` +
		`</D:propfind>`
}

// PropfindCalendarHome builds the depth-0 PROPFIND body used to discover
// calendar-home-set from a principal URL.
func PropfindCalendarHome() string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<D:propfind xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">` +
		`<D:prop><C:calendar-home-set/></D:prop>` +
		`</D:propfind>`
}

// PropfindCalendars builds the depth-1 PROPFIND body used to enumerate a
// calendar home's children with the full set of properties the Calendar
// data model needs.
func PropfindCalendars() string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<D:propfind xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav" xmlns:CS="http://calendarserver.org/ns/">` +
		`<D:prop>` +
		`<D:displayname/>` +
		`<D:resourcetype/>` +
		`<D:getetag/>` +
		`<CS:getctag/>` +
		`<D:sync-token/>` +
		`<C:supported-calendar-component-set/>` +
		`<C:calendar-description/>` +
		`<A:calendar-color xmlns:A="http://apple.com/ns/ical/"/>` +
		`</D:prop>` +
		`</D:propfind>`
}

// PropfindCtag builds the depth-0 PROPFIND body that reads only the ctag.
func PropfindCtag() string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<D:propfind xmlns:D="DAV:" xmlns:CS="http://calendarserver.org/ns/">` +
		`<D:prop><CS:getctag/></D:prop>` +
		`</D:propfind>`
}

// CalendarQuery builds a calendar-query REPORT body. start/end, if
// non-zero, add a VEVENT time-range filter. Uses lowercase c:/d: prefixes
// for compatibility with strict servers (notably some Google/Yandex
// deployments), per the wire contract.
func CalendarQuery(start, end time.Time) string {
	var timeRange string
	if !start.IsZero() || !end.IsZero() {
		timeRange = fmt.Sprintf(`<c:time-range start="%s" end="%s"/>`, timeRangeUTC(start), timeRangeUTC(end))
	}
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<c:calendar-query xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">` +
		`<d:prop><d:getetag/><c:calendar-data/></d:prop>` +
		`<c:filter><c:comp-filter name="VCALENDAR">` +
		`<c:comp-filter name="VEVENT">` + timeRange + `</c:comp-filter>` +
		`</c:comp-filter></c:filter>` +
		`</c:calendar-query>`
}

// CalendarMultiget builds a calendar-multiget REPORT body for the given
// hrefs. Hrefs are escaped individually.
func CalendarMultiget(hrefs []string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	b.WriteString(`<c:calendar-multiget xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">`)
	b.WriteString(`<d:prop><d:getetag/><c:calendar-data/></d:prop>`)
	for _, href := range hrefs {
		b.WriteString(`<d:href>`)
		b.WriteString(EscapeXMLText(href))
		b.WriteString(`</d:href>`)
	}
	b.WriteString(`</c:calendar-multiget>`)
	return b.String()
}

// SyncCollection builds a sync-collection REPORT body (RFC 6578,
// sync-level 1) for the given prior sync-token (empty for initial sync).
func SyncCollection(syncToken string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<d:sync-collection xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">` +
		`<d:sync-token>` + EscapeXMLText(syncToken) + `</d:sync-token>` +
		`<d:sync-level>1</d:sync-level>` +
		`<d:prop><d:getetag/><c:calendar-data/></d:prop>` +
		`</d:sync-collection>`
}

// FreeBusyQuery builds a free-busy-query REPORT body for a single request.
func FreeBusyQuery(start, end time.Time) string {
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<C:free-busy-query xmlns:C="urn:ietf:params:xml:ns:caldav">` +
		fmt.Sprintf(`<C:time-range start="%s" end="%s"/>`, timeRangeUTC(start), timeRangeUTC(end)) +
		`</C:free-busy-query>`
}

// MkCalendar builds a MKCALENDAR body for a single calendar creation call.
func MkCalendar(displayName, description string, components []string) string {
	var comps strings.Builder
	for _, c := range components {
		comps.WriteString(fmt.Sprintf(`<C:comp name="%s"/>`, EscapeXMLText(c)))
	}
	var descElem string
	if description != "" {
		descElem = `<C:calendar-description>` + EscapeXMLText(description) + `</C:calendar-description>`
	}
	return `<?xml version="1.0" encoding="UTF-8"?>` +
		`<C:mkcalendar xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">` +
		`<D:set><D:prop>` +
		`<D:displayname>` + EscapeXMLText(displayName) + `</D:displayname>` +
		`<C:supported-calendar-component-set>` + comps.String() + `</C:supported-calendar-component-set>` +
		descElem +
		`</D:prop></D:set>` +
		`</C:mkcalendar>`
}
