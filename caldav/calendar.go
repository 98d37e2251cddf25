// Package caldav implements the CalDAV-specific data model and the
// high-level client operations built on top of the WebDAV transport
// (list/fetch/create/update/delete/sync-collection), per RFC 4791.
package caldav

import "strings"

// Calendar describes one calendar collection discovered under a calendar
// home. A calendar is recognized only if its resourcetype contains a
// calendar marker and its supported-calendar-component-set, when the
// server reports one, includes VEVENT; collections filtered by quirks
// (inbox/outbox/notification/freebusy, by name/href) or lacking VEVENT
// support (VTODO-only task lists) are never turned into a Calendar value
// in the first place.
type Calendar struct {
	Href                string
	DisplayName         string
	Description         string
	Color               string // normalized to "#RRGGBB" where possible
	Ctag                string
	SyncToken           string
	SupportedComponents []string
	ReadOnly            bool
}

// SupportsComponent reports whether name (e.g. "VEVENT") is among this
// calendar's supported-calendar-component-set.
func (c Calendar) SupportsComponent(name string) bool {
	for _, n := range c.SupportedComponents {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// NormalizeColor coerces common CalDAV color encodings ("#RRGGBBAA",
// bare "RRGGBB", mixed case) to canonical "#RRGGBB". Unparseable input is
// returned unchanged: color is decorative, not an invariant-bearing field.
func NormalizeColor(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.ToUpper(strings.TrimPrefix(s, "#"))
	if len(s) == 8 {
		s = s[:6] // drop alpha channel
	}
	if len(s) != 6 {
		return raw
	}
	for _, r := range s {
		if !((r >= '0' && r <= '9') || (r >= 'A' && r <= 'F')) {
			return raw
		}
	}
	return "#" + s
}

// EventRef identifies a server-side resource by href and (optionally) the
// ETag the caller last observed for it. The ETag is always stored
// unquoted; transport.FormatETagHeader is used only at the wire boundary.
type EventRef struct {
	Href string
	ETag string
}

// CalendarEvent is the decoded representation of a single calendar
// component the core reasons about. The payload itself (Raw, plus any
// parsed recurrence/property detail) is opaque: the core never mutates an
// event, it only compares the fields below and forwards Raw to the local
// store via handler callbacks.
type CalendarEvent struct {
	UID      string
	ImportID string // UID for the master instance, "UID:RECID:<recurrence-id>" for an override
	Sequence int
	DTStamp  *int64 // unix millis, nil if absent

	Summary     string
	Description string
	Location    string
	DTStart     *int64
	DTEnd       *int64
	RRule       string // canonical form, for field-wise comparison

	Raw []byte // the undecoded iCalendar bytes, passed through unmodified
}

// ImportIDFor computes the importId for an event: the bare UID for a
// master instance, or "UID:RECID:<recurrenceID>" for a RECURRENCE-ID
// override, per the data model invariant in spec §3.
func ImportIDFor(uid, recurrenceID string) string {
	if recurrenceID == "" {
		return uid
	}
	return uid + ":RECID:" + recurrenceID
}
