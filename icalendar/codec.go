// Package icalendar is the default ICalCodec adapter: it decodes/encodes
// the iCalendar wire format via github.com/emersion/go-ical and extracts
// the handful of RFC 5545 fields (UID, SEQUENCE, DTSTAMP, RECURRENCE-ID,
// SUMMARY/DESCRIPTION/LOCATION/DTSTART/DTEND/RRULE) the sync engine and
// conflict resolver need to compare. Recurrence expansion itself is out of
// scope (spec §1): RRULE is only canonicalized for equality comparison,
// never expanded into instances.
package icalendar

import (
	"bytes"
	"fmt"

	ical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/kestrelsync/caldavsync/caldav"
)

// ParseError wraps a decode failure for a single event; the caller is
// expected to drop the event and continue (spec §4.F: "dropped silently
// but logged").
type ParseError struct {
	Href string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("icalendar: %s: %v", e.Href, e.Err) }
func (e *ParseError) Unwrap() error  { return e.Err }

// Decode parses raw iCalendar bytes and returns every VEVENT found (a
// master plus any RECURRENCE-ID overrides are each returned as a separate
// CalendarEvent, sharing UID but distinct ImportID).
func Decode(raw []byte) ([]caldav.CalendarEvent, error) {
	cal, err := ical.NewDecoder(bytes.NewReader(raw)).Decode()
	if err != nil {
		return nil, err
	}

	var events []caldav.CalendarEvent
	for _, child := range cal.Children {
		if child.Name != ical.CompEvent {
			continue
		}
		events = append(events, eventFromComponent(child, raw))
	}
	return events, nil
}

func eventFromComponent(comp *ical.Component, raw []byte) caldav.CalendarEvent {
	event := ical.Event{Component: comp}

	uid, _ := event.Props.Text(ical.PropUID)
	recurrenceID := ""
	if prop := event.Props.Get(ical.PropRecurrenceID); prop != nil {
		recurrenceID = prop.Value
	}

	seq := 0
	if prop := event.Props.Get(ical.PropSequence); prop != nil {
		fmt.Sscanf(prop.Value, "%d", &seq)
	}

	ev := caldav.CalendarEvent{
		UID:      uid,
		ImportID: caldav.ImportIDFor(uid, recurrenceID),
		Sequence: seq,
		Raw:      raw,
	}

	if t, err := event.Props.DateTime(ical.PropDateTimeStamp, nil); err == nil {
		ms := t.UnixMilli()
		ev.DTStamp = &ms
	}
	if t, err := event.Props.DateTime(ical.PropDateTimeStart, nil); err == nil {
		ms := t.UnixMilli()
		ev.DTStart = &ms
	}
	if t, err := event.Props.DateTime(ical.PropDateTimeEnd, nil); err == nil {
		ms := t.UnixMilli()
		ev.DTEnd = &ms
	}

	if s, err := event.Props.Text(ical.PropSummary); err == nil {
		ev.Summary = s
	}
	if s, err := event.Props.Text(ical.PropDescription); err == nil {
		ev.Description = s
	}
	if s, err := event.Props.Text(ical.PropLocation); err == nil {
		ev.Location = s
	}
	if prop := event.Props.Get(ical.PropRecurrenceRule); prop != nil {
		ev.RRule = CanonicalRRule(prop.Value)
	}

	return ev
}

// Encode builds a minimal VCALENDAR holding one VEVENT with only the given
// UID and SUMMARY set. The core itself forwards Raw bytes unchanged and
// never regenerates iCalendar from structured fields; Encode is a narrow
// helper for tests and simple integrations that hold no Raw payload.
func Encode(summary, uid string) []byte {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//caldavsync//EN")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	event.Props.SetText(ical.PropSummary, summary)
	cal.Children = []*ical.Component{event.Component}

	var buf bytes.Buffer
	_ = ical.NewEncoder(&buf).Encode(cal)
	return buf.Bytes()
}

// CanonicalRRule normalizes an RRULE value for field-wise comparison: it
// round-trips the value through rrule-go's parser so that equivalent but
// differently-ordered/cased rule parts compare equal.
func CanonicalRRule(raw string) string {
	if raw == "" {
		return ""
	}
	r, err := rrule.StrToRRule(raw)
	if err != nil {
		return raw
	}
	return r.String()
}
