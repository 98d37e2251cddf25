package icalendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEvent = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:event-1\r\n" +
	"DTSTAMP:20250101T120000Z\r\n" +
	"DTSTART:20250102T090000Z\r\n" +
	"DTEND:20250102T100000Z\r\n" +
	"SEQUENCE:2\r\n" +
	"SUMMARY:Standup\r\n" +
	"DESCRIPTION:Daily sync\r\n" +
	"LOCATION:Room 5\r\n" +
	"RRULE:FREQ=DAILY;COUNT=5\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestDecode_SingleEvent(t *testing.T) {
	events, err := Decode([]byte(sampleEvent))
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "event-1", ev.UID)
	assert.Equal(t, "event-1", ev.ImportID)
	assert.Equal(t, 2, ev.Sequence)
	assert.Equal(t, "Standup", ev.Summary)
	assert.Equal(t, "Daily sync", ev.Description)
	assert.Equal(t, "Room 5", ev.Location)
	require.NotNil(t, ev.DTStart)
	require.NotNil(t, ev.DTEnd)
	require.NotNil(t, ev.DTStamp)
	assert.NotEmpty(t, ev.RRule)
}

func TestDecode_MalformedInput(t *testing.T) {
	_, err := Decode([]byte("not an ical document"))
	assert.Error(t, err)
}

func TestDecode_RecurrenceOverrideDistinctImportID(t *testing.T) {
	override := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:event-1\r\n" +
		"RECURRENCE-ID:20250103T090000Z\r\n" +
		"DTSTAMP:20250101T120000Z\r\n" +
		"SUMMARY:Standup (moved)\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	events, err := Decode([]byte(override))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "event-1", events[0].UID)
	assert.NotEqual(t, "event-1", events[0].ImportID)
	assert.Contains(t, events[0].ImportID, "event-1")
}

func TestCanonicalRRule_EquivalentOrderingsMatch(t *testing.T) {
	a := CanonicalRRule("FREQ=DAILY;COUNT=5")
	b := CanonicalRRule("COUNT=5;FREQ=DAILY")
	assert.Equal(t, a, b)
}

func TestCanonicalRRule_UnparseableFallsBackToRaw(t *testing.T) {
	assert.Equal(t, "not-a-rrule", CanonicalRRule("not-a-rrule"))
}

func TestEncode_ProducesDecodableCalendar(t *testing.T) {
	data := Encode("Test Summary", "uid-xyz")
	events, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "uid-xyz", events[0].UID)
	assert.Equal(t, "Test Summary", events[0].Summary)
}
