package davxml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMultiStatus = `<?xml version="1.0" encoding="utf-8"?>
<d:multistatus xmlns:d="DAV:" xmlns:cs="http://calendarserver.org/ns/" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/calendars/user/home/event1.ics</d:href>
    <d:propstat>
      <d:prop>
        <d:getetag>"abc123"</d:getetag>
        <c:calendar-data>BEGIN:VCALENDAR&#13;&#10;VERSION:2.0&#13;&#10;END:VCALENDAR&#13;&#10;</c:calendar-data>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/calendars/user/home/event2.ics</d:href>
    <d:status>HTTP/1.1 404 Not Found</d:status>
  </d:response>
  <d:sync-token>https://example.com/sync/1234</d:sync-token>
</d:multistatus>`

func TestParseMultiStatus_Basic(t *testing.T) {
	ms, err := ParseMultiStatus([]byte(sampleMultiStatus))
	require.NoError(t, err)
	require.Len(t, ms.Responses, 2)

	assert.Equal(t, "https://example.com/sync/1234", ms.SyncToken)

	first := ms.Responses[0]
	assert.Equal(t, "/calendars/user/home/event1.ics", first.Href)
	assert.Equal(t, 200, first.Status)
	assert.Equal(t, "abc123", first.ETag)
	assert.Contains(t, first.CalendarData, "BEGIN:VCALENDAR")

	second := ms.Responses[1]
	assert.Equal(t, 404, second.Status)
	assert.Empty(t, second.CalendarData)
}

func TestParseMultiStatus_StripsDTDAndEntities(t *testing.T) {
	malicious := `<?xml version="1.0"?>
<!DOCTYPE d:multistatus [
  <!ENTITY xxe SYSTEM "file:///etc/passwd">
]>
<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/calendars/user/home/event1.ics</d:href>
    <d:propstat>
      <d:prop><d:getetag>"&xxe;"</d:getetag></d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

	ms, err := ParseMultiStatus([]byte(malicious))
	require.NoError(t, err)
	require.Len(t, ms.Responses, 1)
	// The entity declaration is stripped along with the DOCTYPE; the
	// reference stays literal text, never resolved against the filesystem.
	assert.NotContains(t, ms.Responses[0].ETag, "root:")
}

func TestResponse_SupportedComponents(t *testing.T) {
	body := `<d:multistatus xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:response>
    <d:href>/calendars/user/home/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/><c:calendar/></d:resourcetype>
        <c:supported-calendar-component-set>
          <c:comp name="VEVENT"/><c:comp name="VTODO"/>
        </c:supported-calendar-component-set>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
</d:multistatus>`

	ms, err := ParseMultiStatus([]byte(body))
	require.NoError(t, err)
	require.Len(t, ms.Responses, 1)

	resp := ms.Responses[0]
	assert.True(t, resp.IsCalendarCollection())
	assert.ElementsMatch(t, []string{"VEVENT", "VTODO"}, resp.SupportedComponents())
}

func TestParseMultiStatus_NoPropstatFallback(t *testing.T) {
	// sync-collection deletions report just an href + 404 status, with no
	// propstat block at all.
	body := `<d:multistatus xmlns:d="DAV:">
  <d:response>
    <d:href>/calendars/user/home/gone.ics</d:href>
    <d:status>HTTP/1.1 404 Not Found</d:status>
  </d:response>
</d:multistatus>`

	ms, err := ParseMultiStatus([]byte(body))
	require.NoError(t, err)
	require.Len(t, ms.Responses, 1)
	assert.Equal(t, 404, ms.Responses[0].Status)
}
