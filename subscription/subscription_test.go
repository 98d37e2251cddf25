package subscription

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsync/caldavsync/transport"
)

const feedFixture = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"X-WR-CALNAME:Team Holidays\r\n" +
	"X-APPLE-CALENDAR-COLOR:#FF8800\r\n" +
	"REFRESH-INTERVAL;VALUE=DURATION:PT30M\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:feed-ev1\r\n" +
	"SUMMARY:Holiday\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestFetch_FullResponse_ExtractsEventsAndCalendarProperties(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"feed-etag"`)
		w.Header().Set("Last-Modified", "Wed, 21 Oct 2026 07:28:00 GMT")
		w.WriteHeader(200)
		w.Write([]byte(feedFixture))
	}))
	defer srv.Close()

	tc := transport.NewClient(nil, transport.Authentication{}, transport.DefaultOptions())
	f := NewFetcher(tc)

	result, err := f.Fetch(context.Background(), srv.URL, CacheState{})
	require.NoError(t, err)
	assert.False(t, result.NotModified)
	require.Len(t, result.Events, 1)
	assert.Equal(t, "feed-ev1", result.Events[0].UID)
	assert.Equal(t, "Team Holidays", result.CalendarName)
	assert.Equal(t, "#FF8800", result.CalendarColor)
	assert.Equal(t, "feed-etag", result.CacheState.ETag)
	assert.Equal(t, 30*time.Minute, result.NextRefresh)
}

func TestFetch_NotModified_ShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"cached-etag"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	tc := transport.NewClient(nil, transport.Authentication{}, transport.DefaultOptions())
	f := NewFetcher(tc)

	prev := CacheState{ETag: "cached-etag"}
	result, err := f.Fetch(context.Background(), srv.URL, prev)
	require.NoError(t, err)
	assert.True(t, result.NotModified)
	assert.Equal(t, prev, result.CacheState)
}

func TestNextRefresh_PrefersRefreshIntervalOverCacheControlOverExpires(t *testing.T) {
	body := "REFRESH-INTERVAL;VALUE=DURATION:PT2H\r\n"
	d := nextRefresh(body, "max-age=60", "")
	assert.Equal(t, 2*time.Hour, d)
}

func TestNextRefresh_FallsBackToCacheControlMaxAge(t *testing.T) {
	d := nextRefresh("", "max-age=3600", "")
	assert.Equal(t, time.Hour, d)
}

func TestNextRefresh_FallsBackToDefault(t *testing.T) {
	d := nextRefresh("", "", "")
	assert.Equal(t, DefaultRefreshInterval, d)
}

func TestNextRefresh_ClampsBelowFloorUpToMinimum(t *testing.T) {
	body := "REFRESH-INTERVAL;VALUE=DURATION:PT1M\r\n"
	d := nextRefresh(body, "", "")
	assert.Equal(t, MinRefreshInterval, d)
}

func TestParseICalDuration_ParsesDaysHoursMinutesSeconds(t *testing.T) {
	d, ok := parseICalDuration("P1DT2H30M")
	require.True(t, ok)
	assert.Equal(t, 24*time.Hour+2*time.Hour+30*time.Minute, d)
}

func TestParseICalDuration_UnparseableReturnsFalse(t *testing.T) {
	_, ok := parseICalDuration("not-a-duration")
	assert.False(t, ok)
}
