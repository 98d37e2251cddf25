package quirks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForServerURL_SelectsByHost(t *testing.T) {
	assert.Equal(t, "icloud", ForServerURL("https://caldav.icloud.com/").Name())
	assert.Equal(t, "google", ForServerURL("https://apidata.googleusercontent.com/caldav/v2/").Name())
	assert.Equal(t, "google", ForServerURL("https://www.googleapis.com/caldav/").Name())
	assert.Equal(t, "fastmail", ForServerURL("https://caldav.fastmail.com/").Name())
	assert.Equal(t, "generic", ForServerURL("https://dav.example.org/").Name())
}

func TestGenericProvider_SkipsTaskLists(t *testing.T) {
	p := ForServerURL("https://dav.example.org/")
	assert.True(t, p.SkipCalendar("My Reminders", "/cal/reminders/"))
	assert.True(t, p.SkipCalendar("Todo list", "/cal/todo/"))
	assert.False(t, p.SkipCalendar("Work", "/cal/work/"))
}

func TestICloudProvider_SkipsFreebusyAndShared(t *testing.T) {
	p := ForServerURL("https://caldav.icloud.com/")
	assert.True(t, p.SkipCalendar("Shared", "/1234/freebusy/"))
	assert.True(t, p.SkipCalendar("Shared", "/1234/shared/abc/"))
	assert.False(t, p.SkipCalendar("Home", "/1234/calendars/home/"))
	assert.True(t, p.RequiresAppSpecificPassword())
	assert.Contains(t, p.ExtraHeaders(), "X-MobileMe-DAV-Options")
}

func TestGoogleProvider_Treats410AsInvalidToken(t *testing.T) {
	p := ForServerURL("https://apidata.googleusercontent.com/")
	assert.True(t, p.IsSyncTokenInvalid(410, ""))
	assert.True(t, p.IsSyncTokenInvalid(403, ""))
	assert.False(t, p.IsSyncTokenInvalid(200, ""))
}

func TestFastmailProvider_RequiresAppSpecificPassword(t *testing.T) {
	p := ForServerURL("https://caldav.fastmail.com/")
	assert.True(t, p.RequiresAppSpecificPassword())
}

func TestIsSyncTokenInvalidGeneric_BodyMarker(t *testing.T) {
	p := ForServerURL("https://dav.example.org/")
	assert.True(t, p.IsSyncTokenInvalid(400, "valid-sync-token element required"))
	assert.False(t, p.IsSyncTokenInvalid(400, "some other error"))
}
