package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsync/caldavsync/caldav"
	"github.com/kestrelsync/caldavsync/queue"
	"github.com/kestrelsync/caldavsync/quirks"
	"github.com/kestrelsync/caldavsync/syncengine"
	"github.com/kestrelsync/caldavsync/transport"
)

type mockServer struct {
	*httptest.Server
	responses map[string]mockResponse
	order     []string
}

type mockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
}

func newMockServer() *mockServer {
	m := &mockServer{responses: map[string]mockResponse{}}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handler))
	return m
}

func (m *mockServer) handler(w http.ResponseWriter, r *http.Request) {
	key := fmt.Sprintf("%s:%s", r.Method, r.URL.Path)
	m.order = append(m.order, key)
	resp, ok := m.responses[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(resp.Body))
}

func (m *mockServer) set(method, path string, resp mockResponse) {
	m.responses[fmt.Sprintf("%s:%s", method, path)] = resp
}

type stubLocal struct{}

func (stubLocal) GetLocalEvents(calendarURL string) ([]caldav.CalendarEvent, error) { return nil, nil }
func (stubLocal) GetEventByImportID(importID string) (*caldav.CalendarEvent, error)  { return nil, nil }
func (stubLocal) HasEvent(importID string) (bool, error)                             { return false, nil }

type stubHandler struct{}

func (stubHandler) UpsertEvent(event caldav.CalendarEvent, href, etag string) error { return nil }
func (stubHandler) DeleteEvent(importID string) error                              { return nil }
func (stubHandler) SaveSyncState(state syncengine.SyncState) error                  { return nil }

const orchestratorEventFixture = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:ev1\r\nSUMMARY:Test\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

func TestOrchestrator_PushRunsBeforePull(t *testing.T) {
	mock := newMockServer()
	defer mock.Close()

	mock.set("PUT", "/cal/ev1.ics", mockResponse{StatusCode: 201, Headers: map[string]string{"ETag": `"created"`}})
	mock.set("PROPFIND", "/cal/", mockResponse{
		StatusCode: 207,
		Body: `<d:multistatus xmlns:d="DAV:" xmlns:cs="http://calendarserver.org/ns/">` +
			`<d:response><d:href>/cal/</d:href><d:propstat><d:prop><cs:getctag>"same"</cs:getctag></d:prop>` +
			`<d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response></d:multistatus>`,
	})

	tc := transport.NewClient(nil, transport.Authentication{}, transport.DefaultOptions())
	client := caldav.NewClient(tc)
	store := queue.NewInMemoryStore()
	require.NoError(t, store.Enqueue(queue.PendingOperation{
		ID: "op1", CalendarURL: mock.URL + "/cal/", EventUID: "ev1", Kind: queue.Create,
		ICalData: []byte(orchestratorEventFixture), Status: queue.Pending,
	}))

	push := queue.NewPushStrategy(store, client)
	engine := syncengine.NewEngine(client, quirks.ForServerURL(mock.URL))
	orch := NewOrchestrator(push, engine)

	previous := syncengine.SyncState{CalendarURL: mock.URL + "/cal/", Ctag: "same", ETags: map[string]string{}, URLMap: map[string]string{}}
	result, err := orch.Sync(context.Background(), mock.URL+"/cal/", previous, stubLocal{}, stubHandler{}, nil)
	require.NoError(t, err)

	require.NotNil(t, result.Push)
	assert.Equal(t, 1, result.Push.Created)

	putIdx, propfindIdx := -1, -1
	for i, key := range mock.order {
		if key == "PUT:/cal/ev1.ics" && putIdx == -1 {
			putIdx = i
		}
		if key == "PROPFIND:/cal/" && propfindIdx == -1 {
			propfindIdx = i
		}
	}
	require.NotEqual(t, -1, putIdx)
	require.NotEqual(t, -1, propfindIdx)
	assert.Less(t, putIdx, propfindIdx)
}

func TestResult_Success_FalseWhenPushHasConflicts(t *testing.T) {
	result := &Result{
		Push: &queue.PushResult{Conflicts: []queue.PendingOperation{{ID: "op1"}}},
		Pull: &syncengine.Report{},
	}
	assert.False(t, result.Success())
}

func TestResult_Success_TrueWhenBothClean(t *testing.T) {
	result := &Result{
		Push: &queue.PushResult{},
		Pull: &syncengine.Report{},
	}
	assert.True(t, result.Success())
}

func TestResult_Success_FalseWhenPullHasErrors(t *testing.T) {
	result := &Result{
		Push: &queue.PushResult{},
		Pull: &syncengine.Report{Errors: []error{fmt.Errorf("boom")}},
	}
	assert.False(t, result.Success())
}
