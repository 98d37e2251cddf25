// Package syncengine implements the ctag/sync-token driven pull half of
// the core: change detection against a remote calendar, reconciliation
// against the local store, conflict detection, and sync-state emission
// (spec §4.G).
package syncengine

// SyncState is the caller-persisted snapshot of one calendar's sync
// position. It is created empty, mutated only at the end of a successful
// sync, and destroyed when its calendar is removed (spec §3).
//
// Invariants: every ImportID in URLMap targets a valid href in the
// server's namespace at the time the state was written; ETags and URLMap
// may drift out of sync with the server but the engine must tolerate and
// recover from that rather than fail.
type SyncState struct {
	CalendarURL    string
	Ctag           string
	SyncToken      string
	ETags          map[string]string // href -> etag
	URLMap         map[string]string // importId -> href
	LastSyncMillis int64
}

// NewSyncState returns an empty state for calendarURL, as created at
// account-setup time before any sync has run.
func NewSyncState(calendarURL string) SyncState {
	return SyncState{
		CalendarURL: calendarURL,
		ETags:       map[string]string{},
		URLMap:      map[string]string{},
	}
}

func cloneState(s SyncState) SyncState {
	etags := make(map[string]string, len(s.ETags))
	for k, v := range s.ETags {
		etags[k] = v
	}
	urlMap := make(map[string]string, len(s.URLMap))
	for k, v := range s.URLMap {
		urlMap[k] = v
	}
	return SyncState{
		CalendarURL:    s.CalendarURL,
		Ctag:           s.Ctag,
		SyncToken:      s.SyncToken,
		ETags:          etags,
		URLMap:         urlMap,
		LastSyncMillis: s.LastSyncMillis,
	}
}
