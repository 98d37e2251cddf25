package syncengine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kestrelsync/caldavsync/caldav"
	"github.com/kestrelsync/caldavsync/icalendar"
	"github.com/kestrelsync/caldavsync/quirks"
	"github.com/kestrelsync/caldavsync/transport"
)

// Report is the outcome of one Sync call.
type Report struct {
	Upserted  []string // importIDs upserted to the local store
	Deleted   []string // importIDs deleted from the local store
	Conflicts []Conflict
	// Errors holds transport/HTTP/parse failures. A non-empty Errors
	// means Success is false. A transport/HTTP failure aborts the sync
	// before anything is applied or persisted; per-event decode failures
	// are listed here too, but the remaining events are still applied and
	// the new state is persisted.
	Errors []error
	// HandlerErrors holds errors returned by SyncResultHandler callbacks;
	// these do not abort the sync or affect Success.
	HandlerErrors []error
	NoChange      bool
	NewState      *SyncState
}

func (r *Report) Success() bool { return len(r.Errors) == 0 }

// Engine runs pull-direction syncs for a single account's calendars
// against a shared transport/CalDAV client. Stateless beyond its
// dependencies; safe for concurrent use across different calendars (§5).
type Engine struct {
	client *caldav.Client
	quirks quirks.Provider
	log    zerolog.Logger
}

func NewEngine(client *caldav.Client, q quirks.Provider) *Engine {
	return &Engine{client: client, quirks: q, log: log.With().Str("component", "sync-engine").Logger()}
}

// Sync runs one pull for calendarURL. It chooses incremental
// (sync-collection) mode when previous.SyncToken is non-empty and
// forceFullSync is false; otherwise it runs a full sync. An incremental
// sync that the server rejects (403/410, or a quirks-recognized
// signal) automatically falls back to a full sync.
func (e *Engine) Sync(ctx context.Context, calendarURL string, previous SyncState, forceFullSync bool, local LocalEventProvider, handler SyncResultHandler, cb Callback) (*Report, error) {
	if cb != nil {
		cb.OnSyncStarted()
	}

	useIncremental := previous.SyncToken != "" && !forceFullSync
	var report *Report
	var err error

	if useIncremental {
		report, err = e.syncIncremental(ctx, calendarURL, previous, local, handler, cb)
		if errors.Is(err, caldav.ErrSyncTokenExpired) {
			e.log.Info().Str("calendar", calendarURL).Msg("sync-token invalid, falling back to full sync")
			report, err = e.syncFull(ctx, calendarURL, previous, local, handler, cb)
		}
	} else {
		report, err = e.syncFull(ctx, calendarURL, previous, local, handler, cb)
	}

	if err != nil {
		if cb != nil {
			cb.OnSyncError(err)
		}
		return report, err
	}
	if cb != nil {
		notifyProgress(cb, PhaseComplete, 1, 1)
		cb.OnSyncComplete(report)
	}
	return report, nil
}

func (e *Engine) syncFull(ctx context.Context, calendarURL string, previous SyncState, local LocalEventProvider, handler SyncResultHandler, cb Callback) (*Report, error) {
	notifyProgress(cb, PhaseCheck, 0, 1)
	ctag, err := e.client.GetCtag(ctx, calendarURL)
	if err != nil {
		return &Report{Errors: []error{err}}, err
	}
	// Servers commonly quote getctag like an ETag; compare and store it unquoted.
	ctag = transport.NormalizeETag(ctag)
	notifyProgress(cb, PhaseCheck, 1, 1)

	if previous.Ctag != "" && ctag == previous.Ctag {
		return &Report{NoChange: true}, nil
	}

	notifyProgress(cb, PhaseFetch, 0, 1)
	serverEvents, fetchErrs := e.client.FetchEvents(ctx, calendarURL, time.Time{}, time.Time{})
	notifyProgress(cb, PhaseFetch, 1, 1)
	var parseErr *icalendar.ParseError
	if len(fetchErrs) > 0 && !errors.As(fetchErrs[0], &parseErr) {
		// The REPORT itself failed: abort before touching the local store or state.
		return &Report{Errors: fetchErrs}, fetchErrs[0]
	}

	// Probe sync-collection("") to obtain a fresh sync-token to seed the
	// new state with, per §4.G step 5 and Design Note (a).
	newToken := previous.SyncToken
	if probe, err := e.client.SyncCollection(ctx, calendarURL, ""); err == nil {
		newToken = probe.NewSyncToken
	}

	localEvents, err := local.GetLocalEvents(calendarURL)
	if err != nil {
		return &Report{Errors: append(toErrs(fetchErrs), err)}, err
	}
	localIndex := indexByImportID(localEvents)

	report := &Report{Errors: toErrs(fetchErrs)}
	newEtags := map[string]string{}
	newURLMap := map[string]string{}

	notifyProgress(cb, PhaseProcess, 0, len(serverEvents))
	serverImportIDs := map[string]bool{}
	for i, se := range serverEvents {
		serverImportIDs[se.Event.ImportID] = true
		newEtags[se.Href] = se.ETag
		newURLMap[se.Event.ImportID] = se.Href

		prevETag := previous.ETags[se.Href]
		localEv, hasLocal := localIndex[se.Event.ImportID]

		e.applyServerEvent(ctx, prevETag, hasLocal, localEv, se, handler, cb, report)
		notifyProgress(cb, PhaseProcess, i+1, len(serverEvents))
	}

	notifyProgress(cb, PhaseApply, 0, len(localEvents))
	for i, le := range localEvents {
		if !serverImportIDs[le.ImportID] {
			if err := handler.DeleteEvent(le.ImportID); err != nil {
				report.HandlerErrors = append(report.HandlerErrors, err)
			} else {
				report.Deleted = append(report.Deleted, le.ImportID)
			}
		}
		notifyProgress(cb, PhaseApply, i+1, len(localEvents))
	}

	newState := SyncState{
		CalendarURL:    calendarURL,
		Ctag:           ctag,
		SyncToken:      newToken,
		ETags:          newEtags,
		URLMap:         newURLMap,
		LastSyncMillis: previous.LastSyncMillis,
	}
	if err := handler.SaveSyncState(newState); err != nil {
		report.HandlerErrors = append(report.HandlerErrors, err)
	}
	report.NewState = &newState
	return report, nil
}

func (e *Engine) syncIncremental(ctx context.Context, calendarURL string, previous SyncState, local LocalEventProvider, handler SyncResultHandler, cb Callback) (*Report, error) {
	notifyProgress(cb, PhaseFetch, 0, 1)
	delta, err := e.client.SyncCollection(ctx, calendarURL, previous.SyncToken)
	if err != nil {
		var httpErr *transport.HTTPError
		if errors.As(err, &httpErr) && (e.quirks != nil && e.quirks.IsSyncTokenInvalid(httpErr.Code, "") || httpErr.Code == 403 || httpErr.Code == 410) {
			return nil, caldav.ErrSyncTokenExpired
		}
		return &Report{Errors: []error{err}}, err
	}
	if delta.NewSyncToken == "" {
		// Empty success with no new token: the server doesn't support or
		// has invalidated this token.
		return nil, caldav.ErrSyncTokenExpired
	}

	addedByHref, addErrs := e.client.FetchEventsByHref(ctx, calendarURL, delta.AddedHrefs)
	notifyProgress(cb, PhaseFetch, 1, 1)
	var parseErr *icalendar.ParseError
	if len(addErrs) > 0 && !errors.As(addErrs[0], &parseErr) {
		// The multiget itself failed: abort before touching the local store or state.
		return &Report{Errors: addErrs}, addErrs[0]
	}

	allAdded := append(append([]caldav.EventWithRef{}, delta.Added...), addedByHref...)

	localEvents, err := local.GetLocalEvents(calendarURL)
	if err != nil {
		return &Report{Errors: append(toErrs(addErrs), err)}, err
	}
	localIndex := indexByImportID(localEvents)

	report := &Report{Errors: toErrs(addErrs)}
	newEtags := cloneState(previous).ETags
	newURLMap := cloneState(previous).URLMap

	notifyProgress(cb, PhaseProcess, 0, len(allAdded))
	for i, se := range allAdded {
		newEtags[se.Href] = se.ETag
		newURLMap[se.Event.ImportID] = se.Href

		prevETag := previous.ETags[se.Href]
		localEv, hasLocal := localIndex[se.Event.ImportID]
		e.applyServerEvent(ctx, prevETag, hasLocal, localEv, se, handler, cb, report)
		notifyProgress(cb, PhaseProcess, i+1, len(allAdded))
	}

	notifyProgress(cb, PhaseApply, 0, len(delta.DeletedHrefs))
	for i, href := range delta.DeletedHrefs {
		importID := importIDForHref(previous.URLMap, href)
		delete(newEtags, href)
		if importID != "" {
			delete(newURLMap, importID)
			if err := handler.DeleteEvent(importID); err != nil {
				report.HandlerErrors = append(report.HandlerErrors, err)
			} else {
				report.Deleted = append(report.Deleted, importID)
			}
		}
		notifyProgress(cb, PhaseApply, i+1, len(delta.DeletedHrefs))
	}

	ctag, err := e.client.GetCtag(ctx, calendarURL)
	if err != nil {
		ctag = previous.Ctag
	} else {
		ctag = transport.NormalizeETag(ctag)
	}
	newState := SyncState{
		CalendarURL:    calendarURL,
		Ctag:           ctag,
		SyncToken:      delta.NewSyncToken,
		ETags:          newEtags,
		URLMap:         newURLMap,
		LastSyncMillis: previous.LastSyncMillis,
	}
	if err := handler.SaveSyncState(newState); err != nil {
		report.HandlerErrors = append(report.HandlerErrors, err)
	}
	report.NewState = &newState
	return report, nil
}

// applyServerEvent implements §4.G step 3's per-event decision table.
func (e *Engine) applyServerEvent(ctx context.Context, prevETag string, hasLocal bool, localEv caldav.CalendarEvent, se caldav.EventWithRef, handler SyncResultHandler, cb Callback, report *Report) {
	serverChanged := prevETag == "" || prevETag != se.ETag

	switch {
	case prevETag == "" && !hasLocal:
		upsert(handler, se, report)

	case serverChanged && hasLocal && fieldsDiffer(localEv, se.Event):
		conflict := Conflict{ImportID: se.Event.ImportID, Local: localEv, Remote: se.Event, Reason: BothModified}
		resolution := resolveConflict(cb, conflict)
		switch resolution {
		case UseRemote:
			upsert(handler, se, report)
		case UseLocal:
			// no change recorded
		case KeepBoth:
			upsert(handler, se, report)
			report.Conflicts = append(report.Conflicts, conflict)
		case SkipConflict:
			report.Conflicts = append(report.Conflicts, conflict)
		}

	default:
		upsert(handler, se, report)
	}
}

func upsert(handler SyncResultHandler, se caldav.EventWithRef, report *Report) {
	if err := handler.UpsertEvent(se.Event, se.Href, se.ETag); err != nil {
		report.HandlerErrors = append(report.HandlerErrors, err)
		return
	}
	report.Upserted = append(report.Upserted, se.Event.ImportID)
}

func fieldsDiffer(a, b caldav.CalendarEvent) bool {
	if a.Summary != b.Summary || a.Description != b.Description || a.Location != b.Location {
		return true
	}
	if !int64PtrEqual(a.DTStart, b.DTStart) || !int64PtrEqual(a.DTEnd, b.DTEnd) {
		return true
	}
	return a.RRule != b.RRule
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func indexByImportID(events []caldav.CalendarEvent) map[string]caldav.CalendarEvent {
	idx := make(map[string]caldav.CalendarEvent, len(events))
	for _, ev := range events {
		idx[ev.ImportID] = ev
	}
	return idx
}

func importIDForHref(urlMap map[string]string, href string) string {
	for importID, h := range urlMap {
		if h == href {
			return importID
		}
	}
	return ""
}

func toErrs(errs []error) []error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}
