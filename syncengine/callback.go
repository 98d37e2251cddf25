package syncengine

import "github.com/kestrelsync/caldavsync/caldav"

// LocalEventProvider is the read-only view onto the local store the
// engine reconciles against. Implementations must be thread-safe.
type LocalEventProvider interface {
	GetLocalEvents(calendarURL string) ([]caldav.CalendarEvent, error)
	GetEventByImportID(importID string) (*caldav.CalendarEvent, error)
	HasEvent(importID string) (bool, error)
}

// SyncResultHandler receives the effects of a sync. Exceptions (error
// returns) are trapped and do not abort the sync; they're surfaced in the
// report so the caller can see what, if anything, failed to apply.
type SyncResultHandler interface {
	UpsertEvent(event caldav.CalendarEvent, href, etag string) error
	DeleteEvent(importID string) error
	SaveSyncState(state SyncState) error
}

// ConflictResolution is the caller's decision for a BOTH_MODIFIED
// conflict.
type ConflictResolution int

const (
	UseRemote ConflictResolution = iota
	UseLocal
	KeepBoth
	SkipConflict
)

// ConflictReason enumerates why a conflict was raised. BOTH_MODIFIED is
// presently the only source the engine detects.
type ConflictReason string

const BothModified ConflictReason = "BOTH_MODIFIED"

// Conflict describes one detected conflict between the local and remote
// copies of the same importId.
type Conflict struct {
	ImportID string
	Local    caldav.CalendarEvent
	Remote   caldav.CalendarEvent
	Reason   ConflictReason
}

// ProgressPhase names the well-defined phases progress may be reported at.
type ProgressPhase string

const (
	PhaseCheck    ProgressPhase = "check"
	PhaseFetch    ProgressPhase = "fetch"
	PhaseProcess  ProgressPhase = "process"
	PhaseApply    ProgressPhase = "apply"
	PhaseComplete ProgressPhase = "complete"
)

// Callback receives best-effort sync lifecycle notifications. All methods
// are optional: Engine accepts a nil Callback.
type Callback interface {
	OnSyncStarted()
	OnProgress(phase ProgressPhase, current, total int)
	// OnConflict must return a decision; the zero value (UseRemote) is the
	// engine's own default if Callback is nil.
	OnConflict(c Conflict) ConflictResolution
	OnSyncComplete(report *Report)
	OnSyncError(err error)
}

// NopCallback is a Callback that does nothing and resolves every conflict
// with UseRemote, matching the documented default (spec §6).
type NopCallback struct{}

func (NopCallback) OnSyncStarted()                                  {}
func (NopCallback) OnProgress(ProgressPhase, int, int)               {}
func (NopCallback) OnConflict(Conflict) ConflictResolution           { return UseRemote }
func (NopCallback) OnSyncComplete(*Report)                           {}
func (NopCallback) OnSyncError(error)                                {}

func notifyProgress(cb Callback, phase ProgressPhase, current, total int) {
	if cb != nil {
		cb.OnProgress(phase, current, total)
	}
}

func resolveConflict(cb Callback, c Conflict) ConflictResolution {
	if cb == nil {
		return UseRemote
	}
	return cb.OnConflict(c)
}
