package queue

import (
	"time"

	"github.com/google/uuid"
)

// Queue applies the coalescing table (spec §4.H) on top of a Store before
// every insert, so the store itself never has to know about coalescing.
type Queue struct {
	store Store
	now   func() time.Time
}

func NewQueue(store Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

// QueueCreate enqueues a CREATE for a brand-new local event.
func (q *Queue) QueueCreate(calendarURL, eventUID string, icalData []byte) error {
	return q.enqueue(calendarURL, eventUID, "", Create, icalData, "")
}

// QueueUpdate enqueues an UPDATE for an existing server-known event.
// etag may be empty (e.g. after a NEWEST_WINS reset).
func (q *Queue) QueueUpdate(calendarURL, eventUID, eventURL string, icalData []byte, etag string) error {
	return q.enqueue(calendarURL, eventUID, eventURL, Update, icalData, etag)
}

// QueueDelete enqueues a DELETE.
func (q *Queue) QueueDelete(calendarURL, eventUID, eventURL string, etag string) error {
	return q.enqueue(calendarURL, eventUID, eventURL, Delete, nil, etag)
}

func (q *Queue) enqueue(calendarURL, eventUID, eventURL string, kind Kind, icalData []byte, etag string) error {
	existing, hasExisting := q.store.GetByEventUID(eventUID)

	nowMillis := q.now().UnixMilli()
	next := PendingOperation{
		ID:              uuid.NewString(),
		CalendarURL:     calendarURL,
		EventUID:        eventUID,
		EventURL:        eventURL,
		Kind:            kind,
		Status:          Pending,
		ICalData:        icalData,
		ETag:            etag,
		CreatedAtMillis: nowMillis,
	}

	if !hasExisting {
		return q.store.Enqueue(next)
	}

	switch existing.Kind {
	case Create:
		switch kind {
		case Update:
			// replace icalData only; keep CREATE
			merged := *existing
			merged.ICalData = icalData
			return q.store.Update(merged)
		case Delete:
			// remove existing; emit nothing
			return q.store.Delete(existing.ID)
		case Create:
			merged := *existing
			merged.ICalData = icalData
			return q.store.Update(merged)
		}
	case Update:
		switch kind {
		case Update:
			next.ID = existing.ID
			next.CreatedAtMillis = existing.CreatedAtMillis
			return q.store.Update(next)
		case Delete:
			next.ID = existing.ID
			next.CreatedAtMillis = existing.CreatedAtMillis
			next.ICalData = nil
			return q.store.Update(next)
		case Create:
			// An UPDATE already pending; a new CREATE for the same uid
			// is not a documented transition. Treat conservatively as a
			// logic error rather than silently guessing intent.
			return &LogicError{Reason: "CREATE received for event with a pending UPDATE"}
		}
	case Delete:
		switch kind {
		case Delete:
			return nil // no-op
		case Update:
			return &LogicError{Reason: "UPDATE received for event with a pending DELETE"}
		case Create:
			// Recreating an event queued for deletion: treat as a fresh
			// CREATE superseding the DELETE.
			next.ID = existing.ID
			next.CreatedAtMillis = existing.CreatedAtMillis
			return q.store.Update(next)
		}
	}

	return q.store.Enqueue(next)
}
