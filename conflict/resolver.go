// Package conflict implements the push-time conflict resolution
// strategies (spec §4.I): what to do when a server precondition fails
// for a queued operation.
package conflict

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kestrelsync/caldavsync/caldav"
	"github.com/kestrelsync/caldavsync/icalendar"
	"github.com/kestrelsync/caldavsync/queue"
)

// Strategy names the resolution policy applied to a failed PendingOperation.
type Strategy string

const (
	ServerWins Strategy = "SERVER_WINS"
	LocalWins  Strategy = "LOCAL_WINS"
	NewestWins Strategy = "NEWEST_WINS"
	Manual     Strategy = "MANUAL"
)

// LocalStore is the subset of the local event store a Resolver needs to
// apply a server-wins outcome.
type LocalStore interface {
	UpsertEvent(event caldav.CalendarEvent, href, etag string) error
	DeleteEvent(importID string) error
}

// Resolver applies a Strategy to a conflicted PendingOperation.
type Resolver struct {
	client *caldav.Client
	store  queue.Store
	local  LocalStore
	log    zerolog.Logger
}

func NewResolver(client *caldav.Client, store queue.Store, local LocalStore) *Resolver {
	return &Resolver{client: client, store: store, local: local, log: log.With().Str("component", "conflict-resolver").Logger()}
}

// Resolve applies strategy to op, which must be in the Failed state with a
// conflict ErrorMessage (i.e. exactly what PushStrategy.Push reports in
// PushResult.Conflicts).
func (r *Resolver) Resolve(ctx context.Context, op queue.PendingOperation, strategy Strategy) error {
	switch strategy {
	case ServerWins:
		return r.serverWins(ctx, op)
	case LocalWins:
		return r.localWins(ctx, op)
	case NewestWins:
		return r.newestWins(ctx, op)
	case Manual:
		return r.manual(op)
	default:
		return fmt.Errorf("conflict: unknown strategy %q", strategy)
	}
}

// serverWins fetches the current server resource and makes it authoritative:
// the local copy is overwritten, or deleted if the resource is gone.
func (r *Resolver) serverWins(ctx context.Context, op queue.PendingOperation) error {
	if op.EventURL == "" {
		// CREATE conflicts never reach the server with an EventURL we can
		// re-fetch from; the created resource didn't come into being.
		return r.store.Delete(op.ID)
	}
	res, err := r.fetchCurrent(ctx, op.EventURL)
	if err != nil {
		if isNotFoundErr(err) {
			if delErr := r.local.DeleteEvent(importIDFromOp(op)); delErr != nil {
				return delErr
			}
			return r.store.Delete(op.ID)
		}
		return err
	}
	return r.applyServerCopy(op, res)
}

// applyServerCopy upserts an already-fetched server resource locally and
// clears the op, without issuing another live fetch. Shared by serverWins
// and newestWins so a server-wins outcome never fetches the same
// resource twice.
func (r *Resolver) applyServerCopy(op queue.PendingOperation, res *currentResource) error {
	events, err := icalendar.Decode(res.data)
	if err != nil || len(events) == 0 {
		return fmt.Errorf("conflict: server-wins decode: %w", err)
	}
	if err := r.local.UpsertEvent(events[0], op.EventURL, res.etag); err != nil {
		return err
	}
	return r.store.Delete(op.ID)
}

// localWins forces the local mutation through, ignoring the server's
// current state. Only supported for DELETE: forcing a CREATE/UPDATE
// through without knowing the server's current fields risks clobbering a
// concurrent edit the caller never saw.
func (r *Resolver) localWins(ctx context.Context, op queue.PendingOperation) error {
	if op.Kind != queue.Delete {
		return fmt.Errorf("conflict: LOCAL_WINS unsupported for %s, use NEWEST_WINS or SERVER_WINS: %w", op.Kind, caldav.ErrMergeNotSupported)
	}
	if err := r.client.DeleteEvent(ctx, op.EventURL, ""); err != nil {
		return err
	}
	return r.store.Delete(op.ID)
}

// newestWins fetches the server's current SEQUENCE/DTSTAMP and compares
// them against the locally queued event. If the server copy is strictly
// newer, SERVER_WINS applies; otherwise the operation is reset to retry
// the push unconditionally (no If-Match), since the local copy is deemed
// newer.
func (r *Resolver) newestWins(ctx context.Context, op queue.PendingOperation) error {
	if op.EventURL == "" || len(op.ICalData) == 0 {
		return r.serverWins(ctx, op)
	}
	res, err := r.fetchCurrent(ctx, op.EventURL)
	if err != nil {
		if isNotFoundErr(err) {
			return r.localResetWithoutETag(op)
		}
		return err
	}
	serverEvents, err := icalendar.Decode(res.data)
	if err != nil || len(serverEvents) == 0 {
		return r.localResetWithoutETag(op)
	}
	localEvents, err := icalendar.Decode(op.ICalData)
	if err != nil || len(localEvents) == 0 {
		return fmt.Errorf("conflict: newest-wins decode local: %w", err)
	}

	if isNewer(serverEvents[0], localEvents[0]) {
		// Apply the copy already fetched above instead of refetching via
		// serverWins.
		return r.applyServerCopy(op, res)
	}
	return r.localResetWithoutETag(op)
}

// localResetWithoutETag clears the op's stale ETag and retry bookkeeping
// so the push loop retries unconditionally on the next pass.
func (r *Resolver) localResetWithoutETag(op queue.PendingOperation) error {
	op.ETag = ""
	op.Status = queue.Pending
	op.RetryCount = 0
	op.NextRetryAtMillis = 0
	op.ErrorMessage = ""
	return r.store.Update(op)
}

// manual leaves the operation failed in the queue for the caller to
// resolve out of band.
func (r *Resolver) manual(op queue.PendingOperation) error {
	op.ErrorMessage = "manual resolution required"
	return r.store.Update(op)
}

type currentResource struct {
	data []byte
	etag string
}

func (r *Resolver) fetchCurrent(ctx context.Context, eventURL string) (*currentResource, error) {
	events, errs := r.client.FetchEventsByHref(ctx, parentOf(eventURL), []string{eventURL})
	if len(errs) > 0 && len(events) == 0 {
		return nil, errs[0]
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("conflict: resource not found: %s", eventURL)
	}
	return &currentResource{data: events[0].Event.Raw, etag: events[0].ETag}, nil
}

func isNewer(server, local caldav.CalendarEvent) bool {
	if server.Sequence != local.Sequence {
		return server.Sequence > local.Sequence
	}
	if server.DTStamp == nil || local.DTStamp == nil {
		return false
	}
	return *server.DTStamp > *local.DTStamp
}

func isNotFoundErr(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "404") || strings.Contains(strings.ToLower(err.Error()), "not found")
}

func importIDFromOp(op queue.PendingOperation) string {
	return op.EventUID
}

func parentOf(eventURL string) string {
	idx := strings.LastIndex(eventURL, "/")
	if idx < 0 {
		return eventURL
	}
	return eventURL[:idx]
}
