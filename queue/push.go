package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kestrelsync/caldavsync/caldav"
	"github.com/kestrelsync/caldavsync/transport"
)

// InitialBackoff and MaxBackoff bound the push loop's own retry schedule,
// distinct from the transport-level retry in transport.Client (spec §4.H).
const (
	InitialBackoff = 60 * time.Second
	MaxBackoff     = time.Hour
)

// PushResult tallies what a Push call did.
type PushResult struct {
	Created   int
	Updated   int
	Deleted   int
	Failed    int
	Conflicts []PendingOperation
}

// PushStrategy drains the Store against a CalDAV client, one
// calendar at a time.
type PushStrategy struct {
	store  Store
	client *caldav.Client
	log    zerolog.Logger
	now    func() time.Time
}

func NewPushStrategy(store Store, client *caldav.Client) *PushStrategy {
	return &PushStrategy{store: store, client: client, log: log.With().Str("component", "push").Logger(), now: time.Now}
}

// Push drains every ready operation queued for calendarURL.
func (p *PushStrategy) Push(ctx context.Context, calendarURL string) (*PushResult, error) {
	result := &PushResult{}
	ready := p.store.GetReadyOperations(p.now().UnixMilli())

	for _, op := range ready {
		if op.CalendarURL != calendarURL {
			continue
		}
		p.pushOne(ctx, op, result)
	}
	return result, nil
}

func (p *PushStrategy) pushOne(ctx context.Context, op PendingOperation, result *PushResult) {
	if err := p.store.MarkInProgress(op.ID); err != nil {
		p.log.Warn().Err(err).Str("op", op.ID).Msg("failed to mark in-progress")
	}

	var pushErr error
	var conflictDetail string

	switch op.Kind {
	case Create:
		ref, err := p.client.CreateEventRaw(ctx, op.CalendarURL, op.EventUID, op.ICalData)
		if err == nil {
			op.EventURL = ref.Href
			op.ETag = ref.ETag
		}
		pushErr, conflictDetail = classifyPushErr(err)
	case Update:
		newETag, err := p.client.UpdateEventRaw(ctx, op.EventURL, op.ICalData, op.ETag)
		if err == nil {
			op.ETag = newETag
		} else if isNotFound(err) {
			conflictDetail = "event no longer exists"
		} else {
			pushErr, conflictDetail = classifyPushErr(err)
		}
	case Delete:
		err := p.client.DeleteEvent(ctx, op.EventURL, op.ETag)
		if err != nil && !isNotFound(err) {
			pushErr, conflictDetail = classifyPushErr(err)
		}
	}

	switch {
	case conflictDetail != "":
		op.ErrorMessage = fmt.Sprintf("Conflict: %s", conflictDetail)
		_ = p.store.MarkFailed(op.ID, op.ErrorMessage, op.RetryCount, op.NextRetryAtMillis)
		op.Status = Failed
		result.Conflicts = append(result.Conflicts, op)
		result.Failed++

	case pushErr == nil:
		_ = p.store.Delete(op.ID)
		switch op.Kind {
		case Create:
			result.Created++
		case Update:
			result.Updated++
		case Delete:
			result.Deleted++
		}

	case isRetryable(pushErr) && op.RetryCount < MaxRetries:
		retryCount := op.RetryCount + 1
		backoff := nextPushBackoff(retryCount)
		nextAt := p.now().Add(backoff).UnixMilli()
		_ = p.store.MarkFailed(op.ID, pushErr.Error(), retryCount, nextAt)
		result.Failed++

	default:
		msg := fmt.Sprintf("Permanent failure: %s", pushErr.Error())
		_ = p.store.MarkFailed(op.ID, msg, op.RetryCount, op.NextRetryAtMillis)
		result.Failed++
	}
}

func classifyPushErr(err error) (error, string) {
	if err == nil {
		return nil, ""
	}
	var ce *transport.ConflictError
	if errors.As(err, &ce) {
		return nil, ce.Detail
	}
	return err, ""
}

func isNotFound(err error) bool {
	var he *transport.HTTPError
	return errors.As(err, &he) && he.Code == 404
}

func isRetryable(err error) bool {
	var ne *transport.NetworkError
	if errors.As(err, &ne) {
		return true
	}
	var he *transport.HTTPError
	if errors.As(err, &he) {
		return he.Code == 429 || he.Code >= 500
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

func nextPushBackoff(retryCount int) time.Duration {
	backoff := InitialBackoff
	for i := 0; i < retryCount; i++ {
		backoff *= 2
		if backoff > MaxBackoff {
			return MaxBackoff
		}
	}
	return backoff
}
