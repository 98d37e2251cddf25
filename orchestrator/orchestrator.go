// Package orchestrator sequences the push and pull halves of a sync
// round for one calendar (spec §4.J).
package orchestrator

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kestrelsync/caldavsync/queue"
	"github.com/kestrelsync/caldavsync/syncengine"
)

// Result bundles the outcome of one orchestrated sync round.
type Result struct {
	Push *queue.PushResult
	Pull *syncengine.Report
}

// Success reports whether both halves completed without error. A failed
// Pull still runs after a failed Push: partial progress is preferable to
// an all-or-nothing round, but the caller should not persist sync state
// that looks clean when either half reported errors.
func (r *Result) Success() bool {
	pushOK := r.Push == nil || (r.Push.Failed == 0 && len(r.Push.Conflicts) == 0)
	pullOK := r.Pull == nil || r.Pull.Success()
	return pushOK && pullOK
}

// Orchestrator runs Push then Pull, in that fixed order: local mutations
// must reach the server before the pull reconciles remote state, or a
// pull immediately following a push would see (and could overwrite) the
// very changes the push just sent.
type Orchestrator struct {
	push   *queue.PushStrategy
	engine *syncengine.Engine
	log    zerolog.Logger
}

func NewOrchestrator(push *queue.PushStrategy, engine *syncengine.Engine) *Orchestrator {
	return &Orchestrator{push: push, engine: engine, log: log.With().Str("component", "orchestrator").Logger()}
}

// Sync pushes then pulls calendarURL. previous is the pull-side sync
// state carried from the last successful round.
func (o *Orchestrator) Sync(ctx context.Context, calendarURL string, previous syncengine.SyncState, local syncengine.LocalEventProvider, handler syncengine.SyncResultHandler, cb syncengine.Callback) (*Result, error) {
	pushResult, err := o.push.Push(ctx, calendarURL)
	if err != nil {
		o.log.Warn().Err(err).Str("calendar", calendarURL).Msg("push phase failed")
	}

	pullReport, pullErr := o.engine.Sync(ctx, calendarURL, previous, false, local, handler, cb)

	result := &Result{Push: pushResult, Pull: pullReport}
	if pullErr != nil {
		return result, pullErr
	}
	return result, nil
}
