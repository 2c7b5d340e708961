// Package dispatcher maps inbound switch events to call state transitions
// and drives writes to the call record store.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxhive/callbridge/internal/call"
	"github.com/voxhive/callbridge/internal/esl"
	"github.com/voxhive/callbridge/internal/notify"
	"github.com/voxhive/callbridge/internal/store"
)

// Switch events that drive the state machine. Everything else on the feed is
// ignored.
const (
	evChannelCreate        = "CHANNEL_CREATE"
	evChannelProgress      = "CHANNEL_PROGRESS"
	evChannelProgressMedia = "CHANNEL_PROGRESS_MEDIA"
	evChannelAnswer        = "CHANNEL_ANSWER"
	evChannelHangup        = "CHANNEL_HANGUP_COMPLETE"
)

// statusRank orders the forward-only state machine. Terminal states share
// the top rank so nothing can follow them.
var statusRank = map[call.Status]int{
	call.StatusInitiated:  1,
	call.StatusRinging:    2,
	call.StatusInProgress: 3,
	call.StatusCompleted:  4,
	call.StatusFailed:     4,
}

// Terminal sessions are kept around as tombstones so late or duplicate
// events stay no-ops, then swept out of the correlation cache.
const (
	terminalRetention = 5 * time.Minute
	sweepInterval     = time.Minute
)

// Clock provides the current time. Defaults to time.Now; override in tests.
type Clock func() time.Time

// session is the in-memory correlation state for one outstanding call. The
// record store remains the durable source of truth; this cache is
// rebuildable from switch events if lost.
type session struct {
	callID     string
	switchUUID string
	status     call.Status
	endedAt    time.Time // set when the session reaches a terminal state
}

// Dispatcher correlates switch events to call requests by the call_id
// channel variable and advances each call through its state machine. It is
// safe for concurrent use: events arrive on the switch session's read
// goroutine while Track/Begin/Fail are called from the orchestrator.
type Dispatcher struct {
	store   store.Store
	emitter *notify.Emitter
	log     *slog.Logger
	clock   Clock

	mu        sync.Mutex
	sessions  map[string]*session
	nextSweep time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the time source for the dispatcher.
func WithClock(c Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// New creates a Dispatcher.
func New(st store.Store, emitter *notify.Emitter, log *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    st,
		emitter:  emitter,
		log:      log,
		clock:    time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Track registers a dequeued call request so subsequent events correlate to
// a known session.
func (d *Dispatcher) Track(callID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.sessions[callID]; !exists {
		d.sessions[callID] = &session{callID: callID}
	}
}

// Begin records the synchronous accept of an originate command: the switch
// assigned a session uuid and the call is now initiated.
func (d *Dispatcher) Begin(ctx context.Context, callID, switchUUID string) {
	status := call.StatusInitiated
	d.apply(ctx, callID, status, call.Update{
		Status:     &status,
		SwitchUUID: &switchUUID,
	}, func(s *session) { s.switchUUID = switchUUID })
}

// Fail marks the call failed with the given reason. Terminal: later events
// for this call are ignored.
func (d *Dispatcher) Fail(ctx context.Context, callID, reason string) {
	status := call.StatusFailed
	d.apply(ctx, callID, status, call.Update{
		Status:       &status,
		ErrorMessage: &reason,
	}, nil)
}

// HandleEvent routes one switch event into the state machine. Events that
// carry no call_id correlation variable are dropped.
func (d *Dispatcher) HandleEvent(ctx context.Context, evt esl.Event) {
	name := evt.Name()
	switch name {
	case evChannelCreate, evChannelProgress, evChannelProgressMedia,
		evChannelAnswer, evChannelHangup:
	default:
		return
	}

	callID := evt.Variable("call_id")
	if callID == "" {
		d.log.Debug("dropping event without call_id", "event", name,
			"switch_uuid", evt.Get("Unique-ID"))
		return
	}

	switch name {
	case evChannelCreate:
		status := call.StatusInitiated
		uuid := evt.Get("Unique-ID")
		d.apply(ctx, callID, status, call.Update{
			Status:     &status,
			SwitchUUID: &uuid,
		}, func(s *session) { s.switchUUID = uuid })

	case evChannelProgress, evChannelProgressMedia:
		status := call.StatusRinging
		d.apply(ctx, callID, status, call.Update{Status: &status}, nil)

	case evChannelAnswer:
		status := call.StatusInProgress
		answeredAt := d.clock()
		d.apply(ctx, callID, status, call.Update{
			Status:     &status,
			AnsweredAt: &answeredAt,
		}, nil)

	case evChannelHangup:
		status := call.StatusCompleted
		endedAt := d.clock()
		duration := evt.GetInt("variable_billsec")
		cause := evt.Get("Hangup-Cause")
		d.apply(ctx, callID, status, call.Update{
			Status:          &status,
			EndedAt:         &endedAt,
			DurationSeconds: &duration,
			HangupCause:     &cause,
		}, nil)
	}
}

// Outstanding returns the number of non-terminal sessions being tracked.
func (d *Dispatcher) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.sessions {
		if !s.status.Terminal() {
			n++
		}
	}
	return n
}

// apply advances the call to next if the state machine allows it, persists
// the update, and emits the transition. Transitions that would regress or
// leave a terminal state are no-ops. The store write and the emit happen
// under the lock: a transition accepted by the rank check commits before
// any later transition for any call, so the persisted record never moves
// backwards even when the orchestrator and the event feed race.
func (d *Dispatcher) apply(ctx context.Context, callID string, next call.Status, upd call.Update, mutate func(*session)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sweepLocked()

	s := d.sessions[callID]
	if s == nil {
		// Correlation cache miss: rebuild from the event stream
		s = &session{callID: callID}
		d.sessions[callID] = s
	}

	if s.status.Terminal() || statusRank[next] <= statusRank[s.status] {
		return
	}

	s.status = next
	if mutate != nil {
		mutate(s)
	}
	if next.Terminal() {
		s.endedAt = d.clock()
	}

	change := notify.StateChange{
		CallID:     callID,
		Status:     next,
		SwitchUUID: s.switchUUID,
		Timestamp:  d.clock(),
	}
	if upd.DurationSeconds != nil {
		change.DurationSeconds = *upd.DurationSeconds
	}
	if upd.HangupCause != nil {
		change.HangupCause = *upd.HangupCause
	}
	if upd.ErrorMessage != nil {
		change.Error = *upd.ErrorMessage
	}

	if err := d.store.UpdateCall(ctx, callID, upd); err != nil {
		// Not retried here; the record may lag the switch until reconciled
		d.log.Error("call record write failed", "call_id", callID,
			"status", next, "error", err)
	}
	if err := d.emitter.Emit(ctx, change); err != nil {
		d.log.Warn("state change publish failed", "call_id", callID,
			"status", next, "error", err)
	}
}

// sweepLocked evicts terminal sessions older than the retention window.
// Caller holds d.mu.
func (d *Dispatcher) sweepLocked() {
	now := d.clock()
	if now.Before(d.nextSweep) {
		return
	}
	d.nextSweep = now.Add(sweepInterval)
	for id, s := range d.sessions {
		if s.status.Terminal() && now.Sub(s.endedAt) > terminalRetention {
			delete(d.sessions, id)
		}
	}
}
