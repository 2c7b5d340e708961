package store

import (
	"context"
	"sync"
	"time"

	"github.com/voxhive/callbridge/internal/call"
)

// Record is the in-memory view of a call record.
type Record struct {
	Status          call.Status
	SwitchUUID      string
	AnsweredAt      *time.Time
	EndedAt         *time.Time
	DurationSeconds int
	HangupCause     string
	ErrorMessage    string
}

// Memory is an in-memory Store for tests. It records every applied update so
// tests can assert on write counts, not just final state.
type Memory struct {
	mu      sync.Mutex
	records map[string]*Record
	history map[string][]call.Update
	err     error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*Record),
		history: make(map[string][]call.Update),
	}
}

func (m *Memory) UpdateCall(_ context.Context, callID string, upd call.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}

	rec := m.records[callID]
	if rec == nil {
		rec = &Record{}
		m.records[callID] = rec
	}

	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.SwitchUUID != nil {
		rec.SwitchUUID = *upd.SwitchUUID
	}
	if upd.AnsweredAt != nil {
		t := *upd.AnsweredAt
		rec.AnsweredAt = &t
	}
	if upd.EndedAt != nil {
		t := *upd.EndedAt
		rec.EndedAt = &t
	}
	if upd.DurationSeconds != nil {
		rec.DurationSeconds = *upd.DurationSeconds
	}
	if upd.HangupCause != nil {
		rec.HangupCause = *upd.HangupCause
	}
	if upd.ErrorMessage != nil {
		rec.ErrorMessage = *upd.ErrorMessage
	}

	m.history[callID] = append(m.history[callID], upd)
	return nil
}

// Record returns a copy of the call record and whether it exists.
func (m *Memory) Record(callID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[callID]
	if rec == nil {
		return Record{}, false
	}
	return *rec, true
}

// Updates returns the updates applied to the given call, in order.
func (m *Memory) Updates(callID string) []call.Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]call.Update, len(m.history[callID]))
	copy(out, m.history[callID])
	return out
}

// SetError causes all subsequent UpdateCall calls to return err. Pass nil to
// clear.
func (m *Memory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
