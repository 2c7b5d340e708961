package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/voxhive/callbridge/internal/call"
)

// StateChange describes one persisted call state transition.
type StateChange struct {
	CallID          string
	Status          call.Status
	SwitchUUID      string
	Timestamp       time.Time
	DurationSeconds int
	HangupCause     string
	Error           string
}

// payload is the JSON structure published per transition.
type payload struct {
	EventID         string `json:"event_id"`
	CallID          string `json:"call_id"`
	Status          string `json:"status"`
	SwitchUUID      string `json:"switch_uuid,omitempty"`
	Timestamp       string `json:"timestamp"`
	DurationSeconds *int   `json:"duration_seconds,omitempty"`
	HangupCause     string `json:"hangup_cause,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Emitter publishes state changes under a topic prefix.
type Emitter struct {
	pub    Publisher
	prefix string
}

// NewEmitter creates an Emitter over the given publisher.
func NewEmitter(pub Publisher, prefix string) *Emitter {
	return &Emitter{pub: pub, prefix: prefix}
}

// Emit publishes one transition to <prefix>/call/<call_id>/<status>.
func (e *Emitter) Emit(ctx context.Context, change StateChange) error {
	topic := fmt.Sprintf("%s/call/%s/%s", e.prefix, change.CallID, change.Status)

	p := payload{
		EventID:     uuid.NewString(),
		CallID:      change.CallID,
		Status:      string(change.Status),
		SwitchUUID:  change.SwitchUUID,
		Timestamp:   change.Timestamp.UTC().Format(time.RFC3339),
		HangupCause: change.HangupCause,
		Error:       change.Error,
	}
	if change.Status == call.StatusCompleted {
		p.DurationSeconds = &change.DurationSeconds
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling state change: %w", err)
	}
	return e.pub.Publish(ctx, topic, data)
}
