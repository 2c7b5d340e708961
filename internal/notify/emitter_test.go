package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/voxhive/callbridge/internal/call"
)

func TestEmitTopicAndPayload(t *testing.T) {
	pub := NewMockPublisher()
	e := NewEmitter(pub, "platform")

	err := e.Emit(context.Background(), StateChange{
		CallID:          "abc",
		Status:          call.StatusCompleted,
		SwitchUUID:      "sess-123",
		Timestamp:       time.Date(2026, 2, 3, 10, 0, 42, 0, time.UTC),
		DurationSeconds: 42,
		HangupCause:     "NORMAL_CLEARING",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Topic != "platform/call/abc/completed" {
		t.Errorf("unexpected topic %q", msgs[0].Topic)
	}

	var p map[string]any
	if err := json.Unmarshal(msgs[0].Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p["call_id"] != "abc" {
		t.Errorf("expected call_id=abc, got %v", p["call_id"])
	}
	if p["status"] != "completed" {
		t.Errorf("expected status=completed, got %v", p["status"])
	}
	if p["duration_seconds"].(float64) != 42 {
		t.Errorf("expected duration_seconds=42, got %v", p["duration_seconds"])
	}
	if p["hangup_cause"] != "NORMAL_CLEARING" {
		t.Errorf("expected hangup_cause, got %v", p["hangup_cause"])
	}
	if p["timestamp"] != "2026-02-03T10:00:42Z" {
		t.Errorf("unexpected timestamp %v", p["timestamp"])
	}
	if p["event_id"] == "" {
		t.Error("expected event_id to be set")
	}
}

func TestEmitOmitsDurationForNonTerminalStates(t *testing.T) {
	pub := NewMockPublisher()
	e := NewEmitter(pub, "platform")

	err := e.Emit(context.Background(), StateChange{
		CallID:    "abc",
		Status:    call.StatusRinging,
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var p map[string]any
	if err := json.Unmarshal(pub.Messages()[0].Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if _, ok := p["duration_seconds"]; ok {
		t.Error("did not expect duration_seconds for ringing")
	}
	if _, ok := p["hangup_cause"]; ok {
		t.Error("did not expect hangup_cause for ringing")
	}
}

func TestEmitFailedCarriesError(t *testing.T) {
	pub := NewMockPublisher()
	e := NewEmitter(pub, "platform")

	err := e.Emit(context.Background(), StateChange{
		CallID:    "abc",
		Status:    call.StatusFailed,
		Timestamp: time.Now(),
		Error:     "DESTINATION_OUT_OF_ORDER",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if pub.Messages()[0].Topic != "platform/call/abc/failed" {
		t.Errorf("unexpected topic %q", pub.Messages()[0].Topic)
	}
	var p map[string]any
	if err := json.Unmarshal(pub.Messages()[0].Payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p["error"] != "DESTINATION_OUT_OF_ORDER" {
		t.Errorf("expected error field, got %v", p["error"])
	}
}
