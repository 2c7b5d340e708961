package call

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the persisted lifecycle state of a call.
type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request is a queued instruction to place an outbound call. It is immutable
// once dequeued; CallID is the correlation key for the lifetime of the call.
type Request struct {
	CallID        string `json:"call_id"`
	ToNumber      string `json:"to_number"`
	FromNumber    string `json:"from_number"`
	CarrierID     string `json:"carrier_id"`
	Gateway       string `json:"gateway"`
	WebhookURL    string `json:"webhook_url,omitempty"`
	WebhookMethod string `json:"webhook_method,omitempty"`
}

// ParseRequest decodes a queue payload. Requests without a correlation key,
// destination, or gateway cannot be originated and are rejected here.
func ParseRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("decoding call request: %w", err)
	}
	if req.CallID == "" {
		return Request{}, fmt.Errorf("call request missing call_id")
	}
	if req.ToNumber == "" {
		return Request{}, fmt.Errorf("call request %s missing to_number", req.CallID)
	}
	if req.Gateway == "" {
		return Request{}, fmt.Errorf("call request %s missing gateway", req.CallID)
	}
	return req, nil
}

// Update is a partial write to a call record. Nil fields are left untouched.
type Update struct {
	Status          *Status
	SwitchUUID      *string
	AnsweredAt      *time.Time
	EndedAt         *time.Time
	DurationSeconds *int
	HangupCause     *string
	ErrorMessage    *string
}
