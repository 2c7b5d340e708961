package call

import (
	"strings"
	"testing"
)

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{
		"call_id": "abc",
		"to_number": "+15551234567",
		"from_number": "+15559876543",
		"carrier_id": "carrier-9",
		"gateway": "g1",
		"webhook_url": "https://hooks.example.com/call",
		"webhook_method": "POST"
	}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.CallID != "abc" {
		t.Errorf("expected call_id=abc, got %q", req.CallID)
	}
	if req.Gateway != "g1" {
		t.Errorf("expected gateway=g1, got %q", req.Gateway)
	}
	if req.WebhookMethod != "POST" {
		t.Errorf("expected webhook_method=POST, got %q", req.WebhookMethod)
	}
}

func TestParseRequestMissingFields(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr string
	}{
		{"not json", `not json`, "decoding"},
		{"no call_id", `{"to_number":"+1555","gateway":"g1"}`, "call_id"},
		{"no to_number", `{"call_id":"abc","gateway":"g1"}`, "to_number"},
		{"no gateway", `{"call_id":"abc","to_number":"+1555"}`, "gateway"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tc.payload))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusInitiated, StatusRinging, StatusInProgress} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusCompleted, StatusFailed} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}
