// Package command composes switch dial strings for outbound call attempts.
package command

import (
	"fmt"
	"strings"

	"github.com/voxhive/callbridge/internal/call"
)

// BuildOriginate composes the inline originate command for a call request.
//
// The call_id channel variable is the correlation key: the switch echoes
// every channel variable back on each event for the resulting session, so
// correlation never depends on the switch-assigned uuid alone. The leg is
// parked after answer; call flow beyond initiation belongs to the routing
// layer, not this bridge.
func BuildOriginate(req call.Request) string {
	vars := []string{
		"origination_caller_id_number=" + req.FromNumber,
		"origination_caller_id_name=" + req.FromNumber,
		"call_id=" + req.CallID,
		"carrier_id=" + req.CarrierID,
		"ignore_early_media=true",
	}
	if req.WebhookURL != "" {
		vars = append(vars,
			"webhook_url="+req.WebhookURL,
			"webhook_method="+req.WebhookMethod)
	}

	return fmt.Sprintf("api originate {%s}sofia/gateway/%s/%s &park()",
		strings.Join(vars, ","), req.Gateway, req.ToNumber)
}
