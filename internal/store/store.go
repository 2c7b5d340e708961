// Package store holds the call-record write contract and its
// implementations. The record store is the durable source of truth for call
// state; every write is a single idempotent update of known fields.
package store

import (
	"context"
	"errors"

	"github.com/voxhive/callbridge/internal/call"
)

// ErrNotFound is returned when no call record matches the given id.
var ErrNotFound = errors.New("store: call not found")

// Store is the call-record write contract used by the bridge.
type Store interface {
	UpdateCall(ctx context.Context, callID string, upd call.Update) error
}
