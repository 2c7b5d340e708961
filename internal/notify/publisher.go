// Package notify republishes call state transitions for downstream platform
// consumers (webhook dispatch, rating) that must react without polling the
// record store.
package notify

import "context"

// Publisher defines the interface for publishing messages.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}
